package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/cbout22/squaresync/internal/manifest"
)

func lockEntry(path, content string) manifest.LockEntry {
	return manifest.LockEntry{
		Course:   "101",
		Path:     path,
		Size:     int64(len(content)),
		Checksum: manifest.Checksum([]byte(content)),
	}
}

func TestCheckFiles_AllIntact(t *testing.T) {
	t.Parallel()

	entries := []manifest.LockEntry{
		lockEntry("Algebra/slides.pdf", "slides"),
		lockEntry("Algebra/week 1/notes.pdf", "notes"),
	}
	fsys := fstest.MapFS{
		"Algebra/slides.pdf":       {Data: []byte("slides")},
		"Algebra/week 1/notes.pdf": {Data: []byte("notes")},
	}

	results := CheckFiles(entries, fsys, true)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Status != CheckOK {
			t.Errorf("%s: status = %d, want CheckOK", r.Entry.Path, r.Status)
		}
	}
}

func TestCheckFiles_FileMissing(t *testing.T) {
	t.Parallel()

	entries := []manifest.LockEntry{lockEntry("Algebra/slides.pdf", "slides")}
	results := CheckFiles(entries, fstest.MapFS{}, false)

	if results[0].Status != CheckFileMissing {
		t.Errorf("status = %d, want CheckFileMissing", results[0].Status)
	}
}

func TestCheckFiles_DirectoryInPlaceOfFile(t *testing.T) {
	t.Parallel()

	entries := []manifest.LockEntry{lockEntry("Algebra/slides.pdf", "slides")}
	fsys := fstest.MapFS{"Algebra/slides.pdf/inner.txt": {Data: []byte("x")}}

	if got := CheckFiles(entries, fsys, false)[0].Status; got != CheckFileMissing {
		t.Errorf("status = %d, want CheckFileMissing", got)
	}
}

func TestCheckFiles_SizeMismatch(t *testing.T) {
	t.Parallel()

	entries := []manifest.LockEntry{lockEntry("a.pdf", "original")}
	fsys := fstest.MapFS{"a.pdf": {Data: []byte("truncated file")}}

	r := CheckFiles(entries, fsys, false)[0]
	if r.Status != CheckSizeMismatch {
		t.Errorf("status = %d, want CheckSizeMismatch", r.Status)
	}
	if r.ActualSize != int64(len("truncated file")) {
		t.Errorf("ActualSize = %d", r.ActualSize)
	}
}

func TestCheckFiles_CorruptOnlyWithVerify(t *testing.T) {
	t.Parallel()

	entries := []manifest.LockEntry{lockEntry("a.pdf", "abcd")}
	fsys := fstest.MapFS{"a.pdf": {Data: []byte("abce")}}

	if got := CheckFiles(entries, fsys, false)[0].Status; got != CheckOK {
		t.Errorf("without verify: status = %d, want CheckOK", got)
	}
	r := CheckFiles(entries, fsys, true)[0]
	if r.Status != CheckCorrupt {
		t.Errorf("with verify: status = %d, want CheckCorrupt", r.Status)
	}
	if r.ActualSum != manifest.Checksum([]byte("abce")) {
		t.Errorf("ActualSum = %q", r.ActualSum)
	}
}

func TestCheckFiles_NoChecksumRecorded(t *testing.T) {
	t.Parallel()

	e := lockEntry("a.pdf", "abcd")
	e.Checksum = ""
	fsys := fstest.MapFS{"a.pdf": {Data: []byte("zzzz")}}

	if got := CheckFiles([]manifest.LockEntry{e}, fsys, true)[0].Status; got != CheckOK {
		t.Errorf("status = %d, want CheckOK when no checksum is recorded", got)
	}
}

func TestCheckFiles_MixedStatuses(t *testing.T) {
	t.Parallel()

	entries := []manifest.LockEntry{
		lockEntry("ok.pdf", "ok"),
		lockEntry("gone.pdf", "gone"),
		lockEntry("short.pdf", "longer content"),
	}
	fsys := fstest.MapFS{
		"ok.pdf":    {Data: []byte("ok")},
		"short.pdf": {Data: []byte("short")},
	}

	results := CheckFiles(entries, fsys, false)

	expected := map[string]CheckStatus{
		"ok.pdf":    CheckOK,
		"gone.pdf":  CheckFileMissing,
		"short.pdf": CheckSizeMismatch,
	}
	for _, r := range results {
		want, ok := expected[r.Entry.Path]
		if !ok {
			t.Errorf("unexpected result for %s", r.Entry.Path)
			continue
		}
		if r.Status != want {
			t.Errorf("%s: status = %d, want %d", r.Entry.Path, r.Status, want)
		}
	}
}

func TestCheckFiles_EmptyEntries(t *testing.T) {
	t.Parallel()

	results := CheckFiles(nil, fstest.MapFS{}, true)
	if len(results) != 0 {
		t.Errorf("got %d results for empty entries, want 0", len(results))
	}
}

func writeLock(t *testing.T, entries ...manifest.LockEntry) string {
	t.Helper()
	lf := manifest.NewLockFile()
	for _, e := range entries {
		rel := strings.SplitN(e.Path, "/", 2)[1]
		lf.Set(rel, e)
	}
	path := filepath.Join(t.TempDir(), manifest.DefaultLockFile)
	if err := lf.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCheck_Strict(t *testing.T) {
	t.Parallel()

	lockPath := writeLock(t, lockEntry("Algebra/slides.pdf", "slides"))
	var out bytes.Buffer

	if err := runCheckWith(lockPath, fstest.MapFS{}, false, false, &out); err != nil {
		t.Fatalf("non-strict: unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Algebra/slides.pdf: missing") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	err := runCheckWith(lockPath, fstest.MapFS{}, true, false, &out)
	if err == nil || !strings.Contains(err.Error(), "Found 1 issue(s)") {
		t.Errorf("strict: err = %v", err)
	}
}

func TestRunCheck_Intact(t *testing.T) {
	t.Parallel()

	lockPath := writeLock(t, lockEntry("Algebra/slides.pdf", "slides"))
	fsys := fstest.MapFS{"Algebra/slides.pdf": {Data: []byte("slides")}}
	var out bytes.Buffer

	if err := runCheckWith(lockPath, fsys, true, true, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "All 1 file(s) are intact") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCheck_NoLock(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	lockPath := filepath.Join(t.TempDir(), manifest.DefaultLockFile)
	if err := runCheckWith(lockPath, fstest.MapFS{}, true, false, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "nothing to check") {
		t.Errorf("output = %q", out.String())
	}
}
