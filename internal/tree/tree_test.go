package tree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/remote"
)

// fakeLister serves a fixed tree keyed by parent id and counts listings.
type fakeLister struct {
	mu       sync.Mutex
	children map[string][]remote.Entry
	calls    map[string]int
	fail     map[string]error
	// root is checked to exist when a directory is listed, proving that
	// directories are created before their contents are discovered.
	root    string
	dirs    map[string]string // dir id -> expected relative path
	missing []string
}

func newFakeLister(root string) *fakeLister {
	return &fakeLister{
		children: make(map[string][]remote.Entry),
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		dirs:     make(map[string]string),
		root:     root,
	}
}

func (f *fakeLister) ListAll(_ context.Context, cid, parentID string) ([]remote.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[parentID]++
	if rel, ok := f.dirs[parentID]; ok {
		if _, err := os.Stat(filepath.Join(f.root, rel)); err != nil {
			f.missing = append(f.missing, rel)
		}
	}
	if err := f.fail[parentID]; err != nil {
		return nil, err
	}
	return f.children[parentID], nil
}

func dirEntry(id, title string) remote.Entry {
	return remote.Entry{ID: id, Title: title, Ext: remote.DirExt}
}

func fileEntry(id, title, ext string) remote.Entry {
	return remote.Entry{ID: id, Title: title, Ext: ext, CanDownload: "1", Size: "1"}
}

// buildChain creates a tree of nested directories d1/d2/.../dDepth with
// filesPerDir files in the root and in every directory.
func buildChain(f *fakeLister, depth, filesPerDir int) (wantDirs []string, wantFiles map[string]bool) {
	wantFiles = make(map[string]bool)
	nextID := 1000
	parent := remote.RootID
	rel := "."
	for level := 0; level <= depth; level++ {
		for i := 0; i < filesPerDir; i++ {
			nextID++
			e := fileEntry(strconv.Itoa(nextID), fmt.Sprintf("f%d-%d", level, i), "pdf")
			f.children[parent] = append(f.children[parent], e)
			wantFiles[filepath.Join(rel, e.Title+".pdf")] = true
		}
		if level == depth {
			break
		}
		nextID++
		id := strconv.Itoa(nextID)
		title := fmt.Sprintf("d%d", level+1)
		f.children[parent] = append(f.children[parent], dirEntry(id, title))
		rel = filepath.Join(rel, title)
		f.dirs[id] = rel
		wantDirs = append(wantDirs, rel)
		parent = id
	}
	return wantDirs, wantFiles
}

func TestFlatten_Completeness(t *testing.T) {
	t.Parallel()

	for _, depth := range []int{0, 1, 4} {
		t.Run(strconv.Itoa(depth), func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			f := newFakeLister(root)
			wantDirs, wantFiles := buildChain(f, depth, 3)

			tasks, sum, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root})
			if err != nil {
				t.Fatalf("Flatten: unexpected error: %v", err)
			}

			if len(tasks) != len(wantFiles) {
				t.Fatalf("got %d tasks, want %d", len(tasks), len(wantFiles))
			}
			if sum.Files != len(wantFiles) || sum.Dirs != depth {
				t.Errorf("summary = %+v, want files=%d dirs=%d", sum, len(wantFiles), depth)
			}
			for _, task := range tasks {
				if !wantFiles[task.RelPath()] {
					t.Errorf("unexpected task path %q", task.RelPath())
				}
			}
			for _, d := range wantDirs {
				info, err := os.Stat(filepath.Join(root, d))
				if err != nil || !info.IsDir() {
					t.Errorf("directory %s not created", d)
				}
			}
			for id, n := range f.calls {
				if n != 1 {
					t.Errorf("parent %s listed %d times, want 1", id, n)
				}
			}
			if len(f.missing) > 0 {
				t.Errorf("directories listed before being created: %v", f.missing)
			}
		})
	}
}

func TestFlatten_DuplicateDirectoryExpandedOnce(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := newFakeLister(root)

	// The same directory row appears twice, as happens when pages shift.
	f.children[remote.RootID] = []remote.Entry{dirEntry("10", "week1"), dirEntry("10", "week1")}
	f.children["10"] = []remote.Entry{fileEntry("11", "notes", "pdf")}

	tasks, sum, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root})
	if err != nil {
		t.Fatalf("Flatten: unexpected error: %v", err)
	}
	if len(tasks) != 1 || sum.Dirs != 1 {
		t.Errorf("got %d tasks, %d dirs; want 1, 1", len(tasks), sum.Dirs)
	}
	if f.calls["10"] != 1 {
		t.Errorf("directory 10 listed %d times, want 1", f.calls["10"])
	}
}

func TestFlatten_ExcludedExtensions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := newFakeLister(root)

	f.children[remote.RootID] = []remote.Entry{
		fileEntry("1", "lecture", "mp4"),
		fileEntry("2", "slides", "pdf"),
		dirEntry("3", "deep"),
	}
	f.children["3"] = []remote.Entry{dirEntry("4", "deeper")}
	f.children["4"] = []remote.Entry{
		{ID: "5", Title: "huge recording", Ext: "MP4", Size: "999999999"},
		fileEntry("6", "handout", "docx"),
	}

	tasks, sum, err := Flatten(context.Background(), f, Options{
		CourseID: "7",
		Root:     root,
		Exclude:  config.NewExtSet([]string{"mp4"}),
	})
	if err != nil {
		t.Fatalf("Flatten: unexpected error: %v", err)
	}

	var got []string
	for _, task := range tasks {
		if config.NewExtSet([]string{"mp4"}).Has(task.Entry.Ext) {
			t.Errorf("excluded entry %q reached the task list", task.Entry.Title)
		}
		got = append(got, task.RelPath())
	}
	sort.Strings(got)
	want := []string{filepath.Join("deep", "deeper", "handout.docx"), "slides.pdf"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("tasks = %v, want %v", got, want)
	}
	if sum.Excluded != 2 {
		t.Errorf("Excluded = %d, want 2", sum.Excluded)
	}
}

func TestFlatten_NameCollisions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := newFakeLister(root)

	f.children[remote.RootID] = []remote.Entry{
		fileEntry("1", "notes", "pdf"),
		fileEntry("2", "notes.pdf", "pdf"),
		fileEntry("3", "notes", "pdf"),
		dirEntry("4", "sub"),
	}
	f.children["4"] = []remote.Entry{fileEntry("5", "notes", "pdf")}

	tasks, _, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root})
	if err != nil {
		t.Fatalf("Flatten: unexpected error: %v", err)
	}

	want := map[string]string{
		"1": "notes.pdf",
		"2": "notes (2).pdf",
		"3": "notes (3).pdf",
		"5": filepath.Join("sub", "notes.pdf"),
	}
	seen := make(map[string]bool)
	for _, task := range tasks {
		if got := task.RelPath(); got != want[task.Entry.ID] {
			t.Errorf("entry %s: path %q, want %q", task.Entry.ID, got, want[task.Entry.ID])
		}
		if seen[task.RelPath()] {
			t.Errorf("path %q assigned twice", task.RelPath())
		}
		seen[task.RelPath()] = true
	}
}

func TestFlatten_ListingErrorAborts(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := newFakeLister(root)
	boom := &remote.Error{Op: "listing 9", Kind: remote.Network, Err: errors.New("reset")}

	f.children[remote.RootID] = []remote.Entry{dirEntry("9", "broken")}
	f.fail["9"] = boom

	_, _, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root})
	if !errors.Is(err, boom) {
		t.Fatalf("Flatten: got %v, want wrapped %v", err, boom)
	}
	if !remote.IsNetwork(err) {
		t.Error("error kind should survive wrapping")
	}
}

func TestFlatten_ExistingDirectoryIsFine(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "week 1"), 0755); err != nil {
		t.Fatal(err)
	}
	f := newFakeLister(root)
	f.children[remote.RootID] = []remote.Entry{dirEntry("1", "week/1")}

	if _, _, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root}); err != nil {
		t.Fatalf("Flatten(existing dir): unexpected error: %v", err)
	}
}

func TestFlatten_EmptyCourse(t *testing.T) {
	t.Parallel()
	f := newFakeLister(t.TempDir())

	tasks, sum, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: f.root})
	if err != nil {
		t.Fatalf("Flatten: unexpected error: %v", err)
	}
	if len(tasks) != 0 || sum != (Summary{}) {
		t.Errorf("got %d tasks, summary %+v; want none", len(tasks), sum)
	}
}

func TestFlatten_UnsafeTitlesStayInsideRoot(t *testing.T) {
	t.Parallel()
	parent := t.TempDir()
	root := filepath.Join(parent, "course")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatal(err)
	}
	f := newFakeLister(root)

	f.children[remote.RootID] = []remote.Entry{
		dirEntry("1", ".."),
		dirEntry("4", ""),
		dirEntry("7", "."),
		fileEntry("9", "..", ""),
	}
	f.children["1"] = []remote.Entry{dirEntry("2", "evil"), fileEntry("3", "x", "pdf")}
	f.children["4"] = []remote.Entry{fileEntry("5", "y", "pdf")}
	f.children["7"] = []remote.Entry{fileEntry("8", "z", "pdf")}

	tasks, _, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root})
	if err != nil {
		t.Fatalf("Flatten: unexpected error: %v", err)
	}

	want := map[string]string{
		"3": filepath.Join("DIR_1", "x.pdf"),
		"5": filepath.Join("DIR_4", "y.pdf"),
		"8": filepath.Join("DIR_7", "z.pdf"),
		"9": "FILE_9",
	}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(tasks), len(want))
	}
	for _, task := range tasks {
		if got := task.RelPath(); got != want[task.Entry.ID] {
			t.Errorf("entry %s: path %q, want %q", task.Entry.ID, got, want[task.Entry.ID])
		}
		rel, err := filepath.Rel(root, filepath.Join(root, task.RelPath()))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			t.Errorf("entry %s resolves outside the course root: %q", task.Entry.ID, task.RelPath())
		}
	}

	if info, err := os.Stat(filepath.Join(root, "DIR_1", "evil")); err != nil || !info.IsDir() {
		t.Errorf("DIR_1/evil not created inside the course root")
	}
	if _, err := os.Stat(filepath.Join(parent, "evil")); !os.IsNotExist(err) {
		t.Errorf("directory created next to the course root: err = %v", err)
	}
}

func TestFlatten_CaseInsensitiveCollisions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := newFakeLister(root)

	f.children[remote.RootID] = []remote.Entry{
		fileEntry("1", "Notes", "pdf"),
		fileEntry("2", "notes", "pdf"),
		dirEntry("3", "week.pdf"),
		fileEntry("4", "week", "pdf"),
		dirEntry("5", "Week.PDF"),
	}
	f.children["3"] = []remote.Entry{fileEntry("6", "a", "pdf")}
	f.children["5"] = []remote.Entry{fileEntry("7", "b", "pdf")}

	tasks, _, err := Flatten(context.Background(), f, Options{CourseID: "7", Root: root})
	if err != nil {
		t.Fatalf("Flatten: unexpected error: %v", err)
	}

	want := map[string]string{
		"1": "Notes.pdf",
		"2": "notes (2).pdf",
		"4": "week (4).pdf",
		"6": filepath.Join("week.pdf", "a.pdf"),
		"7": filepath.Join("Week.PDF (5)", "b.pdf"),
	}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(tasks), len(want))
	}
	for _, task := range tasks {
		if got := task.RelPath(); got != want[task.Entry.ID] {
			t.Errorf("entry %s: path %q, want %q", task.Entry.ID, got, want[task.Entry.ID])
		}
	}
}
