// Package tree expands a course's remote attachment listing into a flat list
// of files to download, creating the matching local directories on the way.
package tree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/remote"
	"github.com/cbout22/squaresync/internal/syncer"
)

// DirPermissions is used for every directory created under the course root.
const DirPermissions = 0755

// FileTask is a remote file paired with where it goes below the course root.
type FileTask struct {
	Entry remote.Entry
	// Dir is relative to the course root; "." for top-level files.
	Dir string
	// Name is the sanitized on-disk file name, unique within the run.
	Name string
}

// RelPath returns the file path relative to the course root.
func (t FileTask) RelPath() string {
	return filepath.Join(t.Dir, t.Name)
}

// Summary counts what a Flatten call discovered.
type Summary struct {
	Files    int
	Dirs     int
	Excluded int
}

// Options configures Flatten.
type Options struct {
	CourseID string
	// Root is the local course directory; it must already exist.
	Root string
	// Exclude lists extensions whose files are dropped.
	Exclude config.ExtSet
}

type item struct {
	entry remote.Entry
	dir   string
}

// Flatten walks the remote tree of a course breadth first. Every directory is
// created locally before it is listed, and every reachable file that is not
// excluded is returned exactly once, in discovery order.
func Flatten(ctx context.Context, l remote.Lister, opts Options) ([]FileTask, Summary, error) {
	var sum Summary

	roots, err := l.ListAll(ctx, opts.CourseID, remote.RootID)
	if err != nil {
		return nil, sum, fmt.Errorf("listing course root: %w", err)
	}

	queue := make([]item, 0, len(roots))
	for _, e := range roots {
		queue = append(queue, item{entry: e, dir: "."})
	}

	seen := make(map[string]bool)
	names := newNameSet()
	var tasks []FileTask

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		// The same id can show up twice when the listing shifts between pages.
		if id := it.entry.ID; id != "" {
			if seen[id] {
				continue
			}
			seen[id] = true
		}

		if it.entry.IsDir() {
			name := syncer.SafeName(it.entry.Title, "DIR_"+it.entry.ID)
			dir := filepath.Join(it.dir, names.claim(it.dir, name, it.entry.ID, true))
			if err := os.MkdirAll(filepath.Join(opts.Root, dir), DirPermissions); err != nil {
				return nil, sum, fmt.Errorf("creating directory %s: %w", dir, err)
			}
			sum.Dirs++

			children, err := l.ListAll(ctx, opts.CourseID, it.entry.ID)
			if err != nil {
				return nil, sum, fmt.Errorf("listing %s: %w", dir, err)
			}
			for _, c := range children {
				queue = append(queue, item{entry: c, dir: dir})
			}
			continue
		}

		if opts.Exclude.Has(it.entry.Ext) {
			sum.Excluded++
			continue
		}

		tasks = append(tasks, FileTask{
			Entry: it.entry,
			Dir:   it.dir,
			Name:  names.claim(it.dir, syncer.SafeName(syncer.FileName(it.entry), "FILE_"+it.entry.ID), it.entry.ID, false),
		})
	}

	sum.Files = len(tasks)
	return tasks, sum, nil
}

// nameSet hands out unique relative paths for files and directories alike,
// compared case-insensitively. A name that is already taken gets
// " (<entry id>)" appended, before the extension for files; the id is stable
// across runs so the same entry always lands on the same path.
type nameSet map[string]bool

func newNameSet() nameSet {
	return make(nameSet)
}

func (s nameSet) claim(dir, name, id string, isDir bool) string {
	key := func(n string) string { return strings.ToLower(filepath.Join(dir, n)) }

	if !s[key(name)] {
		s[key(name)] = true
		return name
	}

	ext := ""
	if !isDir {
		ext = filepath.Ext(name)
	}
	base := strings.TrimSuffix(name, ext)
	tag := syncer.Sanitize(id)
	candidate := fmt.Sprintf("%s (%s)%s", base, tag, ext)
	for n := 2; s[key(candidate)]; n++ {
		candidate = fmt.Sprintf("%s (%s-%d)%s", base, tag, n, ext)
	}
	s[key(candidate)] = true
	return candidate
}
