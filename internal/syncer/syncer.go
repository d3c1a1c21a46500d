// Package syncer decides what to do with one remote file given the state of
// its local copy.
package syncer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/cbout22/squaresync/internal/remote"
)

// Action is the outcome of comparing a local file with its remote entry.
type Action int

const (
	Create  Action = iota // no local file
	Skip                  // local size equals the declared size
	Replace               // stale local file was removed
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Skip:
		return "skip"
	case Replace:
		return "replace"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// illegalChars cannot appear in file names on at least one supported platform.
const illegalChars = `/\:*?"<>|”`

// Sanitize replaces every character that is illegal in a file name with a space.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalChars, r) {
			return ' '
		}
		return r
	}, name)
}

// SafeName sanitizes name and returns fallback when the result would not be
// a single path element below its parent: empty, blank, "." or "..".
func SafeName(name, fallback string) string {
	name = Sanitize(name)
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return fallback
	}
	return name
}

// FileName returns the on-disk name of a file entry: the title when it
// already contains the extension, otherwise "title.ext", sanitized.
func FileName(e remote.Entry) string {
	name := e.Title
	if !strings.Contains(e.Title, e.Ext) {
		name = e.Title + "." + e.Ext
	}
	return Sanitize(name)
}

// Decide compares the file at path with the declared size of e.
// Size equality is the only freshness signal. A stale file is removed before
// Decide returns Replace, so the caller always writes a fresh file.
func Decide(e remote.Entry, path string) (Action, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Create, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("inspecting %s: %w", path, errIsDir)
	}

	if info.Size() == e.DeclaredSize() {
		return Skip, nil
	}

	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("removing stale %s: %w", path, err)
	}
	return Replace, nil
}

var errIsDir = errors.New("path is a directory")
