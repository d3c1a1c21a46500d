package cli

import (
	"errors"
	"io/fs"

	"github.com/cbout22/squaresync/internal/manifest"
)

// CheckStatus describes the state of a single synced file.
type CheckStatus int

const (
	CheckOK           CheckStatus = iota // File exists and matches the lock
	CheckFileMissing                     // In lock but file deleted
	CheckSizeMismatch                    // File size differs from the lock
	CheckCorrupt                         // Same size but content hash differs
	CheckUnreadable                      // File exists but cannot be read
)

// CheckResult holds the outcome of checking one lock entry.
type CheckResult struct {
	Entry      manifest.LockEntry
	Status     CheckStatus
	ActualSize int64  // size on disk (0 if missing)
	ActualSum  string // content hash, only computed when verifying
	Err        error  // set for CheckUnreadable
}

// CheckFiles validates lock entries against fsys, whose root is the output
// directory. With verify, files of the right size are also re-hashed and
// compared with the recorded checksum when one exists.
// This is a pure function: it reads state through its arguments, not globals.
func CheckFiles(entries []manifest.LockEntry, fsys fs.FS, verify bool) []CheckResult {
	results := make([]CheckResult, 0, len(entries))

	for _, entry := range entries {
		res := CheckResult{Entry: entry, Status: CheckOK}

		info, err := fs.Stat(fsys, entry.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res.Status = CheckFileMissing
		case err != nil:
			res.Status = CheckUnreadable
			res.Err = err
		case info.IsDir():
			res.Status = CheckFileMissing
		default:
			res.ActualSize = info.Size()
			if res.ActualSize != entry.Size {
				res.Status = CheckSizeMismatch
				break
			}
			if verify && entry.Checksum != "" {
				sum, err := checksumFile(fsys, entry.Path)
				if err != nil {
					res.Status = CheckUnreadable
					res.Err = err
					break
				}
				res.ActualSum = sum
				if sum != entry.Checksum {
					res.Status = CheckCorrupt
				}
			}
		}

		results = append(results, res)
	}

	return results
}

func checksumFile(fsys fs.FS, name string) (string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return manifest.ChecksumReader(f)
}
