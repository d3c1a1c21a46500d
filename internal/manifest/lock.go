package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const DefaultLockFile = ".sqsync.lock"

// LockFile records every file sqsync has written, so that `sqsync check`
// can detect files that were deleted or damaged after a sync.
// It is safe for concurrent use.
type LockFile struct {
	mu sync.Mutex

	// Version of the lock file format.
	Version int `json:"version"`
	// Entries keyed by "<course id>/<path relative to the course root>".
	Entries map[string]LockEntry `json:"entries"`
}

// LockEntry records the synced state of a single file.
type LockEntry struct {
	Course   string `json:"course"`             // course id
	RemoteID string `json:"remote_id"`          // attachment id
	Path     string `json:"path"`               // slash path relative to the output directory
	Size     int64  `json:"size"`               // bytes on disk after the sync
	Checksum string `json:"checksum,omitempty"` // xxhash64 of the content, empty if never downloaded by sqsync
	RunID    string `json:"run_id"`             // sync run that wrote the entry
	SyncedAt string `json:"synced_at"`          // RFC 3339 timestamp
}

// NewLockFile returns an initialised empty lock file.
func NewLockFile() *LockFile {
	return &LockFile{
		Version: 1,
		Entries: make(map[string]LockEntry),
	}
}

// LoadLock reads and parses a lock file.
// Returns an empty lock file if the file does not exist.
func LoadLock(path string) (*LockFile, error) {
	lf := NewLockFile()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}

	if err := json.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}

	if lf.Entries == nil {
		lf.Entries = make(map[string]LockEntry)
	}

	return lf, nil
}

// Save writes the lock file to the given path.
func (lf *LockFile) Save(path string) error {
	lf.mu.Lock()
	data, err := json.MarshalIndent(lf, "", "  ")
	lf.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding lock file: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// entryKey builds the map key for a lock entry.
func entryKey(course, relPath string) string {
	return course + "/" + relPath
}

// Set records or updates the entry for relPath in course. SyncedAt is
// filled in when empty.
func (lf *LockFile) Set(relPath string, e LockEntry) {
	if e.SyncedAt == "" {
		e.SyncedAt = time.Now().UTC().Format(time.RFC3339)
	}
	lf.mu.Lock()
	lf.Entries[entryKey(e.Course, relPath)] = e
	lf.mu.Unlock()
}

// Get retrieves a lock entry, if it exists.
func (lf *LockFile) Get(course, relPath string) (LockEntry, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	e, ok := lf.Entries[entryKey(course, relPath)]
	return e, ok
}

// Remove deletes a lock entry.
func (lf *LockFile) Remove(course, relPath string) {
	lf.mu.Lock()
	delete(lf.Entries, entryKey(course, relPath))
	lf.mu.Unlock()
}

// All returns every entry ordered by path.
func (lf *LockFile) All() []LockEntry {
	lf.mu.Lock()
	entries := make([]LockEntry, 0, len(lf.Entries))
	for _, e := range lf.Entries {
		entries = append(entries, e)
	}
	lf.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// NewRunID returns a fresh identifier for one sync run.
func NewRunID() string {
	return uuid.NewString()
}

// FormatChecksum renders an xxhash64 sum the way it is stored in the lock file.
func FormatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// Checksum returns the stored form of the xxhash64 of data.
func Checksum(data []byte) string {
	return FormatChecksum(xxhash.Sum64(data))
}

// ChecksumReader hashes everything read from r.
func ChecksumReader(r io.Reader) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return FormatChecksum(h.Sum64()), nil
}
