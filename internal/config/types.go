package config

import (
	"errors"
	"strings"
	"time"

	"github.com/cbout22/squaresync/internal/remote"
)

// Default values.
const (
	DefaultConfigFile = "sqsync.toml"
	LegacyConfigFile  = "config.json"
	DefaultOutputDir  = "downloads"
	DefaultWorkers    = 5
)

// Config is the runtime configuration of sqsync.
type Config struct {
	Username string
	Password string

	// ExcludeExtensions lists file extensions that are never downloaded.
	ExcludeExtensions ExtSet
	// IncludeCourses lists course ids to sync. Empty means every course.
	IncludeCourses []string

	OutputDir string
	Workers   int
	BaseURL   string
	// Timeout bounds each HTTP request including its body. Zero disables it.
	Timeout time.Duration
}

// Default returns a Config with defaults and no credentials.
func Default() Config {
	return Config{
		ExcludeExtensions: ExtSet{},
		OutputDir:         DefaultOutputDir,
		Workers:           DefaultWorkers,
		BaseURL:           remote.DefaultBaseURL,
	}
}

// Validate checks that the configuration can drive a sync.
func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("config: username is required")
	}
	if c.Password == "" {
		return errors.New("config: password is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir must not be empty")
	}
	if c.BaseURL == "" {
		return errors.New("config: base_url must not be empty")
	}
	if c.Timeout < 0 {
		return errors.New("config: timeout must not be negative")
	}
	return nil
}

// Selected reports whether the course with the given id should be synced.
func (c *Config) Selected(cid string) bool {
	if len(c.IncludeCourses) == 0 {
		return true
	}
	for _, id := range c.IncludeCourses {
		if id == cid {
			return true
		}
	}
	return false
}

// Merge returns c with every non-zero field of override applied.
func (c Config) Merge(override Config) Config {
	if override.Username != "" {
		c.Username = override.Username
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	if len(override.ExcludeExtensions) > 0 {
		c.ExcludeExtensions = override.ExcludeExtensions
	}
	if len(override.IncludeCourses) > 0 {
		c.IncludeCourses = override.IncludeCourses
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	return c
}

// ExtSet is a set of file extensions, compared case-insensitively and
// without a leading dot.
type ExtSet map[string]struct{}

// NewExtSet builds an ExtSet from a list such as ["mp4", ".AVI"].
func NewExtSet(exts []string) ExtSet {
	s := make(ExtSet, len(exts))
	for _, e := range exts {
		if n := normalizeExt(e); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether ext is in the set.
func (s ExtSet) Has(ext string) bool {
	_, ok := s[normalizeExt(ext)]
	return ok
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
