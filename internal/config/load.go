package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape shared by the TOML and YAML formats.
type fileConfig struct {
	Username          string   `toml:"username" yaml:"username"`
	Password          string   `toml:"password" yaml:"password"`
	ExcludeExtensions []string `toml:"exclude_extensions" yaml:"exclude_extensions"`
	IncludeCourses    []string `toml:"include_courses" yaml:"include_courses"`
	OutputDir         string   `toml:"output_dir" yaml:"output_dir"`
	Workers           int      `toml:"workers" yaml:"workers"`
	BaseURL           string   `toml:"base_url" yaml:"base_url"`
	Timeout           string   `toml:"timeout" yaml:"timeout"`
}

// legacyConfig is the config.json format of earlier releases.
type legacyConfig struct {
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	ExtExpelList   []string `json:"ext_expel_list"`
	CidIncludeList []string `json:"cid_include_list"`
}

// Load reads the configuration at path. An empty path tries
// DefaultConfigFile and then LegacyConfigFile in the working directory and
// falls back to Default when neither exists.
func Load(path string) (Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}

	for _, candidate := range []string{DefaultConfigFile, LegacyConfigFile} {
		cfg, err := LoadFromFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

// LoadFromFile loads a configuration file. The format is chosen by extension:
// .toml, .yaml/.yml or .json (legacy).
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	case ".json":
		var lc legacyConfig
		if err := json.Unmarshal(data, &lc); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
		fc = fileConfig{
			Username:          lc.Username,
			Password:          lc.Password,
			ExcludeExtensions: lc.ExtExpelList,
			IncludeCourses:    lc.CidIncludeList,
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q (use .toml, .yaml or .json)", ext)
	}

	return fc.apply(Default())
}

func (fc fileConfig) apply(cfg Config) (Config, error) {
	override := Config{
		Username:          fc.Username,
		Password:          fc.Password,
		ExcludeExtensions: NewExtSet(fc.ExcludeExtensions),
		IncludeCourses:    fc.IncludeCourses,
		OutputDir:         fc.OutputDir,
		Workers:           fc.Workers,
		BaseURL:           fc.BaseURL,
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		override.Timeout = d
	}
	return cfg.Merge(override), nil
}

// LoadFromEnv applies SQSYNC_* environment variables on top of c.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SQSYNC_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("SQSYNC_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("SQSYNC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SQSYNC_OUTPUT"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SQSYNC_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SQSYNC_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("SQSYNC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SQSYNC_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}
