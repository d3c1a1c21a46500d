package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cbout22/squaresync/internal/auth"
	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/remote"
)

// Catalog is the remote API as seen by the commands: the course list plus
// everything needed to mirror one course.
type Catalog interface {
	Courses(ctx context.Context) ([]remote.Course, error)
	remote.Source
}

var _ Catalog = (*remote.Client)(nil)

// loadConfig reads the config file, then the environment, then applies
// non-zero flag values from override.
func loadConfig(path string, override config.Config) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg.Merge(override), nil
}

// connect logs in and returns a client bound to the new session.
func connect(ctx context.Context, client *http.Client, cfg config.Config) (*remote.Client, error) {
	session, err := auth.Login(ctx, client, cfg.BaseURL, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}
	return remote.New(client, cfg.BaseURL, session), nil
}

// login validates cfg and connects with an HTTP client built from it.
func login(ctx context.Context, cfg config.Config) (*remote.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return connect(ctx, auth.NewHTTPClient(cfg.Timeout), cfg)
}
