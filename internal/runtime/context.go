// Package runtime provides a context type that holds the engine and logger
// for use throughout the application. This avoids passing multiple parameters.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"

	"sitevc.dev/sitevc/internal/config"
	"sitevc.dev/sitevc/internal/engine"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/store"
	"sitevc.dev/sitevc/internal/store/gitstore"
	"sitevc.dev/sitevc/internal/store/sqlitestore"
)

// Context provides access to engine and output for commands
type Context struct {
	context.Context
	Engine   engine.Engine
	Splog    *output.Splog
	RepoRoot string
	Config   *config.RepoConfig
}

// Close releases the engine's store and the log file
func (c *Context) Close() error {
	err := c.Engine.Close()
	if cerr := c.Splog.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenStore opens the backend named in cfg, creating it when missing
func OpenStore(repoRoot string, cfg *config.RepoConfig) (store.Store, error) {
	path, err := cfg.StorePath(repoRoot)
	if err != nil {
		return nil, err
	}
	if cfg.GetBackend() == config.BackendSQLite {
		st, err := sqlitestore.Open(path, sqlitestore.WithMkdirAll())
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := gitstore.Open(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// NewSplog creates the console logger commands write to. The rotating log file
// is best effort: when it cannot be opened the console logger is used alone.
func NewSplog(w io.Writer) *output.Splog {
	splog, err := output.NewSplogWithConfig(w, output.GetLogFilePath())
	if err != nil {
		splog, _ = output.NewSplogWithConfig(w, "")
		splog.Debug("log file unavailable: %v", err)
	}
	return splog
}

// NewContext opens the repository at repoRoot
func NewContext(ctx context.Context, repoRoot string, w io.Writer) (*Context, error) {
	cfg, err := config.GetRepoConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	st, err := OpenStore(repoRoot, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.GetBackend(), err)
	}

	splog := NewSplog(w)
	eng, err := engine.New(engine.Options{
		Store:      st,
		Sessions:   config.SessionStore{Root: repoRoot},
		Splog:      splog,
		Trunk:      cfg.GetTrunk(),
		Author:     cfg.GetAuthor(),
		AutoCommit: cfg.GetAutoCommit(),
	})
	if err != nil {
		_ = st.Close()
		_ = splog.Close()
		return nil, err
	}
	return &Context{Context: ctx, Engine: eng, Splog: splog, RepoRoot: repoRoot, Config: cfg}, nil
}

// GetContext finds the repository containing dir (the working directory when
// empty) and opens it
func GetContext(ctx context.Context, dir string, w io.Writer) (*Context, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	repoRoot, err := config.FindRoot(dir)
	if err != nil {
		return nil, err
	}
	if !config.IsInitialized(repoRoot) {
		return nil, fmt.Errorf("sitevc not initialized. Run 'sitevc init' first")
	}
	return NewContext(ctx, repoRoot, w)
}
