package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Dir is the directory under the repository root that holds sitevc state
const Dir = ".sitevc"

// Storage backends
const (
	BackendGit    = "git"
	BackendSQLite = "sqlite"
)

// RepoConfig represents the repository configuration
type RepoConfig struct {
	Backend     *string `json:"backend,omitempty"`
	Trunk       *string `json:"trunk,omitempty"`
	AuthorName  *string `json:"authorName,omitempty"`
	AuthorEmail *string `json:"authorEmail,omitempty"`
	// AutoCommit commits conflict-free merges without a separate merge-commit step
	AutoCommit *bool `json:"autoCommit,omitempty"`
}

func configPath(repoRoot string) string {
	return filepath.Join(repoRoot, Dir, "config.json")
}

// GetRepoConfig reads the repository configuration
func GetRepoConfig(repoRoot string) (*RepoConfig, error) {
	data, err := os.ReadFile(configPath(repoRoot))
	if err != nil {
		// Config doesn't exist - return default
		return &RepoConfig{}, nil
	}

	var config RepoConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse repo config: %w", err)
	}
	return &config, nil
}

// WriteRepoConfig writes the repository configuration, creating .sitevc if needed
func WriteRepoConfig(repoRoot string, config *RepoConfig) error {
	if err := os.MkdirAll(filepath.Join(repoRoot, Dir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", Dir, err)
	}
	configJSON, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(configPath(repoRoot), configJSON, 0600)
}

// IsInitialized checks if sitevc has been initialized
func IsInitialized(repoRoot string) bool {
	_, err := os.Stat(configPath(repoRoot))
	return err == nil
}

// GetBackend returns the storage backend, "git" by default
func (c *RepoConfig) GetBackend() string {
	if c.Backend != nil && *c.Backend != "" {
		return *c.Backend
	}
	return BackendGit
}

// GetTrunk returns the trunk branch name, "main" by default
func (c *RepoConfig) GetTrunk() string {
	if c.Trunk != nil && *c.Trunk != "" {
		return *c.Trunk
	}
	return "main"
}

// GetAuthor returns the author recorded on new versions
func (c *RepoConfig) GetAuthor() string {
	name := "sitevc"
	if c.AuthorName != nil && *c.AuthorName != "" {
		name = *c.AuthorName
	}
	if c.AuthorEmail != nil && *c.AuthorEmail != "" {
		return fmt.Sprintf("%s <%s>", name, *c.AuthorEmail)
	}
	return name
}

// GetAutoCommit returns whether clean merges commit immediately, false by default
func (c *RepoConfig) GetAutoCommit() bool {
	return c.AutoCommit != nil && *c.AutoCommit
}

// StorePath returns where the configured backend keeps its data
func (c *RepoConfig) StorePath(repoRoot string) (string, error) {
	switch c.GetBackend() {
	case BackendGit:
		return filepath.Join(repoRoot, Dir, "repo"), nil
	case BackendSQLite:
		return filepath.Join(repoRoot, Dir, "sitevc.db"), nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected %q or %q)", c.GetBackend(), BackendGit, BackendSQLite)
	}
}

// FindRoot walks up from dir to the nearest directory containing .sitevc
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for cur := abs; ; {
		if info, err := os.Stat(filepath.Join(cur, Dir)); err == nil && info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("not a sitevc repository (or any parent up to %s): run 'sitevc init'", cur)
		}
		cur = parent
	}
}
