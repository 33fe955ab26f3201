// Package store defines the graph store boundary: immutable version bundles,
// the parent relation between versions, and named branch pointers.
package store

import (
	"context"
	"fmt"
	"time"

	"sitevc.dev/sitevc/internal/commitgraph"
	"sitevc.dev/sitevc/internal/model"
)

// Version is one immutable node of the commit graph
type Version struct {
	ID        string    `json:"id"`
	Parents   []string  `json:"parents"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommitMeta describes a version being written
type CommitMeta struct {
	Message string
	Author  string
	Time    time.Time
}

// Store persists bundles and branch pointers.
//
// SetBranch is a compare-and-set: expected is the version the caller last saw
// the branch at, or "" when the branch must not exist yet. A mismatch returns
// a StaleBranchHeadError (or ErrBranchExists when creating).
type Store interface {
	GetBundle(ctx context.Context, versionID string) (*model.Bundle, error)
	GetVersion(ctx context.Context, versionID string) (*Version, error)
	CommitBundle(ctx context.Context, parents []string, b *model.Bundle, meta CommitMeta) (string, error)
	ParentMap(ctx context.Context) (commitgraph.ParentMap, error)

	GetBranch(ctx context.Context, name string) (string, error)
	SetBranch(ctx context.Context, name, versionID, expected string) error
	DeleteBranch(ctx context.Context, name string) error
	ListBranches(ctx context.Context) (map[string]string, error)

	Close() error
}

// CommitGraph reads the branch map and parent relation in one value
func CommitGraph(ctx context.Context, s Store) (*commitgraph.Graph, error) {
	branches, err := s.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	parents, err := s.ParentMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read parent map: %w", err)
	}
	return &commitgraph.Graph{Branches: branches, Parents: parents}, nil
}

// LoadGraph reads the bundle of a version and materializes it
func LoadGraph(ctx context.Context, s Store, schema *model.Schema, versionID string) (*model.Graph, error) {
	b, err := s.GetBundle(ctx, versionID)
	if err != nil {
		return nil, err
	}
	g, err := model.Materialize(b, schema)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", versionID, err)
	}
	return g, nil
}

// SaveGraph flattens g and commits it on top of parents
func SaveGraph(ctx context.Context, s Store, schema *model.Schema, g *model.Graph, parents []string, meta CommitMeta) (string, error) {
	b, err := model.Flatten(g, schema)
	if err != nil {
		return "", err
	}
	return s.CommitBundle(ctx, parents, b, meta)
}
