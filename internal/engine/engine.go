package engine

import (
	"context"

	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store"
)

// BranchReader provides read-only access to branches and versions
type BranchReader interface {
	Trunk() string
	Schema() *model.Schema
	ListBranches(ctx context.Context) (map[string]string, error)
	GetBranchHead(ctx context.Context, name string) (string, error)
	// ResolveRevision accepts a branch name or a version id
	ResolveRevision(ctx context.Context, rev string) (string, error)
	LoadVersion(ctx context.Context, versionID string) (*model.Graph, error)
	Log(ctx context.Context, branch string, limit int) ([]*store.Version, error)
	MergeBase(ctx context.Context, from, into string) (*MergeBaseResult, error)
}

// BranchWriter provides write operations on branches
type BranchWriter interface {
	CreateBranch(ctx context.Context, name, fromVersion string) error
	DeleteBranch(ctx context.Context, name string) error
	// Commit records g as the new head of branch. The first commit to an
	// empty store creates the trunk.
	Commit(ctx context.Context, branch string, g *model.Graph, message string) (string, error)
}

// MergeManager runs merge attempts and their sessions
type MergeManager interface {
	AttemptMerge(ctx context.Context, from, into string, opts MergeOptions) (*MergeResult, error)
	ResolveConflict(ctx context.Context, sessionID, conflictID string, pick merge.Resolution) (*merge.Session, error)
	CommitMerge(ctx context.Context, sessionID string) (string, error)
	AbortMerge(ctx context.Context, sessionID, reason string) error
	GetSession(ctx context.Context, sessionID string) (*merge.Session, error)
	ListSessions(ctx context.Context) ([]*merge.Session, error)
	// PruneSessions clears merged and aborted sessions and returns how many
	PruneSessions(ctx context.Context) (int, error)
	// PreviewSession recomputes the merge of a session with its current picks
	PreviewSession(ctx context.Context, sessionID string) (*merge.Result, error)
}

// Engine is the full branch/version API
type Engine interface {
	BranchReader
	BranchWriter
	MergeManager
	Close() error
}
