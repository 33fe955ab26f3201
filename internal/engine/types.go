package engine

import (
	"sitevc.dev/sitevc/internal/deps"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/store"
)

// Options configures an engine
type Options struct {
	Store store.Store
	// Sessions defaults to an in-memory session store
	Sessions SessionStore
	// Schema defaults to model.DefaultSchema()
	Schema *model.Schema
	// Splog defaults to a quiet console logger
	Splog *output.Splog
	// Trunk defaults to "main"
	Trunk  string
	Author string
	// AutoCommit commits conflict-free merges inside AttemptMerge
	AutoCommit bool
	// Upgrader applies dependency upgrade steps (default deps.VersionStamper)
	Upgrader deps.Upgrader
}

// MergeOptions configures one merge attempt
type MergeOptions struct {
	// Preview computes the merge without persisting a session
	Preview bool
	// Commit commits a conflict-free merge right away, as with Options.AutoCommit
	Commit bool
	// Picks are applied from the start, e.g. when retrying after a stale head
	Picks merge.Picks
}

// MergeBaseResult is the merge base of two branches
type MergeBaseResult struct {
	Base  string
	Left  string
	Right string
	// Candidates holds every maximal common ancestor; Base is Candidates[0]
	Candidates []string
}

// MergeResult is the outcome of AttemptMerge
type MergeResult struct {
	Session *merge.Session
	Result  *merge.Result
	// Version is set when the merge was committed
	Version string
	// UpToDate is set when into already contains from; no session is created
	UpToDate bool
}
