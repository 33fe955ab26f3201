package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"sitevc.dev/sitevc/internal/commitgraph"
	"sitevc.dev/sitevc/internal/config"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/store"
)

// engineImpl implements Engine over a store.Store
type engineImpl struct {
	store      store.Store
	sessions   SessionStore
	schema     *model.Schema
	resolver   *merge.Resolver
	splog      *output.Splog
	trunk      string
	author     string
	autoCommit bool
	now        func() time.Time
}

var _ Engine = (*engineImpl)(nil)

// New creates an engine
func New(opts Options) (Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine needs a store")
	}
	e := &engineImpl{
		store:      opts.Store,
		sessions:   opts.Sessions,
		schema:     opts.Schema,
		splog:      opts.Splog,
		trunk:      opts.Trunk,
		author:     opts.Author,
		autoCommit: opts.AutoCommit,
		now:        time.Now,
	}
	if e.sessions == nil {
		e.sessions = NewMemorySessions()
	}
	if e.schema == nil {
		e.schema = model.DefaultSchema()
	}
	if e.splog == nil {
		e.splog, _ = output.NewSplogWithConfig(io.Discard, "")
	}
	if e.trunk == "" {
		e.trunk = "main"
	}
	if e.author == "" {
		e.author = "sitevc"
	}
	var resolverOpts []merge.Option
	if opts.Upgrader != nil {
		resolverOpts = append(resolverOpts, merge.WithUpgrader(opts.Upgrader))
	}
	e.resolver = merge.NewResolver(e.schema, resolverOpts...)
	return e, nil
}

// Close closes the underlying store
func (e *engineImpl) Close() error {
	return e.store.Close()
}

// Trunk returns the trunk branch name
func (e *engineImpl) Trunk() string {
	return e.trunk
}

// Schema returns the schema versions are materialized with
func (e *engineImpl) Schema() *model.Schema {
	return e.schema
}

// ListBranches returns every branch and its head
func (e *engineImpl) ListBranches(ctx context.Context) (map[string]string, error) {
	return e.store.ListBranches(ctx)
}

// GetBranchHead returns the version a branch points at
func (e *engineImpl) GetBranchHead(ctx context.Context, name string) (string, error) {
	return e.store.GetBranch(ctx, name)
}

// ResolveRevision returns the head of a branch named rev, or rev itself when
// it is a known version id
func (e *engineImpl) ResolveRevision(ctx context.Context, rev string) (string, error) {
	if head, err := e.store.GetBranch(ctx, rev); err == nil {
		return head, nil
	}
	if _, err := e.store.GetVersion(ctx, rev); err != nil {
		return "", fmt.Errorf("%q is neither a branch nor a version: %w", rev, err)
	}
	return rev, nil
}

// LoadVersion materializes the graph of a version
func (e *engineImpl) LoadVersion(ctx context.Context, versionID string) (*model.Graph, error) {
	return store.LoadGraph(ctx, e.store, e.schema, versionID)
}

// CreateBranch points a new branch at fromVersion
func (e *engineImpl) CreateBranch(ctx context.Context, name, fromVersion string) error {
	if err := config.ValidateBranchName(name); err != nil {
		return err
	}
	if _, err := e.store.GetVersion(ctx, fromVersion); err != nil {
		return err
	}
	if err := e.store.SetBranch(ctx, name, fromVersion, ""); err != nil {
		return err
	}
	e.splog.Debug("Created branch %s at %s", name, fromVersion)
	return nil
}

// DeleteBranch removes a branch pointer. The trunk cannot be deleted.
func (e *engineImpl) DeleteBranch(ctx context.Context, name string) error {
	if name == e.trunk {
		return fmt.Errorf("cannot delete trunk branch %s", name)
	}
	if err := e.store.DeleteBranch(ctx, name); err != nil {
		return err
	}
	e.splog.Debug("Deleted branch %s", name)
	return nil
}

// Commit records g on top of the branch head
func (e *engineImpl) Commit(ctx context.Context, branch string, g *model.Graph, message string) (string, error) {
	if g.Stamp != e.schema.Version {
		return "", fmt.Errorf("%w: graph is stamped %q, engine schema is %q",
			sitevcerrors.ErrSchemaMismatch, g.Stamp, e.schema.Version)
	}

	head, err := e.store.GetBranch(ctx, branch)
	var parents []string
	switch {
	case err == nil:
		parents = []string{head}
	case branch == e.trunk:
		branches, lerr := e.store.ListBranches(ctx)
		if lerr != nil {
			return "", lerr
		}
		if len(branches) > 0 {
			return "", err
		}
		// bootstrap: the first version of an empty store starts the trunk
		e.splog.Debug("Bootstrapping trunk %s", branch)
	default:
		return "", err
	}

	id, err := store.SaveGraph(ctx, e.store, e.schema, g, parents, e.meta(message))
	if err != nil {
		return "", err
	}
	if err := e.store.SetBranch(ctx, branch, id, head); err != nil {
		return "", err
	}
	e.splog.Event("commit", "branch", branch, "version", id, "parents", parents)
	return id, nil
}

func (e *engineImpl) meta(message string) store.CommitMeta {
	return store.CommitMeta{Message: message, Author: e.author, Time: e.now()}
}

// Log returns up to limit versions reachable from branch, nearest first.
// A limit of zero or less returns the whole history.
func (e *engineImpl) Log(ctx context.Context, branch string, limit int) ([]*store.Version, error) {
	head, err := e.ResolveRevision(ctx, branch)
	if err != nil {
		return nil, err
	}
	parents, err := e.store.ParentMap(ctx)
	if err != nil {
		return nil, err
	}
	ids := commitgraph.Ancestors(parents, head)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*store.Version, 0, len(ids))
	for _, id := range ids {
		v, err := e.store.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MergeBase finds the merge base of merging from into into. Ties between
// several maximal common ancestors prefer the earliest in into's history.
func (e *engineImpl) MergeBase(ctx context.Context, from, into string) (*MergeBaseResult, error) {
	cg, err := store.CommitGraph(ctx, e.store)
	if err != nil {
		return nil, err
	}
	base, candidates, err := cg.BranchMergeBase(into, from)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 1 {
		e.splog.Debug("Multiple merge bases for %s and %s: %v; using %s", into, from, candidates, base)
	}
	return &MergeBaseResult{
		Base:       base,
		Left:       cg.Branches[into],
		Right:      cg.Branches[from],
		Candidates: candidates,
	}, nil
}
