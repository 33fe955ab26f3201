// Package scenario provides a high-level test scenario that combines a store,
// an Engine and a seeded trunk to give merge tests a terse API.
package scenario

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/engine"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store"
	"sitevc.dev/sitevc/internal/store/gitstore"
	"sitevc.dev/sitevc/testhelpers"
)

// Scenario is an engine over a fresh store whose trunk holds one version
type Scenario struct {
	T      *testing.T
	Ctx    context.Context
	Engine engine.Engine
	Store  store.Store
	Schema *model.Schema
	// Init is the version the trunk was seeded with
	Init string
}

// NewScenario seeds "main" with site on an in-memory git store
func NewScenario(t *testing.T, site *testhelpers.SiteBuilder) *Scenario {
	t.Helper()
	st, err := gitstore.NewMemory()
	require.NoError(t, err)
	return NewScenarioWithStore(t, st, site, engine.Options{})
}

// NewScenarioWithStore seeds "main" with site on st. opts.Store is overwritten.
func NewScenarioWithStore(t *testing.T, st store.Store, site *testhelpers.SiteBuilder, opts engine.Options) *Scenario {
	t.Helper()
	opts.Store = st
	if opts.Schema == nil {
		opts.Schema = site.Schema
	}
	eng, err := engine.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	s := &Scenario{T: t, Ctx: context.Background(), Engine: eng, Store: st, Schema: opts.Schema}
	s.Init, err = eng.Commit(s.Ctx, eng.Trunk(), site.Graph(), "init")
	require.NoError(t, err)
	return s
}

// Branch creates name at the head of from
func (s *Scenario) Branch(name, from string) *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Engine.CreateBranch(s.Ctx, name, s.Head(from)))
	return s
}

// Head returns the version a branch points at
func (s *Scenario) Head(branch string) string {
	s.T.Helper()
	head, err := s.Engine.GetBranchHead(s.Ctx, branch)
	require.NoError(s.T, err)
	return head
}

// Graph materializes the head of branch
func (s *Scenario) Graph(branch string) *model.Graph {
	s.T.Helper()
	g, err := s.Engine.LoadVersion(s.Ctx, s.Head(branch))
	require.NoError(s.T, err)
	return g
}

// Edit commits fn applied to the head of branch and returns the new version
func (s *Scenario) Edit(branch string, fn func(g *model.Graph)) string {
	s.T.Helper()
	g := testhelpers.Edit(s.Graph(branch), fn)
	id, err := s.Engine.Commit(s.Ctx, branch, g, "edit "+branch)
	require.NoError(s.T, err)
	return id
}

// SetText commits a text change of one instance on branch
func (s *Scenario) SetText(branch, uuid, text string) string {
	s.T.Helper()
	return s.Edit(branch, func(g *model.Graph) {
		g.Insts[uuid].Set("text", model.String(text))
	})
}

// Merge attempts to merge from into into and requires it to succeed
func (s *Scenario) Merge(from, into string) *engine.MergeResult {
	s.T.Helper()
	res, err := s.Engine.AttemptMerge(s.Ctx, from, into, engine.MergeOptions{})
	require.NoError(s.T, err)
	return res
}
