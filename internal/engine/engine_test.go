package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/config"
	"sitevc.dev/sitevc/internal/engine"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store/sqlitestore"
	"sitevc.dev/sitevc/testhelpers"
	"sitevc.dev/sitevc/testhelpers/scenario"
)

func TestBranches(t *testing.T) {
	t.Run("first commit bootstraps the trunk", func(t *testing.T) {
		s := scenario.NewScenario(t, testhelpers.BasicSite())
		require.Equal(t, s.Init, s.Head("main"))

		branches, err := s.Engine.ListBranches(s.Ctx)
		require.NoError(t, err)
		require.Equal(t, map[string]string{"main": s.Init}, branches)
		testhelpers.RequireText(t, s.Graph("main"), "e", "A")
	})

	t.Run("commits on a missing branch fail", func(t *testing.T) {
		s := scenario.NewScenario(t, testhelpers.BasicSite())
		_, err := s.Engine.Commit(s.Ctx, "nope", s.Graph("main"), "x")
		require.ErrorIs(t, err, sitevcerrors.ErrBranchNotFound)
	})

	t.Run("commits with a foreign stamp fail", func(t *testing.T) {
		s := scenario.NewScenario(t, testhelpers.BasicSite())
		g := s.Graph("main")
		g.Stamp = "sitevc/0"
		_, err := s.Engine.Commit(s.Ctx, "main", g, "x")
		require.ErrorIs(t, err, sitevcerrors.ErrSchemaMismatch)
	})

	t.Run("create and delete", func(t *testing.T) {
		s := scenario.NewScenario(t, testhelpers.BasicSite())
		s.Branch("feature", "main")
		require.Equal(t, s.Init, s.Head("feature"))

		require.ErrorIs(t, s.Engine.CreateBranch(s.Ctx, "feature", s.Init), sitevcerrors.ErrBranchExists)
		require.Error(t, s.Engine.CreateBranch(s.Ctx, "bad name", s.Init))
		require.ErrorIs(t, s.Engine.CreateBranch(s.Ctx, "other", "0123456789abcdef0123456789abcdef01234567"), sitevcerrors.ErrVersionNotFound)

		require.Error(t, s.Engine.DeleteBranch(s.Ctx, "main"))
		require.NoError(t, s.Engine.DeleteBranch(s.Ctx, "feature"))
		require.ErrorIs(t, s.Engine.DeleteBranch(s.Ctx, "feature"), sitevcerrors.ErrBranchNotFound)
	})

	t.Run("resolve revision", func(t *testing.T) {
		s := scenario.NewScenario(t, testhelpers.BasicSite())
		v := s.SetText("main", "e", "B")

		got, err := s.Engine.ResolveRevision(s.Ctx, "main")
		require.NoError(t, err)
		require.Equal(t, v, got)
		got, err = s.Engine.ResolveRevision(s.Ctx, s.Init)
		require.NoError(t, err)
		require.Equal(t, s.Init, got)
		_, err = s.Engine.ResolveRevision(s.Ctx, "missing")
		require.Error(t, err)
	})
}

func TestLog(t *testing.T) {
	s := scenario.NewScenario(t, testhelpers.BasicSite())
	v1 := s.SetText("main", "e", "B")
	v2 := s.SetText("main", "e", "C")

	versions, err := s.Engine.Log(s.Ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, v2, versions[0].ID)
	require.Equal(t, []string{v1}, versions[0].Parents)
	require.Equal(t, v1, versions[1].ID)
	require.Equal(t, s.Init, versions[2].ID)
	require.Empty(t, versions[2].Parents)
	require.Equal(t, "init", versions[2].Message)

	versions, err = s.Engine.Log(s.Ctx, "main", 2)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestMergeBase(t *testing.T) {
	s := scenario.NewScenario(t, testhelpers.BasicSite())
	s.Branch("feature", "main")
	left := s.SetText("main", "e", "B")
	right := s.Edit("feature", func(g *model.Graph) { g.Insts["p2"].Set("tag", model.String("span")) })

	mb, err := s.Engine.MergeBase(s.Ctx, "feature", "main")
	require.NoError(t, err)
	require.Equal(t, s.Init, mb.Base)
	require.Equal(t, left, mb.Left)
	require.Equal(t, right, mb.Right)
	require.Equal(t, []string{s.Init}, mb.Candidates)

	_, err = s.Engine.MergeBase(s.Ctx, "feature", "nope")
	require.ErrorIs(t, err, sitevcerrors.ErrBranchNotFound)
}

// diverged returns a scenario whose main and feature both changed since init.
// With conflict set, both sides edit e's text.
func diverged(t *testing.T, conflict bool, opts engine.Options) *scenario.Scenario {
	t.Helper()
	st, err := sqlitestore.OpenMemory()
	require.NoError(t, err)
	s := scenario.NewScenarioWithStore(t, st, testhelpers.BasicSite(), opts)
	s.Branch("feature", "main")
	s.SetText("main", "e", "B")
	if conflict {
		s.SetText("feature", "e", "C")
	} else {
		s.Edit("feature", func(g *model.Graph) { g.Insts["p2"].Set("tag", model.String("span")) })
	}
	return s
}

func TestCleanMerge(t *testing.T) {
	t.Run("commit merges right away", func(t *testing.T) {
		s := diverged(t, false, engine.Options{})
		left, right := s.Head("main"), s.Head("feature")

		res, err := s.Engine.AttemptMerge(s.Ctx, "feature", "main", engine.MergeOptions{Commit: true})
		require.NoError(t, err)
		require.NotEmpty(t, res.Version)
		require.Equal(t, merge.StateMerged, res.Session.State)
		require.Equal(t, res.Version, s.Head("main"))

		v, err := s.Store.GetVersion(s.Ctx, res.Version)
		require.NoError(t, err)
		require.Equal(t, []string{left, right}, v.Parents)
		require.Equal(t, "Merge branch 'feature' into main", v.Message)

		merged := s.Graph("main")
		testhelpers.RequireText(t, merged, "e", "B")
		require.Equal(t, model.String("span"), merged.Insts["p2"].Get("tag"))
		// feature is untouched
		require.Equal(t, right, s.Head("feature"))
	})

	t.Run("auto commit from options", func(t *testing.T) {
		s := diverged(t, false, engine.Options{AutoCommit: true})
		res := s.Merge("feature", "main")
		require.NotEmpty(t, res.Version)
		require.Equal(t, res.Version, s.Head("main"))
	})

	t.Run("without commit the session waits", func(t *testing.T) {
		s := diverged(t, false, engine.Options{})
		left := s.Head("main")
		res := s.Merge("feature", "main")
		require.Empty(t, res.Version)
		require.Equal(t, merge.StateApplying, res.Session.State)
		require.Equal(t, left, s.Head("main"))

		id, err := s.Engine.CommitMerge(s.Ctx, res.Session.ID)
		require.NoError(t, err)
		require.Equal(t, id, s.Head("main"))

		session, err := s.Engine.GetSession(s.Ctx, res.Session.ID)
		require.NoError(t, err)
		require.Equal(t, merge.StateMerged, session.State)
		require.Equal(t, id, session.Version)
	})

	t.Run("merging back is up to date", func(t *testing.T) {
		s := diverged(t, false, engine.Options{AutoCommit: true})
		s.Merge("feature", "main")
		res := s.Merge("feature", "main")
		require.True(t, res.UpToDate)
		require.Nil(t, res.Session)

		sessions, err := s.Engine.ListSessions(s.Ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
	})

	t.Run("merging into itself fails", func(t *testing.T) {
		s := diverged(t, false, engine.Options{})
		_, err := s.Engine.AttemptMerge(s.Ctx, "main", "main", engine.MergeOptions{})
		require.ErrorIs(t, err, sitevcerrors.ErrSameBranch)
	})
}

func TestConflictedMerge(t *testing.T) {
	t.Run("resolve then commit", func(t *testing.T) {
		s := diverged(t, true, engine.Options{AutoCommit: true})
		left, right := s.Head("main"), s.Head("feature")

		res := s.Merge("feature", "main")
		require.Empty(t, res.Version)
		require.Equal(t, merge.StateAwaitingResolution, res.Session.State)
		require.Equal(t, []string{"generic:e"}, res.Session.Pending())
		require.Equal(t, left, s.Head("main"))

		_, err := s.Engine.CommitMerge(s.Ctx, res.Session.ID)
		require.ErrorIs(t, err, sitevcerrors.ErrUnresolvedConflict)

		session, err := s.Engine.ResolveConflict(s.Ctx, res.Session.ID, "generic:e", merge.Resolution{Side: merge.Right})
		require.NoError(t, err)
		require.Empty(t, session.Pending())

		id, err := s.Engine.CommitMerge(s.Ctx, res.Session.ID)
		require.NoError(t, err)
		testhelpers.RequireText(t, s.Graph("main"), "e", "C")

		v, err := s.Store.GetVersion(s.Ctx, id)
		require.NoError(t, err)
		require.Equal(t, []string{left, right}, v.Parents)
	})

	t.Run("preview does not persist", func(t *testing.T) {
		s := diverged(t, true, engine.Options{})
		res, err := s.Engine.AttemptMerge(s.Ctx, "feature", "main", engine.MergeOptions{Preview: true})
		require.NoError(t, err)
		require.Len(t, res.Result.Generic, 1)
		// unpicked conflicts take the left side provisionally
		testhelpers.RequireText(t, res.Result.Merged, "e", "B")

		_, err = s.Engine.GetSession(s.Ctx, res.Session.ID)
		require.ErrorIs(t, err, sitevcerrors.ErrSessionNotFound)
	})

	t.Run("picks up front", func(t *testing.T) {
		s := diverged(t, true, engine.Options{})
		res, err := s.Engine.AttemptMerge(s.Ctx, "feature", "main", engine.MergeOptions{
			Commit: true,
			Picks:  merge.Picks{"generic:e": {Side: merge.Right}},
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.Version)
		testhelpers.RequireText(t, s.Graph("main"), "e", "C")
	})

	t.Run("preview session follows picks", func(t *testing.T) {
		s := diverged(t, true, engine.Options{})
		res := s.Merge("feature", "main")
		_, err := s.Engine.ResolveConflict(s.Ctx, res.Session.ID, "generic:e", merge.Resolution{
			Fields: map[string]merge.Side{"text": merge.Right},
		})
		require.NoError(t, err)

		preview, err := s.Engine.PreviewSession(s.Ctx, res.Session.ID)
		require.NoError(t, err)
		testhelpers.RequireText(t, preview.Merged, "e", "C")
	})

	t.Run("stale head aborts the session", func(t *testing.T) {
		s := diverged(t, true, engine.Options{})
		res := s.Merge("feature", "main")
		_, err := s.Engine.ResolveConflict(s.Ctx, res.Session.ID, "generic:e", merge.Resolution{Side: merge.Left})
		require.NoError(t, err)

		moved := s.SetText("main", "e", "D")
		_, err = s.Engine.CommitMerge(s.Ctx, res.Session.ID)
		require.ErrorIs(t, err, sitevcerrors.ErrStaleBranchHead)
		require.Equal(t, moved, s.Head("main"))

		session, err := s.Engine.GetSession(s.Ctx, res.Session.ID)
		require.NoError(t, err)
		require.Equal(t, merge.StateAborted, session.State)
	})

	t.Run("abort", func(t *testing.T) {
		s := diverged(t, true, engine.Options{})
		res := s.Merge("feature", "main")
		require.NoError(t, s.Engine.AbortMerge(s.Ctx, res.Session.ID, "changed my mind"))

		session, err := s.Engine.GetSession(s.Ctx, res.Session.ID)
		require.NoError(t, err)
		require.Equal(t, merge.StateAborted, session.State)
		require.Equal(t, "changed my mind", session.Reason)

		_, err = s.Engine.CommitMerge(s.Ctx, res.Session.ID)
		require.ErrorIs(t, err, sitevcerrors.ErrInvalidTransition)
		_, err = s.Engine.ResolveConflict(s.Ctx, res.Session.ID, "generic:e", merge.Resolution{Side: merge.Left})
		require.ErrorIs(t, err, sitevcerrors.ErrInvalidTransition)
	})

	t.Run("prune clears only finished sessions", func(t *testing.T) {
		s := diverged(t, true, engine.Options{})
		aborted := s.Merge("feature", "main")
		require.NoError(t, s.Engine.AbortMerge(s.Ctx, aborted.Session.ID, "retry"))
		open := s.Merge("feature", "main")

		n, err := s.Engine.PruneSessions(s.Ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		sessions, err := s.Engine.ListSessions(s.Ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		require.Equal(t, open.Session.ID, sessions[0].ID)
		_, err = s.Engine.GetSession(s.Ctx, aborted.Session.ID)
		require.ErrorIs(t, err, sitevcerrors.ErrSessionNotFound)
	})
}

func TestSessionsOnDisk(t *testing.T) {
	root := t.TempDir()
	s := diverged(t, true, engine.Options{Sessions: config.SessionStore{Root: root}})
	res := s.Merge("feature", "main")

	// a second engine over the same store and directory sees the session
	other, err := engine.New(engine.Options{Store: s.Store, Sessions: config.SessionStore{Root: root}})
	require.NoError(t, err)
	sessions, err := other.ListSessions(s.Ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, res.Session.ID, sessions[0].ID)
	require.Equal(t, []string{"generic:e"}, sessions[0].Conflicts.IDs())

	_, err = other.ResolveConflict(s.Ctx, res.Session.ID, "generic:e", merge.Resolution{Side: merge.Right})
	require.NoError(t, err)
	id, err := s.Engine.CommitMerge(s.Ctx, res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, id, s.Head("main"))
}
