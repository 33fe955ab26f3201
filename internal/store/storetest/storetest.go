// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store"
)

// Factory returns a fresh, empty store
type Factory func(t *testing.T) store.Store

func bundle(t *testing.T, text string) *model.Bundle {
	t.Helper()
	s := model.DefaultSchema()
	g := model.NewGraph(s.Version)
	g.Root = "site"
	site := model.NewInstance("site", "Site")
	site.Set("name", model.String(text))
	site.Set("tokens", model.Refs("tok"))
	g.Add(site)
	tok := model.NewInstance("tok", "StyleToken")
	tok.Set("value", model.String(text))
	g.Add(tok)
	b, err := model.Flatten(g, s)
	require.NoError(t, err)
	return b
}

func commit(t *testing.T, s store.Store, text string, parents ...string) string {
	t.Helper()
	id, err := s.CommitBundle(context.Background(), parents, bundle(t, text), store.CommitMeta{
		Message: text,
		Author:  "tester",
		Time:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

// Run exercises a backend
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("bundles round trip through commit", func(t *testing.T) {
		s := newStore(t)
		id := commit(t, s, "hello")

		b, err := s.GetBundle(ctx, id)
		require.NoError(t, err)
		g, err := model.Materialize(b, model.DefaultSchema())
		require.NoError(t, err)
		require.Equal(t, "site", g.Root)
		require.Equal(t, model.String("hello"), g.Insts["tok"].Get("value"))

		v, err := s.GetVersion(ctx, id)
		require.NoError(t, err)
		require.Equal(t, id, v.ID)
		require.Equal(t, "hello", v.Message)
		require.Equal(t, "tester", v.Author)
		require.Empty(t, v.Parents)
	})

	t.Run("merge versions keep parent order", func(t *testing.T) {
		s := newStore(t)
		root := commit(t, s, "root")
		left := commit(t, s, "left", root)
		right := commit(t, s, "right", root)
		merged := commit(t, s, "merge", left, right)

		parents, err := s.ParentMap(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{left, right}, parents[merged])
		require.Equal(t, []string{root}, parents[left])
		require.Empty(t, parents[root])
		require.Len(t, parents, 4)

		v, err := s.GetVersion(ctx, merged)
		require.NoError(t, err)
		require.Equal(t, []string{left, right}, v.Parents)
	})

	t.Run("unknown versions are reported", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetBundle(ctx, "0123456789abcdef0123456789abcdef01234567")
		require.ErrorIs(t, err, sitevcerrors.ErrVersionNotFound)
		_, err = s.GetVersion(ctx, "nope")
		require.ErrorIs(t, err, sitevcerrors.ErrVersionNotFound)
		_, err = s.CommitBundle(ctx, []string{"nope"}, bundle(t, "x"), store.CommitMeta{})
		require.ErrorIs(t, err, sitevcerrors.ErrVersionNotFound)
	})

	t.Run("branch pointers are compare-and-set", func(t *testing.T) {
		s := newStore(t)
		v1 := commit(t, s, "one")
		v2 := commit(t, s, "two", v1)

		require.NoError(t, s.SetBranch(ctx, "main", v1, ""))
		err := s.SetBranch(ctx, "main", v2, "")
		require.ErrorIs(t, err, sitevcerrors.ErrBranchExists)

		require.NoError(t, s.SetBranch(ctx, "main", v2, v1))
		head, err := s.GetBranch(ctx, "main")
		require.NoError(t, err)
		require.Equal(t, v2, head)

		err = s.SetBranch(ctx, "main", v1, v1)
		require.ErrorIs(t, err, sitevcerrors.ErrStaleBranchHead)
		var stale *sitevcerrors.StaleBranchHeadError
		require.True(t, errors.As(err, &stale))
		require.Equal(t, v2, stale.Actual)

		err = s.SetBranch(ctx, "missing", v1, v2)
		require.ErrorIs(t, err, sitevcerrors.ErrBranchNotFound)

		err = s.SetBranch(ctx, "main", "nope", v2)
		require.ErrorIs(t, err, sitevcerrors.ErrVersionNotFound)
	})

	t.Run("branches can be listed and deleted", func(t *testing.T) {
		s := newStore(t)
		v1 := commit(t, s, "one")
		require.NoError(t, s.SetBranch(ctx, "main", v1, ""))
		require.NoError(t, s.SetBranch(ctx, "feature", v1, ""))

		branches, err := s.ListBranches(ctx)
		require.NoError(t, err)
		require.Equal(t, map[string]string{"main": v1, "feature": v1}, branches)

		require.NoError(t, s.DeleteBranch(ctx, "feature"))
		_, err = s.GetBranch(ctx, "feature")
		require.ErrorIs(t, err, sitevcerrors.ErrBranchNotFound)
		require.ErrorIs(t, s.DeleteBranch(ctx, "feature"), sitevcerrors.ErrBranchNotFound)

		// the version survives its branch
		_, err = s.GetBundle(ctx, v1)
		require.NoError(t, err)
	})

	t.Run("concurrent updates from the same head have one winner", func(t *testing.T) {
		s := newStore(t)
		base := commit(t, s, "base")
		require.NoError(t, s.SetBranch(ctx, "main", base, ""))
		candidates := make([]string, 8)
		for i := range candidates {
			candidates[i] = commit(t, s, string(rune('a'+i)), base)
		}

		var wg sync.WaitGroup
		errs := make([]error, len(candidates))
		for i, c := range candidates {
			wg.Add(1)
			go func(i int, c string) {
				defer wg.Done()
				errs[i] = s.SetBranch(ctx, "main", c, base)
			}(i, c)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			require.ErrorIs(t, err, sitevcerrors.ErrStaleBranchHead)
		}
		require.Equal(t, 1, wins)
	})
}
