package gitstore_test

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store"
	"sitevc.dev/sitevc/internal/store/gitstore"
	"sitevc.dev/sitevc/internal/store/storetest"
)

func TestGitStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := gitstore.NewMemory()
		require.NoError(t, err)
		return s
	})
}

func TestGitStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := gitstore.Open(dir)
	require.NoError(t, err)

	schema := model.DefaultSchema()
	g := model.NewGraph(schema.Version)
	g.Root = "site"
	g.Add(model.NewInstance("site", "Site"))
	id, err := store.SaveGraph(ctx, s, schema, g, nil, store.CommitMeta{Message: "init"})
	require.NoError(t, err)
	require.True(t, plumbing.IsHash(id))
	require.NoError(t, s.SetBranch(ctx, "main", id, ""))
	require.NoError(t, s.Close())

	t.Run("reopened repository keeps versions and branches", func(t *testing.T) {
		s2, err := gitstore.Open(dir)
		require.NoError(t, err)
		head, err := s2.GetBranch(ctx, "main")
		require.NoError(t, err)
		require.Equal(t, id, head)

		loaded, err := store.LoadGraph(ctx, s2, schema, head)
		require.NoError(t, err)
		require.Equal(t, "site", loaded.Root)
	})

	t.Run("invalid branch names are rejected", func(t *testing.T) {
		err := s.SetBranch(ctx, "bad name", id, "")
		require.Error(t, err)
	})
}
