package commitgraph_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/commitgraph"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
)

func diamond() commitgraph.ParentMap {
	return commitgraph.ParentMap{
		"1": {},
		"2": {"1"},
		"3": {"1"},
		"4": {"2"},
		"5": {"4", "3"},
	}
}

func TestAncestors(t *testing.T) {
	t.Run("nearer first, first parent preferred", func(t *testing.T) {
		require.Equal(t, []string{"5", "4", "2", "1", "3"}, commitgraph.Ancestors(diamond(), "5"))
	})

	t.Run("includes the node itself", func(t *testing.T) {
		require.Equal(t, []string{"1"}, commitgraph.Ancestors(diamond(), "1"))
	})

	t.Run("unknown node has only itself", func(t *testing.T) {
		require.Equal(t, []string{"x"}, commitgraph.Ancestors(diamond(), "x"))
	})
}

func TestSubgraph(t *testing.T) {
	t.Run("skips removed nodes", func(t *testing.T) {
		sub := commitgraph.Subgraph(diamond(), []string{"1", "5"})
		require.Equal(t, commitgraph.ParentMap{"1": {}, "5": {"1"}}, sub)
	})

	t.Run("is a transitive reduction", func(t *testing.T) {
		sub := commitgraph.Subgraph(diamond(), []string{"1", "2", "3", "5"})
		require.Equal(t, []string{"2", "3"}, sub["5"])
		require.Equal(t, []string{"1"}, sub["2"])
		require.Equal(t, []string{"1"}, sub["3"])

		// 4 removed, 1 reachable through 2 and 3
		sub = commitgraph.Subgraph(diamond(), []string{"1", "3", "5"})
		require.Equal(t, []string{"3"}, sub["5"])
	})
}

func TestLeaves(t *testing.T) {
	require.Equal(t, []string{"5"}, commitgraph.Leaves(diamond()))
	require.Equal(t, []string{"2", "3"}, commitgraph.Leaves(commitgraph.ParentMap{"1": {}, "2": {"1"}, "3": {"1"}}))
}

func TestLowestCommonAncestor(t *testing.T) {
	t.Run("diamond", func(t *testing.T) {
		lca, err := commitgraph.LowestCommonAncestor(diamond(), "5", "3")
		require.NoError(t, err)
		require.Equal(t, "3", lca)
	})

	t.Run("linear history", func(t *testing.T) {
		parents := commitgraph.ParentMap{"a": {}, "b": {"a"}, "c": {"b"}}
		lca, err := commitgraph.LowestCommonAncestor(parents, "c", "b")
		require.NoError(t, err)
		require.Equal(t, "b", lca)
	})

	t.Run("criss-cross prefers earliest in first ancestry", func(t *testing.T) {
		// x and y both merge 2 and 3
		parents := commitgraph.ParentMap{
			"1": {},
			"2": {"1"},
			"3": {"1"},
			"x": {"2", "3"},
			"y": {"3", "2"},
		}
		bases := commitgraph.MergeBases(parents, "x", "y")
		require.Equal(t, []string{"2", "3"}, bases)

		lca, err := commitgraph.LowestCommonAncestor(parents, "x", "y")
		require.NoError(t, err)
		require.Equal(t, "2", lca)

		lca, err = commitgraph.LowestCommonAncestor(parents, "y", "x")
		require.NoError(t, err)
		require.Equal(t, "3", lca)
	})

	t.Run("disjoint histories", func(t *testing.T) {
		parents := commitgraph.ParentMap{"a": {}, "b": {}}
		_, err := commitgraph.LowestCommonAncestor(parents, "a", "b")
		require.ErrorIs(t, err, sitevcerrors.ErrNoCommonAncestor)
		require.True(t, sitevcerrors.IsFatal(err))
	})

	t.Run("branch names", func(t *testing.T) {
		g := &commitgraph.Graph{
			Branches: map[string]string{"main": "5", "feature": "3"},
			Parents:  diamond(),
		}
		base, candidates, err := g.BranchMergeBase("main", "feature")
		require.NoError(t, err)
		require.Equal(t, "3", base)
		require.Equal(t, []string{"3"}, candidates)

		_, _, err = g.BranchMergeBase("main", "nope")
		require.ErrorIs(t, err, sitevcerrors.ErrBranchNotFound)
	})
}

// randomDAG builds a history where every node's parents have smaller indexes
func randomDAG(r *rand.Rand, n int) commitgraph.ParentMap {
	parents := commitgraph.ParentMap{"n0": {}}
	for i := 1; i < n; i++ {
		id := fmt.Sprintf("n%d", i)
		count := 1 + r.Intn(2)
		var ps []string
		for k := 0; k < count; k++ {
			p := fmt.Sprintf("n%d", r.Intn(i))
			if !contains(ps, p) {
				ps = append(ps, p)
			}
		}
		parents[id] = ps
	}
	return parents
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func TestProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 40; round++ {
		parents := randomDAG(r, 12)
		a := fmt.Sprintf("n%d", r.Intn(12))
		b := fmt.Sprintf("n%d", r.Intn(12))

		t.Run(fmt.Sprintf("round %d lca ancestry is shared", round), func(t *testing.T) {
			lca, err := commitgraph.LowestCommonAncestor(parents, a, b)
			require.NoError(t, err)
			for _, id := range commitgraph.Ancestors(parents, lca) {
				require.True(t, commitgraph.IsAncestor(parents, id, a))
				require.True(t, commitgraph.IsAncestor(parents, id, b))
			}
		})

		t.Run(fmt.Sprintf("round %d subgraph preserves reachability", round), func(t *testing.T) {
			var keep []string
			for id := range parents {
				if r.Intn(2) == 0 {
					keep = append(keep, id)
				}
			}
			sub := commitgraph.Subgraph(parents, keep)
			for _, x := range keep {
				for _, y := range keep {
					if commitgraph.IsAncestor(parents, x, y) {
						require.True(t, commitgraph.IsAncestor(sub, x, y), "%s should reach %s", y, x)
					}
				}
			}
			for id, ps := range sub {
				require.Contains(t, keep, id)
				for _, p := range ps {
					require.Contains(t, keep, p)
				}
			}
		})
	}
}
