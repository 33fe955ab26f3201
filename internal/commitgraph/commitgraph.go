// Package commitgraph implements ancestry queries over the version DAG.
// All functions are pure; the parent map is supplied by the store.
package commitgraph

import (
	"sort"

	"github.com/samber/lo"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
)

// ParentMap maps a version id to its parent ids in recorded order.
// The first parent of a merge commit is the branch that was merged into.
type ParentMap map[string][]string

// Graph is the history of one project: named branch pointers into the DAG
type Graph struct {
	Branches map[string]string `json:"branches"`
	Parents  ParentMap         `json:"parents"`
}

// Head returns the version a branch points at
func (g *Graph) Head(branch string) (string, error) {
	v, ok := g.Branches[branch]
	if !ok {
		return "", sitevcerrors.NewBranchNotFoundError(branch)
	}
	return v, nil
}

// Ancestors returns node and every version reachable from it through parent
// edges: depth first over parents in recorded order, each id once.
func Ancestors(parents ParentMap, node string) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, p := range parents[id] {
			visit(p)
		}
	}
	visit(node)
	return out
}

// IsAncestor reports whether anc is reachable from node (a node is its own ancestor)
func IsAncestor(parents ParentMap, anc, node string) bool {
	return lo.Contains(Ancestors(parents, node), anc)
}

// Subgraph restricts parents to the ids in keep. Each kept node is linked to its
// nearest kept ancestors, skipping over removed nodes, and never to a kept node
// that is already reachable through another of its kept parents.
func Subgraph(parents ParentMap, keep []string) ParentMap {
	keepSet := lo.SliceToMap(keep, func(id string) (string, bool) { return id, true })

	// nearest kept ancestors, memoised per node
	memo := make(map[string][]string)
	var nearest func(id string, onPath map[string]bool) []string
	nearest = func(id string, onPath map[string]bool) []string {
		if r, ok := memo[id]; ok {
			return r
		}
		if onPath[id] {
			return nil
		}
		onPath[id] = true
		var r []string
		for _, p := range parents[id] {
			if keepSet[p] {
				r = append(r, p)
				continue
			}
			r = append(r, nearest(p, onPath)...)
		}
		delete(onPath, id)
		r = lo.Uniq(r)
		memo[id] = r
		return r
	}

	out := make(ParentMap, len(keepSet))
	for _, id := range keep {
		if !keepSet[id] {
			continue
		}
		if _, done := out[id]; done {
			continue
		}
		candidates := nearest(id, make(map[string]bool))
		out[id] = reduce(parents, candidates)
	}
	return out
}

// reduce drops every candidate that is a proper ancestor of another candidate
func reduce(parents ParentMap, candidates []string) []string {
	if len(candidates) < 2 {
		return append([]string{}, candidates...)
	}
	return lo.Filter(candidates, func(c string, i int) bool {
		for j, other := range candidates {
			if j != i && other != c && IsAncestor(parents, c, other) {
				return false
			}
		}
		return true
	})
}

// Leaves returns the ids of parents that no other id lists as a parent: the
// most recent versions of the map. The result is sorted.
func Leaves(parents ParentMap) []string {
	referenced := make(map[string]bool)
	for _, ps := range parents {
		for _, p := range ps {
			referenced[p] = true
		}
	}
	out := lo.Filter(lo.Keys(map[string][]string(parents)), func(id string, _ int) bool { return !referenced[id] })
	sort.Strings(out)
	return out
}

// MergeBases returns every maximal common ancestor of a and b, ordered by their
// position in Ancestors(a).
func MergeBases(parents ParentMap, a, b string) []string {
	ancA := Ancestors(parents, a)
	inB := lo.SliceToMap(Ancestors(parents, b), func(id string) (string, bool) { return id, true })
	common := lo.Filter(ancA, func(id string, _ int) bool { return inB[id] })
	if len(common) == 0 {
		return nil
	}
	leaves := lo.SliceToMap(Leaves(Subgraph(parents, common)), func(id string) (string, bool) { return id, true })
	return lo.Filter(common, func(id string, _ int) bool { return leaves[id] })
}

// LowestCommonAncestor returns the merge base of versions a and b. When
// criss-cross history leaves several maximal common ancestors, the one
// appearing earliest in Ancestors(a) wins.
func LowestCommonAncestor(parents ParentMap, a, b string) (string, error) {
	bases := MergeBases(parents, a, b)
	if len(bases) == 0 {
		return "", sitevcerrors.NewNoCommonAncestorError(a, b)
	}
	return bases[0], nil
}

// BranchMergeBase resolves two branch names and returns their merge base
// together with every candidate considered.
func (g *Graph) BranchMergeBase(branchA, branchB string) (string, []string, error) {
	a, err := g.Head(branchA)
	if err != nil {
		return "", nil, err
	}
	b, err := g.Head(branchB)
	if err != nil {
		return "", nil, err
	}
	bases := MergeBases(g.Parents, a, b)
	if len(bases) == 0 {
		return "", nil, sitevcerrors.NewNoCommonAncestorError(a, b)
	}
	return bases[0], bases, nil
}
