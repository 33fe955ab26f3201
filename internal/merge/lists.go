package merge

import (
	"sitevc.dev/sitevc/internal/diff"
	"sitevc.dev/sitevc/internal/model"
)

type listSides struct {
	keys   [3][]string // ancestor, left, right
	values map[string]model.Value
	in     [3]map[string]bool
}

func newListSides(anc, left, right []model.Value) *listSides {
	ls := &listSides{values: make(map[string]model.Value)}
	for i, items := range [3][]model.Value{anc, left, right} {
		ls.keys[i] = diff.OccurrenceKeys(items)
		ls.in[i] = make(map[string]bool, len(items))
		for j, k := range ls.keys[i] {
			ls.in[i][k] = true
			ls.values[k] = items[j]
		}
	}
	return ls
}

// survives reports whether an ancestor member was kept by both sides
func (ls *listSides) survives(k string) bool {
	return ls.in[0][k] && ls.in[1][k] && ls.in[2][k]
}

func (ls *listSides) filter(side int, keep func(string) bool) []string {
	var out []string
	for _, k := range ls.keys[side] {
		if keep(k) {
			out = append(out, k)
		}
	}
	return out
}

func (ls *listSides) materialize(keys []string) model.Value {
	items := make([]model.Value, len(keys))
	for i, k := range keys {
		items[i] = ls.values[k]
	}
	return model.List(items...)
}

// mergeOrdered merges an ordered list three-way. Removals from either side win,
// insertions keep their position relative to their nearest preceding neighbour,
// and left insertions precede right insertions at the same spot. When both sides
// reorder the surviving members differently the result follows prefer and the
// second return value is true.
func mergeOrdered(anc, left, right []model.Value, prefer Side) (model.Value, bool) {
	ls := newListSides(anc, left, right)

	base := ls.filter(0, ls.survives)
	lo := ls.filter(1, ls.survives)
	ro := ls.filter(2, ls.survives)

	var order []string
	conflict := false
	switch {
	case equalKeys(lo, base):
		order = ro
	case equalKeys(ro, base), equalKeys(lo, ro):
		order = lo
	default:
		conflict = true
		order = lo
		if prefer == Right {
			order = ro
		}
	}
	order = append([]string{}, order...)

	placed := make(map[string]bool, len(order))
	for _, k := range order {
		placed[k] = true
	}
	fromLeft := make(map[string]bool)

	insert := func(side int, skipLeft bool) {
		keys := ls.keys[side]
		for i, k := range keys {
			if ls.in[0][k] || placed[k] {
				continue
			}
			pos := 0
			for j := i - 1; j >= 0; j-- {
				if idx := indexOf(order, keys[j]); idx >= 0 {
					pos = idx + 1
					break
				}
			}
			if skipLeft {
				for pos < len(order) && fromLeft[order[pos]] {
					pos++
				}
			}
			order = append(order, "")
			copy(order[pos+1:], order[pos:])
			order[pos] = k
			placed[k] = true
			if side == 1 {
				fromLeft[k] = true
			}
		}
	}
	insert(1, false)
	insert(2, true)

	return ls.materialize(order), conflict
}

// mergeUnordered merges list membership: ancestor members kept by both sides in
// ancestor order, then left additions, then right additions.
func mergeUnordered(anc, left, right []model.Value) model.Value {
	ls := newListSides(anc, left, right)
	order := ls.filter(0, ls.survives)
	placed := make(map[string]bool)
	for _, k := range order {
		placed[k] = true
	}
	for _, side := range []int{1, 2} {
		for _, k := range ls.keys[side] {
			if ls.in[0][k] || placed[k] {
				continue
			}
			placed[k] = true
			order = append(order, k)
		}
	}
	return ls.materialize(order)
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(keys []string, k string) int {
	for i, v := range keys {
		if v == k {
			return i
		}
	}
	return -1
}
