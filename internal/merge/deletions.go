package merge

import (
	"sort"

	"github.com/samber/lo"

	"sitevc.dev/sitevc/internal/diff"
	"sitevc.dev/sitevc/internal/model"
)

// deletion is one subtree removed by one side, rooted at its topmost removed instance
type deletion struct {
	by      int // side index
	root    string
	members []string
	rescued []string // members the other side moved to a surviving owner
	movedIn []string // instances the other side moved under a member, with their subtrees
	edited  []string // what the other side changed inside the subtree
}

// findDeletions groups each side's removals by deletion root and checks them
// against the other side's edits
func (m *merger) findDeletions() []*deletion {
	ancOwners := m.anc.Owners(m.s)
	var out []*deletion
	for x := range m.side {
		y := 1 - x
		removed := make(map[string]bool)
		for _, id := range m.diffs[x].Removed() {
			if !m.isDependency(m.anc.Insts[id].Type) {
				removed[id] = true
			}
		}
		for _, id := range lo.Keys(removed) {
			if owner, ok := ancOwners[id]; ok && removed[owner.UUID] {
				continue
			}
			d := &deletion{by: x, root: id}
			for _, member := range m.anc.Subtree(m.s, id) {
				if removed[member] {
					d.members = append(d.members, member)
				}
			}
			m.rescue(d, y, removed)
			m.findEdits(d, y)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].root != out[j].root {
			return out[i].root < out[j].root
		}
		return out[i].by < out[j].by
	})
	return out
}

// rescue takes out of d every member (with its owned subtree) that side y moved
// under an owner that is not being deleted
func (m *merger) rescue(d *deletion, y int, removed map[string]bool) {
	inDeletion := lo.SliceToMap(d.members, func(id string) (string, bool) { return id, true })
	rescued := make(map[string]bool)
	for _, member := range d.members {
		if member == d.root {
			continue
		}
		c := m.diffs[y].Changes[member]
		if c == nil || c.Op != diff.OpModified {
			continue
		}
		moved, ok := c.Field(diff.ParentField)
		if !ok {
			continue
		}
		items := moved.New.Items()
		if len(items) != 2 {
			continue
		}
		target := items[0].Ref
		if inDeletion[target] || removed[target] || m.diffs[y].Changes[target] != nil && m.diffs[y].Changes[target].Op == diff.OpRemoved {
			continue
		}
		for _, id := range m.anc.Subtree(m.s, member) {
			if inDeletion[id] {
				rescued[id] = true
			}
		}
	}
	if len(rescued) == 0 {
		return
	}
	d.rescued = lo.Filter(d.members, func(id string, _ int) bool { return rescued[id] })
	d.members = lo.Filter(d.members, func(id string, _ int) bool { return !rescued[id] })
}

// findEdits lists what side y changed inside the subtree deleted by d: field
// edits beyond dropping list members, instances added under it, new references
// into it, and unit changes within it
func (m *merger) findEdits(d *deletion, y int) {
	in := lo.SliceToMap(d.members, func(id string) (string, bool) { return id, true })
	var edited []string
	dy := m.diffs[y]

	for _, id := range dy.UUIDs() {
		c := dy.Changes[id]
		switch c.Op {
		case diff.OpModified:
			if in[id] {
				if !removalOnly(c) {
					edited = append(edited, id)
				}
				continue
			}
			if movedUnder(c, in) {
				edited = append(edited, id)
				d.movedIn = append(d.movedIn, m.side[y].Subtree(m.s, id)...)
				continue
			}
			if referencesNew(c, in) {
				edited = append(edited, id)
			}
		case diff.OpAdded:
			if c.Attachment != nil && in[c.Attachment.UUID] {
				edited = append(edited, id)
				continue
			}
			for _, v := range c.Payload.Fields {
				if lo.SomeBy(v.RefIDs(), func(ref string) bool { return in[ref] }) {
					edited = append(edited, id)
					break
				}
			}
		}
	}
	for _, key := range dy.UnitKeys() {
		if in[key.UUID] {
			edited = append(edited, key.String())
		}
	}
	d.edited = lo.Uniq(edited)
	d.movedIn = lo.Uniq(d.movedIn)
}

// movedUnder reports whether c moves its instance under a member of in
func movedUnder(c *diff.Change, in map[string]bool) bool {
	moved, ok := c.Field(diff.ParentField)
	if !ok {
		return false
	}
	items := moved.New.Items()
	return len(items) == 2 && in[items[0].Ref]
}

// removalOnly reports whether every field change of c only drops list members
func removalOnly(c *diff.Change) bool {
	for _, f := range c.Fields {
		if f.List == nil || len(f.List.Inserted) > 0 || f.List.Reordered {
			return false
		}
	}
	return true
}

// referencesNew reports whether c adds a reference to a member of in
func referencesNew(c *diff.Change, in map[string]bool) bool {
	for _, f := range c.Fields {
		if f.Field == diff.ParentField {
			continue
		}
		before := lo.SliceToMap(f.Old.RefIDs(), func(id string) (string, bool) { return id, true })
		for _, ref := range f.New.RefIDs() {
			if in[ref] && !before[ref] {
				return true
			}
		}
	}
	return false
}

// resolveDeletions surfaces edit-vs-delete conflicts, restores the subtrees whose
// deletion lost, and fixes the set of instances to delete
func (m *merger) resolveDeletions() {
	restored := false
	for _, d := range m.findDeletions() {
		if len(d.edited) == 0 {
			continue
		}
		deleter := sideOf(d.by)
		c := &SpecialConflict{
			ConflictID: "delete:" + d.root,
			Kind:       SpecialEditDelete,
			UUID:       d.root,
			Type:       m.anc.Insts[d.root].Type,
			Label:      "deleted subtree",
			DeletedBy:  deleter,
			Members:    append(append([]string{}, d.members...), d.movedIn...),
			Edited:     d.edited,
		}
		c.Left, c.Right = "edited", "edited"
		if deleter == Left {
			c.Left = "deleted"
		} else {
			c.Right = "deleted"
		}
		m.result.Special = append(m.result.Special, c)

		if m.picks.sideFor(c.ConflictID, "") == deleter {
			continue
		}
		m.side[d.by] = restoreSubtree(m.anc, m.side[d.by], m.s, d.root, d.members)
		restored = true
	}
	if restored {
		m.computeDiffs()
	}

	m.deleted = make(map[string]bool)
	for _, d := range m.findDeletions() {
		for _, id := range append(d.members, d.movedIn...) {
			m.deleted[id] = true
		}
	}
}

// restoreSubtree returns a copy of side with the ancestor's root subtree put back
// under its ancestor owner
func restoreSubtree(anc, side *model.Graph, s *model.Schema, root string, members []string) *model.Graph {
	out := side.Clone()
	for _, id := range members {
		if _, ok := out.Get(id); !ok {
			out.Add(anc.Insts[id].Clone())
		}
	}
	owner, ok := anc.Owners(s)[root]
	if !ok {
		return out
	}
	parent, ok := out.Get(owner.UUID)
	if !ok {
		return out
	}
	cur := parent.Get(owner.Field)
	if owner.Index < 0 {
		if cur.IsNull() {
			parent.Set(owner.Field, model.Ref(root))
		}
		return out
	}
	items := append([]model.Value{}, cur.Items()...)
	for _, item := range items {
		if item.Kind == model.KindRef && item.Ref == root {
			return out
		}
	}
	// insert after the nearest ancestor sibling that is still present
	ancItems := anc.Insts[owner.UUID].Get(owner.Field).Items()
	pos := 0
	for i := owner.Index - 1; i >= 0 && i < len(ancItems); i-- {
		if idx := refIndex(items, ancItems[i]); idx >= 0 {
			pos = idx + 1
			break
		}
	}
	items = append(items, model.Value{})
	copy(items[pos+1:], items[pos:])
	items[pos] = model.Ref(root)
	parent.Set(owner.Field, model.List(items...))
	return out
}

func refIndex(items []model.Value, v model.Value) int {
	for i, item := range items {
		if item.Equal(v) {
			return i
		}
	}
	return -1
}
