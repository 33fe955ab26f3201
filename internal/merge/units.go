package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"sitevc.dev/sitevc/internal/diff"
	"sitevc.dev/sitevc/internal/model"
)

// mergeUnits settles opaque units: a unit changed on one side is taken whole,
// changed identically on both sides is taken once, and changed differently is a
// special conflict with a whole-unit pick.
func (m *merger) mergeUnits() {
	keys := lo.Uniq(append(m.diffs[0].UnitKeys(), m.diffs[1].UnitKeys()...))
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		if m.deleted[key.UUID] {
			continue
		}
		if _, ok := m.merged.Get(key.UUID); !ok {
			continue
		}
		lc, rc := m.diffs[0].Units[key], m.diffs[1].Units[key]
		switch {
		case rc == nil:
			m.applyUnit(key, m.side[0])
		case lc == nil:
			m.applyUnit(key, m.side[1])
		case lc.New == rc.New:
			m.applyUnit(key, m.side[0])
		default:
			c := m.unitConflict(key, lc, rc)
			m.result.Special = append(m.result.Special, c)
			if m.picks.sideFor(c.ConflictID, "") == Right {
				m.applyUnit(key, m.side[1])
			} else {
				m.applyUnit(key, m.side[0])
			}
		}
	}
}

func (m *merger) unitConflict(key diff.UnitKey, lc, rc *diff.UnitChange) *SpecialConflict {
	inst := m.anc.Insts[key.UUID]
	c := &SpecialConflict{
		ConflictID: "special:" + key.String(),
		UUID:       key.UUID,
		Field:      key.Field,
		Type:       inst.Type,
		Left:       lc.New,
		Right:      rc.New,
	}
	if key.Field == "" {
		c.Kind = SpecialUnit
		c.Label = inst.Type
		if t, ok := m.s.Type(inst.Type); ok && t.UnitLabel != "" {
			c.Label = t.UnitLabel
		}
	} else {
		c.Kind = SpecialSlotContents
		c.Label = key.Field
	}
	return c
}

// applyUnit replaces the merged content of a unit with the content from src
func (m *merger) applyUnit(key diff.UnitKey, src *model.Graph) {
	target := m.merged.Insts[key.UUID]
	from, ok := src.Get(key.UUID)
	if !ok {
		return
	}

	var oldRoots, newRoots []string
	if key.Field == "" {
		oldRoots = model.OwnedChildren(target, m.s)
		newRoots = model.OwnedChildren(from, m.s)
		for name := range target.Fields {
			delete(target.Fields, name)
		}
		for name, v := range from.Fields {
			target.Fields[name] = v.Clone()
		}
	} else {
		oldRoots = target.Get(key.Field).RefIDs()
		newRoots = from.Get(key.Field).RefIDs()
		target.Set(key.Field, from.Get(key.Field).Clone())
	}

	for _, root := range oldRoots {
		for _, id := range m.merged.Subtree(m.s, root) {
			m.merged.Remove(id)
		}
	}
	for _, root := range newRoots {
		for _, id := range src.Subtree(m.s, root) {
			m.merged.Add(src.Insts[id].Clone())
		}
	}
}

// regenerateVirtual rebuilds virtual content whose source default no longer
// matches it. Rebuilt instances get fresh identities derived from the owner and
// the new default, so re-running the merge reproduces them.
func (m *merger) regenerateVirtual() {
	for _, id := range m.merged.UUIDs() {
		inst, ok := m.merged.Get(id)
		if !ok {
			continue
		}
		t, ok := m.s.Type(inst.Type)
		if !ok || t.Virtual == nil || !diff.IsVirtual(inst, t) {
			continue
		}
		vm := t.Virtual
		source := m.findSource(vm, inst.Get(vm.KeyField))
		if source == nil {
			continue
		}
		defaults := source.Get(vm.SourceContentsField)
		expected := m.merged.ListFingerprint(m.s, defaults)
		if expected == m.merged.ListFingerprint(m.s, inst.Get(vm.ContentsField)) {
			continue
		}

		for _, root := range inst.Get(vm.ContentsField).RefIDs() {
			for _, member := range m.merged.Subtree(m.s, root) {
				m.merged.Remove(member)
			}
		}

		sum := sha256.Sum256([]byte(expected))
		salt := inst.UUID + "/" + hex.EncodeToString(sum[:8]) + "/"
		fresh := make(map[string]string)
		var copies []*model.Instance
		for _, root := range defaults.RefIDs() {
			for _, member := range m.merged.Subtree(m.s, root) {
				fresh[member] = uuid.NewSHA1(uuid.NameSpaceOID, []byte(salt+member)).String()
				copies = append(copies, m.merged.Insts[member])
			}
		}
		remap := func(ref string) (string, bool) {
			if n, ok := fresh[ref]; ok {
				return n, true
			}
			return ref, true
		}
		for _, orig := range copies {
			c := model.NewInstance(fresh[orig.UUID], orig.Type)
			for name, v := range orig.Fields {
				c.Set(name, v.Rewrite(remap))
			}
			m.merged.Add(c)
		}
		inst.Set(vm.ContentsField, defaults.Rewrite(remap))
		m.result.Regenerated = append(m.result.Regenerated, inst.UUID)
	}
}

// findSource locates the instance whose defaults a virtual instance mirrors
func (m *merger) findSource(vm *model.VirtualMeta, key model.Value) *model.Instance {
	if key.IsNull() {
		return nil
	}
	for _, id := range m.merged.UUIDs() {
		inst := m.merged.Insts[id]
		if inst.Type == vm.SourceType && inst.Get(vm.SourceKeyField).Equal(key) {
			return inst
		}
	}
	return nil
}
