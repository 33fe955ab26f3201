package diff

import (
	"sitevc.dev/sitevc/internal/model"
)

// Regions classifies the instances of one graph that are not diffed field by field
type Regions struct {
	// UnitOf maps every instance inside an opaque unit (root included) to its unit
	UnitOf map[string]UnitKey
	// Units lists every unit of the graph
	Units map[UnitKey]bool
	// Virtual holds the instances of regenerated content
	Virtual map[string]bool
}

// InUnit reports whether uuid belongs to a unit
func (r *Regions) InUnit(uuid string) bool {
	_, ok := r.UnitOf[uuid]
	return ok
}

// Skipped reports whether uuid is excluded from field-level diffing
func (r *Regions) Skipped(uuid string) bool {
	return r.Virtual[uuid] || r.InUnit(uuid)
}

// FindRegions locates units and virtual content in g
func FindRegions(g *model.Graph, s *model.Schema) *Regions {
	r := &Regions{
		UnitOf:  make(map[string]UnitKey),
		Units:   make(map[UnitKey]bool),
		Virtual: make(map[string]bool),
	}
	for _, id := range g.UUIDs() {
		inst := g.Insts[id]
		t, ok := s.Type(inst.Type)
		if !ok {
			continue
		}
		if t.Unit {
			key := UnitKey{UUID: id}
			r.Units[key] = true
			for _, member := range g.Subtree(s, id) {
				if _, taken := r.UnitOf[member]; !taken {
					r.UnitOf[member] = key
				}
			}
		}
		for _, f := range t.Fields {
			if f.Policy != model.PolicyUnit {
				continue
			}
			key := UnitKey{UUID: id, Field: f.Name}
			r.Units[key] = true
			for _, child := range inst.Get(f.Name).RefIDs() {
				for _, member := range g.Subtree(s, child) {
					r.UnitOf[member] = key
				}
			}
		}
		if t.Virtual != nil && IsVirtual(inst, t) {
			for _, child := range inst.Get(t.Virtual.ContentsField).RefIDs() {
				for _, member := range g.Subtree(s, child) {
					r.Virtual[member] = true
				}
			}
		}
	}
	return r
}

// IsVirtual reports whether inst currently holds regenerated content
func IsVirtual(inst *model.Instance, t *model.TypeMeta) bool {
	if t.Virtual == nil {
		return false
	}
	flag := inst.Get(t.Virtual.FlagField)
	return flag.Kind == model.KindBool && flag.Bool
}

// UnitFingerprint renders the canonical content of a unit in g, or "" when absent
func UnitFingerprint(g *model.Graph, s *model.Schema, key UnitKey) string {
	inst, ok := g.Get(key.UUID)
	if !ok {
		return ""
	}
	if key.Field == "" {
		return g.Fingerprint(s, key.UUID)
	}
	return g.ListFingerprint(s, inst.Get(key.Field))
}
