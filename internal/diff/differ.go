package diff

import (
	"fmt"

	"sitevc.dev/sitevc/internal/model"
)

// Differ compares graphs on one schema
type Differ struct {
	schema *model.Schema
}

// New creates a Differ
func New(s *model.Schema) *Differ {
	return &Differ{schema: s}
}

// Schema returns the schema the differ was built for
func (d *Differ) Schema() *model.Schema {
	return d.schema
}

// DiffBundles materializes both bundles and diffs them
func (d *Differ) DiffBundles(base, other *model.Bundle) (*Diff, error) {
	bg, err := model.Materialize(base, d.schema)
	if err != nil {
		return nil, fmt.Errorf("materialize base: %w", err)
	}
	og, err := model.Materialize(other, d.schema)
	if err != nil {
		return nil, fmt.Errorf("materialize other: %w", err)
	}
	return d.Diff(bg, og), nil
}

// Diff computes the changes that turn base into other
func (d *Differ) Diff(base, other *model.Graph) *Diff {
	out := &Diff{
		Changes: make(map[string]*Change),
		Units:   make(map[UnitKey]*UnitChange),
	}
	baseRegions := FindRegions(base, d.schema)
	otherRegions := FindRegions(other, d.schema)
	baseOwners := base.Owners(d.schema)
	otherOwners := other.Owners(d.schema)

	for _, id := range base.UUIDs() {
		if _, ok := other.Get(id); ok {
			continue
		}
		if baseRegions.Virtual[id] || d.insideSurvivingUnit(baseRegions, id, other) {
			continue
		}
		out.Changes[id] = &Change{UUID: id, Type: base.Insts[id].Type, Op: OpRemoved, Payload: base.Insts[id]}
	}

	for _, id := range other.UUIDs() {
		inst := other.Insts[id]
		old, ok := base.Get(id)
		if !ok {
			if otherRegions.Virtual[id] || d.insideSurvivingUnit(otherRegions, id, base) {
				continue
			}
			c := &Change{UUID: id, Type: inst.Type, Op: OpAdded, Payload: inst}
			if owner, owned := otherOwners[id]; owned {
				c.Attachment = &owner
			}
			out.Changes[id] = c
			continue
		}

		var fields []FieldChange
		if moved, ok := ownerChange(baseOwners, otherOwners, id); ok {
			fields = append(fields, moved)
		}
		if !baseRegions.Skipped(id) && !otherRegions.Skipped(id) {
			fields = append(fields, d.fieldChanges(old, inst)...)
		}
		if len(fields) > 0 {
			out.Changes[id] = &Change{UUID: id, Type: inst.Type, Op: OpModified, Fields: fields, Payload: inst}
		}
	}

	for key := range baseRegions.Units {
		if !otherRegions.Units[key] {
			continue
		}
		oldFP := UnitFingerprint(base, d.schema, key)
		newFP := UnitFingerprint(other, d.schema, key)
		if oldFP != newFP {
			out.Units[key] = &UnitChange{Key: key, Old: oldFP, New: newFP}
		}
	}
	return out
}

// insideSurvivingUnit reports whether id is interior to a unit that exists on
// the opposite side; such additions and removals are part of the unit change.
func (d *Differ) insideSurvivingUnit(r *Regions, id string, opposite *model.Graph) bool {
	key, ok := r.UnitOf[id]
	if !ok || key.UUID == id {
		return false
	}
	_, survives := opposite.Get(key.UUID)
	return survives
}

func ownerChange(baseOwners, otherOwners map[string]model.Owner, id string) (FieldChange, bool) {
	bo, bok := baseOwners[id]
	oo, ook := otherOwners[id]
	if bok == ook && (!bok || (bo.UUID == oo.UUID && bo.Field == oo.Field)) {
		return FieldChange{}, false
	}
	return FieldChange{Field: ParentField, Old: ParentValue(bo, bok), New: ParentValue(oo, ook)}, true
}

// ParentValue encodes an owner as the value of ParentField
func ParentValue(o model.Owner, ok bool) model.Value {
	if !ok {
		return model.Null()
	}
	return model.List(model.Ref(o.UUID), model.String(o.Field))
}

func (d *Differ) fieldChanges(old, cur *model.Instance) []FieldChange {
	t, known := d.schema.Type(cur.Type)
	var out []FieldChange
	for _, name := range cur.FieldNames(d.schema) {
		if known && t.Virtual != nil && name == t.Virtual.ContentsField && IsVirtual(old, t) && IsVirtual(cur, t) {
			continue
		}
		var meta *model.FieldMeta
		if known {
			meta, _ = t.Field(name)
		}
		if meta != nil && meta.Policy == model.PolicyUnit {
			continue
		}
		ov, nv := old.Get(name), cur.Get(name)
		if ov.Equal(nv) {
			continue
		}
		fc := FieldChange{Field: name, Old: ov, New: nv}
		if (meta != nil && meta.IsList()) || ov.Kind == model.KindList || nv.Kind == model.KindList {
			fc.List = CompareLists(ov.Items(), nv.Items())
		}
		out = append(out, fc)
	}
	// fields present only on the old instance
	for _, name := range old.FieldNames(d.schema) {
		if _, ok := cur.Fields[name]; ok {
			continue
		}
		if already(out, name) {
			continue
		}
		ov := old.Get(name)
		if ov.IsNull() || ov.Equal(model.Null()) {
			continue
		}
		if known {
			if meta, ok := t.Field(name); ok {
				if meta.Policy == model.PolicyUnit {
					continue
				}
				if t.Virtual != nil && name == t.Virtual.ContentsField && IsVirtual(old, t) && IsVirtual(cur, t) {
					continue
				}
			}
		}
		fc := FieldChange{Field: name, Old: ov, New: model.Null()}
		if ov.Kind == model.KindList {
			fc.List = CompareLists(ov.Items(), nil)
		}
		out = append(out, fc)
	}
	return out
}

func already(fields []FieldChange, name string) bool {
	for _, f := range fields {
		if f.Field == name {
			return true
		}
	}
	return false
}
