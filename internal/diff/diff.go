// Package diff computes identity-matched, field-level differences between two
// materialized graphs of the same lineage.
package diff

import (
	"sort"

	"sitevc.dev/sitevc/internal/model"
)

// ParentField is the pseudo field recording an instance's owner.
// Its value is List(Ref(owner), String(field)), or null for unowned instances.
const ParentField = "@parent"

// Op is the kind of change recorded for an instance
type Op uint8

const (
	// OpModified means the instance exists on both sides with field changes
	OpModified Op = iota
	// OpAdded means the instance exists only on the other side
	OpAdded
	// OpRemoved means the instance exists only on the base side
	OpRemoved
)

func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpRemoved:
		return "removed"
	default:
		return "modified"
	}
}

// ListDelta breaks a list change into membership and order components
type ListDelta struct {
	Inserted  []model.Value
	Removed   []model.Value
	Reordered bool // surviving members changed relative order
}

// FieldChange is one modified field
type FieldChange struct {
	Field string
	Old   model.Value
	New   model.Value
	List  *ListDelta // set for list fields
}

// Change is the record for one uuid
type Change struct {
	UUID   string
	Type   string
	Op     Op
	Fields []FieldChange // OpModified only, in schema field order
	// Payload is the instance as it exists on the side that has it
	Payload *model.Instance
	// Attachment is the owner of an added instance on the other side
	Attachment *model.Owner
}

// Field returns the change recorded for one field
func (c *Change) Field(name string) (*FieldChange, bool) {
	for i := range c.Fields {
		if c.Fields[i].Field == name {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// Moved reports whether the instance changed owner
func (c *Change) Moved() bool {
	_, ok := c.Field(ParentField)
	return ok
}

// UnitKey names an opaque merge unit: an instance of a unit type (Field empty)
// or a unit-policy field of an instance.
type UnitKey struct {
	UUID  string
	Field string
}

func (k UnitKey) String() string {
	if k.Field == "" {
		return k.UUID
	}
	return k.UUID + "." + k.Field
}

// UnitChange records a unit whose canonical content differs between the sides
type UnitChange struct {
	Key UnitKey
	Old string // fingerprints
	New string
}

// Diff is the full difference between base and other
type Diff struct {
	Changes map[string]*Change
	Units   map[UnitKey]*UnitChange
}

// UUIDs returns the uuids with changes, sorted
func (d *Diff) UUIDs() []string {
	out := make([]string, 0, len(d.Changes))
	for id := range d.Changes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UnitKeys returns the changed units, sorted
func (d *Diff) UnitKeys() []UnitKey {
	out := make([]UnitKey, 0, len(d.Units))
	for k := range d.Units {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Empty reports whether the sides are identical
func (d *Diff) Empty() bool {
	return len(d.Changes) == 0 && len(d.Units) == 0
}

// Removed returns the removed uuids, sorted
func (d *Diff) Removed() []string {
	var out []string
	for _, id := range d.UUIDs() {
		if d.Changes[id].Op == OpRemoved {
			out = append(out, id)
		}
	}
	return out
}

// Added returns the added uuids, sorted
func (d *Diff) Added() []string {
	var out []string
	for _, id := range d.UUIDs() {
		if d.Changes[id].Op == OpAdded {
			out = append(out, id)
		}
	}
	return out
}
