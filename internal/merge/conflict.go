package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"sitevc.dev/sitevc/internal/model"
)

// Side names one of the two diverging versions of a merge.
// Left is the branch being merged into, right the branch being merged from.
type Side string

const (
	// Left keeps the destination branch's change
	Left Side = "left"
	// Right keeps the source branch's change
	Right Side = "right"
)

// Other returns the opposite side
func (s Side) Other() Side {
	if s == Left {
		return Right
	}
	return Left
}

// Valid reports whether s names a side
func (s Side) Valid() bool {
	return s == Left || s == Right
}

// Location is one conflicting uuid+field
type Location struct {
	UUID  string `json:"uuid"`
	Field string `json:"field"`
}

// Conflict is a location where the two sides disagree and a pick is needed.
// The set of implementations is closed: *GenericConflict and *SpecialConflict.
type Conflict interface {
	ID() string
	Summary() string
	Locations() []Location
	isConflict()
}

// FieldConflict is one field changed differently on both sides
type FieldConflict struct {
	Field    string      `json:"field"`
	Ancestor model.Value `json:"ancestor"`
	Left     model.Value `json:"left"`
	Right    model.Value `json:"right"`
}

// GenericConflict groups every directly conflicting field of one instance
type GenericConflict struct {
	ConflictID string          `json:"id"`
	UUID       string          `json:"uuid"`
	Type       string          `json:"type"`
	Details    []FieldConflict `json:"details"`
}

// ID implements Conflict
func (c *GenericConflict) ID() string { return c.ConflictID }

// Summary implements Conflict
func (c *GenericConflict) Summary() string {
	fields := make([]string, len(c.Details))
	for i, d := range c.Details {
		fields[i] = d.Field
	}
	return fmt.Sprintf("%s %s: %s changed on both sides", c.Type, c.UUID, strings.Join(fields, ", "))
}

// Locations implements Conflict
func (c *GenericConflict) Locations() []Location {
	out := make([]Location, len(c.Details))
	for i, d := range c.Details {
		out[i] = Location{UUID: c.UUID, Field: d.Field}
	}
	return out
}

// Detail returns the conflict recorded for one field
func (c *GenericConflict) Detail(field string) (FieldConflict, bool) {
	for _, d := range c.Details {
		if d.Field == field {
			return d, true
		}
	}
	return FieldConflict{}, false
}

func (*GenericConflict) isConflict() {}

// SpecialKind names the composite kinds merged as whole units
type SpecialKind string

const (
	// SpecialUnit is a unit type instance such as an interaction
	SpecialUnit SpecialKind = "unit"
	// SpecialSlotContents is a slot's default content tree
	SpecialSlotContents SpecialKind = "slot-contents"
	// SpecialEditDelete is a subtree deleted on one side and edited on the other
	SpecialEditDelete SpecialKind = "edit-vs-delete"
)

// SpecialConflict offers a whole-unit left/right choice
type SpecialConflict struct {
	ConflictID string      `json:"id"`
	Kind       SpecialKind `json:"kind"`
	UUID       string      `json:"uuid"`
	Field      string      `json:"field,omitempty"`
	Type       string      `json:"type"`
	Label      string      `json:"label"`
	// Left and Right render each side's version of the unit
	Left  string `json:"left"`
	Right string `json:"right"`
	// DeletedBy and Members describe an edit-vs-delete conflict
	DeletedBy Side     `json:"deletedBy,omitempty"`
	Members   []string `json:"members,omitempty"`
	Edited    []string `json:"edited,omitempty"`
}

// ID implements Conflict
func (c *SpecialConflict) ID() string { return c.ConflictID }

// Summary implements Conflict
func (c *SpecialConflict) Summary() string {
	switch c.Kind {
	case SpecialEditDelete:
		return fmt.Sprintf("%s %s deleted on %s, edited on %s", c.Type, c.UUID, c.DeletedBy, c.DeletedBy.Other())
	case SpecialSlotContents:
		return fmt.Sprintf("%s %s: default contents changed on both sides", c.Type, c.UUID)
	default:
		return fmt.Sprintf("%s %s changed on both sides", c.Label, c.UUID)
	}
}

// Locations implements Conflict
func (c *SpecialConflict) Locations() []Location {
	return []Location{{UUID: c.UUID, Field: c.Field}}
}

func (*SpecialConflict) isConflict() {}

// ConflictSet is an ordered conflict list that survives a JSON round trip
type ConflictSet []Conflict

type conflictEnvelope struct {
	Generic *GenericConflict `json:"generic,omitempty"`
	Special *SpecialConflict `json:"special,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (cs ConflictSet) MarshalJSON() ([]byte, error) {
	out := make([]conflictEnvelope, 0, len(cs))
	for _, c := range cs {
		switch c := c.(type) {
		case *GenericConflict:
			out = append(out, conflictEnvelope{Generic: c})
		case *SpecialConflict:
			out = append(out, conflictEnvelope{Special: c})
		default:
			return nil, fmt.Errorf("unknown conflict type %T", c)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (cs *ConflictSet) UnmarshalJSON(data []byte) error {
	var in []conflictEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(ConflictSet, 0, len(in))
	for _, e := range in {
		switch {
		case e.Generic != nil:
			out = append(out, e.Generic)
		case e.Special != nil:
			out = append(out, e.Special)
		default:
			return fmt.Errorf("empty conflict record")
		}
	}
	*cs = out
	return nil
}

// Find returns the conflict with the given id
func (cs ConflictSet) Find(id string) (Conflict, bool) {
	for _, c := range cs {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// IDs returns every conflict id in order
func (cs ConflictSet) IDs() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID()
	}
	return out
}

// Locations returns every conflicting location, sorted
func (cs ConflictSet) Locations() []Location {
	var out []Location
	for _, c := range cs {
		out = append(out, c.Locations()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UUID != out[j].UUID {
			return out[i].UUID < out[j].UUID
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// Resolution is the pick for one conflict. Fields overrides Side per field of a
// generic conflict.
type Resolution struct {
	Side   Side            `json:"side,omitempty"`
	Fields map[string]Side `json:"fields,omitempty"`
}

// Picks maps conflict ids to their resolutions
type Picks map[string]Resolution

// sideFor returns the side chosen for a conflict field, Left when unpicked
func (p Picks) sideFor(id, field string) Side {
	res, ok := p[id]
	if !ok {
		return Left
	}
	if s, ok := res.Fields[field]; ok && s.Valid() {
		return s
	}
	if res.Side.Valid() {
		return res.Side
	}
	return Left
}

// Covers reports whether c is fully resolved by p
func (p Picks) Covers(c Conflict) bool {
	res, ok := p[c.ID()]
	if !ok {
		return false
	}
	if res.Side.Valid() {
		return true
	}
	g, ok := c.(*GenericConflict)
	if !ok {
		return false
	}
	for _, d := range g.Details {
		if !res.Fields[d.Field].Valid() {
			return false
		}
	}
	return true
}

// AutoResolution records a divergent edit settled by a domain rule
type AutoResolution struct {
	UUID   string      `json:"uuid"`
	Field  string      `json:"field"`
	Left   model.Value `json:"left"`
	Right  model.Value `json:"right"`
	Chosen Side        `json:"chosen"`
	Rule   string      `json:"rule"`
}

// PrunedRef records a reference dropped because its target did not survive the merge
type PrunedRef struct {
	UUID    string `json:"uuid"`
	Field   string `json:"field"`
	Missing string `json:"missing"`
}
