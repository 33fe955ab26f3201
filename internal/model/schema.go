package model

import "fmt"

// FieldKind describes the shape of a field value
type FieldKind uint8

const (
	// FieldScalar holds a string, number, bool or null
	FieldScalar FieldKind = iota
	// FieldRef holds a single reference or null
	FieldRef
	// FieldList holds a list of references or scalars
	FieldList
)

// Policy tells the merge resolver how divergent edits of a field are handled
type Policy uint8

const (
	// PolicyGeneric surfaces divergent edits as a left/right conflict
	PolicyGeneric Policy = iota
	// PolicyHarmless resolves divergent edits by keeping the left value
	PolicyHarmless
	// PolicyOrdered merges list membership and order three-way
	PolicyOrdered
	// PolicyUnordered merges list membership only
	PolicyUnordered
	// PolicyAtomic compares the whole list as one value
	PolicyAtomic
	// PolicyUnit treats the field value and everything it owns as one opaque unit
	PolicyUnit
	// PolicyDependencies marks the package dependency list handled by the reconciler
	PolicyDependencies
)

func (p Policy) String() string {
	switch p {
	case PolicyGeneric:
		return "generic"
	case PolicyHarmless:
		return "harmless"
	case PolicyOrdered:
		return "ordered"
	case PolicyUnordered:
		return "unordered"
	case PolicyAtomic:
		return "atomic"
	case PolicyUnit:
		return "unit"
	case PolicyDependencies:
		return "dependencies"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// FieldMeta describes one field of a node kind
type FieldMeta struct {
	Name   string
	Kind   FieldKind
	Owned  bool // referenced instances are children of the owner
	Policy Policy
}

// IsList reports whether the field holds a list
func (f *FieldMeta) IsList() bool { return f.Kind == FieldList }

// VirtualMeta describes content that is regenerated from a source default rather than merged.
// An instance is virtual when FlagField is true; its ContentsField mirrors the
// SourceContentsField of the SourceType instance whose SourceKeyField equals KeyField.
type VirtualMeta struct {
	FlagField           string
	ContentsField       string
	KeyField            string
	SourceType          string
	SourceKeyField      string
	SourceContentsField string
}

// TypeMeta describes one node kind
type TypeMeta struct {
	Name       string
	Fields     []FieldMeta
	Unit       bool   // the instance and its owned subtree merge as one opaque unit
	UnitLabel  string // human label for unit conflicts
	Dependency bool   // instances are external package references
	Virtual    *VirtualMeta

	byName map[string]int
}

// Field looks up a field by name
func (t *TypeMeta) Field(name string) (*FieldMeta, bool) {
	if t.byName == nil {
		t.index()
	}
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.Fields[i], true
}

func (t *TypeMeta) index() {
	t.byName = make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		t.byName[f.Name] = i
	}
}

// Schema is the fixed set of node kinds the engine knows how to merge
type Schema struct {
	// Version is the schema stamp written into every bundle
	Version string
	// DepPkgField and DepVersionField name the fields of Dependency types
	DepPkgField     string
	DepVersionField string
	// DepTrackField names the scalar on referencing instances that records the
	// dependency version they were last upgraded to
	DepTrackField string

	types map[string]*TypeMeta
}

// NewSchema builds a schema from type descriptions
func NewSchema(version string, types ...*TypeMeta) *Schema {
	s := &Schema{
		Version:         version,
		DepPkgField:     "pkgId",
		DepVersionField: "version",
		DepTrackField:   "depVersion",
		types:           make(map[string]*TypeMeta, len(types)),
	}
	for _, t := range types {
		t.index()
		s.types[t.Name] = t
	}
	return s
}

// Type looks up a node kind
func (s *Schema) Type(name string) (*TypeMeta, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Field looks up a field of a node kind
func (s *Schema) Field(typeName, field string) (*FieldMeta, bool) {
	t, ok := s.types[typeName]
	if !ok {
		return nil, false
	}
	return t.Field(field)
}

// DefaultSchemaVersion is the stamp of DefaultSchema
const DefaultSchemaVersion = "sitevc/1"

// DefaultSchema returns the design-document schema: sites, components, element trees,
// variants, slots, interactions, tokens and package dependencies.
func DefaultSchema() *Schema {
	return NewSchema(DefaultSchemaVersion,
		&TypeMeta{Name: "Site", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "components", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
			{Name: "tokens", Kind: FieldList, Owned: true, Policy: PolicyUnordered},
			{Name: "projectDependencies", Kind: FieldList, Owned: true, Policy: PolicyDependencies},
		}},
		&TypeMeta{Name: "Component", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "type", Kind: FieldScalar},
			{Name: "params", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
			{Name: "variants", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
			{Name: "tplTree", Kind: FieldRef, Owned: true},
		}},
		&TypeMeta{Name: "Param", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "kind", Kind: FieldScalar},
		}},
		&TypeMeta{Name: "Variant", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "selectors", Kind: FieldList, Policy: PolicyUnordered},
		}},
		&TypeMeta{Name: "TplTag", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "tag", Kind: FieldScalar},
			{Name: "text", Kind: FieldScalar},
			{Name: "collapsed", Kind: FieldScalar, Policy: PolicyHarmless},
			{Name: "children", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
			{Name: "vsettings", Kind: FieldList, Owned: true, Policy: PolicyUnordered},
		}},
		&TypeMeta{Name: "TplComponent", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "component", Kind: FieldRef},
			{Name: "dependency", Kind: FieldRef},
			{Name: "depVersion", Kind: FieldScalar},
			{Name: "args", Kind: FieldList, Owned: true, Policy: PolicyUnordered},
			{Name: "vsettings", Kind: FieldList, Owned: true, Policy: PolicyUnordered},
		}},
		&TypeMeta{Name: "TplSlot", Fields: []FieldMeta{
			{Name: "param", Kind: FieldRef},
			{Name: "defaultContents", Kind: FieldList, Owned: true, Policy: PolicyUnit},
		}},
		&TypeMeta{
			Name: "Arg",
			Fields: []FieldMeta{
				{Name: "param", Kind: FieldRef},
				{Name: "virtual", Kind: FieldScalar},
				{Name: "contents", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
			},
			Virtual: &VirtualMeta{
				FlagField:           "virtual",
				ContentsField:       "contents",
				KeyField:            "param",
				SourceType:          "TplSlot",
				SourceKeyField:      "param",
				SourceContentsField: "defaultContents",
			},
		},
		&TypeMeta{Name: "VariantSetting", Fields: []FieldMeta{
			{Name: "variants", Kind: FieldList, Policy: PolicyUnordered},
			{Name: "styles", Kind: FieldList, Policy: PolicyAtomic},
			{Name: "text", Kind: FieldScalar},
			{Name: "interactions", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
		}},
		&TypeMeta{
			Name:      "Interaction",
			Unit:      true,
			UnitLabel: "interaction",
			Fields: []FieldMeta{
				{Name: "eventName", Kind: FieldScalar},
				{Name: "actions", Kind: FieldList, Owned: true, Policy: PolicyOrdered},
			},
		},
		&TypeMeta{Name: "Action", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "args", Kind: FieldList, Policy: PolicyAtomic},
		}},
		&TypeMeta{Name: "StyleToken", Fields: []FieldMeta{
			{Name: "name", Kind: FieldScalar},
			{Name: "kind", Kind: FieldScalar},
			{Name: "value", Kind: FieldScalar},
		}},
		&TypeMeta{Name: "ProjectDependency", Dependency: true, Fields: []FieldMeta{
			{Name: "pkgId", Kind: FieldScalar},
			{Name: "version", Kind: FieldScalar},
			{Name: "name", Kind: FieldScalar},
		}},
	)
}
