package model

import (
	"sort"
)

// Instance is one node of a materialized design-document graph.
// References inside Fields hold uuids.
type Instance struct {
	UUID   string
	Type   string
	Fields map[string]Value
}

// NewInstance creates an instance with no fields set
func NewInstance(uuid, typeName string) *Instance {
	return &Instance{UUID: uuid, Type: typeName, Fields: make(map[string]Value)}
}

// Get returns a field value; unset fields are null
func (i *Instance) Get(field string) Value {
	return i.Fields[field]
}

// Set assigns a field value. Setting null removes the field.
func (i *Instance) Set(field string, v Value) {
	if v.IsNull() {
		delete(i.Fields, field)
		return
	}
	i.Fields[field] = v
}

// Clone returns a deep copy
func (i *Instance) Clone() *Instance {
	out := &Instance{UUID: i.UUID, Type: i.Type, Fields: make(map[string]Value, len(i.Fields))}
	for k, v := range i.Fields {
		out.Fields[k] = v.Clone()
	}
	return out
}

// FieldNames returns the fields of the instance in schema order, followed by
// fields unknown to the schema in lexical order.
func (i *Instance) FieldNames(s *Schema) []string {
	seen := make(map[string]bool, len(i.Fields))
	var names []string
	if t, ok := s.Type(i.Type); ok {
		for _, f := range t.Fields {
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}
	var extra []string
	for name := range i.Fields {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Graph is an arena of instances keyed by uuid. All links between instances are
// lookups into Insts, so cycles need no special handling.
type Graph struct {
	Root  string
	Stamp string
	Insts map[string]*Instance
}

// NewGraph creates an empty graph
func NewGraph(stamp string) *Graph {
	return &Graph{Stamp: stamp, Insts: make(map[string]*Instance)}
}

// Get returns the instance with the given uuid
func (g *Graph) Get(uuid string) (*Instance, bool) {
	inst, ok := g.Insts[uuid]
	return inst, ok
}

// Add inserts or replaces an instance
func (g *Graph) Add(inst *Instance) {
	g.Insts[inst.UUID] = inst
}

// Remove deletes an instance. References to it are left in place.
func (g *Graph) Remove(uuid string) {
	delete(g.Insts, uuid)
}

// UUIDs returns every uuid in the graph, sorted
func (g *Graph) UUIDs() []string {
	out := make([]string, 0, len(g.Insts))
	for id := range g.Insts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy
func (g *Graph) Clone() *Graph {
	out := &Graph{Root: g.Root, Stamp: g.Stamp, Insts: make(map[string]*Instance, len(g.Insts))}
	for id, inst := range g.Insts {
		out.Insts[id] = inst.Clone()
	}
	return out
}

// Owner locates an instance inside the owned field of its parent
type Owner struct {
	UUID  string
	Field string
	Index int // position inside a list field, -1 for single references
}

// Owners indexes the owning parent of every owned instance.
// If an instance is (illegally) owned twice, the lexically smallest owner wins.
func (g *Graph) Owners(s *Schema) map[string]Owner {
	out := make(map[string]Owner)
	for _, id := range g.UUIDs() {
		inst := g.Insts[id]
		t, ok := s.Type(inst.Type)
		if !ok {
			continue
		}
		for _, f := range t.Fields {
			if !f.Owned {
				continue
			}
			v := inst.Get(f.Name)
			switch v.Kind {
			case KindRef:
				if _, taken := out[v.Ref]; !taken {
					out[v.Ref] = Owner{UUID: id, Field: f.Name, Index: -1}
				}
			case KindList:
				for idx, item := range v.List {
					if item.Kind != KindRef {
						continue
					}
					if _, taken := out[item.Ref]; !taken {
						out[item.Ref] = Owner{UUID: id, Field: f.Name, Index: idx}
					}
				}
			}
		}
	}
	return out
}

// OwnedChildren returns the uuids directly owned by inst, in field order
func OwnedChildren(inst *Instance, s *Schema) []string {
	t, ok := s.Type(inst.Type)
	if !ok {
		return nil
	}
	var out []string
	for _, f := range t.Fields {
		if f.Owned {
			out = append(out, inst.Get(f.Name).RefIDs()...)
		}
	}
	return out
}

// Subtree returns uuid and every instance it transitively owns, in depth-first order.
// Owned references to missing instances are skipped.
func (g *Graph) Subtree(s *Schema, uuid string) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		inst, ok := g.Insts[id]
		if !ok {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, child := range OwnedChildren(inst, s) {
			visit(child)
		}
	}
	visit(uuid)
	return out
}

// Walk visits every instance reachable from the root through any reference
// field, depth first in field order. Each instance is visited once.
func (g *Graph) Walk(s *Schema, fn func(inst *Instance)) {
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		inst, ok := g.Insts[id]
		if !ok {
			return
		}
		seen[id] = true
		fn(inst)
		for _, name := range inst.FieldNames(s) {
			for _, ref := range inst.Get(name).RefIDs() {
				visit(ref)
			}
		}
	}
	visit(g.Root)
}

// Referrers returns, for every uuid, the (sorted) uuids of instances that reference it
func (g *Graph) Referrers() map[string][]string {
	out := make(map[string][]string)
	for _, id := range g.UUIDs() {
		seen := make(map[string]bool)
		for _, v := range g.Insts[id].Fields {
			for _, ref := range v.RefIDs() {
				if !seen[ref] {
					seen[ref] = true
					out[ref] = append(out[ref], id)
				}
			}
		}
	}
	return out
}
