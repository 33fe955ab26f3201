package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/model"
)

// F is shorthand for an instance's field map
type F = map[string]model.Value

// SiteBuilder builds a design-document graph on the default schema with
// caller-chosen uuids so tests can refer to instances by name.
type SiteBuilder struct {
	Schema *model.Schema
	g      *model.Graph
}

// NewSite starts a graph whose root is a Site with uuid "site"
func NewSite() *SiteBuilder {
	s := model.DefaultSchema()
	g := model.NewGraph(s.Version)
	g.Root = "site"
	g.Add(model.NewInstance("site", "Site"))
	return &SiteBuilder{Schema: s, g: g}
}

// Add creates an instance. It does not attach it to any owner.
func (b *SiteBuilder) Add(uuid, typeName string, fields F) *SiteBuilder {
	inst := model.NewInstance(uuid, typeName)
	for k, v := range fields {
		inst.Set(k, v)
	}
	b.g.Add(inst)
	return b
}

// Set assigns one field of an existing instance
func (b *SiteBuilder) Set(uuid, field string, v model.Value) *SiteBuilder {
	b.g.Insts[uuid].Set(field, v)
	return b
}

// Append adds refs to the end of a list field
func (b *SiteBuilder) Append(uuid, field string, refs ...string) *SiteBuilder {
	inst := b.g.Insts[uuid]
	items := append([]model.Value{}, inst.Get(field).Items()...)
	for _, r := range refs {
		items = append(items, model.Ref(r))
	}
	inst.Set(field, model.List(items...))
	return b
}

// Child adds an instance and appends it to an owned list field of parent
func (b *SiteBuilder) Child(parent, field, uuid, typeName string, fields F) *SiteBuilder {
	return b.Add(uuid, typeName, fields).Append(parent, field, uuid)
}

// Component adds a component with a root TplTag named "<uuid>-root"
func (b *SiteBuilder) Component(uuid, name string) *SiteBuilder {
	root := uuid + "-root"
	b.Child("site", "components", uuid, "Component", F{
		"name":    model.String(name),
		"type":    model.String("plain"),
		"tplTree": model.Ref(root),
	})
	return b.Add(root, "TplTag", F{"name": model.String(name + " root"), "tag": model.String("div")})
}

// Tag adds a TplTag as the last child of parent
func (b *SiteBuilder) Tag(parent, uuid, text string) *SiteBuilder {
	return b.Child(parent, "children", uuid, "TplTag", F{
		"tag":  model.String("div"),
		"text": model.String(text),
	})
}

// Dependency adds a project dependency on pkgID at version
func (b *SiteBuilder) Dependency(uuid, pkgID, version string) *SiteBuilder {
	return b.Child("site", "projectDependencies", uuid, "ProjectDependency", F{
		"pkgId":   model.String(pkgID),
		"version": model.String(version),
		"name":    model.String(pkgID),
	})
}

// Graph returns a deep copy of the graph built so far
func (b *SiteBuilder) Graph() *model.Graph {
	return b.g.Clone()
}

// Bundle flattens the graph built so far
func (b *SiteBuilder) Bundle(t *testing.T) *model.Bundle {
	t.Helper()
	bundle, err := model.Flatten(b.g, b.Schema)
	require.NoError(t, err)
	return bundle
}

// BasicSite is a site with one component whose root holds two containers:
// p1 owns element e{text:"A"}, p2 is empty.
func BasicSite() *SiteBuilder {
	return NewSite().
		Set("site", "name", model.String("basic")).
		Component("comp", "Card").
		Tag("comp-root", "p1", "").
		Tag("comp-root", "p2", "").
		Tag("p1", "e", "A")
}

// Edit applies fn to a copy of g and returns the copy
func Edit(g *model.Graph, fn func(g *model.Graph)) *model.Graph {
	out := g.Clone()
	fn(out)
	return out
}

// MoveChild moves uuid from one owned list to the end of another
func MoveChild(g *model.Graph, uuid, fromParent, toParent, field string) {
	from := g.Insts[fromParent]
	var kept []model.Value
	for _, item := range from.Get(field).Items() {
		if item.Kind == model.KindRef && item.Ref == uuid {
			continue
		}
		kept = append(kept, item)
	}
	from.Set(field, model.List(kept...))
	to := g.Insts[toParent]
	to.Set(field, model.List(append(append([]model.Value{}, to.Get(field).Items()...), model.Ref(uuid))...))
}
