// Package merge folds the ancestor→left and ancestor→right diffs of a merge into
// one graph, classifying every divergent change as auto-merged, auto-resolved by
// a domain rule, or a conflict awaiting a human pick.
package merge

import (
	"sort"

	"github.com/samber/lo"

	"sitevc.dev/sitevc/internal/deps"
	"sitevc.dev/sitevc/internal/diff"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/model"
)

// Resolver merges graphs of one schema
type Resolver struct {
	schema   *model.Schema
	differ   *diff.Differ
	upgrader deps.Upgrader
}

// Option configures a Resolver
type Option func(*Resolver)

// WithUpgrader replaces the dependency upgrader (default deps.VersionStamper)
func WithUpgrader(u deps.Upgrader) Option {
	return func(r *Resolver) { r.upgrader = u }
}

// NewResolver creates a Resolver
func NewResolver(s *model.Schema, opts ...Option) *Resolver {
	r := &Resolver{schema: s, differ: diff.New(s), upgrader: deps.VersionStamper{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schema returns the resolver's schema
func (r *Resolver) Schema() *model.Schema {
	return r.schema
}

// Result is the outcome of one merge run
type Result struct {
	// Merged is the merged graph; unpicked conflicts provisionally hold the left value
	Merged *model.Graph
	// Generic and Special are the surfaced conflicts, each sorted by id
	Generic []*GenericConflict
	Special []*SpecialConflict
	// Auto lists divergent edits settled by domain rules
	Auto []AutoResolution
	// Deps is the dependency reconciliation that was applied
	Deps *deps.Plan
	// Regenerated lists the virtual instances whose contents were rebuilt
	Regenerated []string
	// Pruned lists references dropped because their target was deleted
	Pruned []PrunedRef
}

// Conflicts returns generic conflicts followed by special conflicts
func (r *Result) Conflicts() ConflictSet {
	out := make(ConflictSet, 0, len(r.Generic)+len(r.Special))
	for _, c := range r.Generic {
		out = append(out, c)
	}
	for _, c := range r.Special {
		out = append(out, c)
	}
	return out
}

// Pending returns the ids of conflicts picks does not cover
func (r *Result) Pending(picks Picks) []string {
	var out []string
	for _, c := range r.Conflicts() {
		if !picks.Covers(c) {
			out = append(out, c.ID())
		}
	}
	return out
}

// Clean reports whether the merge produced no conflicts
func (r *Result) Clean() bool {
	return len(r.Generic) == 0 && len(r.Special) == 0
}

// MergeBundles materializes the triple and merges it
func (r *Resolver) MergeBundles(ancestor, left, right *model.Bundle, picks Picks) (*Result, error) {
	if err := checkStamps(ancestor.Version, left.Version, right.Version, r.schema.Version); err != nil {
		return nil, err
	}
	var graphs [3]*model.Graph
	for i, b := range []*model.Bundle{ancestor, left, right} {
		g, err := model.Materialize(b, r.schema)
		if err != nil {
			return nil, err
		}
		graphs[i] = g
	}
	return r.Merge(graphs[0], graphs[1], graphs[2], picks)
}

// Merge runs the deterministic three-way merge. Picks are applied at every
// conflict they name; the same inputs and picks always produce the same result.
func (r *Resolver) Merge(ancestor, left, right *model.Graph, picks Picks) (*Result, error) {
	if err := checkStamps(ancestor.Stamp, left.Stamp, right.Stamp, r.schema.Version); err != nil {
		return nil, err
	}
	if picks == nil {
		picks = Picks{}
	}
	m := &merger{
		r:         r,
		s:         r.schema,
		anc:       ancestor,
		side:      [2]*model.Graph{left, right},
		picks:     picks,
		merged:    ancestor.Clone(),
		ownerPref: make(map[string]model.Owner),
		result:    &Result{},
	}
	if err := m.run(); err != nil {
		return nil, err
	}
	return m.result, nil
}

func checkStamps(anc, left, right, schema string) error {
	if anc == left && left == right && right == schema {
		return nil
	}
	return sitevcerrors.NewSchemaMismatchError(map[string]string{
		"ancestor": anc,
		"left":     left,
		"right":    right,
	})
}

// merger holds the state of one merge run
type merger struct {
	r      *Resolver
	s      *model.Schema
	anc    *model.Graph
	side   [2]*model.Graph // left, right; replaced by restored copies when a deletion loses
	diffs  [2]*diff.Diff
	picks  Picks
	merged *model.Graph

	deleted   map[string]bool
	plan      *deps.Plan
	upgraded  map[string]bool // dependency instances the plan upgrades
	ownerPref map[string]model.Owner
	generic   map[string]*GenericConflict
	result    *Result
}

func sideIndex(s Side) int {
	if s == Right {
		return 1
	}
	return 0
}

func sideOf(i int) Side {
	if i == 1 {
		return Right
	}
	return Left
}

func (m *merger) run() error {
	m.generic = make(map[string]*GenericConflict)
	m.computeDiffs()
	m.resolveDeletions()
	if err := m.planDependencies(); err != nil {
		return err
	}
	m.mergeFields()
	m.mergeAdditions()
	m.mergeUnits()
	if err := deps.Apply(m.merged, m.s, m.plan, m.r.upgrader); err != nil {
		return err
	}
	for _, id := range lo.Keys(m.deleted) {
		m.merged.Remove(id)
	}
	m.regenerateVirtual()
	m.fixOwnership()
	m.dropOrphans()
	m.pruneDangling()
	m.finish()
	return nil
}

func (m *merger) computeDiffs() {
	for i := range m.side {
		m.diffs[i] = m.r.differ.Diff(m.anc, m.side[i])
	}
}

func (m *merger) isDependency(typeName string) bool {
	t, ok := m.s.Type(typeName)
	return ok && t.Dependency
}

// genericConflict returns (creating if needed) the grouped conflict of an instance
func (m *merger) genericConflict(uuid, typeName string) *GenericConflict {
	id := "generic:" + uuid
	c, ok := m.generic[id]
	if !ok {
		c = &GenericConflict{ConflictID: id, UUID: uuid, Type: typeName}
		m.generic[id] = c
	}
	return c
}

// mergeFields merges every field modified on either side of an instance that
// survives in the merged graph
func (m *merger) mergeFields() {
	ids := lo.Uniq(append(m.diffs[0].UUIDs(), m.diffs[1].UUIDs()...))
	sort.Strings(ids)
	for _, id := range ids {
		lc, rc := modified(m.diffs[0].Changes[id]), modified(m.diffs[1].Changes[id])
		if (lc == nil && rc == nil) || m.deleted[id] {
			continue
		}
		inst, ok := m.merged.Get(id)
		if !ok {
			continue
		}
		m.mergeInstance(inst, lc, rc)
	}
}

// modified returns c when it records field changes. A removal that survives the
// merge (rescued by a move on the other side) contributes no field changes.
func modified(c *diff.Change) *diff.Change {
	if c == nil || c.Op != diff.OpModified {
		return nil
	}
	return c
}

func (m *merger) mergeInstance(inst *model.Instance, lc, rc *diff.Change) {
	var names []string
	for _, c := range []*diff.Change{lc, rc} {
		if c == nil {
			continue
		}
		for _, f := range c.Fields {
			names = append(names, f.Field)
		}
	}
	names = lo.Uniq(names)
	order := append([]string{diff.ParentField}, inst.FieldNames(m.s)...)
	sort.SliceStable(names, func(i, j int) bool {
		return indexOf(order, names[i]) < indexOf(order, names[j])
	})

	t, _ := m.s.Type(inst.Type)
	var track [2]*diff.FieldChange
	tracked := false
	for _, name := range names {
		var lf, rf *diff.FieldChange
		if lc != nil {
			lf, _ = lc.Field(name)
		}
		if rc != nil {
			rf, _ = rc.Field(name)
		}
		if name == diff.ParentField {
			m.mergeParent(inst, lf, rf)
			continue
		}
		if t != nil && t.Dependency && (name == m.s.DepPkgField || name == m.s.DepVersionField) {
			continue
		}
		if name == m.s.DepTrackField {
			track, tracked = [2]*diff.FieldChange{lf, rf}, true
			continue
		}
		var meta *model.FieldMeta
		if t != nil {
			meta, _ = t.Field(name)
		}
		m.mergeField(inst, meta, name, lf, rf)
	}
	// merged after the references so a retarget is visible
	if tracked && !m.restamped(inst) {
		var meta *model.FieldMeta
		if t != nil {
			meta, _ = t.Field(m.s.DepTrackField)
		}
		m.mergeField(inst, meta, m.s.DepTrackField, track[0], track[1])
	}
}

// restamped reports whether inst references the same dependencies as in the
// ancestor and the plan upgrades one of them. The upgrader then rewrites its
// tracked version.
func (m *merger) restamped(inst *model.Instance) bool {
	old, ok := m.anc.Get(inst.UUID)
	if !ok {
		return false
	}
	cur, prev := m.dependencyRefs(inst), m.dependencyRefs(old)
	if len(cur) == 0 || !lo.Every(cur, prev) || !lo.Every(prev, cur) {
		return false
	}
	return lo.SomeBy(cur, func(id string) bool { return m.upgraded[id] })
}

// dependencyRefs returns the dependency instances inst points at
func (m *merger) dependencyRefs(inst *model.Instance) []string {
	t, ok := m.s.Type(inst.Type)
	if !ok {
		return nil
	}
	var out []string
	for _, f := range t.Fields {
		if f.Kind != model.FieldRef {
			continue
		}
		for _, ref := range inst.Get(f.Name).RefIDs() {
			if m.isDependency(m.typeOf(ref)) {
				out = append(out, ref)
			}
		}
	}
	return out
}

// typeOf finds the node kind of uuid in any of the three versions
func (m *merger) typeOf(uuid string) string {
	for _, g := range []*model.Graph{m.anc, m.side[0], m.side[1]} {
		if inst, ok := g.Get(uuid); ok {
			return inst.Type
		}
	}
	return ""
}

func (m *merger) mergeParent(inst *model.Instance, lf, rf *diff.FieldChange) {
	var chosen *diff.FieldChange
	switch {
	case lf != nil && rf != nil && !lf.New.Equal(rf.New):
		c := m.genericConflict(inst.UUID, inst.Type)
		c.Details = append(c.Details, FieldConflict{Field: diff.ParentField, Ancestor: lf.Old, Left: lf.New, Right: rf.New})
		chosen = lf
		if m.picks.sideFor(c.ConflictID, diff.ParentField) == Right {
			chosen = rf
		}
	case lf != nil:
		chosen = lf
	default:
		chosen = rf
	}
	if items := chosen.New.Items(); len(items) == 2 {
		m.ownerPref[inst.UUID] = model.Owner{UUID: items[0].Ref, Field: items[1].Str}
	}
}

func (m *merger) mergeField(inst *model.Instance, meta *model.FieldMeta, name string, lf, rf *diff.FieldChange) {
	switch {
	case rf == nil:
		inst.Set(name, lf.New.Clone())
		return
	case lf == nil:
		inst.Set(name, rf.New.Clone())
		return
	case lf.New.Equal(rf.New):
		inst.Set(name, lf.New.Clone())
		return
	}

	policy := model.PolicyGeneric
	if meta != nil {
		policy = meta.Policy
	}
	id := "generic:" + inst.UUID
	switch policy {
	case model.PolicyOrdered:
		merged, conflict := mergeOrdered(lf.Old.Items(), lf.New.Items(), rf.New.Items(), m.picks.sideFor(id, name))
		if conflict {
			c := m.genericConflict(inst.UUID, inst.Type)
			c.Details = append(c.Details, FieldConflict{Field: name, Ancestor: lf.Old, Left: lf.New, Right: rf.New})
		}
		inst.Set(name, merged)
	case model.PolicyUnordered, model.PolicyDependencies:
		inst.Set(name, mergeUnordered(lf.Old.Items(), lf.New.Items(), rf.New.Items()))
	case model.PolicyHarmless:
		inst.Set(name, lf.New.Clone())
		m.result.Auto = append(m.result.Auto, AutoResolution{
			UUID: inst.UUID, Field: name, Left: lf.New, Right: rf.New, Chosen: Left, Rule: "harmless",
		})
	default:
		c := m.genericConflict(inst.UUID, inst.Type)
		c.Details = append(c.Details, FieldConflict{Field: name, Ancestor: lf.Old, Left: lf.New, Right: rf.New})
		if m.picks.sideFor(c.ConflictID, name) == Right {
			inst.Set(name, rf.New.Clone())
		} else {
			inst.Set(name, lf.New.Clone())
		}
	}
}

// mergeAdditions copies instances new on either side into the merged graph
func (m *merger) mergeAdditions() {
	ids := lo.Uniq(append(m.diffs[0].Added(), m.diffs[1].Added()...))
	sort.Strings(ids)
	for _, id := range ids {
		lc, rc := m.diffs[0].Changes[id], m.diffs[1].Changes[id]
		switch {
		case lc == nil:
			m.merged.Add(rc.Payload.Clone())
		case rc == nil:
			m.merged.Add(lc.Payload.Clone())
		default:
			// the same uuid introduced independently on both sides
			inst := lc.Payload.Clone()
			m.merged.Add(inst)
			m.mergeInstance(inst, introduced(lc.Payload), introduced(rc.Payload))
		}
	}
}

// introduced describes an added instance as modifications of an empty one, so
// that an instance added on both sides merges field by field
func introduced(inst *model.Instance) *diff.Change {
	c := &diff.Change{UUID: inst.UUID, Type: inst.Type, Op: diff.OpModified}
	names := make([]string, 0, len(inst.Fields))
	for name := range inst.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.Fields = append(c.Fields, diff.FieldChange{Field: name, Old: model.Null(), New: inst.Fields[name]})
	}
	return c
}

// planDependencies runs the dependency reconciler. Its upgrade steps are
// applied once the other fields are merged.
func (m *merger) planDependencies() error {
	plan, err := deps.Reconcile(
		deps.Collect(m.anc, m.s),
		deps.Collect(m.side[0], m.s),
		deps.Collect(m.side[1], m.s),
	)
	if err != nil {
		return err
	}
	m.plan = plan
	m.upgraded = make(map[string]bool)
	for _, d := range plan.Decisions {
		if len(d.Steps) == 0 {
			continue
		}
		m.upgraded[d.UUID] = true
		for _, alias := range d.Aliases {
			m.upgraded[alias] = true
		}
	}
	m.result.Deps = plan
	return nil
}

// fixOwnership leaves every instance with exactly one owner slot. The owner
// chosen by a move wins; otherwise an owner that differs from the ancestor's
// (a move on one side) beats the ancestor's.
func (m *merger) fixOwnership() {
	type slot struct {
		owner string
		field string
	}
	slots := make(map[string][]slot)
	for _, id := range m.merged.UUIDs() {
		inst := m.merged.Insts[id]
		t, ok := m.s.Type(inst.Type)
		if !ok {
			continue
		}
		for _, f := range t.Fields {
			if !f.Owned {
				continue
			}
			for _, child := range lo.Uniq(inst.Get(f.Name).RefIDs()) {
				slots[child] = append(slots[child], slot{owner: id, field: f.Name})
			}
		}
	}
	ancOwners := m.anc.Owners(m.s)
	for _, child := range lo.Keys(slots) {
		candidates := slots[child]
		if len(candidates) < 2 {
			continue
		}
		keep := candidates[0]
		if pref, ok := m.ownerPref[child]; ok {
			for _, c := range candidates {
				if c.owner == pref.UUID && c.field == pref.Field {
					keep = c
				}
			}
		} else if ao, ok := ancOwners[child]; ok {
			for _, c := range candidates {
				if c.owner != ao.UUID || c.field != ao.Field {
					keep = c
					break
				}
			}
		}
		for _, c := range candidates {
			if c == keep {
				continue
			}
			inst := m.merged.Insts[c.owner]
			inst.Set(c.field, inst.Get(c.field).Rewrite(func(ref string) (string, bool) {
				return ref, ref != child
			}))
		}
	}
}

// dropOrphans removes owned instances that lost their owner
func (m *merger) dropOrphans() {
	ownedKind := make(map[string]bool)
	for _, g := range []*model.Graph{m.anc, m.side[0], m.side[1]} {
		for id := range g.Owners(m.s) {
			ownedKind[id] = true
		}
	}
	for {
		owners := m.merged.Owners(m.s)
		var orphans []string
		for _, id := range m.merged.UUIDs() {
			if id == m.merged.Root {
				continue
			}
			if _, owned := owners[id]; owned {
				continue
			}
			if ownedKind[id] {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) == 0 {
			return
		}
		for _, id := range orphans {
			m.merged.Remove(id)
		}
	}
}

// pruneDangling drops references to instances that did not survive
func (m *merger) pruneDangling() {
	for _, id := range m.merged.UUIDs() {
		inst := m.merged.Insts[id]
		for _, name := range inst.FieldNames(m.s) {
			v, ok := inst.Fields[name]
			if !ok {
				continue
			}
			changed := false
			out := v.Rewrite(func(ref string) (string, bool) {
				if _, ok := m.merged.Insts[ref]; ok {
					return ref, true
				}
				changed = true
				m.result.Pruned = append(m.result.Pruned, PrunedRef{UUID: id, Field: name, Missing: ref})
				return "", false
			})
			if changed {
				inst.Set(name, out)
			}
		}
	}
}

func (m *merger) finish() {
	for _, id := range lo.Keys(m.generic) {
		m.result.Generic = append(m.result.Generic, m.generic[id])
	}
	sort.Slice(m.result.Generic, func(i, j int) bool {
		return m.result.Generic[i].ConflictID < m.result.Generic[j].ConflictID
	})
	sort.Slice(m.result.Special, func(i, j int) bool {
		return m.result.Special[i].ConflictID < m.result.Special[j].ConflictID
	})
	m.merged.Stamp = m.anc.Stamp
	m.result.Merged = m.merged
}
