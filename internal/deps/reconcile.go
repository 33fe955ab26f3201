// Package deps reconciles the external package dependency lists of a merge and
// linearises version upgrades into sequential steps.
package deps

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-version"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
)

// Ref is one package dependency of a graph
type Ref struct {
	UUID    string
	PkgID   string
	Version string
}

// Step upgrades a package from one version to the next
type Step struct {
	PkgID string `json:"pkgId"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s -> %s", s.PkgID, s.From, s.To)
}

// Action is what happens to a package in the merged graph
type Action uint8

const (
	// Keep leaves the dependency in place
	Keep Action = iota
	// Adopt takes a dependency new on one or both sides
	Adopt
	// Drop removes the dependency after its steps are applied
	Drop
)

func (a Action) String() string {
	switch a {
	case Adopt:
		return "adopt"
	case Drop:
		return "drop"
	default:
		return "keep"
	}
}

// Decision is the outcome for one package
type Decision struct {
	PkgID  string
	Action Action
	// UUID is the instance that carries the package in the merged graph
	UUID string
	// Start is the version the instance holds before Steps run
	Start string
	// Final is the version after Steps run
	Final string
	Steps []Step
	// Aliases are instances of the same package that collapse into UUID
	Aliases []string
}

// Plan is the reconciliation of every package, sorted by package id
type Plan struct {
	Decisions []Decision
}

// Steps returns every upgrade step in application order
func (p *Plan) Steps() []Step {
	var out []Step
	for _, d := range p.Decisions {
		out = append(out, d.Steps...)
	}
	return out
}

// Decision returns the outcome for one package
func (p *Plan) Decision(pkgID string) (Decision, bool) {
	for _, d := range p.Decisions {
		if d.PkgID == pkgID {
			return d, true
		}
	}
	return Decision{}, false
}

// Reconcile merges the ancestor, left and right dependency lists
func Reconcile(ancestor, left, right []Ref) (*Plan, error) {
	anc := byPkg(ancestor)
	l := byPkg(left)
	r := byPkg(right)

	pkgs := make(map[string]bool)
	for _, m := range []map[string]Ref{anc, l, r} {
		for id := range m {
			pkgs[id] = true
		}
	}
	ids := make([]string, 0, len(pkgs))
	for id := range pkgs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	plan := &Plan{}
	for _, id := range ids {
		a, inA := anc[id]
		lv, inL := l[id]
		rv, inR := r[id]

		var (
			d   Decision
			err error
		)
		switch {
		case inA:
			d, err = reconcileExisting(a, lv, inL, rv, inR)
		case inL && inR:
			d, err = reconcileNewOnBoth(lv, rv)
		case inL:
			d = Decision{PkgID: id, Action: Adopt, UUID: lv.UUID, Start: lv.Version, Final: lv.Version}
		default:
			d = Decision{PkgID: id, Action: Adopt, UUID: rv.UUID, Start: rv.Version, Final: rv.Version}
		}
		if err != nil {
			return nil, err
		}
		plan.Decisions = append(plan.Decisions, d)
	}
	return plan, nil
}

func reconcileExisting(a, l Ref, inL bool, r Ref, inR bool) (Decision, error) {
	d := Decision{PkgID: a.PkgID, Action: Keep, UUID: a.UUID, Start: a.Version}
	if !inL && !inR {
		d.Action = Drop
		d.Final = a.Version
		return d, nil
	}
	var targets []string
	if inL {
		targets = append(targets, l.Version)
	}
	if inR {
		targets = append(targets, r.Version)
	}
	steps, final, err := linearise(a.PkgID, a.Version, targets)
	if err != nil {
		return Decision{}, err
	}
	d.Steps = steps
	d.Final = final
	if !inL || !inR {
		d.Action = Drop
	}
	return d, nil
}

func reconcileNewOnBoth(l, r Ref) (Decision, error) {
	lv, err := parse(l)
	if err != nil {
		return Decision{}, err
	}
	rv, err := parse(r)
	if err != nil {
		return Decision{}, err
	}
	low, high := l, r
	if rv.LessThan(lv) {
		low, high = r, l
	}
	d := Decision{PkgID: l.PkgID, Action: Adopt, UUID: low.UUID, Start: low.Version, Final: high.Version}
	if high.UUID != low.UUID {
		d.Aliases = []string{high.UUID}
	}
	if !lv.Equal(rv) {
		d.Steps = []Step{{PkgID: l.PkgID, From: low.Version, To: high.Version}}
	}
	return d, nil
}

// linearise walks from start to the highest target through every distinct
// version seen. A side left at start contributes nothing; a lone downgrade is a
// single step.
func linearise(pkgID, start string, targets []string) ([]Step, string, error) {
	startV, err := version.NewVersion(start)
	if err != nil {
		return nil, "", invalid(pkgID, start, err)
	}
	var moved []*version.Version
	raw := make(map[*version.Version]string)
	for _, t := range targets {
		v, err := version.NewVersion(t)
		if err != nil {
			return nil, "", invalid(pkgID, t, err)
		}
		if v.Equal(startV) {
			continue
		}
		moved = append(moved, v)
		raw[v] = t
	}
	if len(moved) == 0 {
		return nil, start, nil
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i].LessThan(moved[j]) })
	target := moved[len(moved)-1]

	if target.LessThan(startV) {
		return []Step{{PkgID: pkgID, From: start, To: raw[target]}}, raw[target], nil
	}
	var steps []Step
	cur := start
	curV := startV
	for _, v := range moved {
		if !v.GreaterThan(curV) {
			continue
		}
		steps = append(steps, Step{PkgID: pkgID, From: cur, To: raw[v]})
		cur, curV = raw[v], v
	}
	return steps, cur, nil
}

func parse(r Ref) (*version.Version, error) {
	v, err := version.NewVersion(r.Version)
	if err != nil {
		return nil, invalid(r.PkgID, r.Version, err)
	}
	return v, nil
}

func invalid(pkgID, v string, err error) error {
	return fmt.Errorf("%w: %s@%s: %v", sitevcerrors.ErrInvalidVersion, pkgID, v, err)
}

func byPkg(refs []Ref) map[string]Ref {
	out := make(map[string]Ref, len(refs))
	for _, r := range refs {
		if _, dup := out[r.PkgID]; !dup {
			out[r.PkgID] = r
		}
	}
	return out
}
