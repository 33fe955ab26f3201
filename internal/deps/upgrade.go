package deps

import (
	"fmt"

	"sitevc.dev/sitevc/internal/model"
)

// Upgrader applies one upgrade step of a dependency to a merged graph
type Upgrader interface {
	Upgrade(g *model.Graph, s *model.Schema, depUUID string, step Step) error
}

// VersionStamper is the default Upgrader: it moves the dependency instance to the
// step's target version and restamps every instance that references it.
type VersionStamper struct{}

// Upgrade implements Upgrader
func (VersionStamper) Upgrade(g *model.Graph, s *model.Schema, depUUID string, step Step) error {
	dep, ok := g.Get(depUUID)
	if !ok {
		return fmt.Errorf("upgrade %s: dependency instance %s is not in the graph", step, depUUID)
	}
	dep.Set(s.DepVersionField, model.String(step.To))
	for _, id := range g.Referrers()[depUUID] {
		inst := g.Insts[id]
		if _, tracked := s.Field(inst.Type, s.DepTrackField); tracked {
			inst.Set(s.DepTrackField, model.String(step.To))
		}
	}
	return nil
}

// Collect reads the dependency instances of g
func Collect(g *model.Graph, s *model.Schema) []Ref {
	var out []Ref
	for _, id := range g.UUIDs() {
		inst := g.Insts[id]
		t, ok := s.Type(inst.Type)
		if !ok || !t.Dependency {
			continue
		}
		out = append(out, Ref{
			UUID:    id,
			PkgID:   inst.Get(s.DepPkgField).Str,
			Version: inst.Get(s.DepVersionField).Str,
		})
	}
	return out
}

// Apply runs every step of plan against g through up. Dropped dependencies are
// upgraded before they are removed; references to them are left for the caller
// to prune. Alias instances are folded into the surviving instance.
func Apply(g *model.Graph, s *model.Schema, plan *Plan, up Upgrader) error {
	if up == nil {
		up = VersionStamper{}
	}
	for _, d := range plan.Decisions {
		if len(d.Aliases) > 0 {
			foldAliases(g, d.UUID, d.Aliases)
		}
		if inst, ok := g.Get(d.UUID); ok && d.Start != "" {
			inst.Set(s.DepVersionField, model.String(d.Start))
		}
		for _, step := range d.Steps {
			if err := up.Upgrade(g, s, d.UUID, step); err != nil {
				return err
			}
		}
		if d.Action == Drop {
			g.Remove(d.UUID)
		}
	}
	return nil
}

// foldAliases rewrites references to aliases so they point at keep, then removes them
func foldAliases(g *model.Graph, keep string, aliases []string) {
	alias := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		alias[a] = true
	}
	for _, inst := range g.Insts {
		for name, v := range inst.Fields {
			var seenKeep bool
			rewritten := v.Rewrite(func(ref string) (string, bool) {
				if alias[ref] {
					ref = keep
				}
				if ref == keep && v.Kind == model.KindList {
					if seenKeep {
						return "", false
					}
					seenKeep = true
				}
				return ref, true
			})
			inst.Set(name, rewritten)
		}
	}
	for a := range alias {
		if a != keep {
			g.Remove(a)
		}
	}
}
