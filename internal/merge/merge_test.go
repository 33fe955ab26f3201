package merge_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/diff"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/testhelpers"
)

func resolver() *merge.Resolver {
	return merge.NewResolver(model.DefaultSchema())
}

func TestDirectConflict(t *testing.T) {
	base := testhelpers.BasicSite().Graph()
	left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("text", model.String("B")) })
	right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("text", model.String("C")) })

	t.Run("reports one generic conflict on the field", func(t *testing.T) {
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Len(t, res.Generic, 1)
		require.Empty(t, res.Special)

		c := res.Generic[0]
		require.Equal(t, "generic:e", c.ID())
		require.Len(t, c.Details, 1)
		require.Equal(t, "text", c.Details[0].Field)
		require.Equal(t, model.String("A"), c.Details[0].Ancestor)
		require.Equal(t, model.String("B"), c.Details[0].Left)
		require.Equal(t, model.String("C"), c.Details[0].Right)
		require.Equal(t, []string{"generic:e"}, res.Pending(nil))
	})

	t.Run("picking left applies B", func(t *testing.T) {
		picks := merge.Picks{"generic:e": {Side: merge.Left}}
		res, err := resolver().Merge(base, left, right, picks)
		require.NoError(t, err)
		testhelpers.RequireText(t, res.Merged, "e", "B")
		require.Empty(t, res.Pending(picks))
	})

	t.Run("picking right applies C", func(t *testing.T) {
		picks := merge.Picks{"generic:e": {Fields: map[string]merge.Side{"text": merge.Right}}}
		res, err := resolver().Merge(base, left, right, picks)
		require.NoError(t, err)
		testhelpers.RequireText(t, res.Merged, "e", "C")
		require.Empty(t, res.Pending(picks))
	})

	t.Run("fields of one instance are grouped", func(t *testing.T) {
		l := testhelpers.Edit(left, func(g *model.Graph) { g.Insts["e"].Set("tag", model.String("span")) })
		r := testhelpers.Edit(right, func(g *model.Graph) { g.Insts["e"].Set("tag", model.String("p")) })
		res, err := resolver().Merge(base, l, r, nil)
		require.NoError(t, err)
		require.Len(t, res.Generic, 1)
		require.Len(t, res.Generic[0].Details, 2)
		require.Equal(t, "tag", res.Generic[0].Details[0].Field)
		require.Equal(t, "text", res.Generic[0].Details[1].Field)
	})
}

func TestAutoMerge(t *testing.T) {
	site := testhelpers.BasicSite()
	base := site.Graph()

	t.Run("move and edit touch disjoint locations", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) {
			testhelpers.MoveChild(g, "e", "p1", "p2", "children")
		})
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("text", model.String("D")) })

		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		testhelpers.RequireOwner(t, res.Merged, site.Schema, "e", "p2")
		testhelpers.RequireText(t, res.Merged, "e", "D")
		require.Empty(t, res.Merged.Insts["p1"].Get("children").Items())
	})

	t.Run("one-sided edits apply", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["p1"].Set("tag", model.String("section")) })
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("text", model.String("Z")) })
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Equal(t, model.String("section"), res.Merged.Insts["p1"].Get("tag"))
		testhelpers.RequireText(t, res.Merged, "e", "Z")
	})

	t.Run("identical edits apply once", func(t *testing.T) {
		edit := func(g *model.Graph) { g.Insts["e"].Set("text", model.String("same")) }
		res, err := resolver().Merge(base, testhelpers.Edit(base, edit), testhelpers.Edit(base, edit), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		testhelpers.RequireText(t, res.Merged, "e", "same")
	})

	t.Run("insertions on both sides keep left first", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) {
			g.Add(model.NewInstance("l1", "TplTag"))
			g.Insts["p2"].Set("children", model.Refs("l1"))
		})
		right := testhelpers.Edit(base, func(g *model.Graph) {
			g.Add(model.NewInstance("r1", "TplTag"))
			g.Insts["p2"].Set("children", model.Refs("r1"))
		})
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.True(t, model.Refs("l1", "r1").Equal(res.Merged.Insts["p2"].Get("children")))
	})

	t.Run("harmless fields keep left", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("collapsed", model.Bool(true)) })
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("collapsed", model.Bool(false)) })
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Len(t, res.Auto, 1)
		require.Equal(t, merge.Left, res.Auto[0].Chosen)
		require.Equal(t, model.Bool(true), res.Merged.Insts["e"].Get("collapsed"))
	})

	t.Run("divergent reorders conflict", func(t *testing.T) {
		three := testhelpers.Edit(base, func(g *model.Graph) {
			g.Add(model.NewInstance("p3", "TplTag"))
			g.Insts["comp-root"].Set("children", model.Refs("p1", "p2", "p3"))
		})
		left := testhelpers.Edit(three, func(g *model.Graph) {
			g.Insts["comp-root"].Set("children", model.Refs("p2", "p1", "p3"))
		})
		right := testhelpers.Edit(three, func(g *model.Graph) {
			g.Insts["comp-root"].Set("children", model.Refs("p1", "p3", "p2"))
		})
		res, err := resolver().Merge(three, left, right, nil)
		require.NoError(t, err)
		require.Len(t, res.Generic, 1)
		require.Equal(t, "children", res.Generic[0].Details[0].Field)
		require.True(t, model.Refs("p2", "p1", "p3").Equal(res.Merged.Insts["comp-root"].Get("children")))

		res, err = resolver().Merge(three, left, right, merge.Picks{"generic:comp-root": {Side: merge.Right}})
		require.NoError(t, err)
		require.True(t, model.Refs("p1", "p3", "p2").Equal(res.Merged.Insts["comp-root"].Get("children")))
	})
}

func TestRoundTrip(t *testing.T) {
	g := interactiveSite().Graph()
	res, err := resolver().Merge(g, g.Clone(), g.Clone(), nil)
	require.NoError(t, err)
	require.True(t, res.Clean())
	require.Empty(t, res.Regenerated)
	testhelpers.RequireGraphsEqual(t, g, res.Merged)
}

func TestEditVsDelete(t *testing.T) {
	site := testhelpers.BasicSite()
	base := site.Graph()
	deleteP1 := func(g *model.Graph) {
		g.Remove("p1")
		g.Remove("e")
		g.Insts["comp-root"].Set("children", model.Refs("p2"))
	}

	t.Run("edit inside a deleted subtree conflicts", func(t *testing.T) {
		left := testhelpers.Edit(base, deleteP1)
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("text", model.String("kept?")) })

		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Empty(t, res.Generic)
		require.Len(t, res.Special, 1)
		c := res.Special[0]
		require.Equal(t, "delete:p1", c.ID())
		require.Equal(t, merge.SpecialEditDelete, c.Kind)
		require.Equal(t, merge.Left, c.DeletedBy)
		require.Equal(t, []string{"e"}, c.Edited)

		// provisional result follows the left side
		_, ok := res.Merged.Get("e")
		require.False(t, ok)

		res, err = resolver().Merge(base, left, right, merge.Picks{"delete:p1": {Side: merge.Right}})
		require.NoError(t, err)
		testhelpers.RequireText(t, res.Merged, "e", "kept?")
		testhelpers.RequireOwner(t, res.Merged, site.Schema, "p1", "comp-root")
		require.True(t, model.Refs("p1", "p2").Equal(res.Merged.Insts["comp-root"].Get("children")))
	})

	t.Run("move out of a deleted subtree rescues the instance", func(t *testing.T) {
		left := testhelpers.Edit(base, deleteP1)
		right := testhelpers.Edit(base, func(g *model.Graph) {
			testhelpers.MoveChild(g, "e", "p1", "p2", "children")
		})
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		_, ok := res.Merged.Get("p1")
		require.False(t, ok)
		testhelpers.RequireOwner(t, res.Merged, site.Schema, "e", "p2")
	})

	t.Run("move into a deleted subtree is listed in the conflict", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) {
			g.Remove("p2")
			g.Insts["comp-root"].Set("children", model.Refs("p1"))
		})
		right := testhelpers.Edit(base, func(g *model.Graph) {
			testhelpers.MoveChild(g, "e", "p1", "p2", "children")
		})

		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Len(t, res.Special, 1)
		c := res.Special[0]
		require.Equal(t, "delete:p2", c.ID())
		require.Contains(t, c.Members, "e")
		require.Contains(t, c.Edited, "e")
		_, ok := res.Merged.Get("e")
		require.False(t, ok)

		res, err = resolver().Merge(base, left, right, merge.Picks{"delete:p2": {Side: merge.Right}})
		require.NoError(t, err)
		testhelpers.RequireOwner(t, res.Merged, site.Schema, "e", "p2")
	})

	t.Run("untouched deletion applies", func(t *testing.T) {
		right := testhelpers.Edit(base, deleteP1)
		res, err := resolver().Merge(base, base.Clone(), right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		_, ok := res.Merged.Get("e")
		require.False(t, ok)
	})

	t.Run("references into a deleted subtree are pruned", func(t *testing.T) {
		withUse := testhelpers.Edit(base, func(g *model.Graph) {
			use := model.NewInstance("vs", "VariantSetting")
			use.Set("variants", model.Refs("p1"))
			g.Add(use)
			g.Insts["p2"].Set("vsettings", model.Refs("vs"))
		})
		left := testhelpers.Edit(withUse, deleteP1)
		res, err := resolver().Merge(withUse, left, withUse.Clone(), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Empty(t, res.Merged.Insts["vs"].Get("variants").Items())
		require.Equal(t, []merge.PrunedRef{{UUID: "vs", Field: "variants", Missing: "p1"}}, res.Pruned)
	})
}

// interactiveSite extends the basic site with an interaction on e and a slot
// component used through a virtual argument
func interactiveSite() *testhelpers.SiteBuilder {
	return testhelpers.BasicSite().
		Child("e", "vsettings", "vs", "VariantSetting", nil).
		Child("vs", "interactions", "i1", "Interaction", testhelpers.F{"eventName": model.String("click")}).
		Child("i1", "actions", "a1", "Action", testhelpers.F{"name": model.String("navigate")}).
		Component("btn", "Button").
		Child("btn", "params", "prm", "Param", testhelpers.F{"name": model.String("children")}).
		Child("btn-root", "children", "slot", "TplSlot", testhelpers.F{"param": model.Ref("prm")}).
		Child("slot", "defaultContents", "d1", "TplTag", testhelpers.F{"text": model.String("Click")}).
		Child("p2", "children", "use", "TplComponent", testhelpers.F{"component": model.Ref("btn")}).
		Child("use", "args", "arg", "Arg", testhelpers.F{"param": model.Ref("prm"), "virtual": model.Bool(true)}).
		Child("arg", "contents", "v1", "TplTag", testhelpers.F{"text": model.String("Click")})
}

func TestSpecialConflicts(t *testing.T) {
	site := interactiveSite()
	base := site.Graph()

	t.Run("interaction edits conflict as a unit", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["a1"].Set("name", model.String("alert")) })
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["i1"].Set("eventName", model.String("hover")) })

		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Empty(t, res.Generic)
		require.Len(t, res.Special, 1)
		require.Equal(t, "special:i1", res.Special[0].ID())
		require.Equal(t, merge.SpecialUnit, res.Special[0].Kind)
		require.Equal(t, "interaction", res.Special[0].Label)

		res, err = resolver().Merge(base, left, right, merge.Picks{"special:i1": {Side: merge.Right}})
		require.NoError(t, err)
		require.Equal(t, model.String("hover"), res.Merged.Insts["i1"].Get("eventName"))
		require.Equal(t, model.String("navigate"), res.Merged.Insts["a1"].Get("name"))
	})

	t.Run("one-sided unit change is taken whole", func(t *testing.T) {
		right := testhelpers.Edit(base, func(g *model.Graph) {
			g.Add(model.NewInstance("a2", "Action"))
			g.Insts["a2"].Set("name", model.String("log"))
			g.Insts["i1"].Set("actions", model.Refs("a1", "a2"))
		})
		res, err := resolver().Merge(base, base.Clone(), right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Equal(t, model.String("log"), res.Merged.Insts["a2"].Get("name"))
	})

	t.Run("default slot contents regenerate virtual arguments", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["e"].Set("text", model.String("B")) })
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["d1"].Set("text", model.String("Go")) })

		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Equal(t, []string{"arg"}, res.Regenerated)

		contents := res.Merged.Insts["arg"].Get("contents").RefIDs()
		require.Len(t, contents, 1)
		require.NotEqual(t, "v1", contents[0])
		require.NotEqual(t, "d1", contents[0])
		testhelpers.RequireText(t, res.Merged, contents[0], "Go")
		_, ok := res.Merged.Get("v1")
		require.False(t, ok)

		again, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Equal(t, contents, again.Merged.Insts["arg"].Get("contents").RefIDs())
	})

	t.Run("slot defaults changed on both sides conflict", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["d1"].Set("text", model.String("Go")) })
		right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["d1"].Set("text", model.String("Stop")) })
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Len(t, res.Special, 1)
		require.Equal(t, merge.SpecialSlotContents, res.Special[0].Kind)
		require.Equal(t, "special:slot.defaultContents", res.Special[0].ID())
	})
}

func TestConflictSymmetry(t *testing.T) {
	base := interactiveSite().Graph()
	one := testhelpers.Edit(base, func(g *model.Graph) {
		g.Insts["e"].Set("text", model.String("B"))
		g.Insts["a1"].Set("name", model.String("alert"))
		g.Insts["p2"].Set("tag", model.String("aside"))
	})
	two := testhelpers.Edit(base, func(g *model.Graph) {
		g.Insts["e"].Set("text", model.String("C"))
		g.Insts["a1"].Set("name", model.String("log"))
		g.Remove("use")
		g.Remove("arg")
		g.Remove("v1")
		g.Insts["p2"].Set("children", model.List())
		g.Insts["p2"].Set("tag", model.String("nav"))
	})
	// one also edits inside the subtree two deletes
	one.Insts["use"].Set("name", model.String("primary"))

	forward, err := resolver().Merge(base, one, two, nil)
	require.NoError(t, err)
	backward, err := resolver().Merge(base, two, one, nil)
	require.NoError(t, err)

	require.Len(t, forward.Conflicts(), 4)
	require.Equal(t, forward.Conflicts().Locations(), backward.Conflicts().Locations())
	require.Equal(t, forward.Conflicts().IDs(), backward.Conflicts().IDs())

	fc := forward.Generic[0].Details
	bc := backward.Generic[0].Details
	for i := range fc {
		require.Equal(t, fc[i].Left, bc[i].Right)
		require.Equal(t, fc[i].Right, bc[i].Left)
	}
}

func TestDependencies(t *testing.T) {
	site := testhelpers.BasicSite().
		Dependency("dep", "ui-kit", "1.0.0").
		Child("p2", "children", "use", "TplComponent", testhelpers.F{
			"dependency": model.Ref("dep"),
			"depVersion": model.String("1.0.0"),
		})
	base := site.Graph()

	upgrade := func(v string) func(g *model.Graph) {
		return func(g *model.Graph) {
			g.Insts["dep"].Set("version", model.String(v))
			g.Insts["use"].Set("depVersion", model.String(v))
		}
	}

	t.Run("one side upgraded is applied in one step", func(t *testing.T) {
		res, err := resolver().Merge(base, testhelpers.Edit(base, upgrade("2.0.0")), base.Clone(), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Len(t, res.Deps.Steps(), 1)
		require.Equal(t, model.String("2.0.0"), res.Merged.Insts["dep"].Get("version"))
		require.Equal(t, model.String("2.0.0"), res.Merged.Insts["use"].Get("depVersion"))
	})

	t.Run("divergent upgrades are linearised without conflicts", func(t *testing.T) {
		res, err := resolver().Merge(base, testhelpers.Edit(base, upgrade("1.2.0")), testhelpers.Edit(base, upgrade("1.1.0")), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Len(t, res.Deps.Steps(), 2)
		require.Equal(t, model.String("1.2.0"), res.Merged.Insts["dep"].Get("version"))
	})

	rename := func(name string) func(g *model.Graph) {
		return func(g *model.Graph) { g.Insts["dep"].Set("name", model.String(name)) }
	}

	t.Run("renaming a dependency on one side is kept", func(t *testing.T) {
		res, err := resolver().Merge(base, testhelpers.Edit(base, rename("UI Kit")), base.Clone(), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Equal(t, model.String("UI Kit"), res.Merged.Insts["dep"].Get("name"))
		require.Equal(t, model.String("1.0.0"), res.Merged.Insts["dep"].Get("version"))
	})

	t.Run("divergent dependency renames conflict", func(t *testing.T) {
		left := testhelpers.Edit(base, rename("Kit L"))
		right := testhelpers.Edit(base, rename("Kit R"))
		res, err := resolver().Merge(base, left, right, nil)
		require.NoError(t, err)
		require.Len(t, res.Generic, 1)
		c := res.Generic[0]
		require.Equal(t, "generic:dep", c.ID())
		require.Len(t, c.Details, 1)
		require.Equal(t, "name", c.Details[0].Field)
		require.Equal(t, model.String("Kit L"), res.Merged.Insts["dep"].Get("name"))

		res, err = resolver().Merge(base, left, right, merge.Picks{"generic:dep": {Side: merge.Right}})
		require.NoError(t, err)
		require.Equal(t, model.String("Kit R"), res.Merged.Insts["dep"].Get("name"))
	})

	t.Run("retargeting a usage keeps its tracked version", func(t *testing.T) {
		withCharts := testhelpers.Edit(base, func(g *model.Graph) {
			charts := model.NewInstance("charts", "ProjectDependency")
			charts.Set("pkgId", model.String("charts"))
			charts.Set("version", model.String("2.0.0"))
			g.Add(charts)
			g.Insts["site"].Set("projectDependencies", model.Refs("dep", "charts"))
		})
		left := testhelpers.Edit(withCharts, func(g *model.Graph) {
			g.Insts["use"].Set("dependency", model.Ref("charts"))
			g.Insts["use"].Set("depVersion", model.String("2.0.0"))
		})
		res, err := resolver().Merge(withCharts, left, withCharts.Clone(), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Equal(t, model.Ref("charts"), res.Merged.Insts["use"].Get("dependency"))
		require.Equal(t, model.String("2.0.0"), res.Merged.Insts["use"].Get("depVersion"))
	})

	t.Run("retargeting while the old dependency is upgraded", func(t *testing.T) {
		withCharts := testhelpers.Edit(base, func(g *model.Graph) {
			charts := model.NewInstance("charts", "ProjectDependency")
			charts.Set("pkgId", model.String("charts"))
			charts.Set("version", model.String("2.0.0"))
			g.Add(charts)
			g.Insts["site"].Set("projectDependencies", model.Refs("dep", "charts"))
		})
		left := testhelpers.Edit(withCharts, func(g *model.Graph) {
			g.Insts["use"].Set("dependency", model.Ref("charts"))
			g.Insts["use"].Set("depVersion", model.String("2.0.0"))
		})
		right := testhelpers.Edit(withCharts, func(g *model.Graph) {
			g.Insts["dep"].Set("version", model.String("1.1.0"))
		})
		res, err := resolver().Merge(withCharts, left, right, nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.Equal(t, model.String("1.1.0"), res.Merged.Insts["dep"].Get("version"))
		require.Equal(t, model.Ref("charts"), res.Merged.Insts["use"].Get("dependency"))
		require.Equal(t, model.String("2.0.0"), res.Merged.Insts["use"].Get("depVersion"))
	})

	t.Run("removal after a bump drops the dependency", func(t *testing.T) {
		left := testhelpers.Edit(base, func(g *model.Graph) {
			g.Remove("dep")
			g.Insts["site"].Set("projectDependencies", model.List())
		})
		res, err := resolver().Merge(base, left, testhelpers.Edit(base, upgrade("1.1.0")), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		_, ok := res.Merged.Get("dep")
		require.False(t, ok)
		require.True(t, res.Merged.Insts["use"].Get("dependency").IsNull())
	})

	t.Run("same package added on both sides collapses", func(t *testing.T) {
		add := func(id, v string) func(g *model.Graph) {
			return func(g *model.Graph) {
				inst := model.NewInstance(id, "ProjectDependency")
				inst.Set("pkgId", model.String("charts"))
				inst.Set("version", model.String(v))
				g.Add(inst)
				g.Insts["site"].Set("projectDependencies", model.Refs("dep", id))
			}
		}
		res, err := resolver().Merge(base, testhelpers.Edit(base, add("l", "3.0.0")), testhelpers.Edit(base, add("r", "2.0.0")), nil)
		require.NoError(t, err)
		require.True(t, res.Clean())
		require.True(t, model.Refs("dep", "r").Equal(res.Merged.Insts["site"].Get("projectDependencies")))
		require.Equal(t, model.String("3.0.0"), res.Merged.Insts["r"].Get("version"))
		_, ok := res.Merged.Get("l")
		require.False(t, ok)
	})
}

func TestSanityCheck(t *testing.T) {
	base := testhelpers.BasicSite().Graph()
	other := base.Clone()
	other.Stamp = "sitevc/0"
	_, err := resolver().Merge(base, other, base.Clone(), nil)
	require.ErrorIs(t, err, sitevcerrors.ErrSchemaMismatch)
	require.True(t, sitevcerrors.IsFatal(err))
}

func TestMergeBundles(t *testing.T) {
	site := testhelpers.BasicSite()
	base := site.Bundle(t)
	left := testhelpers.Edit(site.Graph(), func(g *model.Graph) { g.Insts["e"].Set("text", model.String("L")) })
	lb, err := model.Flatten(left, site.Schema)
	require.NoError(t, err)

	res, err := resolver().MergeBundles(base, lb, base, nil)
	require.NoError(t, err)
	require.True(t, res.Clean())
	testhelpers.RequireText(t, res.Merged, "e", "L")

	broken := &model.Bundle{Root: "0", Version: model.DefaultSchemaVersion, Map: map[string]*model.Payload{
		"0": {Type: "Site", UUID: "site", Fields: map[string]model.Value{"components": model.Refs("4")}},
	}}
	_, err = resolver().MergeBundles(base, broken, base, nil)
	require.ErrorIs(t, err, sitevcerrors.ErrDanglingReference)
}

func TestSession(t *testing.T) {
	t.Run("state machine", func(t *testing.T) {
		s := merge.NewSession("feature", "main", "a", "l", "r")
		require.Equal(t, merge.StateComputing, s.State)
		require.ErrorIs(t, s.Transition(merge.StateMerged), sitevcerrors.ErrInvalidTransition)
		require.NoError(t, s.Transition(merge.StateClassifying))
		require.NoError(t, s.Transition(merge.StateAwaitingResolution))
		require.NoError(t, s.Transition(merge.StateApplying))
		require.NoError(t, s.Transition(merge.StateMerged))
		require.True(t, s.State.Terminal())
		require.Error(t, s.Abort("late"))
	})

	t.Run("resolve and serialise", func(t *testing.T) {
		s := merge.NewSession("feature", "main", "a", "l", "r")
		s.Conflicts = merge.ConflictSet{
			&merge.GenericConflict{ConflictID: "generic:e", UUID: "e", Type: "TplTag", Details: []merge.FieldConflict{
				{Field: "text", Ancestor: model.String("A"), Left: model.String("B"), Right: model.String("C")},
			}},
			&merge.SpecialConflict{ConflictID: "special:i1", Kind: merge.SpecialUnit, UUID: "i1", Type: "Interaction"},
		}
		require.ErrorIs(t, s.Resolve("generic:e", merge.Resolution{Side: merge.Left}), sitevcerrors.ErrInvalidTransition)

		require.NoError(t, s.Transition(merge.StateClassifying))
		require.NoError(t, s.Transition(merge.StateAwaitingResolution))
		require.ErrorIs(t, s.Resolve("nope", merge.Resolution{Side: merge.Left}), sitevcerrors.ErrConflictNotFound)
		require.ErrorIs(t, s.Resolve("special:i1", merge.Resolution{}), sitevcerrors.ErrInvalidPick)
		require.ErrorIs(t, s.Resolve("generic:e", merge.Resolution{Fields: map[string]merge.Side{"tag": merge.Left}}), sitevcerrors.ErrInvalidPick)

		require.NoError(t, s.Resolve("generic:e", merge.Resolution{Fields: map[string]merge.Side{"text": merge.Right}}))
		require.Equal(t, []string{"special:i1"}, s.Pending())
		require.NoError(t, s.Resolve("special:i1", merge.Resolution{Side: merge.Left}))
		require.Empty(t, s.Pending())

		data, err := json.Marshal(s)
		require.NoError(t, err)
		var back merge.Session
		require.NoError(t, json.Unmarshal(data, &back))
		require.Equal(t, s.Conflicts.IDs(), back.Conflicts.IDs())
		require.Equal(t, s.Picks, back.Picks)
		g, ok := back.Conflicts[0].(*merge.GenericConflict)
		require.True(t, ok)
		require.Equal(t, model.String("C"), g.Details[0].Right)
	})
}

func TestDiffDrivesMergeLocations(t *testing.T) {
	// every conflicting location is one both diffs touched
	base := interactiveSite().Graph()
	left := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["p1"].Set("tag", model.String("ul")) })
	right := testhelpers.Edit(base, func(g *model.Graph) { g.Insts["p1"].Set("tag", model.String("ol")) })
	res, err := resolver().Merge(base, left, right, nil)
	require.NoError(t, err)

	d := diff.New(model.DefaultSchema())
	dl, dr := d.Diff(base, left), d.Diff(base, right)
	for _, loc := range res.Conflicts().Locations() {
		_, inLeft := dl.Changes[loc.UUID].Field(loc.Field)
		_, inRight := dr.Changes[loc.UUID].Field(loc.Field)
		require.True(t, inLeft && inRight)
	}
}
