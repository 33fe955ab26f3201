package diff_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/diff"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/testhelpers"
)

func TestDiff(t *testing.T) {
	site := testhelpers.BasicSite()
	base := site.Graph()
	differ := diff.New(site.Schema)

	t.Run("identical graphs", func(t *testing.T) {
		require.True(t, differ.Diff(base, base.Clone()).Empty())
	})

	t.Run("scalar edit", func(t *testing.T) {
		other := testhelpers.Edit(base, func(g *model.Graph) {
			g.Insts["e"].Set("text", model.String("B"))
		})
		d := differ.Diff(base, other)
		require.Equal(t, []string{"e"}, d.UUIDs())
		c := d.Changes["e"]
		require.Equal(t, diff.OpModified, c.Op)
		require.Len(t, c.Fields, 1)
		require.Equal(t, "text", c.Fields[0].Field)
		require.Equal(t, model.String("A"), c.Fields[0].Old)
		require.Equal(t, model.String("B"), c.Fields[0].New)
	})

	t.Run("move is a single parent change", func(t *testing.T) {
		other := testhelpers.Edit(base, func(g *model.Graph) {
			testhelpers.MoveChild(g, "e", "p1", "p2", "children")
		})
		d := differ.Diff(base, other)
		c := d.Changes["e"]
		require.NotNil(t, c)
		require.Equal(t, diff.OpModified, c.Op)
		require.True(t, c.Moved())
		require.Len(t, c.Fields, 1)
		require.True(t, model.List(model.Ref("p2"), model.String("children")).Equal(c.Fields[0].New))
		require.Empty(t, d.Added())
		require.Empty(t, d.Removed())

		p1 := d.Changes["p1"]
		require.NotNil(t, p1)
		children, ok := p1.Field("children")
		require.True(t, ok)
		require.Len(t, children.List.Removed, 1)
	})

	t.Run("added instance carries its attachment", func(t *testing.T) {
		other := testhelpers.Edit(base, func(g *model.Graph) {
			g.Add(model.NewInstance("n", "TplTag"))
			g.Insts["p2"].Set("children", model.Refs("n"))
		})
		d := differ.Diff(base, other)
		require.Equal(t, []string{"n"}, d.Added())
		require.Equal(t, &model.Owner{UUID: "p2", Field: "children", Index: 0}, d.Changes["n"].Attachment)
	})

	t.Run("removed subtree", func(t *testing.T) {
		other := testhelpers.Edit(base, func(g *model.Graph) {
			g.Remove("p1")
			g.Remove("e")
			g.Insts["comp-root"].Set("children", model.Refs("p2"))
		})
		d := differ.Diff(base, other)
		require.Equal(t, []string{"e", "p1"}, d.Removed())
	})

	t.Run("reorder is distinguished from membership", func(t *testing.T) {
		other := testhelpers.Edit(base, func(g *model.Graph) {
			g.Insts["comp-root"].Set("children", model.Refs("p2", "p1"))
		})
		d := differ.Diff(base, other)
		fc, ok := d.Changes["comp-root"].Field("children")
		require.True(t, ok)
		require.True(t, fc.List.Reordered)
		require.Empty(t, fc.List.Inserted)
		require.Empty(t, fc.List.Removed)
	})
}

func TestDiffUnits(t *testing.T) {
	site := testhelpers.BasicSite().
		Child("e", "vsettings", "vs", "VariantSetting", nil).
		Child("vs", "interactions", "i1", "Interaction", testhelpers.F{"eventName": model.String("click")}).
		Child("i1", "actions", "a1", "Action", testhelpers.F{"name": model.String("navigate")})
	base := site.Graph()
	differ := diff.New(site.Schema)

	t.Run("interior edit is reported on the unit", func(t *testing.T) {
		other := testhelpers.Edit(base, func(g *model.Graph) {
			g.Insts["a1"].Set("name", model.String("alert"))
			g.Add(model.NewInstance("a2", "Action"))
			g.Insts["i1"].Set("actions", model.Refs("a1", "a2"))
		})
		d := differ.Diff(base, other)
		require.Empty(t, d.Changes)
		require.Len(t, d.Units, 1)
		require.NotNil(t, d.Units[diff.UnitKey{UUID: "i1"}])
	})

	t.Run("slot defaults form a field unit", func(t *testing.T) {
		s := testhelpers.BasicSite().
			Add("slot", "TplSlot", nil).
			Append("p2", "children", "slot").
			Child("slot", "defaultContents", "d1", "TplTag", testhelpers.F{"text": model.String("hello")})
		g := s.Graph()
		other := testhelpers.Edit(g, func(g *model.Graph) {
			g.Insts["d1"].Set("text", model.String("bye"))
		})
		d := differ.Diff(g, other)
		require.Empty(t, d.Changes)
		require.NotNil(t, d.Units[diff.UnitKey{UUID: "slot", Field: "defaultContents"}])
	})
}

func TestCompareLists(t *testing.T) {
	t.Run("repeated scalars stay distinct", func(t *testing.T) {
		d := diff.CompareLists(
			[]model.Value{model.String("a"), model.String("a")},
			[]model.Value{model.String("a")},
		)
		require.Len(t, d.Removed, 1)
		require.False(t, d.Reordered)
	})
}
