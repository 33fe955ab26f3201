package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/model"
)

// RequireGraphsEqual asserts that two graphs hold the same instances with
// structurally equal fields
func RequireGraphsEqual(t *testing.T, want, got *model.Graph) {
	t.Helper()
	require.Equal(t, want.Root, got.Root, "root")
	require.Equal(t, want.UUIDs(), got.UUIDs(), "instances")
	for _, id := range want.UUIDs() {
		w, g := want.Insts[id], got.Insts[id]
		require.Equal(t, w.Type, g.Type, "type of %s", id)
		names := make(map[string]bool)
		for name := range w.Fields {
			names[name] = true
		}
		for name := range g.Fields {
			names[name] = true
		}
		for name := range names {
			require.True(t, w.Get(name).Equal(g.Get(name)),
				"%s.%s: want %s, got %s", id, name, w.Get(name), g.Get(name))
		}
	}
}

// RequireText asserts the text field of an instance
func RequireText(t *testing.T, g *model.Graph, uuid, text string) {
	t.Helper()
	inst, ok := g.Get(uuid)
	require.True(t, ok, "instance %s missing", uuid)
	require.Equal(t, model.String(text), inst.Get("text"))
}

// RequireOwner asserts the owner of an instance
func RequireOwner(t *testing.T, g *model.Graph, s *model.Schema, uuid, owner string) {
	t.Helper()
	o, ok := g.Owners(s)[uuid]
	require.True(t, ok, "instance %s has no owner", uuid)
	require.Equal(t, owner, o.UUID)
}
