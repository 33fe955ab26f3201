package common

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sitevc.dev/sitevc/internal/merge"
)

func TestParsePicks(t *testing.T) {
	t.Run("whole conflicts and fields", func(t *testing.T) {
		picks, err := ParsePicks([]string{
			"generic:e=right",
			"generic:p1.tag=l",
			"generic:p1.text=theirs",
			"special:i1=left",
		})
		require.NoError(t, err)
		require.Equal(t, merge.Picks{
			"generic:e":  {Side: merge.Right},
			"generic:p1": {Fields: map[string]merge.Side{"tag": merge.Left, "text": merge.Right}},
			"special:i1": {Side: merge.Left},
		}, picks)
	})

	t.Run("rejects malformed picks", func(t *testing.T) {
		for _, bad := range []string{"generic:e", "=left", "generic:e=up"} {
			_, err := ParsePicks([]string{bad})
			require.Error(t, err, bad)
		}
	})
}

func TestIsTTYOverride(t *testing.T) {
	t.Setenv("SITEVC_NON_INTERACTIVE", "1")
	require.False(t, IsTTY())
}
