package output

import (
	"fmt"
	"sort"
	"strings"

	"sitevc.dev/sitevc/internal/store"
)

// ShortID abbreviates a version id for display
func ShortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// RenderLog prints versions newest first, labelling branch heads
func RenderLog(versions []*store.Version, branches map[string]string) string {
	heads := make(map[string][]string)
	for name, head := range branches {
		heads[head] = append(heads[head], name)
	}
	var sb strings.Builder
	for i, v := range versions {
		marker := "◯"
		if len(v.Parents) > 1 {
			marker = "◉"
		}
		line := fmt.Sprintf("%s %s", ColorIndexed(marker, i), ColorYellow(ShortID(v.ID)))
		if names := heads[v.ID]; len(names) > 0 {
			sort.Strings(names)
			line += " " + ColorCyan("("+strings.Join(names, ", ")+")")
		}
		line += " " + v.Message
		if v.Author != "" {
			line += " " + ColorDim("- "+v.Author+", "+v.CreatedAt.Format("2006-01-02 15:04"))
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// RenderBranches lists branches and their heads, marking the trunk
func RenderBranches(branches map[string]string, trunk string) string {
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		label := name
		if name == trunk {
			label += " (trunk)"
		}
		fmt.Fprintf(&sb, "%s %s\n", ColorIndexed(label, i), ColorDim(ShortID(branches[name])))
	}
	return sb.String()
}
