package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"sitevc.dev/sitevc/internal/merge"
)

// Export formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

func pickLabel(res merge.Resolution, ok bool, field string) string {
	if !ok {
		return ColorYellow("pending")
	}
	if s, set := res.Fields[field]; set && s.Valid() {
		return ColorGreen("picked " + string(s))
	}
	if res.Side.Valid() {
		return ColorGreen("picked " + string(res.Side))
	}
	return ColorYellow("pending")
}

// RenderConflicts lists conflicts with the pick recorded for each
func RenderConflicts(cs merge.ConflictSet, picks merge.Picks) string {
	if len(cs) == 0 {
		return ColorGreen("no conflicts") + "\n"
	}
	var sb strings.Builder
	for i, c := range cs {
		res, ok := picks[c.ID()]
		marker := ColorIndexed("●", i)
		fmt.Fprintf(&sb, "%s %s  %s\n", marker, ColorBold(c.ID()), c.Summary())

		switch c := c.(type) {
		case *merge.GenericConflict:
			for _, d := range c.Details {
				fmt.Fprintf(&sb, "    %s: %s %s | %s %s | %s %s  [%s]\n",
					ColorCyan(d.Field),
					ColorDim("ancestor"), d.Ancestor,
					ColorDim("left"), d.Left,
					ColorDim("right"), d.Right,
					pickLabel(res, ok, d.Field))
			}
		case *merge.SpecialConflict:
			fmt.Fprintf(&sb, "    %s %s\n    %s %s  [%s]\n",
				ColorDim("left: "), c.Left,
				ColorDim("right:"), c.Right,
				pickLabel(res, ok, ""))
			if c.Kind == merge.SpecialEditDelete && len(c.Edited) > 0 {
				fmt.Fprintf(&sb, "    %s %s\n", ColorDim("edited:"), strings.Join(c.Edited, ", "))
			}
		}
	}
	return sb.String()
}

// RenderResult summarises the rules a merge applied on its own
func RenderResult(r *merge.Result) string {
	var sb strings.Builder
	for _, a := range r.Auto {
		fmt.Fprintf(&sb, "%s %s.%s kept %s (%s)\n", ColorMagenta("auto"), a.UUID, a.Field, a.Chosen, a.Rule)
	}
	if r.Deps != nil {
		for _, step := range r.Deps.Steps() {
			fmt.Fprintf(&sb, "%s %s\n", ColorMagenta("upgrade"), step)
		}
	}
	for _, id := range r.Regenerated {
		fmt.Fprintf(&sb, "%s %s\n", ColorMagenta("regenerated"), id)
	}
	for _, p := range r.Pruned {
		fmt.Fprintf(&sb, "%s %s.%s -> %s\n", ColorMagenta("pruned"), p.UUID, p.Field, p.Missing)
	}
	return sb.String()
}

// ExportConflicts writes the conflicts as JSON or YAML
func ExportConflicts(w io.Writer, cs merge.ConflictSet, format string) error {
	if cs == nil {
		cs = merge.ConflictSet{}
	}
	return Export(w, cs, format)
}

// Export writes v as indented JSON or as YAML
func Export(w io.Writer, v any, format string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	switch format {
	case FormatJSON:
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		// go through JSON so values keep their wire encoding
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (expected %s or %s)", format, FormatJSON, FormatYAML)
	}
}
