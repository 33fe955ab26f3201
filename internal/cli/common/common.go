// Package common provides shared helper functions for CLI commands.
package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/runtime"
)

// Persistent flags defined on the root command
const (
	FlagDir   = "dir"
	FlagQuiet = "quiet"
)

// Run is a helper that provides a runtime context to a command's execution function
func Run(cmd *cobra.Command, fn func(ctx *runtime.Context) error) error {
	dir, _ := cmd.Flags().GetString(FlagDir)
	ctx, err := runtime.GetContext(cmd.Context(), dir, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer ctx.Close()
	if quiet, _ := cmd.Flags().GetBool(FlagQuiet); quiet {
		ctx.Splog.SetQuiet(true)
	}
	return fn(ctx)
}

// CompleteBranches is a helper for cobra.ValidArgsFunction and RegisterFlagCompletionFunc
// that returns all branch names in the repository.
func CompleteBranches(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	var names []string
	err := Run(cmd, func(ctx *runtime.Context) error {
		branches, err := ctx.Engine.ListBranches(ctx)
		for name := range branches {
			names = append(names, name)
		}
		return err
	})
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// IsTTY reports whether both stdin and stdout are terminals.
// SITEVC_NON_INTERACTIVE forces false.
func IsTTY() bool {
	if os.Getenv("SITEVC_NON_INTERACTIVE") != "" {
		return false
	}
	in, out := os.Stdin.Fd(), os.Stdout.Fd()
	return (isatty.IsTerminal(in) || isatty.IsCygwinTerminal(in)) &&
		(isatty.IsTerminal(out) || isatty.IsCygwinTerminal(out))
}

// ParseSide parses "left"/"right" (or "l"/"r", "ours"/"theirs")
func ParseSide(s string) (merge.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l", "ours":
		return merge.Left, nil
	case "right", "r", "theirs":
		return merge.Right, nil
	default:
		return "", fmt.Errorf("invalid side %q (expected left or right)", s)
	}
}

// ParsePicks parses repeated conflict=side or conflict.field=side flags
func ParsePicks(values []string) (merge.Picks, error) {
	picks := merge.Picks{}
	for _, v := range values {
		key, sideText, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid pick %q (expected conflict=side or conflict.field=side)", v)
		}
		side, err := ParseSide(sideText)
		if err != nil {
			return nil, err
		}
		// conflict ids contain a colon before the uuid; a field follows the last dot after it
		id, field := key, ""
		if colon := strings.Index(key, ":"); colon >= 0 {
			if dot := strings.LastIndex(key, "."); dot > colon {
				id, field = key[:dot], key[dot+1:]
			}
		}
		res := picks[id]
		if field == "" {
			res.Side = side
		} else {
			if res.Fields == nil {
				res.Fields = map[string]merge.Side{}
			}
			res.Fields[field] = side
		}
		picks[id] = res
	}
	return picks, nil
}

// ReadStdin reads all of standard input. It refuses to block on a terminal.
func ReadStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("stdin is a terminal; pipe a bundle in or pass a file")
	}
	return io.ReadAll(os.Stdin)
}
