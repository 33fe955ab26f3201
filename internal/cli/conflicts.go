package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/runtime"
)

// newSessionsCmd creates the sessions command
func newSessionsCmd() *cobra.Command {
	var all, prune bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List merge sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				if prune {
					n, err := ctx.Engine.PruneSessions(ctx)
					if err != nil {
						return err
					}
					ctx.Splog.Info("Pruned %d merged or aborted session(s).", n)
					return nil
				}
				sessions, err := ctx.Engine.ListSessions(ctx)
				if err != nil {
					return err
				}
				for i, s := range sessions {
					if !all && s.State.Terminal() {
						continue
					}
					line := fmt.Sprintf("%s %s into %s  %s", output.ColorIndexed(s.ID, i), s.From, s.Into, output.ColorDim(string(s.State)))
					if pending := len(s.Pending()); pending > 0 && !s.State.Terminal() {
						line += output.ColorYellow(fmt.Sprintf("  %d pending", pending))
					}
					if s.Version != "" {
						line += "  " + output.ShortID(s.Version)
					}
					ctx.Splog.Page(line + "\n")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include merged and aborted sessions")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete merged and aborted sessions")
	return cmd
}

// newConflictsCmd creates the conflicts command
func newConflictsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "conflicts <session>",
		Short: "Show the conflicts of a merge session and the picks made so far",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				session, err := ctx.Engine.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				if format != output.FormatText {
					return output.ExportConflicts(cmd.OutOrStdout(), session.Conflicts, format)
				}
				ctx.Splog.Page(output.RenderConflicts(session.Conflicts, session.Picks))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatText, "Output format: text, json or yaml")
	return cmd
}
