package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/engine"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/runtime"
)

// newMergeCmd creates the merge command
func newMergeCmd() *cobra.Command {
	var (
		into    string
		preview bool
		commit  bool
		picks   []string
	)

	cmd := &cobra.Command{
		Use:   "merge <from>",
		Short: "Merge a branch into another branch (the trunk by default)",
		Long: `Merge a branch into another branch (the trunk by default).

The merge is computed against the current heads of both branches and their
merge base. Conflicts suspend the merge as a session: pick a side for each
with 'sitevc resolve' and finish with 'sitevc merge-commit'. Picks can also be
given up front with --pick conflict=side or --pick conflict.field=side.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := common.ParsePicks(picks)
			if err != nil {
				return err
			}
			return common.Run(cmd, func(ctx *runtime.Context) error {
				target := into
				if target == "" {
					target = ctx.Engine.Trunk()
				}
				res, err := ctx.Engine.AttemptMerge(ctx, args[0], target, engine.MergeOptions{
					Preview: preview,
					Commit:  commit,
					Picks:   parsed,
				})
				if err != nil {
					return err
				}
				reportMerge(ctx, res, preview)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&into, "into", "", "Branch to merge into (defaults to the trunk)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Compute the merge and show conflicts without recording a session")
	cmd.Flags().BoolVar(&commit, "commit", false, "Commit immediately when there are no conflicts")
	cmd.Flags().StringArrayVar(&picks, "pick", nil, "Pick a side for a conflict: conflict=side or conflict.field=side")
	_ = cmd.RegisterFlagCompletionFunc("into", common.CompleteBranches)

	return cmd
}

func reportMerge(ctx *runtime.Context, res *engine.MergeResult, preview bool) {
	if res.UpToDate {
		ctx.Splog.Info("Already up to date.")
		return
	}
	s := res.Session
	if auto := output.RenderResult(res.Result); auto != "" {
		ctx.Splog.Page(auto)
	}
	if len(s.Conflicts) > 0 {
		ctx.Splog.Page(output.RenderConflicts(s.Conflicts, s.Picks))
	}
	switch {
	case preview:
		ctx.Splog.Info("Preview of merging %s into %s: %d conflict(s), %d pending.",
			s.From, s.Into, len(s.Conflicts), len(s.Pending()))
	case res.Version != "":
		// apply already logged the merge
	case s.State == merge.StateAwaitingResolution:
		ctx.Splog.Info("Merge session %s is waiting on %d conflict(s).", s.ID, len(s.Pending()))
		ctx.Splog.Tip("Pick sides with 'sitevc resolve %s', then run 'sitevc merge-commit %s'.", s.ID, s.ID)
	default:
		ctx.Splog.Info("Merge session %s is ready.", s.ID)
		ctx.Splog.Tip("Run 'sitevc merge-commit %s' to record it.", s.ID)
	}
}

// newMergeCommitCmd creates the merge-commit command
func newMergeCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-commit <session>",
		Short: "Commit a merge session whose conflicts are all picked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				_, err := ctx.Engine.CommitMerge(ctx, args[0])
				var stale *sitevcerrors.StaleBranchHeadError
				var unresolved *sitevcerrors.UnresolvedConflictError
				switch {
				case errors.As(err, &stale):
					session, gerr := ctx.Engine.GetSession(ctx, args[0])
					if gerr == nil {
						ctx.Splog.Tip("Retry with 'sitevc merge %s --into %s%s'.", session.From, session.Into, pickFlags(session.Picks))
					}
				case errors.As(err, &unresolved):
					ctx.Splog.Tip("Pick sides with 'sitevc resolve %s'.", args[0])
				}
				return err
			})
		},
	}
}

// pickFlags renders picks as --pick flags so a stale merge can be retried
func pickFlags(picks merge.Picks) string {
	var sb strings.Builder
	for id, res := range picks {
		if res.Side.Valid() {
			sb.WriteString(" --pick " + id + "=" + string(res.Side))
		}
		for field, side := range res.Fields {
			sb.WriteString(" --pick " + id + "." + field + "=" + string(side))
		}
	}
	return sb.String()
}

// newMergeAbortCmd creates the merge-abort command
func newMergeAbortCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "merge-abort <session>",
		Short: "Abandon a merge session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				if err := ctx.Engine.AbortMerge(ctx, args[0], reason); err != nil {
					return err
				}
				ctx.Splog.Info("Aborted merge session %s.", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "aborted by user", "Reason recorded on the session")
	return cmd
}
