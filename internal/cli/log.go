package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/runtime"
)

// newLogCmd creates the log command
func newLogCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:               "log [branch|version]",
		Short:             "Show the version history of a branch, newest first",
		Aliases:           []string{"l"},
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				rev := ctx.Engine.Trunk()
				if len(args) > 0 {
					rev = args[0]
				}
				versions, err := ctx.Engine.Log(ctx, rev, steps)
				if err != nil {
					return err
				}
				branches, err := ctx.Engine.ListBranches(ctx)
				if err != nil {
					return err
				}
				ctx.Splog.Page(output.RenderLog(versions, branches))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "Only show this many versions")
	return cmd
}

// newMergeBaseCmd creates the merge-base command
func newMergeBaseCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:               "merge-base <from> <into>",
		Short:             "Show the common ancestor a merge of from into into would use",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				mb, err := ctx.Engine.MergeBase(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !all {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), mb.Base)
					return err
				}
				for _, id := range mb.Candidates {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Print every maximal common ancestor, preferred first")
	return cmd
}
