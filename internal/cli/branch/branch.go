// Package branch provides CLI commands for managing branch pointers.
package branch

import (
	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/config"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/runtime"
)

// NewBranchCmd creates the branch command and its subcommands
func NewBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "branch",
		Short:   "Create, list and delete branches",
		Aliases: []string{"b"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listBranches(cmd)
		},
	}
	cmd.AddCommand(NewCreateCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewDeleteCmd())
	return cmd
}

// NewCreateCmd creates the branch create command
func NewCreateCmd() *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a branch at the head of another branch or at a version",
		Long: `Create a branch at the head of another branch or at a version.

Without --from the branch starts at the trunk head. Names are checked the way
refs are; an invalid name fails with a suggested alternative.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				rev := from
				if rev == "" {
					rev = ctx.Engine.Trunk()
				}
				version, err := ctx.Engine.ResolveRevision(ctx, rev)
				if err != nil {
					return err
				}
				if err := ctx.Engine.CreateBranch(ctx, args[0], version); err != nil {
					if clean := config.SanitizeBranchName(args[0]); clean != "" && clean != args[0] {
						ctx.Splog.Tip("Try 'sitevc branch create %s'.", clean)
					}
					return err
				}
				ctx.Splog.Info("Created branch %s at %s.", args[0], output.ShortID(version))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Branch or version to start from (defaults to the trunk)")
	_ = cmd.RegisterFlagCompletionFunc("from", common.CompleteBranches)
	return cmd
}

// NewListCmd creates the branch list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List branches and their heads",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listBranches(cmd)
		},
	}
}

func listBranches(cmd *cobra.Command) error {
	return common.Run(cmd, func(ctx *runtime.Context) error {
		branches, err := ctx.Engine.ListBranches(ctx)
		if err != nil {
			return err
		}
		ctx.Splog.Page(output.RenderBranches(branches, ctx.Engine.Trunk()))
		return nil
	})
}

// NewDeleteCmd creates the branch delete command
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <name>",
		Short:             "Delete a branch pointer; its versions are kept",
		Aliases:           []string{"d", "rm"},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				if err := ctx.Engine.DeleteBranch(ctx, args[0]); err != nil {
					return err
				}
				ctx.Splog.Info("Deleted branch %s.", args[0])
				return nil
			})
		},
	}
}
