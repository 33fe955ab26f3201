package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/output"
	"sitevc.dev/sitevc/internal/runtime"
)

// readBundle reads a bundle JSON file ("-" for stdin) and materializes it
func readBundle(path string, s *model.Schema) (*model.Graph, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = common.ReadStdin()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	b, err := model.UnmarshalBundle(data)
	if err != nil {
		return nil, err
	}
	return model.Materialize(b, s)
}

// newCommitCmd creates the commit command
func newCommitCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit <branch> <bundle.json>",
		Short: "Record a bundle as the next version of a branch",
		Long: `Record a bundle as the next version of a branch.

The bundle is validated against the schema before it is stored; its schema
stamp must match the repository's. Use "-" to read the bundle from stdin.`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				g, err := readBundle(args[1], ctx.Engine.Schema())
				if err != nil {
					return err
				}
				if message == "" {
					message = "Update " + args[0]
				}
				id, err := ctx.Engine.Commit(ctx, args[0], g, message)
				if err != nil {
					return err
				}
				ctx.Splog.Info("Committed %s to %s", output.ShortID(id), args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Version message")
	return cmd
}

// newShowCmd creates the show command
func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:               "show <branch|version>",
		Short:             "Print the bundle of a version",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				id, err := ctx.Engine.ResolveRevision(ctx, args[0])
				if err != nil {
					return err
				}
				g, err := ctx.Engine.LoadVersion(ctx, id)
				if err != nil {
					return err
				}
				b, err := model.Flatten(g, ctx.Engine.Schema())
				if err != nil {
					return err
				}
				return output.Export(cmd.OutOrStdout(), b, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatJSON, "Output format: json or yaml")
	return cmd
}
