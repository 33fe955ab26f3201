package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/config"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/runtime"
)

// emptySite is the first version of a repository initialized without a bundle
func emptySite(s *model.Schema) *model.Graph {
	g := model.NewGraph(s.Version)
	root := model.NewInstance(uuid.NewString(), "Site")
	g.Root = root.UUID
	g.Add(root)
	return g
}

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	var (
		backend     string
		trunk       string
		authorName  string
		authorEmail string
		autoCommit  bool
		from        string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize sitevc in the current directory",
		Long: `Initialize sitevc in the current directory.

Creates .sitevc with the repository configuration and the version store, and
commits the first version to the trunk branch: the bundle given with --from,
or an empty site.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString(common.FlagDir)
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = wd
			}
			if config.IsInitialized(dir) {
				return fmt.Errorf("sitevc is already initialized in %s", dir)
			}
			if err := config.ValidateBranchName(trunk); err != nil {
				return err
			}

			cfg := &config.RepoConfig{Backend: &backend, Trunk: &trunk}
			if authorName != "" {
				cfg.AuthorName = &authorName
			}
			if authorEmail != "" {
				cfg.AuthorEmail = &authorEmail
			}
			if cmd.Flags().Changed("auto-commit") {
				cfg.AutoCommit = &autoCommit
			}
			if _, err := cfg.StorePath(dir); err != nil {
				return err
			}

			var first *model.Graph
			if from != "" {
				g, err := readBundle(from, model.DefaultSchema())
				if err != nil {
					return err
				}
				first = g
			}

			if err := config.WriteRepoConfig(dir, cfg); err != nil {
				return err
			}
			ctx, err := runtime.NewContext(context.Background(), dir, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer ctx.Close()
			if quiet, _ := cmd.Flags().GetBool(common.FlagQuiet); quiet {
				ctx.Splog.SetQuiet(true)
			}

			if first == nil {
				first = emptySite(ctx.Engine.Schema())
			}
			id, err := ctx.Engine.Commit(ctx, cfg.GetTrunk(), first, "Initial version")
			if err != nil {
				return err
			}
			ctx.Splog.Info("Initialized sitevc (%s backend) with trunk %s at %s",
				cfg.GetBackend(), cfg.GetTrunk(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", config.BackendGit, "Version store backend: git or sqlite")
	cmd.Flags().StringVar(&trunk, "trunk", "main", "The name of the trunk branch")
	cmd.Flags().StringVar(&authorName, "author-name", "", "Author name recorded on new versions")
	cmd.Flags().StringVar(&authorEmail, "author-email", "", "Author email recorded on new versions")
	cmd.Flags().BoolVar(&autoCommit, "auto-commit", false, "Commit conflict-free merges immediately")
	cmd.Flags().StringVar(&from, "from", "", "Bundle JSON file to use as the first version")

	return cmd
}
