package cli

import (
	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/branch"
	"sitevc.dev/sitevc/internal/cli/common"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sitevc",
		Short: "sitevc versions website design documents and merges their branches",
		Long: `sitevc versions website design documents and merges their branches.

Versions are immutable snapshots of a design document. Branches point at
versions; merging two branches runs a three-way structural merge and
suspends on conflicts until every one has been picked.`,
		Version:       version + " (" + commit + ", " + date + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP(common.FlagDir, "C", "", "Run as if sitevc was started in this directory")
	rootCmd.PersistentFlags().BoolP(common.FlagQuiet, "q", false, "Suppress informational output")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCommitCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(branch.NewBranchCmd())
	rootCmd.AddCommand(newMergeBaseCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConflictsCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newMergeCommitCmd())
	rootCmd.AddCommand(newMergeAbortCmd())

	return rootCmd
}
