package main

import (
	"github.com/spf13/cobra"

	orgsync "github.com/orgmode-tools/org-gh/internal/sync"
)

var pullDryRun bool

var pullCmd = &cobra.Command{
	Use:   "pull <file>",
	Short: "Pull GitHub changes into the outline",
	Long: `Execute only the GitHub-to-outline half of the plan.

Remote field changes are written into headings, remote state changes
update workflow keywords, and new comments, pull-request links and
closures are appended to log drawers. The remote is never mutated;
conflicts on fields where the outline would win are reported and
skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args[0], orgsync.RunOptions{
			Mode:   orgsync.ModePull,
			DryRun: pullDryRun,
		}, false)
	},
}

func init() {
	pullCmd.Flags().BoolVar(&pullDryRun, "dry-run", false, "compute and print the plan without mutating anything")
	rootCmd.AddCommand(pullCmd)
}
