package main

import (
	"github.com/spf13/cobra"

	orgsync "github.com/orgmode-tools/org-gh/internal/sync"
)

var (
	pushForce  bool
	pushDryRun bool
)

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Push outline changes to GitHub",
	Long: `Execute only the outline-to-GitHub half of the plan.

New headings create issues; locally changed fields update them; state
keyword changes open or close them. The outline is only written to
record bindings for newly created issues. Remote-side changes are left
for a later pull or sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args[0], orgsync.RunOptions{
			Mode:   orgsync.ModePush,
			DryRun: pushDryRun,
			Force:  pushForce,
		}, true)
	},
}

func init() {
	pushCmd.Flags().BoolVarP(&pushForce, "force", "f", false, "resolve every conflict in the outline's favor")
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "compute and print the plan without mutating anything")
	rootCmd.AddCommand(pushCmd)
}
