package main

import (
	"github.com/spf13/cobra"

	orgsync "github.com/orgmode-tools/org-gh/internal/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status <file>",
	Short: "Show what a sync would do",
	Long: `Reconcile in dry-run mode and report pending creates, local and
remote changes, conflicts and orphaned baseline entries. Nothing is
mutated on either side.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args[0], orgsync.RunOptions{Mode: orgsync.ModeStatus}, false)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
