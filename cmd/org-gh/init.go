package main

import (
	"github.com/spf13/cobra"
)

var initRepo string

var initCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Initialize sync for an outline file",
	Long: `Verify access to the repository, add the #+GH_REPO: directive to the
outline when missing, and write an empty baseline next to it. No
remote changes are made.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		o, _, err := newOrchestrator(ctx, initRepo)
		if err != nil {
			finish(nil, err, false)
		}
		res, err := o.Init(ctx, args[0], initRepo)
		finish(res, err, false)
	},
}

func init() {
	initCmd.Flags().StringVarP(&initRepo, "repo", "r", "", "GitHub repository (owner/name)")
	_ = initCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(initCmd)
}
