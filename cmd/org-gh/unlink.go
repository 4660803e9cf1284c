package main

import (
	"github.com/spf13/cobra"

	"github.com/orgmode-tools/org-gh/internal/config"
	orgsync "github.com/orgmode-tools/org-gh/internal/sync"
)

var unlinkClose bool

var unlinkCmd = &cobra.Command{
	Use:   "unlink <file> <issue-number-or-title>",
	Short: "Remove the sync link for one heading",
	Long: `Drop the baseline entry for a heading and remove its GH_ISSUE and
GH_URL properties. The remote issue is untouched unless --close is
given. The heading itself stays in the outline.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		repo, err := repoDirective(args[0])
		if err != nil {
			finish(nil, err, false)
		}
		if repo == "" {
			finish(nil, config.Errorf("%s has no #+GH_REPO: directive", args[0]), false)
		}

		var o *orgsync.Orchestrator
		if unlinkClose {
			o, _, err = newOrchestrator(ctx, repo)
			if err != nil {
				finish(nil, err, false)
			}
		} else {
			// Unlinking alone makes no remote calls and needs no token.
			cfg, err := config.Load(flagConfig)
			if err != nil {
				finish(nil, err, false)
			}
			o = &orgsync.Orchestrator{Cfg: cfg}
		}
		res, err := o.Unlink(ctx, args[0], args[1], unlinkClose)
		finish(res, err, false)
	},
}

func init() {
	unlinkCmd.Flags().BoolVar(&unlinkClose, "close", false, "also close the issue on GitHub")
	rootCmd.AddCommand(unlinkCmd)
}
