package main

import (
	"github.com/spf13/cobra"

	"github.com/orgmode-tools/org-gh/internal/config"
	orgsync "github.com/orgmode-tools/org-gh/internal/sync"
)

var (
	syncForce  bool
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <file>",
	Short: "Bidirectional sync between the outline and GitHub",
	Long: `Reconcile the outline with GitHub Issues in both directions.

For every bound heading the outline, the remote issue and the baseline
are compared field by field. Fields changed on one side flow to the
other; fields changed on both sides are merged by policy (title and
body: outline wins; assignees: remote wins; labels: union; state:
prompt, or outline wins under --force). New headings create issues,
and remote comments, pull-request links and closures are appended to
each heading's log drawer.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args[0], orgsync.RunOptions{
			Mode:   orgsync.ModeSync,
			DryRun: syncDryRun,
			Force:  syncForce,
		}, true)
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "resolve every conflict in the outline's favor")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "compute and print the plan without mutating anything")
	rootCmd.AddCommand(syncCmd)
}

// run drives one reconciling operation and exits.
func run(cmd *cobra.Command, file string, opts orgsync.RunOptions, conflictsExit bool) {
	ctx := cmd.Context()

	repo, err := repoDirective(file)
	if err != nil {
		finish(nil, err, false)
	}
	if repo == "" {
		finish(nil, config.Errorf("%s has no #+GH_REPO: directive; run 'org-gh init %s --repo owner/name'", file, file), false)
	}

	o, _, err := newOrchestrator(ctx, repo)
	if err != nil {
		finish(nil, err, false)
	}

	res, err := o.Run(ctx, file, opts)
	finish(res, err, conflictsExit && !opts.Force && !opts.DryRun)
}
