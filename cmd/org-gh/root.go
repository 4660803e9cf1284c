package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/orgmode-tools/org-gh/internal/config"
	"github.com/orgmode-tools/org-gh/internal/logging"
	"github.com/orgmode-tools/org-gh/internal/org"
	"github.com/orgmode-tools/org-gh/internal/output"
	"github.com/orgmode-tools/org-gh/internal/remote"
	"github.com/orgmode-tools/org-gh/internal/state"
	orgsync "github.com/orgmode-tools/org-gh/internal/sync"
	"github.com/orgmode-tools/org-gh/internal/ui"
)

// Exit codes, kept stable for editor integrations.
const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
	exitConfig   = 3
	exitBusy     = 4
)

var (
	flagConfig  string
	flagToken   string
	flagSexp    bool
	flagJSON    bool
	flagQuiet   bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "org-gh",
	Short:         "Bidirectional sync between org-mode outlines and GitHub Issues",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `org-gh reconciles work items kept as headings in an org-mode file with
the issues of one GitHub repository.

Headings with a workflow keyword (TODO, DONE, ...) are syncable. A
baseline file next to the outline anchors three-way merges, so edits
made on either side since the last sync flow to the other, and edits
made on both sides are merged field by field.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(flagConfig)
		opts := logging.Options{Verbose: flagVerbose, Quiet: flagQuiet}
		if err == nil {
			opts.File = cfg.Log.File
			opts.MaxSizeMB = cfg.Log.MaxSizeMB
			opts.MaxBackups = cfg.Log.MaxBackups
		}
		logging.Setup(opts)
		if flagQuiet || flagSexp || flagJSON {
			ui.Disable()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file")
	pf.StringVar(&flagToken, "token", "", "GitHub token (overrides env and config)")
	pf.BoolVar(&flagSexp, "sexp", false, "emit result as s-expressions (for Emacs)")
	pf.BoolVar(&flagJSON, "json", false, "emit result as JSON")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-error output")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

func outputFormat() output.Format {
	switch {
	case flagSexp:
		return output.FormatSexp
	case flagJSON:
		return output.FormatJSON
	}
	return output.FormatHuman
}

// newOrchestrator wires config, token and the GitHub adapter for the
// repository the outline names (or an explicit repo for init).
func newOrchestrator(ctx context.Context, repo string) (*orgsync.Orchestrator, *config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	token, err := cfg.ResolveToken(ctx, flagToken)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := remote.NewGitHub(token, repo, remote.GitHubOptions{
		Timeout:  cfg.Timeout(),
		Attempts: cfg.Sync.RetryAttempts,
	})
	if err != nil {
		return nil, nil, config.Errorf("%v", err)
	}
	o := &orgsync.Orchestrator{Cfg: cfg, Adapter: adapter}
	if outputFormat() == output.FormatHuman && !flagQuiet && isInteractive() {
		o.Prompt = promptConflict
	}
	return o, cfg, nil
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// promptConflict asks the user to resolve one field conflict.
func promptConflict(number int, title, field, orgVal, remoteVal string) config.Policy {
	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("Conflict on #%d %q: %s changed on both sides", number, title, field)).
			Description(fmt.Sprintf("outline: %s\nremote:  %s", orgVal, remoteVal)).
			Options(
				huh.NewOption("keep outline value (push)", string(config.PolicyOrgWins)),
				huh.NewOption("take remote value (pull)", string(config.PolicyGitHubWins)),
				huh.NewOption("skip for now", ""),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return ""
	}
	return config.Policy(choice)
}

// repoDirective scans an outline for #+GH_REPO: without a full parse.
func repoDirective(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "*") {
			break
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "#+GH_REPO:") {
			return strings.TrimSpace(line[len("#+GH_REPO:"):]), nil
		}
	}
	return "", nil
}

// finish renders the result and exits with the operation's code.
func finish(res *output.Result, err error, interactiveMode bool) {
	if err != nil && res == nil {
		res = &output.Result{}
	}
	if err != nil {
		res.Error = err.Error()
		fmt.Fprintln(os.Stderr, ui.RenderFail("error:"), err)
	}
	// Human mode reports whole-operation failures on stderr only;
	// structured modes always emit the single result value on stdout.
	if res != nil && (err == nil || outputFormat() != output.FormatHuman) {
		if rerr := output.Render(os.Stdout, res, outputFormat()); rerr != nil {
			fmt.Fprintln(os.Stderr, "failed to render result:", rerr)
		}
	}
	os.Exit(exitCodeFor(res, err, interactiveMode))
}

func exitCodeFor(res *output.Result, err error, interactiveMode bool) int {
	if err != nil {
		var cfgErr *config.ConfigError
		var parseErr *org.ParseError
		var busyErr *state.BusyError
		switch {
		case errors.As(err, &cfgErr):
			return exitConfig
		case errors.As(err, &busyErr):
			return exitBusy
		case errors.As(err, &parseErr):
			return exitError
		default:
			return exitError
		}
	}
	if res != nil {
		if res.Failed() {
			return exitError
		}
		if interactiveMode && res.Counts.Conflicts > 0 {
			return exitConflict
		}
	}
	return exitOK
}
