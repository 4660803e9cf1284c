package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orgmode-tools/org-gh/internal/config"
	"github.com/orgmode-tools/org-gh/internal/org"
	"github.com/orgmode-tools/org-gh/internal/output"
	"github.com/orgmode-tools/org-gh/internal/remote"
	"github.com/orgmode-tools/org-gh/internal/state"
)

// Mode selects which operation the orchestrator drives.
type Mode string

const (
	ModePush   Mode = "push"
	ModePull   Mode = "pull"
	ModeSync   Mode = "sync"
	ModeStatus Mode = "status"
)

// RunOptions tune a single orchestrator run.
type RunOptions struct {
	Mode   Mode
	DryRun bool
	Force  bool
}

// Orchestrator drives one operation end to end: read, fetch,
// reconcile, apply, write back, update baseline.
type Orchestrator struct {
	Cfg     *config.Config
	Adapter remote.Adapter
	Log     *slog.Logger

	// Prompt, when set, resolves prompt-policy conflicts
	// interactively during sync.
	Prompt PromptFunc
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Run executes a push, pull, sync or status operation on one outline
// file and returns the structured result. Partial remote failures do
// not return an error; they are reported per action and the baseline
// reflects only the mutations that succeeded.
func (o *Orchestrator) Run(ctx context.Context, filePath string, opts RunOptions) (*output.Result, error) {
	f, err := o.parseFile(filePath)
	if err != nil {
		return nil, err
	}
	repo := f.Repo()
	if repo == "" {
		return nil, config.Errorf("%s has no #+GH_REPO: directive; run 'org-gh init %s --repo owner/name'", filePath, filePath)
	}

	statePath := state.Path(filePath, o.Cfg.Sync.StateDir)
	lock, err := state.Acquire(statePath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	base, err := state.Load(statePath)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = state.New(repo)
	}

	o.logger().Debug("fetching issues", "repo", repo)
	issues, err := o.Adapter.ListIssues(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	o.logger().Debug("fetched issues", "count", len(issues))

	now := time.Now().UTC()
	var prompt PromptFunc
	if opts.Mode == ModeSync && !opts.DryRun && !opts.Force {
		prompt = o.Prompt
	}
	plan, err := Reconcile(Inputs{
		File:      f,
		Issues:    issues,
		Base:      base,
		Cfg:       o.Cfg,
		Force:     opts.Force,
		AllowPush: opts.Mode == ModeSync || opts.Mode == ModePush || opts.Mode == ModeStatus,
		AllowPull: opts.Mode == ModeSync || opts.Mode == ModePull || opts.Mode == ModeStatus,
		Prompt:    prompt,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	res := &output.Result{
		Mode:      string(opts.Mode),
		File:      filePath,
		Repo:      repo,
		DryRun:    opts.DryRun || opts.Mode == ModeStatus,
		Conflicts: plan.Conflicts,
		Warnings:  plan.Warnings,
		Orphans:   plan.Orphans,
	}
	if !base.LastSync.IsZero() {
		res.LastSync = org.FormatTimestamp(base.LastSync)
	}
	for _, p := range plan.PendingCreates {
		res.Pending = append(res.Pending, p.Title)
	}

	if res.DryRun {
		o.describePlan(plan, res)
		res.Recount()
		return res, nil
	}

	err = o.execute(ctx, f, filePath, statePath, base, plan, opts, res, now)
	res.Recount()
	return res, err
}

// describePlan fills the result with would-be actions for --dry-run
// and status.
func (o *Orchestrator) describePlan(plan *Plan, res *output.Result) {
	for _, c := range plan.Creates {
		res.Actions = append(res.Actions, output.ActionResult{
			Kind: "create", Identity: c.Identity, Title: c.Title, Outcome: output.OutcomeSkipped,
		})
	}
	for _, p := range plan.Pairs {
		if p.Update != nil {
			res.Actions = append(res.Actions, output.ActionResult{
				Kind: "update", Identity: p.Identity, Issue: p.Number, Title: p.Title, Outcome: output.OutcomeSkipped,
			})
		}
		if p.State != nil {
			res.Actions = append(res.Actions, output.ActionResult{
				Kind: "state", Identity: p.Identity, Issue: p.Number, Title: p.Title, Outcome: output.OutcomeSkipped,
			})
		}
		if len(p.PulledFields) > 0 {
			res.Pulled = append(res.Pulled, output.PullChange{Issue: p.Number, Title: p.Title, Fields: p.PulledFields})
		}
	}
}

// execute runs the plan: creates, then field updates, then state
// changes, then event ingestion reads; outline write-back; baseline
// save. Per-action failures are recovered and reported; the baseline
// only ever reflects mutations that succeeded.
func (o *Orchestrator) execute(ctx context.Context, f *org.File, filePath, statePath string, base *state.Baseline, plan *Plan, opts RunOptions, res *output.Result, now time.Time) error {
	failed := make(map[int]bool)
	interrupted := false
	var edits []org.Edit

	checkCtx := func() bool {
		if interrupted {
			return true
		}
		if ctx.Err() != nil {
			interrupted = true
			res.Warnings = append(res.Warnings, "interrupted; committed mutations are kept")
		}
		return interrupted
	}

	// Group 1: creates, in identity order. Pull never mutates the
	// remote; unmatched headings just become pending creates.
	canCreate := opts.Mode == ModeSync || opts.Mode == ModePush
	for _, c := range plan.Creates {
		if !canCreate || checkCtx() {
			base.AddPendingCreate(c.Identity, c.Title)
			continue
		}
		issue, err := o.Adapter.CreateIssue(ctx, c.Title, c.Body, c.Labels, c.Assignees)
		if err != nil {
			o.logger().Error("create failed", "identity", c.Identity, "error", err)
			base.AddPendingCreate(c.Identity, c.Title)
			res.Actions = append(res.Actions, output.ActionResult{
				Kind: "create", Identity: c.Identity, Title: c.Title,
				Outcome: output.OutcomeFailed, Error: err.Error(),
			})
			continue
		}
		if !o.kwOpen(c.Keyword) {
			// A closed heading can still be created; close it right away.
			if closedIssue, err := o.Adapter.SetIssueState(ctx, issue.Number, false, o.Cfg.Keywords().Reason(c.Keyword)); err == nil {
				issue = closedIssue
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("issue #%d created but could not be closed: %v", issue.Number, err))
			}
		}

		edits = append(edits, o.bindEdits(f, c, issue, now)...)
		base.Record(issue.Number, &state.Record{
			Identity:      c.Identity,
			Title:         c.Title,
			BodyDigest:    DigestBody(c.Body),
			State:         c.Keyword,
			Assignees:     issue.Assignees,
			Labels:        c.OrgLabels,
			GHModifiedAt:  issue.UpdatedAt,
			OrgModifiedAt: now,
		})
		res.Actions = append(res.Actions, output.ActionResult{
			Kind: "create", Identity: c.Identity, Issue: issue.Number,
			Title: c.Title, URL: issue.URL, Outcome: output.OutcomeCreated,
		})
	}

	// Group 2: field updates, ascending issue number.
	for _, p := range plan.Pairs {
		if p.Update == nil {
			continue
		}
		if checkCtx() {
			failed[p.Number] = true
			continue
		}
		issue, err := o.Adapter.UpdateIssue(ctx, p.Number, p.Update.Patch)
		if err != nil {
			o.logger().Error("update failed", "issue", p.Number, "error", err)
			failed[p.Number] = true
			res.Actions = append(res.Actions, output.ActionResult{
				Kind: "update", Identity: p.Identity, Issue: p.Number, Title: p.Title,
				Outcome: output.OutcomeFailed, Error: err.Error(),
			})
			continue
		}
		if opts.Mode == ModeSync && issue.UpdatedAt.After(p.Record.GHModifiedAt) {
			p.Record.GHModifiedAt = issue.UpdatedAt
		}
		res.Actions = append(res.Actions, output.ActionResult{
			Kind: "update", Identity: p.Identity, Issue: p.Number, Title: p.Title,
			URL: issue.URL, Outcome: output.OutcomeUpdated,
		})
	}

	// Group 3: open/closed transitions, ascending issue number.
	statePushed := make(map[int]bool)
	for _, p := range plan.Pairs {
		if p.State == nil || failed[p.Number] {
			continue
		}
		if checkCtx() {
			failed[p.Number] = true
			continue
		}
		issue, err := o.Adapter.SetIssueState(ctx, p.Number, p.State.Open, p.State.Reason)
		if err != nil {
			o.logger().Error("state change failed", "issue", p.Number, "error", err)
			failed[p.Number] = true
			res.Actions = append(res.Actions, output.ActionResult{
				Kind: "state", Identity: p.Identity, Issue: p.Number, Title: p.Title,
				Outcome: output.OutcomeFailed, Error: err.Error(),
			})
			continue
		}
		statePushed[p.Number] = true
		if opts.Mode == ModeSync && issue.UpdatedAt.After(p.Record.GHModifiedAt) {
			p.Record.GHModifiedAt = issue.UpdatedAt
		}
		outcome := output.OutcomeClosed
		if p.State.Open {
			outcome = output.OutcomeReopened
		}
		res.Actions = append(res.Actions, output.ActionResult{
			Kind: "state", Identity: p.Identity, Issue: p.Number, Title: p.Title,
			URL: issue.URL, Outcome: outcome,
		})
	}

	// Group 4: event ingestion reads, bounded concurrency.
	if opts.Mode == ModeSync || opts.Mode == ModePull {
		if err := o.ingestEvents(ctx, plan, failed, statePushed, now); err != nil && !interrupted {
			res.Warnings = append(res.Warnings, fmt.Sprintf("event ingestion incomplete: %v", err))
		}
	}

	// Collect outline edits from every pair whose remote mutations
	// (if any) succeeded, then write the file in one pass.
	for _, p := range plan.Pairs {
		if failed[p.Number] {
			continue
		}
		edits = append(edits, p.Edits...)
		if len(p.PulledFields) > 0 {
			res.Pulled = append(res.Pulled, output.PullChange{Issue: p.Number, Title: p.Title, Fields: p.PulledFields})
		}
	}

	newContent, err := org.Apply(f, edits, o.Cfg.Org.LogDrawer)
	if err != nil {
		return fmt.Errorf("failed to apply outline edits: %w", err)
	}
	if newContent != f.Content {
		if err := writeFilePreserving(filePath, newContent); err != nil {
			// Baseline stays put so the next run reconverges.
			return fmt.Errorf("failed to write outline: %w", err)
		}
	}

	for _, p := range plan.Pairs {
		if failed[p.Number] {
			continue
		}
		base.Record(p.Number, p.Record)
	}
	base.Repo = res.Repo
	base.LastSync = now
	if err := base.Save(statePath); err != nil {
		return err
	}
	if interrupted {
		return context.Canceled
	}
	return nil
}

func (o *Orchestrator) kwOpen(kw string) bool {
	return o.Cfg.Keywords().IsOpen(kw)
}

// bindEdits produces the property edits recording a fresh binding.
func (o *Orchestrator) bindEdits(f *org.File, c *CreateAction, issue *remote.Issue, now time.Time) []org.Edit {
	edits := []org.Edit{
		{Heading: c.Identity, Op: org.SetProperty, Key: "GH_ISSUE", Value: strconv.Itoa(issue.Number)},
		{Heading: c.Identity, Op: org.SetProperty, Key: "GH_URL", Value: issue.URL},
		{Heading: c.Identity, Op: org.SetProperty, Key: "CREATED", Value: org.FormatTimestamp(issue.CreatedAt)},
		{Heading: c.Identity, Op: org.SetProperty, Key: "UPDATED", Value: org.FormatTimestamp(now)},
	}
	if h := f.HeadingByID(c.Identity); h != nil && len(c.OrgLabels) > 0 && !setEqual(c.OrgLabels, h.Labels) {
		// Default labels from the file directive joined the issue;
		// reflect them in the heading so the sides agree.
		edits = append(edits, org.Edit{Heading: c.Identity, Op: org.SetProperty, Key: "LABELS", Value: org.JoinList(c.OrgLabels)})
	}
	return edits
}

// ingestEvents fetches remote-only events for each surviving pair and
// turns them into log-section appends. Fetches run with bounded
// parallelism; a pair that fails to fetch keeps its old baseline
// timestamp and is retried next run.
func (o *Orchestrator) ingestEvents(ctx context.Context, plan *Plan, failed, statePushed map[int]bool, now time.Time) error {
	conc := o.Cfg.Sync.Concurrency
	if conc <= 0 {
		conc = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)

	for _, p := range plan.Pairs {
		if failed[p.Number] || p.IngestSince.IsZero() {
			continue
		}
		g.Go(func() error {
			events, err := o.Adapter.ListEvents(gctx, p.Number, p.IngestSince)
			if err != nil {
				o.logger().Warn("event fetch failed", "issue", p.Number, "error", err)
				// Rewind so the next run retries ingestion.
				p.Record.GHModifiedAt = p.IngestSince
				return nil
			}
			for _, ev := range events {
				if ev.Kind == remote.EventClosed && statePushed[p.Number] && !ev.At.Before(now) {
					// Our own close from this run is not a remote event.
					continue
				}
				p.Edits = append(p.Edits, org.Edit{
					Heading: p.HeadingID, Op: org.AppendLog,
					Value: RenderEvent(ev), At: ev.At,
				})
				if ev.At.After(p.Record.GHModifiedAt) {
					p.Record.GHModifiedAt = ev.At
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// writeFilePreserving replaces the file contents keeping its mode.
func writeFilePreserving(path, content string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	return os.WriteFile(path, []byte(content), mode)
}

// parseFile reads and parses the outline.
func (o *Orchestrator) parseFile(path string) (*org.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return org.Parse(path, string(data), o.Cfg.ParseOptions())
}

// Init verifies remote access, ensures the #+GH_REPO: directive is
// present (inserting it after #+TITLE: when missing), and writes an
// empty baseline. No remote mutations are performed.
func (o *Orchestrator) Init(ctx context.Context, filePath, repo string) (*output.Result, error) {
	if _, _, err := remote.ParseRepo(repo); err != nil {
		return nil, config.Errorf("%v", err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	content := string(data)

	// A cheap authenticated read proves access; nothing is mutated.
	if _, err := o.Adapter.ListIssues(ctx, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("cannot access repository %s: %w", repo, err)
	}

	res := &output.Result{Mode: "init", File: filePath, Repo: repo}

	f, err := org.Parse(filePath, content, o.Cfg.ParseOptions())
	if err != nil {
		return nil, err
	}
	if existing := f.Repo(); existing != "" {
		if existing != repo {
			return nil, config.Errorf("%s already has #+GH_REPO: %s", filePath, existing)
		}
		res.Warnings = append(res.Warnings, "file already has a #+GH_REPO: directive")
	} else {
		if err := writeFilePreserving(filePath, addRepoDirective(content, repo)); err != nil {
			return nil, fmt.Errorf("failed to write outline: %w", err)
		}
	}

	statePath := state.Path(filePath, o.Cfg.Sync.StateDir)
	lock, err := state.Acquire(statePath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	existing, err := state.Load(statePath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		res.Warnings = append(res.Warnings, "baseline already exists; left untouched")
		res.Recount()
		return res, nil
	}
	if err := state.New(repo).Save(statePath); err != nil {
		return nil, err
	}
	res.Recount()
	return res, nil
}

// addRepoDirective inserts #+GH_REPO: after an existing #+TITLE: line,
// or at the top. Original line endings are preserved.
func addRepoDirective(content, repo string) string {
	eol := "\n"
	if strings.Contains(content, "\r\n") {
		eol = "\r\n"
	}
	directive := "#+GH_REPO: " + repo

	lines := strings.Split(content, eol)
	insertAt := 0
	for i, l := range lines {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(l)), "#+TITLE:") {
			insertAt = i + 1
			break
		}
		if headingLevelAt(l) > 0 {
			break
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, directive)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, eol)
}

func headingLevelAt(l string) int {
	n := 0
	for n < len(l) && l[n] == '*' {
		n++
	}
	if n == 0 || n >= len(l) || l[n] != ' ' {
		return 0
	}
	return n
}

// Unlink drops the baseline entry for a heading and removes its
// binding properties. The remote issue is untouched unless closeIssue
// is set.
func (o *Orchestrator) Unlink(ctx context.Context, filePath, target string, closeIssue bool) (*output.Result, error) {
	f, err := o.parseFile(filePath)
	if err != nil {
		return nil, err
	}

	statePath := state.Path(filePath, o.Cfg.Sync.StateDir)
	lock, err := state.Acquire(statePath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	base, err := state.Load(statePath)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = state.New(f.Repo())
	}

	h := findUnlinkTarget(f, target)
	if h == nil {
		return nil, config.Errorf("no heading matches %q", target)
	}
	res := &output.Result{Mode: "unlink", File: filePath, Repo: f.Repo()}
	if h.Issue == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("heading %q is not bound to an issue", h.Title))
		res.Recount()
		return res, nil
	}

	outcome := output.OutcomeUpdated
	if closeIssue {
		if _, err := o.Adapter.SetIssueState(ctx, h.Issue, false, remote.ReasonCompleted); err != nil {
			return nil, err
		}
		outcome = output.OutcomeClosed
	}

	edits := []org.Edit{
		{Heading: h.ID, Op: org.UnsetProperty, Key: "GH_ISSUE"},
		{Heading: h.ID, Op: org.UnsetProperty, Key: "GH_URL"},
	}
	newContent, err := org.Apply(f, edits, o.Cfg.Org.LogDrawer)
	if err != nil {
		return nil, err
	}
	if err := writeFilePreserving(filePath, newContent); err != nil {
		return nil, fmt.Errorf("failed to write outline: %w", err)
	}

	base.Remove(h.Issue)
	base.RemovePendingCreate(h.ID)
	if err := base.Save(statePath); err != nil {
		return nil, err
	}

	res.Actions = append(res.Actions, output.ActionResult{
		Kind: "unlink", Identity: h.ID, Issue: h.Issue, Title: h.Title, Outcome: outcome,
	})
	res.Recount()
	return res, nil
}

// findUnlinkTarget matches an exact issue number or a case-insensitive
// title substring.
func findUnlinkTarget(f *org.File, target string) *org.Heading {
	if n, err := strconv.Atoi(target); err == nil {
		return f.HeadingByIssue(n)
	}
	needle := strings.ToLower(target)
	for _, h := range f.Headings {
		if strings.Contains(strings.ToLower(h.Title), needle) {
			return h
		}
	}
	return nil
}
