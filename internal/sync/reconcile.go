package sync

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orgmode-tools/org-gh/internal/config"
	"github.com/orgmode-tools/org-gh/internal/org"
	"github.com/orgmode-tools/org-gh/internal/output"
	"github.com/orgmode-tools/org-gh/internal/remote"
	"github.com/orgmode-tools/org-gh/internal/state"
)

// PromptFunc resolves a prompt-policy conflict interactively. It
// returns PolicyOrgWins or PolicyGitHubWins to resolve, or "" to leave
// the conflict unresolved (skip the field).
type PromptFunc func(number int, title, field, orgVal, remoteVal string) config.Policy

// Inputs are the three views the reconciler compares plus the knobs
// that shape resolution.
type Inputs struct {
	File   *org.File
	Issues []remote.Issue
	Base   *state.Baseline
	Cfg    *config.Config

	// Force converts every prompt policy to org-wins.
	Force bool

	// AllowPush / AllowPull select the halves of the plan to produce.
	// sync sets both; push only the first; pull only the second.
	AllowPush bool
	AllowPull bool

	// Prompt, when non-nil, is consulted for prompt-policy conflicts.
	Prompt PromptFunc

	Now time.Time
}

// Reconcile matches headings to issues and computes the plan. It
// performs no side effects.
func Reconcile(in Inputs) (*Plan, error) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	r := &reconciler{
		in:     in,
		kws:    in.Cfg.Keywords(),
		prefix: in.File.LabelPrefix(),
		plan:   &Plan{},
	}
	return r.run()
}

type reconciler struct {
	in     Inputs
	kws    *config.Keywords
	prefix string
	plan   *Plan
}

func (r *reconciler) run() (*Plan, error) {
	issues := make(map[int]*remote.Issue, len(r.in.Issues))
	for i := range r.in.Issues {
		issues[r.in.Issues[i].Number] = &r.in.Issues[i]
	}

	// Fatal before any side effects: two headings claiming one issue.
	bound := make(map[int]string)
	for _, h := range r.in.File.Headings {
		if h.Issue == 0 {
			continue
		}
		if first, dup := bound[h.Issue]; dup {
			return nil, &DuplicateBindingError{Number: h.Issue, First: first, Second: h.ID}
		}
		bound[h.Issue] = h.ID
	}

	for _, sk := range r.in.File.Skipped {
		r.warnf("line %d: workflow marker %q is not configured; heading %q skipped", sk.Line, sk.Keyword, sk.Title)
	}

	matched := make(map[int]bool)
	var unbound []*org.Heading

	for _, h := range r.in.File.Headings {
		if h.Issue == 0 {
			unbound = append(unbound, h)
			continue
		}
		gh, ok := issues[h.Issue]
		rec := r.in.Base.Items[h.Issue]
		if !ok {
			if rec != nil {
				// The issue existed at last sync and is gone now.
				r.plan.Conflicts = append(r.plan.Conflicts, output.Conflict{
					Issue:    h.Issue,
					Identity: h.ID,
					Field:    "missing-remote",
					Org:      h.Title,
					Remote:   "issue not found (deleted?)",
				})
			} else {
				r.warnf("heading %q references issue #%d which does not exist; skipped (stale reference)", h.Title, h.Issue)
			}
			continue
		}
		matched[h.Issue] = true
		r.plan.Pairs = append(r.plan.Pairs, r.resolvePair(h, gh, rec, false))
	}

	// Title-exact matching for unbound headings, against issues that
	// are neither matched above nor already bound in the baseline.
	byTitle := make(map[string][]*remote.Issue)
	for num, gh := range issues {
		if matched[num] {
			continue
		}
		if _, inBase := r.in.Base.Items[num]; inBase {
			continue
		}
		byTitle[gh.Title] = append(byTitle[gh.Title], gh)
	}

	for _, h := range unbound {
		candidates := byTitle[h.Title]
		switch {
		case len(candidates) == 1 && !matched[candidates[0].Number]:
			gh := candidates[0]
			matched[gh.Number] = true
			r.plan.Pairs = append(r.plan.Pairs, r.resolvePair(h, gh, nil, true))
		case len(candidates) > 1:
			r.warnf("heading %q matches %d remote issues by title; skipped (ambiguous)", h.Title, len(candidates))
		default:
			r.planCreate(h)
		}
	}

	// Baseline entries bound to nothing visible: either the heading
	// went away, or the issue did too. Both are retained until unlink.
	for _, num := range r.in.Base.Numbers() {
		if matched[num] {
			continue
		}
		rec := r.in.Base.Items[num]
		if r.in.File.HeadingByIssue(num) != nil {
			continue
		}
		if _, ok := issues[num]; ok {
			r.warnf("issue #%d (%s) was synced before but its heading is gone from the outline", num, rec.Title)
		} else {
			r.warnf("baseline entry #%d (%s) matches neither a heading nor a remote issue (orphan)", num, rec.Title)
		}
		r.plan.Orphans = append(r.plan.Orphans, num)
	}

	sort.Slice(r.plan.Creates, func(i, j int) bool {
		return r.plan.Creates[i].Identity < r.plan.Creates[j].Identity
	})
	sort.Slice(r.plan.Pairs, func(i, j int) bool {
		return r.plan.Pairs[i].Number < r.plan.Pairs[j].Number
	})
	sort.Ints(r.plan.Orphans)
	return r.plan, nil
}

func (r *reconciler) warnf(format string, args ...any) {
	r.plan.Warnings = append(r.plan.Warnings, fmt.Sprintf(format, args...))
}

// planCreate queues an unmatched heading for creation.
func (r *reconciler) planCreate(h *org.Heading) {
	orgLabels := dedup(append(append([]string(nil), h.Labels...), r.in.File.DefaultLabels()...))
	r.plan.Creates = append(r.plan.Creates, &CreateAction{
		Identity:  h.ID,
		Title:     h.Title,
		Body:      h.Body,
		Keyword:   h.Keyword,
		Labels:    r.finalRemoteLabels(orgLabels, nil, h.Keyword),
		OrgLabels: orgLabels,
		Assignees: append([]string(nil), h.Assignees...),
	})
	r.plan.PendingCreates = append(r.plan.PendingCreates, state.PendingCreate{Identity: h.ID, Title: h.Title})
}

// visibleLabels maps remote labels into org space: sub-state labels
// drop out, and when a label prefix is configured only prefixed labels
// participate (prefix stripped).
func (r *reconciler) visibleLabels(ghLabels []string) []string {
	var out []string
	for _, l := range ghLabels {
		if r.kws.IsStateLabel(l) {
			continue
		}
		if r.prefix != "" {
			if !strings.HasPrefix(l, r.prefix) {
				continue
			}
			l = strings.TrimPrefix(l, r.prefix)
		}
		out = append(out, l)
	}
	return out
}

// finalRemoteLabels renders the reconciled org-space label set back
// into remote space: prefix re-applied, untouched out-of-prefix remote
// labels preserved, and the sub-state label for the reconciled keyword
// appended.
func (r *reconciler) finalRemoteLabels(orgSpace, currentRemote []string, keyword string) []string {
	var out []string
	for _, l := range orgSpace {
		out = append(out, r.prefix+l)
	}
	if r.prefix != "" {
		for _, l := range currentRemote {
			if r.kws.IsStateLabel(l) || strings.HasPrefix(l, r.prefix) {
				continue
			}
			out = append(out, l)
		}
	}
	if sub := r.kws.StateLabel(keyword); sub != "" {
		out = append(out, sub)
	}
	return dedup(out)
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// resolvePair runs the per-field three-way reconciliation for one
// bound heading/issue pair. firstBind marks a pair being linked in
// this run (by title match); rec == nil means no baseline exists yet.
func (r *reconciler) resolvePair(h *org.Heading, gh *remote.Issue, rec *state.Record, firstBind bool) *PairPlan {
	identity := h.ID
	if rec != nil && rec.Identity != "" {
		// The baseline identity is authoritative once assigned; it
		// survives title renames that would change the slug.
		identity = rec.Identity
	}

	pair := &PairPlan{Number: gh.Number, Identity: identity, Title: h.Title, HeadingID: h.ID}

	ghKeyword := r.kws.KeywordForRemote(gh.Open, gh.Labels, gh.Reason)
	ghView := pairView{
		Title:     gh.Title,
		Body:      gh.Body,
		State:     ghKeyword,
		Assignees: gh.Assignees,
		Labels:    r.visibleLabels(gh.Labels),
	}
	orgView := pairView{
		Title:     h.Title,
		Body:      h.Body,
		State:     h.Keyword,
		Assignees: h.Assignees,
		Labels:    h.Labels,
	}

	if rec == nil {
		r.resolveFirstBind(pair, h, gh, orgView, ghView, firstBind)
		return pair
	}

	pair.IngestSince = rec.GHModifiedAt
	baseView := pairView{
		Title:     rec.Title,
		State:     rec.State,
		Assignees: rec.Assignees,
		Labels:    rec.Labels,
	}
	d := threeWay(orgView, ghView, baseView, rec.BodyDigest)

	// The record starts from the baseline and advances per resolved
	// field; conflicted fields keep their baseline value so the next
	// run re-detects them. The remote timestamp advances only when
	// this mode ingests events (pull/sync); in push mode it must stay
	// put so comments since the last sync are not silently skipped.
	newRec := &state.Record{
		Identity:      identity,
		Title:         rec.Title,
		BodyDigest:    rec.BodyDigest,
		State:         rec.State,
		Assignees:     rec.Assignees,
		Labels:        rec.Labels,
		GHModifiedAt:  rec.GHModifiedAt,
		OrgModifiedAt: rec.OrgModifiedAt,
	}
	if r.in.AllowPull {
		newRec.GHModifiedAt = gh.UpdatedAt
	}
	pair.Record = newRec

	patch := remote.Patch{}
	var pushedFields []string

	// Title. A push is skipped when both sides already agree (both
	// changed to the same value collapses to an org-direction no-op).
	switch r.direction(pair, d.Title, "title", orgView.Title, ghView.Title, r.in.Cfg.Sync.TitleConflict) {
	case ChangeOrg:
		if h.Title != gh.Title {
			patch.Title = &h.Title
			pushedFields = append(pushedFields, "title")
		}
		newRec.Title = h.Title
	case ChangeRemote:
		pair.Edits = append(pair.Edits, org.Edit{Heading: h.ID, Op: org.SetTitle, Value: gh.Title})
		pair.PulledFields = append(pair.PulledFields, "title")
		newRec.Title = gh.Title
	}

	// Body. Compared canonically; pushed and pulled verbatim.
	switch r.direction(pair, d.Body, "body", firstLine(orgView.Body), firstLine(ghView.Body), r.in.Cfg.Sync.BodyConflict) {
	case ChangeOrg:
		if CanonicalBody(h.Body) != CanonicalBody(gh.Body) {
			patch.Body = &h.Body
			pushedFields = append(pushedFields, "body")
		}
		newRec.BodyDigest = DigestBody(h.Body)
	case ChangeRemote:
		pair.Edits = append(pair.Edits, org.Edit{Heading: h.ID, Op: org.SetBody, Value: gh.Body})
		pair.PulledFields = append(pair.PulledFields, "body")
		newRec.BodyDigest = DigestBody(gh.Body)
	}

	// State, at keyword granularity.
	statePush := false
	switch r.direction(pair, d.State, "state", orgView.State, ghView.State, r.in.Cfg.Sync.StateConflict) {
	case ChangeOrg:
		statePush = true
		newRec.State = h.Keyword
		if r.kws.IsOpen(h.Keyword) != gh.Open {
			pair.State = &StateAction{
				Number:   gh.Number,
				Identity: identity,
				Open:     r.kws.IsOpen(h.Keyword),
				Reason:   r.kws.Reason(h.Keyword),
				Keyword:  h.Keyword,
			}
		}
	case ChangeRemote:
		pair.Edits = append(pair.Edits, org.Edit{Heading: h.ID, Op: org.SetState, Value: ghKeyword})
		pair.PulledFields = append(pair.PulledFields, "state")
		newRec.State = ghKeyword
	}

	// Assignees.
	switch r.direction(pair, d.Assignees, "assignees", org.JoinList(orgView.Assignees), org.JoinList(ghView.Assignees), r.in.Cfg.Sync.AssigneeConflict) {
	case ChangeOrg:
		assignees := append([]string(nil), h.Assignees...)
		if !setEqual(assignees, gh.Assignees) {
			patch.Assignees = &assignees
			pushedFields = append(pushedFields, "assignees")
		}
		newRec.Assignees = assignees
	case ChangeRemote:
		pair.Edits = append(pair.Edits, assigneeEdit(h.ID, gh.Assignees))
		pair.PulledFields = append(pair.PulledFields, "assignees")
		newRec.Assignees = append([]string(nil), gh.Assignees...)
	}

	// Labels: union merge on both-changed, no conflict ever. The
	// baseline advances to the reconciled set only when every half
	// that needs applying is allowed in this mode; a half-applied
	// merge would otherwise hide the remaining delta from later runs.
	pushLabels := newRec.Labels // what the remote should end up with
	labelPush, labelPull := false, false
	switch d.Labels {
	case ChangeOrg:
		if r.in.AllowPush {
			pushLabels = orgView.Labels
			labelPush = true
			newRec.Labels = append([]string(nil), orgView.Labels...)
		}
	case ChangeRemote:
		if r.in.AllowPull {
			pushLabels = ghView.Labels
			labelPull = true
			newRec.Labels = append([]string(nil), ghView.Labels...)
		}
	case ChangeBoth:
		merged := MergeLabels(orgView.Labels, ghView.Labels, baseView.Labels)
		labelPush = r.in.AllowPush
		labelPull = r.in.AllowPull
		if labelPush || labelPull {
			pushLabels = merged
		}
		if labelPush && labelPull {
			newRec.Labels = append([]string(nil), merged...)
		}
	}

	// The remote label set also encodes the reconciled sub-state, so a
	// pure keyword move (TODO -> DOING) still patches labels.
	if r.in.AllowPush && (labelPush || statePush) {
		final := r.finalRemoteLabels(pushLabels, gh.Labels, newRec.State)
		if !setEqual(final, gh.Labels) {
			patch.Labels = &final
			pushedFields = append(pushedFields, "labels")
		}
	}
	if labelPull && !setEqual(orgView.Labels, pushLabels) {
		pair.Edits = append(pair.Edits, labelsEdit(h.ID, pushLabels))
		pair.PulledFields = append(pair.PulledFields, "labels")
	}

	if !patch.IsEmpty() {
		pair.Update = &UpdateAction{Number: gh.Number, Identity: identity, Patch: patch, Fields: pushedFields}
	}
	if len(pair.Edits) > 0 {
		pair.Edits = append(pair.Edits, org.Edit{
			Heading: h.ID, Op: org.SetProperty, Key: "UPDATED", Value: org.FormatTimestamp(r.in.Now),
		})
		newRec.OrgModifiedAt = r.in.Now
	}
	if pair.Update != nil || pair.State != nil {
		newRec.OrgModifiedAt = r.in.Now
	}
	return pair
}

// direction applies the per-field merge policy and returns the winning
// direction: ChangeOrg to push, ChangeRemote to pull, ChangeNone to
// leave the field alone. Unresolved both-side changes land in the
// conflict list.
func (r *reconciler) direction(pair *PairPlan, c FieldChange, field, orgVal, ghVal string, pol config.Policy) FieldChange {
	switch c {
	case ChangeNone:
		return ChangeNone
	case ChangeOrg:
		if !r.in.AllowPush {
			return ChangeNone
		}
		return ChangeOrg
	case ChangeRemote:
		if !r.in.AllowPull {
			return ChangeNone
		}
		return ChangeRemote
	}

	// Both sides moved to different values.
	if r.in.Force && pol == config.PolicyPrompt {
		pol = config.PolicyOrgWins
	}
	if pol == config.PolicyPrompt && r.in.Prompt != nil {
		pol = r.in.Prompt(pair.Number, pair.Title, field, orgVal, ghVal)
	}
	switch pol {
	case config.PolicyOrgWins:
		if !r.in.AllowPush {
			// pull mode skips org-wins conflicts but reports them
			break
		}
		return ChangeOrg
	case config.PolicyGitHubWins:
		if !r.in.AllowPull {
			break
		}
		return ChangeRemote
	}
	pair.addConflict(r, field, orgVal, ghVal)
	return ChangeNone
}

func (p *PairPlan) addConflict(r *reconciler, field, orgVal, ghVal string) {
	r.plan.Conflicts = append(r.plan.Conflicts, output.Conflict{
		Issue:    p.Number,
		Identity: p.Identity,
		Field:    field,
		Org:      orgVal,
		Remote:   ghVal,
	})
}

// resolveFirstBind handles a pair with no baseline: the outline wins
// title, body and state; the remote is authoritative for labels and
// assignees. This makes title-match linkage idempotent.
func (r *reconciler) resolveFirstBind(pair *PairPlan, h *org.Heading, gh *remote.Issue, orgView, ghView pairView, newlyLinked bool) {
	patch := remote.Patch{}
	var pushedFields []string

	if r.in.AllowPush {
		if orgView.Title != ghView.Title {
			patch.Title = &h.Title
			pushedFields = append(pushedFields, "title")
		}
		if CanonicalBody(orgView.Body) != CanonicalBody(ghView.Body) {
			patch.Body = &h.Body
			pushedFields = append(pushedFields, "body")
		}
		if r.kws.IsOpen(h.Keyword) != gh.Open {
			pair.State = &StateAction{
				Number:   gh.Number,
				Identity: pair.Identity,
				Open:     r.kws.IsOpen(h.Keyword),
				Reason:   r.kws.Reason(h.Keyword),
				Keyword:  h.Keyword,
			}
		}
		// Sub-state labels follow the outline keyword even on first bind.
		final := r.finalRemoteLabels(ghView.Labels, gh.Labels, h.Keyword)
		if !setEqual(final, gh.Labels) {
			patch.Labels = &final
			pushedFields = append(pushedFields, "labels")
		}
	}

	if r.in.AllowPull || newlyLinked {
		if newlyLinked {
			pair.Edits = append(pair.Edits,
				org.Edit{Heading: h.ID, Op: org.SetProperty, Key: "GH_ISSUE", Value: fmt.Sprintf("%d", gh.Number)},
				org.Edit{Heading: h.ID, Op: org.SetProperty, Key: "GH_URL", Value: gh.URL},
				org.Edit{Heading: h.ID, Op: org.SetProperty, Key: "CREATED", Value: org.FormatTimestamp(gh.CreatedAt)},
			)
		}
		if r.in.AllowPull && len(ghView.Labels) > 0 && !setEqual(ghView.Labels, orgView.Labels) {
			pair.Edits = append(pair.Edits, labelsEdit(h.ID, ghView.Labels))
			pair.PulledFields = append(pair.PulledFields, "labels")
		}
		if r.in.AllowPull && len(gh.Assignees) > 0 && !setEqual(gh.Assignees, orgView.Assignees) {
			pair.Edits = append(pair.Edits, assigneeEdit(h.ID, gh.Assignees))
			pair.PulledFields = append(pair.PulledFields, "assignees")
		}
		if len(pair.Edits) > 0 {
			pair.Edits = append(pair.Edits, org.Edit{
				Heading: h.ID, Op: org.SetProperty, Key: "UPDATED", Value: org.FormatTimestamp(r.in.Now),
			})
		}
	}

	if !patch.IsEmpty() {
		pair.Update = &UpdateAction{Number: gh.Number, Identity: pair.Identity, Patch: patch, Fields: pushedFields}
	}

	// The record mirrors the converged state. When pull edits are not
	// applied in this mode, the remote-authoritative fields stay at
	// the outline's values so the next run still sees the delta.
	recLabels, recAssignees := orgView.Labels, orgView.Assignees
	if r.in.AllowPull {
		recLabels, recAssignees = ghView.Labels, gh.Assignees
	}
	pair.Record = &state.Record{
		Identity:      pair.Identity,
		Title:         h.Title,
		BodyDigest:    DigestBody(h.Body),
		State:         h.Keyword,
		Assignees:     append([]string(nil), recAssignees...),
		Labels:        append([]string(nil), recLabels...),
		GHModifiedAt:  gh.UpdatedAt,
		OrgModifiedAt: r.in.Now,
	}
}

func assigneeEdit(heading string, assignees []string) org.Edit {
	if len(assignees) == 0 {
		return org.Edit{Heading: heading, Op: org.UnsetProperty, Key: "ASSIGNEE"}
	}
	return org.Edit{Heading: heading, Op: org.SetProperty, Key: "ASSIGNEE", Value: org.JoinList(assignees)}
}

func labelsEdit(heading string, labels []string) org.Edit {
	if len(labels) == 0 {
		return org.Edit{Heading: heading, Op: org.UnsetProperty, Key: "LABELS"}
	}
	return org.Edit{Heading: heading, Op: org.SetProperty, Key: "LABELS", Value: org.JoinList(labels)}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
