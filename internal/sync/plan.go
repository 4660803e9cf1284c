package sync

import (
	"fmt"
	"time"

	"github.com/orgmode-tools/org-gh/internal/org"
	"github.com/orgmode-tools/org-gh/internal/output"
	"github.com/orgmode-tools/org-gh/internal/remote"
	"github.com/orgmode-tools/org-gh/internal/state"
)

// CreateAction plans one remote issue creation for an unbound heading.
type CreateAction struct {
	Identity  string
	Title     string
	Body      string
	Keyword   string
	Labels    []string // remote space: prefixed, defaults and sub-state label included
	OrgLabels []string // org space, recorded in the baseline
	Assignees []string
}

// UpdateAction plans a sparse field update against one issue.
type UpdateAction struct {
	Number   int
	Identity string
	Patch    remote.Patch
	Fields   []string // pushed field names, for reporting
}

// StateAction plans an open/closed transition.
type StateAction struct {
	Number   int
	Identity string
	Open     bool
	Reason   string
	Keyword  string // reconciled workflow keyword
}

// PairPlan is everything the orchestrator needs to finish one bound
// pair: its remote mutations, its outline edits, and the baseline
// record to store once the mutations succeed.
type PairPlan struct {
	Number   int
	Identity string
	Title    string

	// HeadingID addresses the parsed heading for writer edits. It can
	// differ from Identity after a title rename (the baseline identity
	// is stable; the slug is not).
	HeadingID string

	Update *UpdateAction
	State  *StateAction

	// Edits are the pull-direction outline edits. They are applied only
	// when the pair's remote mutations (if any) succeed, so a failed
	// pair stays fully unadvanced and the next run reconverges.
	Edits []org.Edit

	PulledFields []string

	// Record is the baseline snapshot to persist on success.
	Record *state.Record

	// IngestSince is the cutoff for event ingestion; the zero time
	// disables ingestion for this pair (first bind).
	IngestSince time.Time
}

// Plan is the reconciler's output. Creates are ordered by identity,
// pairs by ascending issue number, giving deterministic re-runs.
type Plan struct {
	Creates   []*CreateAction
	Pairs     []*PairPlan
	Conflicts []output.Conflict
	Warnings  []string
	Orphans   []int

	// PendingCreates mirrors Creates as identity/title pairs; the
	// orchestrator reports their titles as the result's pending creates.
	// Baseline pending-create records are written from Creates when a
	// create is not executed (pull mode, interruption, failure).
	PendingCreates []state.PendingCreate
}

// HasRemoteMutations reports whether executing the plan would touch
// the remote at all.
func (p *Plan) HasRemoteMutations() bool {
	if len(p.Creates) > 0 {
		return true
	}
	for _, pr := range p.Pairs {
		if pr.Update != nil || pr.State != nil {
			return true
		}
	}
	return false
}

// DuplicateBindingError is fatal: two headings claim the same issue.
// No side effects are performed when it is raised.
type DuplicateBindingError struct {
	Number int
	First  string
	Second string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("issue #%d is bound to two headings (%q and %q)", e.Number, e.First, e.Second)
}
