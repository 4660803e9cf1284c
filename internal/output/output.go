// Package output defines the structured results org-gh commands emit
// and renders them as human text, s-expressions, or JSON.
//
// In --sexp and --json modes the result is the only thing written to
// stdout; human-readable progress goes to stderr.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/orgmode-tools/org-gh/internal/ui"
)

// Format selects how results are rendered.
type Format int

const (
	FormatHuman Format = iota
	FormatSexp
	FormatJSON
)

// Outcome values for ActionResult.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeClosed   = "closed"
	OutcomeReopened = "reopened"
	OutcomeMatched  = "matched"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// ActionResult is the outcome of one planned remote mutation.
type ActionResult struct {
	Kind     string `json:"kind"` // create, update, state, unlink
	Identity string `json:"identity,omitempty"`
	Issue    int    `json:"issue_number,omitempty"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// PullChange reports fields pulled into the outline for one issue.
type PullChange struct {
	Issue  int      `json:"issue_number"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
}

// Conflict is a field that changed on both sides to different values
// and was not auto-merged.
type Conflict struct {
	Issue    int    `json:"issue_number"`
	Identity string `json:"identity"`
	Field    string `json:"field"`
	Org      string `json:"org"`
	Remote   string `json:"remote"`
}

// Counts summarizes a run.
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Closed    int `json:"closed"`
	Reopened  int `json:"reopened"`
	Matched   int `json:"matched"`
	Pulled    int `json:"pulled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
	Warnings  int `json:"warnings"`
}

// Result is the structured value every command emits.
type Result struct {
	Mode      string         `json:"mode"`
	File      string         `json:"file"`
	Repo      string         `json:"repo,omitempty"`
	DryRun    bool           `json:"dry_run,omitempty"`
	LastSync  string         `json:"last_sync,omitempty"`
	Actions   []ActionResult `json:"actions"`
	Pulled    []PullChange   `json:"pulled"`
	Conflicts []Conflict     `json:"conflicts"`
	Warnings  []string       `json:"warnings"`
	Orphans   []int          `json:"orphans,omitempty"`
	Pending   []string       `json:"pending_creates,omitempty"`
	Counts    Counts         `json:"counts"`

	// Error carries a whole-operation failure so --sexp/--json callers
	// always receive a single structured value.
	Error string `json:"error,omitempty"`
}

// Recount recomputes Counts from the collected actions.
func (r *Result) Recount() {
	c := Counts{Conflicts: len(r.Conflicts), Warnings: len(r.Warnings), Pulled: len(r.Pulled)}
	for _, a := range r.Actions {
		switch a.Outcome {
		case OutcomeCreated:
			c.Created++
		case OutcomeUpdated:
			c.Updated++
		case OutcomeClosed:
			c.Closed++
		case OutcomeReopened:
			c.Reopened++
		case OutcomeMatched:
			c.Matched++
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeFailed:
			c.Failed++
		}
	}
	r.Counts = c
}

// Failed reports whether any action failed permanently.
func (r *Result) Failed() bool {
	for _, a := range r.Actions {
		if a.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Render writes the result in the requested format. Human output is
// styled; sexp and JSON are single machine-readable values.
func Render(w io.Writer, r *Result, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatSexp:
		s, err := ToSexp(r)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, s+"\n")
		return err
	default:
		_, err := io.WriteString(w, r.Human())
		return err
	}
}

// Human renders the result for a terminal.
func (r *Result) Human() string {
	var b strings.Builder

	if r.Mode == "init" {
		fmt.Fprintf(&b, "Initialized %s for %s\n", r.File, r.Repo)
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "%s %s\n", ui.RenderWarn("note:"), w)
		}
		return b.String()
	}

	if r.Mode == "status" {
		fmt.Fprintf(&b, "Repository: %s\n", r.Repo)
		last := r.LastSync
		if last == "" {
			last = "never"
		}
		fmt.Fprintf(&b, "Last sync: %s\n", last)
		if len(r.Pending) > 0 {
			fmt.Fprintf(&b, "New headings to create:\n")
			for _, p := range r.Pending {
				fmt.Fprintf(&b, "  - %s\n", p)
			}
		}
	}

	if r.DryRun && r.Mode != "status" {
		fmt.Fprintf(&b, "%s\n", ui.RenderMuted("dry run - no changes were made"))
	}
	for _, a := range r.Actions {
		ref := a.Title
		if a.Issue > 0 {
			ref = fmt.Sprintf("#%d: %s", a.Issue, a.Title)
		}
		switch a.Outcome {
		case OutcomeFailed:
			fmt.Fprintf(&b, "%s %s: %s\n", ui.RenderFail("failed"), ref, a.Error)
		case OutcomeSkipped:
			fmt.Fprintf(&b, "%s %s %s\n", ui.RenderMuted("would"), a.Kind, ref)
		case OutcomeCreated, OutcomeMatched:
			fmt.Fprintf(&b, "%s %s\n", ui.RenderPass(a.Outcome), ref)
			if a.URL != "" {
				fmt.Fprintf(&b, "  %s\n", ui.RenderMuted(a.URL))
			}
		default:
			fmt.Fprintf(&b, "%s %s\n", ui.RenderPass(a.Outcome), ref)
		}
	}
	for _, p := range r.Pulled {
		fmt.Fprintf(&b, "%s #%d: %s (%s)\n", ui.RenderAccent("pulled"), p.Issue, p.Title, strings.Join(p.Fields, ", "))
	}
	for _, c := range r.Conflicts {
		fmt.Fprintf(&b, "%s #%d %s: org=%q remote=%q\n", ui.RenderWarn("conflict"), c.Issue, c.Field, c.Org, c.Remote)
		if d := conflictDiff(c.Org, c.Remote); d != "" {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "%s %s\n", ui.RenderWarn("warning:"), w)
	}

	c := r.Counts
	if r.Mode == "unlink" {
		return b.String()
	}
	if c.Created+c.Updated+c.Closed+c.Reopened+c.Matched+c.Pulled+c.Conflicts == 0 && !r.Failed() {
		b.WriteString("Everything is in sync.\n")
	} else {
		fmt.Fprintf(&b, "\n%d created, %d updated, %d closed, %d pulled, %d skipped",
			c.Created+c.Matched, c.Updated, c.Closed+c.Reopened, c.Pulled, c.Skipped)
		if c.Conflicts > 0 {
			fmt.Fprintf(&b, ", %d conflicts (use --force to let the outline win)", c.Conflicts)
		}
		if c.Failed > 0 {
			fmt.Fprintf(&b, ", %d failed", c.Failed)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// conflictDiff highlights how the two sides of a short conflicted
// value differ. Empty values and identical values yield "".
func conflictDiff(orgVal, ghVal string) string {
	if orgVal == "" || ghVal == "" || orgVal == ghVal {
		return ""
	}
	d := diffmatchpatch.New()
	diffs := d.DiffMain(orgVal, ghVal, false)
	diffs = d.DiffCleanupSemantic(diffs)
	return d.DiffPrettyText(diffs)
}
