// Package sync implements the three-way reconciliation engine and the
// orchestrator that drives init/push/pull/sync/status/unlink.
//
// The reconciler compares three views of every bound pair - the parsed
// outline heading, the remote issue, and the baseline snapshot - and
// turns per-field changes into a plan: an ordered set of remote
// mutations, an ordered set of outline edits, and a conflict list. The
// reconciler itself performs no side effects.
package sync

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// FieldChange classifies one field of a three-way comparison.
type FieldChange int

const (
	// ChangeNone: neither side moved from the baseline.
	ChangeNone FieldChange = iota
	// ChangeOrg: only the outline moved.
	ChangeOrg
	// ChangeRemote: only the remote moved.
	ChangeRemote
	// ChangeBoth: both sides moved to different values.
	ChangeBoth
)

func (c FieldChange) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangeOrg:
		return "org"
	case ChangeRemote:
		return "remote"
	case ChangeBoth:
		return "both"
	}
	return "unknown"
}

// DiffResult holds the per-field classification for one bound pair.
// State is compared at workflow-keyword granularity so sub-state moves
// (TODO -> DOING) are visible even when open/closed is unchanged.
type DiffResult struct {
	Title     FieldChange
	Body      FieldChange
	State     FieldChange
	Assignees FieldChange
	Labels    FieldChange
}

// HasChanges reports whether any field moved.
func (d DiffResult) HasChanges() bool {
	return d.Title != ChangeNone || d.Body != ChangeNone || d.State != ChangeNone ||
		d.Assignees != ChangeNone || d.Labels != ChangeNone
}

// pairView is one side of a bound pair collapsed to the compared
// fields. Labels are in org space (prefix stripped, sub-state labels
// removed); State is the workflow keyword.
type pairView struct {
	Title     string
	Body      string // raw; compared canonically
	State     string
	Assignees []string
	Labels    []string
}

// threeWay classifies each field. Both-changed-to-equal collapses to
// ChangeOrg so the common value is adopted without a conflict.
func threeWay(org, gh, base pairView, baseBodyDigest string) DiffResult {
	return DiffResult{
		Title:     diffString(org.Title, gh.Title, base.Title),
		Body:      diffDigest(DigestBody(org.Body), DigestBody(gh.Body), baseBodyDigest),
		State:     diffString(org.State, gh.State, base.State),
		Assignees: diffSet(org.Assignees, gh.Assignees, base.Assignees),
		Labels:    diffSet(org.Labels, gh.Labels, base.Labels),
	}
}

func diffString(org, gh, base string) FieldChange {
	orgChanged := org != base
	ghChanged := gh != base
	switch {
	case !orgChanged && !ghChanged:
		return ChangeNone
	case orgChanged && !ghChanged:
		return ChangeOrg
	case !orgChanged && ghChanged:
		return ChangeRemote
	case org == gh:
		return ChangeOrg
	}
	return ChangeBoth
}

func diffDigest(org, gh, base string) FieldChange {
	return diffString(org, gh, base)
}

func diffSet(org, gh, base []string) FieldChange {
	orgChanged := !setEqual(org, base)
	ghChanged := !setEqual(gh, base)
	switch {
	case !orgChanged && !ghChanged:
		return ChangeNone
	case orgChanged && !ghChanged:
		return ChangeOrg
	case !orgChanged && ghChanged:
		return ChangeRemote
	case setEqual(org, gh):
		return ChangeOrg
	}
	return ChangeBoth
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}

// CanonicalBody normalizes a body for comparison: trailing whitespace
// stripped per line, CRLF folded, at most one final newline.
func CanonicalBody(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

// DigestBody hashes the canonical body for baseline storage.
func DigestBody(body string) string {
	sum := sha256.Sum256([]byte(CanonicalBody(body)))
	return fmt.Sprintf("sha256:%x", sum)
}

// MergeLabels computes the union merge for a both-changed label set:
// (O ∩ G) ∪ (O \ B) ∪ (G \ B). A label kept by both sides survives, an
// addition on either side survives, and a removal on either side wins
// (a baseline label dropped by one side does not come back from the
// other). Order: org labels first in their original order, then
// remote-only additions in theirs.
func MergeLabels(orgLabels, ghLabels, base []string) []string {
	baseSet := toSet(base)
	orgSet := toSet(orgLabels)
	ghSet := toSet(ghLabels)

	keep := func(l string) bool {
		return (orgSet[l] && ghSet[l]) || !baseSet[l]
	}

	seen := make(map[string]bool)
	var out []string
	for _, l := range orgLabels {
		if keep(l) && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range ghLabels {
		if keep(l) && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[s] = true
	}
	return out
}
