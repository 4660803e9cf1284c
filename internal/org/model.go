// Package org parses and rewrites org-mode outline files.
//
// The parser extracts syncable headings (those carrying a recognized
// workflow keyword at the configured depth) together with byte-range
// anchors for every region the writer is allowed to touch. Everything
// outside those anchors round-trips byte-for-byte.
package org

import (
	"strings"
	"time"
)

// Span is a half-open byte range [Start, End) into the original content.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Property is a single key/value entry from a properties drawer.
// Keys are stored uppercased; values are trimmed of surrounding whitespace.
type Property struct {
	Key   string
	Value string
}

// File is a parsed outline document.
type File struct {
	// Path the content was read from (informational; Parse does no IO).
	Path string

	// Content is the raw text the file was parsed from. The writer
	// splices edits into this.
	Content string

	// Directives maps file-level "#+KEY: value" lines (keys uppercased).
	Directives map[string]string

	// Headings holds the syncable headings in document order.
	Headings []*Heading

	// Skipped lists headings at syncable depth whose leading keyword
	// looked like a workflow marker but is not configured. These are
	// reported as warnings and excluded from reconciliation.
	Skipped []SkippedHeading
}

// SkippedHeading records a heading that was excluded from sync.
type SkippedHeading struct {
	Line    int
	Keyword string
	Title   string
}

// Heading is a single syncable heading.
type Heading struct {
	// ID is the stable identity hint: CUSTOM_ID when present, otherwise
	// a slug of the title. The binding identity recorded in the baseline
	// wins over this once assigned.
	ID string

	Level   int
	Line    int // 1-based line number of the heading line
	Keyword string
	Title   string
	Tags    []string

	// Body is the section text below the heading (and its properties
	// drawer), excluding the log drawer, trimmed of leading and trailing
	// whitespace (blank lines and the first line's indentation included).
	// Deeper subheadings are part of the body.
	Body string

	// Properties holds the drawer entries in original order.
	Properties []Property

	// LogLines holds the entries of the log drawer, one line each,
	// without the drawer delimiters.
	LogLines []string

	Issue     int // bound issue number, 0 when unbound
	URL       string
	Assignees []string
	Labels    []string
	Created   time.Time
	Updated   time.Time

	// Anchors into File.Content. PropSpan and LogSpan cover whole lines
	// including the trailing newline of the closing delimiter; they are
	// nil when the drawer is absent.
	Span        Span // heading line through end of subtree
	KeywordSpan Span // the workflow keyword on the heading line
	TitleSpan   Span // the title text on the heading line
	HeadEnd     int  // offset just past the heading line's newline
	PropSpan    *Span
	LogSpan     *Span
	PropIndent  string

	// BodySegs are the segments that make up the body (the section minus
	// the log drawer). At most two: before and after the log drawer.
	BodySegs []Span
}

// Property returns the value for key (case-insensitive) and whether it
// was present.
func (h *Heading) Property(key string) (string, bool) {
	key = strings.ToUpper(key)
	for _, p := range h.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Repo returns the value of the required #+GH_REPO: directive.
func (f *File) Repo() string { return f.Directives["GH_REPO"] }

// LabelPrefix returns the optional #+GH_LABEL_PREFIX: directive.
func (f *File) LabelPrefix() string { return f.Directives["GH_LABEL_PREFIX"] }

// DefaultLabels returns the optional #+GH_DEFAULT_LABELS: directive,
// split on commas.
func (f *File) DefaultLabels() []string {
	return SplitList(f.Directives["GH_DEFAULT_LABELS"])
}

// HeadingByID finds a syncable heading by its identity hint.
func (f *File) HeadingByID(id string) *Heading {
	for _, h := range f.Headings {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// HeadingByIssue finds the heading bound to the given issue number.
func (f *File) HeadingByIssue(number int) *Heading {
	for _, h := range f.Headings {
		if h.Issue == number {
			return h
		}
	}
	return nil
}

// SplitList parses a comma-separated property value into a list.
// Elements are trimmed, empties dropped, duplicates removed with the
// first occurrence keeping its position.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// JoinList renders a list the way SplitList parses it.
func JoinList(items []string) string {
	return strings.Join(items, ", ")
}
