package org

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EditOp enumerates the targeted edits the writer can apply.
type EditOp int

const (
	SetProperty EditOp = iota
	UnsetProperty
	SetBody
	SetState
	SetTitle
	AppendLog
)

func (op EditOp) String() string {
	switch op {
	case SetProperty:
		return "set-property"
	case UnsetProperty:
		return "unset-property"
	case SetBody:
		return "set-body"
	case SetState:
		return "set-state"
	case SetTitle:
		return "set-title"
	case AppendLog:
		return "append-log"
	}
	return "unknown"
}

// Edit is a single targeted change to one heading, addressed by the
// heading's identity.
type Edit struct {
	Heading string
	Op      EditOp
	Key     string    // SetProperty / UnsetProperty
	Value   string    // property value, body text, keyword, title, or log entry
	At      time.Time // AppendLog timestamp
}

// replacement is one resolved splice into the original content.
// Zero-length spans are insertions. prio breaks ties between
// insertions at the same offset: higher prio ends up earlier in the
// output (a new properties drawer lands before a new log drawer).
type replacement struct {
	span Span
	text string
	prio int
}

// recognizedKeys is the canonical leading order for rewritten drawers.
var recognizedKeys = []string{"CUSTOM_ID", "GH_ISSUE", "GH_URL", "ASSIGNEE", "LABELS", "CREATED", "UPDATED"}

func isRecognizedKey(key string) bool {
	for _, k := range recognizedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Apply splices the edits into the file's content and returns the new
// text. Bytes outside the edited headings' owned regions (keyword,
// title, properties drawer, body, log drawer) are untouched; with no
// edits the original text is returned byte-for-byte.
func Apply(f *File, edits []Edit, logDrawer string) (string, error) {
	if len(edits) == 0 {
		return f.Content, nil
	}
	if logDrawer == "" {
		logDrawer = "LOGBOOK"
	}

	byHeading := make(map[string][]Edit)
	var order []string
	for _, e := range edits {
		if _, ok := byHeading[e.Heading]; !ok {
			order = append(order, e.Heading)
		}
		byHeading[e.Heading] = append(byHeading[e.Heading], e)
	}

	var repls []replacement
	for _, id := range order {
		h := f.HeadingByID(id)
		if h == nil {
			return "", fmt.Errorf("no syncable heading with identity %q", id)
		}
		hr, err := headingReplacements(h, byHeading[id], logDrawer)
		if err != nil {
			return "", err
		}
		repls = append(repls, hr...)
	}

	// Single pass in reverse source order so earlier anchors stay valid.
	sort.Slice(repls, func(i, j int) bool {
		if repls[i].span.Start != repls[j].span.Start {
			return repls[i].span.Start > repls[j].span.Start
		}
		return repls[i].prio < repls[j].prio
	})

	out := f.Content
	prev := len(out) + 1
	for _, r := range repls {
		if r.span.End > prev && r.span.Len() > 0 {
			return "", fmt.Errorf("overlapping edits at offset %d", r.span.Start)
		}
		prev = r.span.Start
		text := r.text
		if r.span.Len() == 0 && text != "" && r.span.Start > 0 && out[r.span.Start-1] != '\n' {
			// Inserting after a line that has no terminator (EOF).
			text = "\n" + text
		}
		out = out[:r.span.Start] + text + out[r.span.End:]
	}
	return out, nil
}

func headingReplacements(h *Heading, edits []Edit, logDrawer string) ([]replacement, error) {
	props := append([]Property(nil), h.Properties...)
	propsTouched := false
	var bodyEdit *Edit
	var logEntries []Edit
	var repls []replacement

	for i := range edits {
		e := edits[i]
		switch e.Op {
		case SetState:
			repls = append(repls, replacement{h.KeywordSpan, e.Value, 0})
		case SetTitle:
			text := e.Value
			if h.TitleSpan.Start == h.KeywordSpan.End {
				// Keyword-only heading line: keep a separating space.
				text = " " + text
			}
			repls = append(repls, replacement{h.TitleSpan, text, 0})
		case SetProperty:
			key := strings.ToUpper(e.Key)
			found := false
			for j := range props {
				if props[j].Key == key {
					props[j].Value = e.Value
					found = true
					break
				}
			}
			if !found {
				props = append(props, Property{Key: key, Value: e.Value})
			}
			propsTouched = true
		case UnsetProperty:
			key := strings.ToUpper(e.Key)
			kept := props[:0]
			for _, p := range props {
				if p.Key != key {
					kept = append(kept, p)
				}
			}
			props = kept
			propsTouched = true
		case SetBody:
			bodyEdit = &edits[i]
		case AppendLog:
			logEntries = append(logEntries, e)
		default:
			return nil, fmt.Errorf("unknown edit op %d", e.Op)
		}
	}

	if propsTouched {
		repls = append(repls, propReplacement(h, props))
	}
	if len(logEntries) > 0 {
		repls = append(repls, logReplacement(h, logEntries, logDrawer))
	}
	if bodyEdit != nil {
		repls = append(repls, bodyReplacements(h, bodyEdit.Value)...)
	}
	return repls, nil
}

// propReplacement renders the drawer in canonical order: recognized
// keys first, then the remaining keys in their original order.
func propReplacement(h *Heading, props []Property) replacement {
	var ordered []Property
	for _, key := range recognizedKeys {
		for _, p := range props {
			if p.Key == key {
				ordered = append(ordered, p)
			}
		}
	}
	for _, p := range props {
		if !isRecognizedKey(p.Key) {
			ordered = append(ordered, p)
		}
	}

	if len(ordered) == 0 {
		if h.PropSpan == nil {
			// Unset on a heading without a drawer: nothing to do.
			return replacement{Span{h.HeadEnd, h.HeadEnd}, "", 1}
		}
		// Last property removed: drop the whole drawer.
		return replacement{*h.PropSpan, "", 1}
	}

	indent := h.PropIndent
	var b strings.Builder
	b.WriteString(indent + ":PROPERTIES:\n")
	for _, p := range ordered {
		if p.Value == "" {
			fmt.Fprintf(&b, "%s:%s:\n", indent, p.Key)
			continue
		}
		fmt.Fprintf(&b, "%s:%s: %s\n", indent, p.Key, p.Value)
	}
	b.WriteString(indent + ":END:\n")

	if h.PropSpan != nil {
		return replacement{*h.PropSpan, b.String(), 1}
	}
	return replacement{Span{h.HeadEnd, h.HeadEnd}, b.String(), 1}
}

// logReplacement rebuilds the log drawer with the new entries merged in
// chronological order. Each entry is a single paragraph line prefixed
// with "- ".
func logReplacement(h *Heading, entries []Edit, drawerName string) replacement {
	type logLine struct {
		text string
		at   time.Time
		seq  int
	}
	var all []logLine
	for i, existing := range h.LogLines {
		all = append(all, logLine{existing, logLineTime(existing), i})
	}
	base := len(all)
	for i, e := range entries {
		at := e.At
		if at.IsZero() {
			at = logLineTime(e.Value)
		}
		all = append(all, logLine{"- " + e.Value, at, base + i})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].at.IsZero() || all[j].at.IsZero() {
			return all[i].seq < all[j].seq
		}
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.Before(all[j].at)
		}
		return all[i].seq < all[j].seq
	})

	var b strings.Builder
	b.WriteString(":" + drawerName + ":\n")
	for _, l := range all {
		b.WriteString(l.text + "\n")
	}
	b.WriteString(":END:\n")

	if h.LogSpan != nil {
		return replacement{*h.LogSpan, b.String(), 0}
	}
	// A new drawer goes after the properties drawer, or after the
	// heading line when there is none.
	at := h.HeadEnd
	if h.PropSpan != nil {
		at = h.PropSpan.End
	}
	return replacement{Span{at, at}, b.String(), 0}
}

// logLineTime extracts the first bracketed ISO-8601 timestamp from a
// log entry, returning the zero time when absent.
func logLineTime(s string) time.Time {
	rest := s
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			return time.Time{}
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return time.Time{}
		}
		if t, err := time.Parse("2006-01-02T15:04:05Z", rest[:end]); err == nil {
			return t
		}
	}
}

// bodyReplacements swaps the body segments for the new text. The first
// segment receives the rendered body; any second segment (text after
// the log drawer) is removed.
func bodyReplacements(h *Heading, newBody string) []replacement {
	text := ""
	if strings.TrimSpace(newBody) != "" {
		text = strings.TrimRight(newBody, "\n") + "\n"
	}
	out := []replacement{{h.BodySegs[0], text, 0}}
	for _, seg := range h.BodySegs[1:] {
		out = append(out, replacement{seg, "", 0})
	}
	return out
}

// FormatTimestamp renders a time the way sync-assigned properties and
// log entries store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
