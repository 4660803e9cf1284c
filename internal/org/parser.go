package org

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Options controls what the parser treats as syncable.
type Options struct {
	// Depth is the heading level (number of stars) that is syncable.
	// Zero means the default of 1.
	Depth int

	// OpenKeywords and ClosedKeywords enumerate the recognized workflow
	// markers. Empty slices select the defaults.
	OpenKeywords   []string
	ClosedKeywords []string

	// LogDrawer names the sync-managed drawer. Empty means "LOGBOOK".
	LogDrawer string
}

// DefaultOpenKeywords and DefaultClosedKeywords are the built-in
// workflow marker sets.
var (
	DefaultOpenKeywords   = []string{"TODO", "DOING", "BLOCKED", "WAITING"}
	DefaultClosedKeywords = []string{"DONE", "CANCELLED", "WONTFIX"}
)

func (o Options) withDefaults() Options {
	if o.Depth <= 0 {
		o.Depth = 1
	}
	if len(o.OpenKeywords) == 0 {
		o.OpenKeywords = DefaultOpenKeywords
	}
	if len(o.ClosedKeywords) == 0 {
		o.ClosedKeywords = DefaultClosedKeywords
	}
	if o.LogDrawer == "" {
		o.LogDrawer = "LOGBOOK"
	}
	return o
}

var (
	directiveRe = regexp.MustCompile(`^#\+([A-Za-z_][A-Za-z0-9_]*):(.*)$`)
	propertyRe  = regexp.MustCompile(`^\s*:([A-Za-z0-9_][A-Za-z0-9_-]*):(?:[ \t]+(.*))?$`)
	tagsRe      = regexp.MustCompile(`((?::[A-Za-z0-9_@#%]+)+:)[ \t]*$`)
	markerRe    = regexp.MustCompile(`^[A-Z]{2,16}$`)
)

// line is a single physical line with its byte offsets.
type line struct {
	text  string
	start int // offset of first byte
	end   int // offset past the last content byte (before the newline)
	next  int // offset past the newline (start of the following line)
}

func splitLines(content string) []line {
	var out []line
	off := 0
	for off <= len(content) {
		nl := strings.IndexByte(content[off:], '\n')
		if nl < 0 {
			if off < len(content) {
				out = append(out, line{content[off:], off, len(content), len(content)})
			}
			break
		}
		end := off + nl
		// Tolerate CRLF without treating the CR as content.
		text := content[off:end]
		if strings.HasSuffix(text, "\r") {
			text = text[:len(text)-1]
		}
		out = append(out, line{text, off, end, end + 1})
		off = end + 1
	}
	return out
}

func headingLevel(text string) int {
	n := 0
	for n < len(text) && text[n] == '*' {
		n++
	}
	if n == 0 || n >= len(text) || text[n] != ' ' {
		return 0
	}
	return n
}

// Parse reads the outline text into a File. The path is recorded only
// for reporting; Parse performs no IO.
func Parse(path, content string, opts Options) (*File, error) {
	opts = opts.withDefaults()

	open := make(map[string]bool, len(opts.OpenKeywords))
	for _, k := range opts.OpenKeywords {
		open[strings.ToUpper(k)] = true
	}
	closed := make(map[string]bool, len(opts.ClosedKeywords))
	for _, k := range opts.ClosedKeywords {
		closed[strings.ToUpper(k)] = true
	}

	f := &File{
		Path:       path,
		Content:    content,
		Directives: make(map[string]string),
	}

	lines := splitLines(content)

	// File-level directives run from the top to the first heading.
	firstHeading := len(lines)
	for i, ln := range lines {
		if headingLevel(ln.text) > 0 {
			firstHeading = i
			break
		}
	}
	for i := 0; i < firstHeading; i++ {
		m := directiveRe.FindStringSubmatch(lines[i].text)
		if m == nil {
			continue
		}
		key := strings.ToUpper(m[1])
		value := strings.TrimSpace(m[2])
		if value == "" {
			return nil, parseErrorf(i+1, "directive #+%s: has no value", key)
		}
		f.Directives[key] = value
	}

	// Index every heading line so subtree boundaries are cheap to find.
	type headPos struct {
		idx   int
		level int
	}
	var heads []headPos
	for i := firstHeading; i < len(lines); i++ {
		if lvl := headingLevel(lines[i].text); lvl > 0 {
			heads = append(heads, headPos{i, lvl})
		}
	}

	seen := make(map[string]int) // identity -> line
	for hi, hp := range heads {
		if hp.level != opts.Depth {
			continue
		}
		ln := lines[hp.idx]

		// Subtree runs to the next heading at equal or shallower level.
		subtreeEnd := len(content)
		for _, nxt := range heads[hi+1:] {
			if nxt.level <= hp.level {
				subtreeEnd = lines[nxt.idx].start
				break
			}
		}
		// The heading's own section stops at the next heading of any level.
		sectionEndIdx := len(lines)
		if hi+1 < len(heads) {
			sectionEndIdx = heads[hi+1].idx
		}

		kw, kwSpan, title, titleSpan, tags := parseHeadline(ln, hp.level)
		upper := strings.ToUpper(kw)
		if kw == "" || (!open[upper] && !closed[upper]) {
			if kw != "" && markerRe.MatchString(kw) {
				f.Skipped = append(f.Skipped, SkippedHeading{
					Line:    hp.idx + 1,
					Keyword: kw,
					Title:   title,
				})
			}
			continue
		}
		if open[upper] && closed[upper] {
			return nil, parseErrorf(hp.idx+1, "ambiguous workflow marker %q: configured as both open and closed", kw)
		}

		h := &Heading{
			Level:       hp.level,
			Line:        hp.idx + 1,
			Keyword:     upper,
			Title:       title,
			Tags:        tags,
			Span:        Span{ln.start, subtreeEnd},
			KeywordSpan: kwSpan,
			TitleSpan:   titleSpan,
			HeadEnd:     ln.next,
		}

		bodyStart := ln.next
		nextIdx := hp.idx + 1

		// Properties drawer must immediately follow the heading line.
		if nextIdx < sectionEndIdx && nextIdx < len(lines) &&
			strings.EqualFold(strings.TrimSpace(lines[nextIdx].text), ":PROPERTIES:") {
			drawer := lines[nextIdx]
			indent := drawer.text[:len(drawer.text)-len(strings.TrimLeft(drawer.text, " \t"))]
			endIdx := -1
			for j := nextIdx + 1; j < sectionEndIdx && j < len(lines); j++ {
				trimmed := strings.TrimSpace(lines[j].text)
				if strings.EqualFold(trimmed, ":END:") {
					endIdx = j
					break
				}
				m := propertyRe.FindStringSubmatch(lines[j].text)
				if m == nil {
					return nil, parseErrorf(j+1, "malformed properties drawer: %q", strings.TrimSpace(lines[j].text))
				}
				h.Properties = append(h.Properties, Property{
					Key:   strings.ToUpper(m[1]),
					Value: strings.TrimSpace(m[2]),
				})
			}
			if endIdx < 0 {
				return nil, parseErrorf(nextIdx+1, "unterminated properties drawer")
			}
			h.PropSpan = &Span{drawer.start, lines[endIdx].next}
			h.PropIndent = indent
			bodyStart = lines[endIdx].next
			nextIdx = endIdx + 1
		}

		// Log drawer anywhere in the heading's own section.
		logName := ":" + strings.ToUpper(opts.LogDrawer) + ":"
		for j := nextIdx; j < sectionEndIdx && j < len(lines); j++ {
			if !strings.EqualFold(strings.TrimSpace(lines[j].text), logName) {
				continue
			}
			endIdx := -1
			for k := j + 1; k < sectionEndIdx && k < len(lines); k++ {
				if strings.EqualFold(strings.TrimSpace(lines[k].text), ":END:") {
					endIdx = k
					break
				}
				h.LogLines = append(h.LogLines, lines[k].text)
			}
			if endIdx < 0 {
				return nil, parseErrorf(j+1, "unterminated %s drawer", opts.LogDrawer)
			}
			h.LogSpan = &Span{lines[j].start, lines[endIdx].next}
			break
		}

		if h.LogSpan != nil {
			h.BodySegs = []Span{
				{bodyStart, h.LogSpan.Start},
				{h.LogSpan.End, subtreeEnd},
			}
		} else {
			h.BodySegs = []Span{{bodyStart, subtreeEnd}}
		}
		var body strings.Builder
		for _, seg := range h.BodySegs {
			if seg.End > seg.Start {
				body.WriteString(content[seg.Start:seg.End])
			}
		}
		h.Body = strings.TrimSpace(body.String())

		if err := bindProperties(h); err != nil {
			return nil, err
		}
		if h.ID == "" {
			h.ID = Slugify(h.Title)
		}
		if prev, dup := seen[h.ID]; dup {
			return nil, parseErrorf(hp.idx+1, "duplicate heading identity %q (first at line %d)", h.ID, prev)
		}
		seen[h.ID] = hp.idx + 1

		f.Headings = append(f.Headings, h)
	}

	return f, nil
}

// parseHeadline splits a heading line into keyword, title and tags,
// returning byte spans for the keyword and title.
func parseHeadline(ln line, level int) (kw string, kwSpan Span, title string, titleSpan Span, tags []string) {
	rest := ln.text[level+1:]
	restStart := ln.start + level + 1

	tagsStart := len(rest)
	if m := tagsRe.FindStringSubmatchIndex(rest); m != nil {
		for _, t := range strings.Split(strings.Trim(rest[m[2]:m[3]], ":"), ":") {
			if t != "" {
				tags = append(tags, t)
			}
		}
		tagsStart = m[0]
	}

	head := rest[:tagsStart]
	// First word is the workflow keyword candidate.
	trimmedOff := len(head) - len(strings.TrimLeft(head, " \t"))
	word := strings.TrimLeft(head, " \t")
	wordEnd := strings.IndexAny(word, " \t")
	if wordEnd < 0 {
		wordEnd = len(word)
	}
	kw = word[:wordEnd]
	kwStart := restStart + trimmedOff
	kwSpan = Span{kwStart, kwStart + len(kw)}

	// Trim the title but keep precise offsets for in-place rewriting.
	titleText := head[trimmedOff+wordEnd:]
	lead := len(titleText) - len(strings.TrimLeft(titleText, " \t"))
	titleText = strings.TrimSpace(titleText)
	start := restStart + trimmedOff + wordEnd + lead
	titleSpan = Span{start, start + len(titleText)}
	title = titleText
	return
}

// bindProperties interprets the recognized property keys on a heading.
func bindProperties(h *Heading) error {
	for _, p := range h.Properties {
		switch p.Key {
		case "CUSTOM_ID":
			h.ID = p.Value
		case "GH_ISSUE":
			n, err := strconv.Atoi(p.Value)
			if err != nil || n <= 0 {
				return parseErrorf(h.Line, "invalid GH_ISSUE value %q", p.Value)
			}
			h.Issue = n
		case "GH_URL":
			h.URL = p.Value
		case "ASSIGNEE":
			h.Assignees = SplitList(p.Value)
		case "LABELS":
			h.Labels = SplitList(p.Value)
		case "CREATED":
			h.Created = parseTimestamp(p.Value)
		case "UPDATED":
			h.Updated = parseTimestamp(p.Value)
		}
	}
	return nil
}

// parseTimestamp accepts RFC 3339, a bare ISO date-time, or a date.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
