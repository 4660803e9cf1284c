package org

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustParse(t *testing.T, content string) *File {
	t.Helper()
	f, err := Parse("test.org", content, Options{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return f
}

func TestParse_Directives(t *testing.T) {
	f := mustParse(t, `#+TITLE: Roadmap
#+GH_REPO: octo/widgets
#+GH_LABEL_PREFIX: org/
#+GH_DEFAULT_LABELS: tracked, roadmap

* TODO First
`)
	if got := f.Repo(); got != "octo/widgets" {
		t.Errorf("Repo() = %q, want %q", got, "octo/widgets")
	}
	if got := f.LabelPrefix(); got != "org/" {
		t.Errorf("LabelPrefix() = %q, want %q", got, "org/")
	}
	if got := f.DefaultLabels(); !reflect.DeepEqual(got, []string{"tracked", "roadmap"}) {
		t.Errorf("DefaultLabels() = %v", got)
	}
}

func TestParse_DirectiveWithoutValue(t *testing.T) {
	_, err := Parse("test.org", "#+GH_REPO:\n* TODO X\n", Options{})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Line != 1 {
		t.Errorf("ParseError.Line = %d, want 1", perr.Line)
	}
}

func TestParse_DirectivesOnlyBeforeFirstHeading(t *testing.T) {
	f := mustParse(t, "* TODO X\n#+GH_REPO: late/too\n")
	if f.Repo() != "" {
		t.Errorf("directive after first heading should be ignored, got %q", f.Repo())
	}
}

func TestParse_Headings(t *testing.T) {
	f := mustParse(t, `#+GH_REPO: o/r

* TODO First task
Some body content.

* DONE Completed task
* Plain heading without keyword
* TODO nested parent
** TODO subtask is body text
`)
	if len(f.Headings) != 3 {
		t.Fatalf("got %d headings, want 3", len(f.Headings))
	}
	first := f.Headings[0]
	if first.Title != "First task" || first.Keyword != "TODO" {
		t.Errorf("first = %q/%q", first.Keyword, first.Title)
	}
	if first.Body != "Some body content." {
		t.Errorf("body = %q", first.Body)
	}
	if f.Headings[1].Keyword != "DONE" || f.Headings[1].Body != "" {
		t.Errorf("second = %q body=%q", f.Headings[1].Keyword, f.Headings[1].Body)
	}
	// Subheadings are part of the parent's body, not syncable themselves.
	if got := f.Headings[2].Body; got != "** TODO subtask is body text" {
		t.Errorf("nested body = %q", got)
	}
}

func TestParse_UnconfiguredMarkerSkipped(t *testing.T) {
	f := mustParse(t, "* SOMEDAY Maybe later\n* TODO Real\n")
	if len(f.Headings) != 1 {
		t.Fatalf("got %d headings, want 1", len(f.Headings))
	}
	if len(f.Skipped) != 1 || f.Skipped[0].Keyword != "SOMEDAY" {
		t.Fatalf("Skipped = %+v", f.Skipped)
	}
	if f.Skipped[0].Line != 1 {
		t.Errorf("Skipped line = %d", f.Skipped[0].Line)
	}
}

func TestParse_Properties(t *testing.T) {
	f := mustParse(t, `* TODO Fix flaky test
:PROPERTIES:
:GH_ISSUE: 42
:GH_URL: https://github.com/o/r/issues/42
:ASSIGNEE: alice, bob
:LABELS: bug, ci
:CREATED: 2026-01-02T03:04:05Z
:OWNER: platform
:END:
Body.
`)
	h := f.Headings[0]
	if h.Issue != 42 || h.URL != "https://github.com/o/r/issues/42" {
		t.Errorf("issue binding = %d %q", h.Issue, h.URL)
	}
	if !reflect.DeepEqual(h.Assignees, []string{"alice", "bob"}) {
		t.Errorf("assignees = %v", h.Assignees)
	}
	if !reflect.DeepEqual(h.Labels, []string{"bug", "ci"}) {
		t.Errorf("labels = %v", h.Labels)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !h.Created.Equal(want) {
		t.Errorf("created = %v", h.Created)
	}
	if v, ok := h.Property("OWNER"); !ok || v != "platform" {
		t.Errorf("user property OWNER = %q, %v", v, ok)
	}
	if h.Body != "Body." {
		t.Errorf("body = %q", h.Body)
	}
}

func TestParse_MalformedDrawer(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{"non-property line", "* TODO X\n:PROPERTIES:\nnot a property\n:END:\n", 3},
		{"unterminated", "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n", 2},
		{"bad issue number", "* TODO X\n:PROPERTIES:\n:GH_ISSUE: twelve\n:END:\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.org", tt.content, Options{})
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if perr.Line != tt.line {
				t.Errorf("line = %d, want %d", perr.Line, tt.line)
			}
		})
	}
}

func TestParse_LogDrawerExcludedFromBody(t *testing.T) {
	f := mustParse(t, `* TODO X
:PROPERTIES:
:GH_ISSUE: 7
:END:
:LOGBOOK:
- comment by @a [2026-01-01T00:00:00Z]: hi
:END:
Body after log.
`)
	h := f.Headings[0]
	if h.Body != "Body after log." {
		t.Errorf("body = %q", h.Body)
	}
	if len(h.LogLines) != 1 || h.LogLines[0] != "- comment by @a [2026-01-01T00:00:00Z]: hi" {
		t.Errorf("log lines = %v", h.LogLines)
	}
	if h.LogSpan == nil {
		t.Fatal("LogSpan is nil")
	}
}

func TestParse_Tags(t *testing.T) {
	f := mustParse(t, "* TODO Ship it :backend:urgent:\n")
	h := f.Headings[0]
	if h.Title != "Ship it" {
		t.Errorf("title = %q", h.Title)
	}
	if !reflect.DeepEqual(h.Tags, []string{"backend", "urgent"}) {
		t.Errorf("tags = %v", h.Tags)
	}
}

func TestParse_Identity(t *testing.T) {
	f := mustParse(t, `* TODO Add user authentication!
* TODO Custom one
:PROPERTIES:
:CUSTOM_ID: my-stable-id
:END:
`)
	if f.Headings[0].ID != "add-user-authentication" {
		t.Errorf("slug id = %q", f.Headings[0].ID)
	}
	if f.Headings[1].ID != "my-stable-id" {
		t.Errorf("custom id = %q", f.Headings[1].ID)
	}
}

func TestParse_DuplicateIdentity(t *testing.T) {
	_, err := Parse("test.org", "* TODO Same name\n* DONE Same name\n", Options{})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError for duplicate identity, got %v", err)
	}
}

func TestParse_ConfiguredDepth(t *testing.T) {
	content := "* Top\n** TODO Deep task\n"
	f := mustParse(t, content)
	if len(f.Headings) != 0 {
		t.Fatalf("depth-1 parse found %d headings", len(f.Headings))
	}
	f2, err := Parse("test.org", content, Options{Depth: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(f2.Headings) != 1 || f2.Headings[0].Title != "Deep task" {
		t.Fatalf("depth-2 parse = %+v", f2.Headings)
	}
}

func TestParse_AmbiguousKeywordConfig(t *testing.T) {
	_, err := Parse("test.org", "* TODO X\n", Options{
		OpenKeywords:   []string{"TODO"},
		ClosedKeywords: []string{"TODO"},
	})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError for ambiguous marker, got %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"Add user authentication!", "add-user-authentication"},
		{"  Multiple   Spaces  ", "multiple-spaces"},
		{"---", ""},
		{"CamelCase42", "camelcase42"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, b ,a,, c ")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("SplitList = %v", got)
	}
	if SplitList("  ") != nil {
		t.Error("SplitList of blank should be nil")
	}
}
