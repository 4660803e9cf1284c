package org

import (
	"strings"
	"testing"
	"time"
)

func apply(t *testing.T, content string, edits []Edit) string {
	t.Helper()
	f := mustParse(t, content)
	out, err := Apply(f, edits, "LOGBOOK")
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	return out
}

func TestApply_NoEditsRoundTripsBytes(t *testing.T) {
	contents := []string{
		"",
		"just prose, no headings\n",
		"#+TITLE: X\n#+GH_REPO: o/r\n\npreamble text\n\n* TODO A\nbody\n\n* Not syncable\nstuff\n",
		"* TODO Windows line endings\r\nbody\r\n",
		"* TODO no trailing newline",
	}
	for _, content := range contents {
		f, err := Parse("t.org", content, Options{})
		if err != nil {
			t.Fatalf("Parse(%q): %v", content, err)
		}
		out, err := Apply(f, nil, "LOGBOOK")
		if err != nil {
			t.Fatal(err)
		}
		if out != content {
			t.Errorf("round trip changed bytes:\n in: %q\nout: %q", content, out)
		}
	}
}

func TestApply_SetPropertyExisting(t *testing.T) {
	in := `* TODO X
:PROPERTIES:
:GH_ISSUE: 42
:END:
body
`
	out := apply(t, in, []Edit{{Heading: "x", Op: SetProperty, Key: "GH_ISSUE", Value: "99"}})
	if !strings.Contains(out, ":GH_ISSUE: 99\n") {
		t.Errorf("property not updated:\n%s", out)
	}
	if strings.Contains(out, "42") {
		t.Errorf("old value survived:\n%s", out)
	}
}

func TestApply_SetPropertyCanonicalOrder(t *testing.T) {
	in := `* TODO X
:PROPERTIES:
:OWNER: platform
:GH_URL: https://github.com/o/r/issues/7
:GH_ISSUE: 7
:END:
`
	out := apply(t, in, []Edit{{Heading: "x", Op: SetProperty, Key: "LABELS", Value: "bug"}})
	want := `* TODO X
:PROPERTIES:
:GH_ISSUE: 7
:GH_URL: https://github.com/o/r/issues/7
:LABELS: bug
:OWNER: platform
:END:
`
	if out != want {
		t.Errorf("drawer not canonical:\ngot:\n%s\nwant:\n%s", out, want)
	}
}

func TestApply_SetPropertyInsertsDrawer(t *testing.T) {
	in := "* TODO X\nbody line\n"
	out := apply(t, in, []Edit{{Heading: "x", Op: SetProperty, Key: "GH_ISSUE", Value: "5"}})
	want := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 5\n:END:\nbody line\n"
	if out != want {
		t.Errorf("got:\n%q\nwant:\n%q", out, want)
	}
}

func TestApply_SetPropertyAtEOFWithoutNewline(t *testing.T) {
	out := apply(t, "* TODO X", []Edit{{Heading: "x", Op: SetProperty, Key: "GH_ISSUE", Value: "5"}})
	want := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 5\n:END:\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestApply_UnsetLastPropertyDropsDrawer(t *testing.T) {
	in := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n:END:\nbody\n"
	out := apply(t, in, []Edit{{Heading: "x", Op: UnsetProperty, Key: "GH_ISSUE"}})
	if out != "* TODO X\nbody\n" {
		t.Errorf("got %q", out)
	}
}

func TestApply_SetState(t *testing.T) {
	in := "* TODO Ship the thing :tag:\n"
	out := apply(t, in, []Edit{{Heading: "ship-the-thing", Op: SetState, Value: "DONE"}})
	if out != "* DONE Ship the thing :tag:\n" {
		t.Errorf("got %q", out)
	}
}

func TestApply_SetTitle(t *testing.T) {
	in := "* TODO Old name :tag:\n:PROPERTIES:\n:GH_ISSUE: 3\n:END:\n"
	out := apply(t, in, []Edit{{Heading: "old-name", Op: SetTitle, Value: "New name"}})
	if !strings.HasPrefix(out, "* TODO New name :tag:\n") {
		t.Errorf("got %q", out)
	}
}

func TestApply_SetBody(t *testing.T) {
	in := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n:END:\nold body\nmore\n\n* TODO Y\nuntouched\n"
	out := apply(t, in, []Edit{{Heading: "x", Op: SetBody, Value: "new body"}})
	want := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n:END:\nnew body\n* TODO Y\nuntouched\n"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
}

func TestApply_AppendLogCreatesDrawer(t *testing.T) {
	in := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n:END:\nbody\n"
	out := apply(t, in, []Edit{{
		Heading: "x", Op: AppendLog,
		Value: "comment by @a [2026-01-01T00:00:00Z]: hi",
		At:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}})
	want := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n:END:\n:LOGBOOK:\n- comment by @a [2026-01-01T00:00:00Z]: hi\n:END:\nbody\n"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
}

func TestApply_AppendLogChronological(t *testing.T) {
	in := `* TODO X
:LOGBOOK:
- comment by @a [2026-01-05T00:00:00Z]: later
:END:
`
	out := apply(t, in, []Edit{{
		Heading: "x", Op: AppendLog,
		Value: "PR #9 linked [2026-01-02T00:00:00Z]",
		At:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}})
	want := `* TODO X
:LOGBOOK:
- PR #9 linked [2026-01-02T00:00:00Z]
- comment by @a [2026-01-05T00:00:00Z]: later
:END:
`
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestApply_MinimalDiffOutsideEditedHeading(t *testing.T) {
	in := `#+GH_REPO: o/r

preamble stays byte for byte
* TODO First
:PROPERTIES:
:GH_ISSUE: 1
:END:
first body
* Not syncable
  weird   spacing preserved
* TODO Second
second body
`
	out := apply(t, in, []Edit{{Heading: "second", Op: SetBody, Value: "edited"}})

	cut := strings.Index(in, "* TODO Second")
	if out[:cut] != in[:cut] {
		t.Errorf("bytes before the edited heading changed")
	}
	if !strings.Contains(out, "* TODO Second\nedited\n") {
		t.Errorf("edit not applied: %q", out)
	}
}

func TestApply_UnknownHeading(t *testing.T) {
	f := mustParse(t, "* TODO X\n")
	if _, err := Apply(f, []Edit{{Heading: "nope", Op: SetState, Value: "DONE"}}, "LOGBOOK"); err == nil {
		t.Fatal("expected error for unknown heading identity")
	}
}

func TestApply_StateAndPropertyTogether(t *testing.T) {
	in := "* TODO X\n:PROPERTIES:\n:GH_ISSUE: 1\n:END:\n"
	out := apply(t, in, []Edit{
		{Heading: "x", Op: SetState, Value: "DONE"},
		{Heading: "x", Op: SetProperty, Key: "UPDATED", Value: "2026-01-01T00:00:00Z"},
	})
	want := "* DONE X\n:PROPERTIES:\n:GH_ISSUE: 1\n:UPDATED: 2026-01-01T00:00:00Z\n:END:\n"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "2026-03-04T05:06:07Z" {
		t.Errorf("FormatTimestamp = %q", got)
	}
}
