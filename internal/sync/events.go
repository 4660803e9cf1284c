package sync

import (
	"fmt"
	"strings"

	"github.com/orgmode-tools/org-gh/internal/org"
	"github.com/orgmode-tools/org-gh/internal/remote"
)

// RenderEvent produces the canonical one-line log rendering for a
// remote event:
//
//	comment by @alice [2026-01-02T03:04:05Z]: first line of the comment
//	PR #17 linked [2026-01-02T03:04:05Z]
//	closed by PR #17 [2026-01-02T03:04:05Z]
func RenderEvent(e remote.Event) string {
	ts := org.FormatTimestamp(e.At)
	switch e.Kind {
	case remote.EventComment:
		first := e.Body
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		first = strings.TrimRight(first, "\r")
		return fmt.Sprintf("comment by @%s [%s]: %s", e.Actor, ts, first)
	case remote.EventPRLinked:
		return fmt.Sprintf("PR #%d linked [%s]", e.PR, ts)
	case remote.EventClosed:
		if e.PR > 0 {
			return fmt.Sprintf("closed by PR #%d [%s]", e.PR, ts)
		}
		return fmt.Sprintf("closed by @%s [%s]", e.Actor, ts)
	}
	return fmt.Sprintf("event [%s]", ts)
}
