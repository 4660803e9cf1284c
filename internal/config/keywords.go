package config

import (
	"strings"

	"github.com/orgmode-tools/org-gh/internal/remote"
)

// Keywords answers workflow-state questions for the configured marker
// sets: open/closed membership, sub-state label mapping, and closure
// reasons.
type Keywords struct {
	open      []string
	closed    []string
	cancelled map[string]bool
	labels    map[string]string // keyword -> sub-state label
}

// Keywords builds the workflow-state mapper for this config.
func (c *Config) Keywords() *Keywords {
	k := &Keywords{
		open:      upperAll(c.Org.OpenKeywords),
		closed:    upperAll(c.Org.ClosedKeywords),
		cancelled: make(map[string]bool),
		labels:    make(map[string]string),
	}
	for _, kw := range c.Org.CancelledKeywords {
		k.cancelled[strings.ToUpper(kw)] = true
	}
	for kw, label := range c.Org.StateLabels {
		if label != "" {
			k.labels[strings.ToUpper(kw)] = label
		}
	}
	return k
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

// IsOpen reports whether kw is a configured open keyword.
func (k *Keywords) IsOpen(kw string) bool {
	return contains(k.open, strings.ToUpper(kw))
}

// IsClosed reports whether kw is a configured closed keyword.
func (k *Keywords) IsClosed(kw string) bool {
	return contains(k.closed, strings.ToUpper(kw))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// State maps a keyword to "open" or "closed". Unrecognized keywords
// report open; callers filter those earlier.
func (k *Keywords) State(kw string) string {
	if k.IsClosed(kw) {
		return "closed"
	}
	return "open"
}

// DefaultOpen returns the first configured open keyword.
func (k *Keywords) DefaultOpen() string {
	if len(k.open) == 0 {
		return "TODO"
	}
	return k.open[0]
}

// DefaultClosed returns the first configured closed keyword.
func (k *Keywords) DefaultClosed() string {
	if len(k.closed) == 0 {
		return "DONE"
	}
	return k.closed[0]
}

// CancelledKeyword returns the keyword used when a remote closure has
// reason not_planned, falling back to the default closed keyword.
func (k *Keywords) CancelledKeyword() string {
	for _, kw := range k.closed {
		if k.cancelled[kw] {
			return kw
		}
	}
	return k.DefaultClosed()
}

// StateLabel returns the sub-state label encoding an open keyword on
// the remote, or "" when the keyword has none.
func (k *Keywords) StateLabel(kw string) string {
	return k.labels[strings.ToUpper(kw)]
}

// IsStateLabel reports whether a remote label is one of the configured
// sub-state labels. Such labels never take part in label sync.
func (k *Keywords) IsStateLabel(label string) bool {
	for _, l := range k.labels {
		if l == label {
			return true
		}
	}
	return false
}

// KeywordForRemote picks the org keyword for a remote issue's state:
// open issues take the first open keyword whose sub-state label is
// present (configured keyword order), else the default open keyword;
// closed issues take the cancelled keyword for not_planned closures,
// else the default closed keyword.
func (k *Keywords) KeywordForRemote(open bool, labels []string, closeReason string) string {
	if !open {
		if closeReason == remote.ReasonNotPlanned {
			return k.CancelledKeyword()
		}
		return k.DefaultClosed()
	}
	labelSet := make(map[string]bool, len(labels))
	for _, l := range labels {
		labelSet[l] = true
	}
	for _, kw := range k.open {
		if sub := k.labels[kw]; sub != "" && labelSet[sub] {
			return kw
		}
	}
	return k.DefaultOpen()
}

// Reason maps a closed keyword to the remote closure reason.
func (k *Keywords) Reason(kw string) string {
	if k.cancelled[strings.ToUpper(kw)] {
		return remote.ReasonNotPlanned
	}
	return remote.ReasonCompleted
}
