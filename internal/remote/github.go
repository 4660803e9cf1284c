package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// GitHubOptions tunes the GitHub adapter.
type GitHubOptions struct {
	// BaseURL overrides the API endpoint (tests, GitHub Enterprise).
	// Must end with a slash.
	BaseURL string

	// Timeout bounds each individual API call. Zero means 30s.
	Timeout time.Duration

	// Attempts is the retry ceiling for transient failures, counting
	// the first try. Zero means 4.
	Attempts int
}

func (o GitHubOptions) withDefaults() GitHubOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 4
	}
	return o
}

// GitHub implements Adapter against the GitHub Issues REST API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	opts   GitHubOptions
}

var _ Adapter = (*GitHub)(nil)

// ParseRepo splits an "owner/name" repository reference.
func ParseRepo(repo string) (owner, name string, err error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", repo)
	}
	return parts[0], parts[1], nil
}

// NewGitHub builds an adapter bound to one repository. The token is
// the already-resolved credential; resolution order lives in the
// config layer.
func NewGitHub(token, repo string, opts GitHubOptions) (*GitHub, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if opts.BaseURL != "" {
		u, err := client.BaseURL.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHub{client: client, owner: owner, repo: name, opts: opts}, nil
}

// Repo returns the bound "owner/name" reference.
func (g *GitHub) Repo() string { return g.owner + "/" + g.repo }

// ListIssues implements Adapter. Pull requests are filtered out; the
// issues endpoint returns both.
func (g *GitHub) ListIssues(ctx context.Context, since time.Time) ([]Issue, error) {
	opt := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opt.Since = since
	}

	var out []Issue
	for {
		var issues []*github.Issue
		var resp *github.Response
		err := g.call(ctx, "list issues", func(ctx context.Context) error {
			var err error
			issues, resp, err = g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opt)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			out = append(out, convertIssue(is))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// GetIssue implements Adapter.
func (g *GitHub) GetIssue(ctx context.Context, number int) (*Issue, error) {
	var is *github.Issue
	err := g.call(ctx, fmt.Sprintf("get issue #%d", number), func(ctx context.Context) error {
		var err error
		is, _, err = g.client.Issues.Get(ctx, g.owner, g.repo, number)
		return err
	})
	if err != nil {
		return nil, err
	}
	converted := convertIssue(is)
	return &converted, nil
}

// CreateIssue implements Adapter.
func (g *GitHub) CreateIssue(ctx context.Context, title, body string, labels, assignees []string) (*Issue, error) {
	req := &github.IssueRequest{Title: &title}
	if body != "" {
		req.Body = &body
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	if len(assignees) > 0 {
		req.Assignees = &assignees
	}

	var is *github.Issue
	err := g.call(ctx, "create issue", func(ctx context.Context) error {
		var err error
		is, _, err = g.client.Issues.Create(ctx, g.owner, g.repo, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	converted := convertIssue(is)
	return &converted, nil
}

// UpdateIssue implements Adapter.
func (g *GitHub) UpdateIssue(ctx context.Context, number int, patch Patch) (*Issue, error) {
	req := &github.IssueRequest{
		Title:     patch.Title,
		Body:      patch.Body,
		Assignees: patch.Assignees,
		Labels:    patch.Labels,
	}

	var is *github.Issue
	err := g.call(ctx, fmt.Sprintf("update issue #%d", number), func(ctx context.Context) error {
		var err error
		is, _, err = g.client.Issues.Edit(ctx, g.owner, g.repo, number, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	converted := convertIssue(is)
	return &converted, nil
}

// SetIssueState implements Adapter.
func (g *GitHub) SetIssueState(ctx context.Context, number int, open bool, reason string) (*Issue, error) {
	st := "closed"
	if open {
		st = "open"
	}
	req := &github.IssueRequest{State: &st}
	if !open && reason != "" {
		req.StateReason = &reason
	}

	var is *github.Issue
	err := g.call(ctx, fmt.Sprintf("set issue #%d %s", number, st), func(ctx context.Context) error {
		var err error
		is, _, err = g.client.Issues.Edit(ctx, g.owner, g.repo, number, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	converted := convertIssue(is)
	return &converted, nil
}

// ListEvents implements Adapter. Comments come from the comments
// endpoint; pull-request linkage and closure come from the timeline.
func (g *GitHub) ListEvents(ctx context.Context, number int, since time.Time) ([]Event, error) {
	var events []Event

	copt := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		copt.Since = &since
	}
	for {
		var comments []*github.IssueComment
		var resp *github.Response
		err := g.call(ctx, fmt.Sprintf("list comments #%d", number), func(ctx context.Context) error {
			var err error
			comments, resp, err = g.client.Issues.ListComments(ctx, g.owner, g.repo, number, copt)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, c := range comments {
			at := c.GetCreatedAt().Time
			if !since.IsZero() && !at.After(since) {
				continue
			}
			events = append(events, Event{
				Kind:  EventComment,
				Actor: c.GetUser().GetLogin(),
				Body:  c.GetBody(),
				At:    at,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		copt.Page = resp.NextPage
	}

	topt := &github.ListOptions{PerPage: 100}
	for {
		var items []*github.Timeline
		var resp *github.Response
		err := g.call(ctx, fmt.Sprintf("list timeline #%d", number), func(ctx context.Context) error {
			var err error
			items, resp, err = g.client.Issues.ListIssueTimeline(ctx, g.owner, g.repo, number, topt)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, t := range items {
			ev, ok := convertTimeline(t)
			if !ok {
				continue
			}
			if !since.IsZero() && !ev.At.After(since) {
				continue
			}
			events = append(events, ev)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		topt.Page = resp.NextPage
	}

	sortEvents(events)
	return events, nil
}

func convertIssue(is *github.Issue) Issue {
	out := Issue{
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		Body:      is.GetBody(),
		Open:      is.GetState() == "open",
		Reason:    is.GetStateReason(),
		CreatedAt: is.GetCreatedAt().Time,
		UpdatedAt: is.GetUpdatedAt().Time,
		ClosedAt:  is.GetClosedAt().Time,
		URL:       is.GetHTMLURL(),
	}
	for _, a := range is.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	for _, l := range is.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out
}

func convertTimeline(t *github.Timeline) (Event, bool) {
	switch t.GetEvent() {
	case "cross-referenced":
		src := t.GetSource()
		if src == nil || src.Issue == nil || !src.Issue.IsPullRequest() {
			return Event{}, false
		}
		return Event{
			Kind:  EventPRLinked,
			Actor: t.GetActor().GetLogin(),
			PR:    src.Issue.GetNumber(),
			At:    t.GetCreatedAt().Time,
		}, true
	case "closed":
		ev := Event{
			Kind:  EventClosed,
			Actor: t.GetActor().GetLogin(),
			At:    t.GetCreatedAt().Time,
		}
		// A closure caused by a merged PR carries the source reference.
		if src := t.GetSource(); src != nil && src.Issue != nil && src.Issue.IsPullRequest() {
			ev.PR = src.Issue.GetNumber()
		}
		return ev, true
	}
	return Event{}, false
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
}
