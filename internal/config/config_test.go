package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/orgmode-tools/org-gh/internal/remote"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Sync.StateConflict != PolicyPrompt {
		t.Errorf("state conflict default = %q", cfg.Sync.StateConflict)
	}
	if cfg.Sync.AssigneeConflict != PolicyGitHubWins {
		t.Errorf("assignee conflict default = %q", cfg.Sync.AssigneeConflict)
	}
	if cfg.Sync.TimeoutSeconds != 30 || cfg.Sync.RetryAttempts != 4 || cfg.Sync.Concurrency != 4 {
		t.Errorf("remote knobs = %+v", cfg.Sync)
	}
	if cfg.Org.LogDrawer != "LOGBOOK" || cfg.Org.SyncDepth != 1 {
		t.Errorf("org defaults = %+v", cfg.Org)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `[github]
default_repo = "octo/widgets"

[sync]
state_conflict = "org-wins"

[org]
open_keywords = ["TODO", "NEXT"]

[org.state_labels]
NEXT = "queued"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GitHub.DefaultRepo != "octo/widgets" {
		t.Errorf("default_repo = %q", cfg.GitHub.DefaultRepo)
	}
	if cfg.Sync.StateConflict != PolicyOrgWins {
		t.Errorf("state_conflict = %q", cfg.Sync.StateConflict)
	}
	if cfg.Keywords().StateLabel("NEXT") != "queued" {
		t.Errorf("state label for NEXT = %q", cfg.Keywords().StateLabel("NEXT"))
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("explicit missing config must error")
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\nstate_conflict = \"coin-flip\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid policy must be rejected")
	}
}

func TestLoadRejectsOverlappingKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := "[org]\nopen_keywords = [\"TODO\"]\nclosed_keywords = [\"TODO\"]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("overlapping keyword sets must be rejected")
	}
}

func TestKeywords(t *testing.T) {
	k := Default().Keywords()

	if !k.IsOpen("TODO") || !k.IsOpen("doing") {
		t.Error("open keywords not recognized")
	}
	if !k.IsClosed("DONE") || k.IsClosed("TODO") {
		t.Error("closed keywords wrong")
	}
	if k.DefaultOpen() != "TODO" || k.DefaultClosed() != "DONE" {
		t.Errorf("defaults = %q/%q", k.DefaultOpen(), k.DefaultClosed())
	}
	if k.CancelledKeyword() != "CANCELLED" {
		t.Errorf("cancelled keyword = %q", k.CancelledKeyword())
	}
	if k.StateLabel("DOING") != "in-progress" || k.StateLabel("TODO") != "" {
		t.Error("sub-state labels wrong")
	}
	if !k.IsStateLabel("blocked") || k.IsStateLabel("bug") {
		t.Error("IsStateLabel wrong")
	}
	if k.Reason("DONE") != remote.ReasonCompleted || k.Reason("WONTFIX") != remote.ReasonNotPlanned {
		t.Error("closure reasons wrong")
	}
}

func TestKeywordForRemote(t *testing.T) {
	k := Default().Keywords()

	tests := []struct {
		name   string
		open   bool
		labels []string
		reason string
		want   string
	}{
		{"open no labels", true, nil, "", "TODO"},
		{"open with in-progress", true, []string{"bug", "in-progress"}, "", "DOING"},
		{"open with blocked", true, []string{"blocked"}, "", "BLOCKED"},
		{"closed completed", false, nil, remote.ReasonCompleted, "DONE"},
		{"closed not planned", false, nil, remote.ReasonNotPlanned, "CANCELLED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := k.KeywordForRemote(tt.open, tt.labels, tt.reason); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveToken(t *testing.T) {
	cfg := Default()
	cfg.GitHub.CredentialHelper = "" // no helper in tests
	ctx := context.Background()

	t.Setenv(TokenEnvVar, "")
	if _, err := cfg.ResolveToken(ctx, ""); err == nil {
		t.Fatal("no token anywhere must be a ConfigError")
	}

	cfg.GitHub.Token = "from-config"
	tok, err := cfg.ResolveToken(ctx, "")
	if err != nil || tok != "from-config" {
		t.Fatalf("config token = %q, %v", tok, err)
	}

	t.Setenv(TokenEnvVar, "from-env")
	if tok, _ = cfg.ResolveToken(ctx, ""); tok != "from-env" {
		t.Errorf("env should beat config, got %q", tok)
	}

	if tok, _ = cfg.ResolveToken(ctx, "from-flag"); tok != "from-flag" {
		t.Errorf("flag should beat env, got %q", tok)
	}
}

func TestResolveTokenHelper(t *testing.T) {
	cfg := Default()
	cfg.GitHub.CredentialHelper = "echo helper-token"
	t.Setenv(TokenEnvVar, "")

	tok, err := cfg.ResolveToken(context.Background(), "")
	if err != nil || tok != "helper-token" {
		t.Fatalf("helper token = %q, %v", tok, err)
	}
}
