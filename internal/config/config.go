// Package config loads org-gh configuration and resolves credentials.
//
// Configuration comes from a TOML file (user config dir by default,
// --config to override) layered over built-in defaults via viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/orgmode-tools/org-gh/internal/org"
)

// Policy selects how a field-level conflict is resolved.
type Policy string

const (
	PolicyPrompt     Policy = "prompt"
	PolicyOrgWins    Policy = "org-wins"
	PolicyGitHubWins Policy = "github-wins"
)

// ConfigError reports unusable configuration: missing directives,
// unreadable config files, unresolvable credentials.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Errorf builds a ConfigError.
func Errorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Config is the loaded configuration tree.
type Config struct {
	GitHub GitHubConfig `mapstructure:"github"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Org    OrgConfig    `mapstructure:"org"`
	Log    LogConfig    `mapstructure:"log"`
}

// GitHubConfig carries credentials and repository defaults.
type GitHubConfig struct {
	Token            string `mapstructure:"token"`
	DefaultRepo      string `mapstructure:"default_repo"`
	CredentialHelper string `mapstructure:"credential_helper"`
}

// SyncConfig tunes conflict policies and remote-call behavior.
type SyncConfig struct {
	TitleConflict    Policy `mapstructure:"title_conflict"`
	BodyConflict     Policy `mapstructure:"body_conflict"`
	StateConflict    Policy `mapstructure:"state_conflict"`
	AssigneeConflict Policy `mapstructure:"assignee_conflict"`

	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	RetryAttempts  int `mapstructure:"retry_attempts"`
	Concurrency    int `mapstructure:"concurrency"`

	// StateDir relocates baseline files to a central directory.
	// Empty keeps them as siblings of their outline.
	StateDir string `mapstructure:"state_dir"`
}

// OrgConfig shapes how outlines are parsed.
type OrgConfig struct {
	OpenKeywords      []string          `mapstructure:"open_keywords"`
	ClosedKeywords    []string          `mapstructure:"closed_keywords"`
	CancelledKeywords []string          `mapstructure:"cancelled_keywords"`
	SyncDepth         int               `mapstructure:"sync_depth"`
	LogDrawer         string            `mapstructure:"log_drawer"`
	StateLabels       map[string]string `mapstructure:"state_labels"`
}

// LogConfig configures the optional rotating debug log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultPath returns the default config file location
// (<user-config-dir>/org-gh/config.toml).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", Errorf("cannot determine config directory: %v", err)
	}
	return filepath.Join(dir, "org-gh", "config.toml"), nil
}

// Default returns the built-in configuration without touching the
// filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err) // defaults always decode
	}
	return &cfg
}

// Load reads configuration from path, or from the default location
// when path is empty. A missing default file yields defaults; an
// explicitly named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, Errorf("cannot read config %s: %v", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Errorf("invalid config %s: %v", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.credential_helper", "gh auth token")
	v.SetDefault("sync.title_conflict", string(PolicyOrgWins))
	v.SetDefault("sync.body_conflict", string(PolicyOrgWins))
	v.SetDefault("sync.state_conflict", string(PolicyPrompt))
	v.SetDefault("sync.assignee_conflict", string(PolicyGitHubWins))
	v.SetDefault("sync.timeout_seconds", 30)
	v.SetDefault("sync.retry_attempts", 4)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("org.open_keywords", org.DefaultOpenKeywords)
	v.SetDefault("org.closed_keywords", org.DefaultClosedKeywords)
	v.SetDefault("org.cancelled_keywords", []string{"CANCELLED", "WONTFIX"})
	v.SetDefault("org.sync_depth", 1)
	v.SetDefault("org.log_drawer", "LOGBOOK")
	v.SetDefault("org.state_labels", map[string]string{
		"DOING":   "in-progress",
		"BLOCKED": "blocked",
	})
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

func (c *Config) validate() error {
	for _, p := range []Policy{c.Sync.TitleConflict, c.Sync.BodyConflict, c.Sync.StateConflict, c.Sync.AssigneeConflict} {
		switch p {
		case PolicyPrompt, PolicyOrgWins, PolicyGitHubWins:
		default:
			return Errorf("invalid conflict policy %q", p)
		}
	}
	open := make(map[string]bool)
	for _, k := range c.Org.OpenKeywords {
		open[k] = true
	}
	for _, k := range c.Org.ClosedKeywords {
		if open[k] {
			return Errorf("workflow keyword %q configured as both open and closed", k)
		}
	}
	if c.Org.SyncDepth < 1 {
		return Errorf("org.sync_depth must be at least 1")
	}
	return nil
}

// Timeout returns the per-call remote timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}

// ParseOptions builds the outline parser options from the config.
func (c *Config) ParseOptions() org.Options {
	return org.Options{
		Depth:          c.Org.SyncDepth,
		OpenKeywords:   c.Org.OpenKeywords,
		ClosedKeywords: c.Org.ClosedKeywords,
		LogDrawer:      c.Org.LogDrawer,
	}
}
