package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// TokenEnvVar is the conventional environment variable for the GitHub
// credential.
const TokenEnvVar = "GITHUB_TOKEN"

// ResolveToken resolves the API credential in precedence order:
// explicit flag, environment variable, credential helper command,
// config file. The core only ever sees the resolved string; a fully
// unresolvable token is a ConfigError raised before any network call.
func (c *Config) ResolveToken(ctx context.Context, flagToken string) (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return tok, nil
	}
	if helper := c.GitHub.CredentialHelper; helper != "" {
		if tok := runCredentialHelper(ctx, helper); tok != "" {
			return tok, nil
		}
	}
	if c.GitHub.Token != "" {
		return c.GitHub.Token, nil
	}
	return "", Errorf("no GitHub token found: pass --token, set %s, configure a credential helper, or add github.token to the config", TokenEnvVar)
}

// runCredentialHelper executes the configured helper command and
// returns its trimmed stdout, or "" on any failure. Helper failures
// are not fatal; the chain falls through to the config file.
func runCredentialHelper(ctx context.Context, helper string) string {
	fields := strings.Fields(helper)
	if len(fields) == 0 {
		return ""
	}
	out, err := execTrimmed(ctx, 10*time.Second, fields[0], fields[1:]...)
	if err != nil {
		return ""
	}
	return out
}

// execTrimmed runs a command with a timeout and returns its trimmed
// stdout, folding stderr into the error for diagnostics.
func execTrimmed(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}
