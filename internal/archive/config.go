// Package archive keeps a git history of a store directory. Each snapshot
// stages the directory's current contents and commits them, optionally
// pushing to a remote repository.
package archive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/indexkit/switchstore/internal/apperrors"
)

const (
	remoteName = "origin"

	msgRemoteRepoEmpty = "remote repository is empty"
)

// SnapshotConfig holds configuration for the git snapshot archive.
type SnapshotConfig struct {
	RepoPath string // Directory to archive (SWS_SNAPSHOT_REPO)
	URL      string // Remote git repository URL (SWS_SNAPSHOT_URL)
	Password string // Password/token for HTTPS auth (SWS_SNAPSHOT_PASS)
	Branch   string // Target branch (SWS_SNAPSHOT_BRANCH)
	User     string // Commit author name (SWS_SNAPSHOT_USER)
	Email    string // Commit author email (SWS_SNAPSHOT_EMAIL)
	Push     *bool  // Push after snapshots (SWS_SNAPSHOT_PUSH), nil means auto-detect
}

// LoadSnapshotConfigFromEnv loads snapshot configuration from environment variables.
func LoadSnapshotConfigFromEnv() *SnapshotConfig {
	cfg := &SnapshotConfig{
		RepoPath: os.Getenv("SWS_SNAPSHOT_REPO"),
		URL:      os.Getenv("SWS_SNAPSHOT_URL"),
		Password: os.Getenv("SWS_SNAPSHOT_PASS"),
		Branch:   os.Getenv("SWS_SNAPSHOT_BRANCH"),
		User:     os.Getenv("SWS_SNAPSHOT_USER"),
		Email:    os.Getenv("SWS_SNAPSHOT_EMAIL"),
	}

	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.User == "" {
		cfg.User = "switchstore"
	}
	if cfg.Email == "" {
		cfg.Email = "switchstore@local"
	}

	// nil means auto-detect based on SWS_SNAPSHOT_URL
	if pushStr := os.Getenv("SWS_SNAPSHOT_PUSH"); pushStr != "" {
		push := parseBoolEnv(pushStr)
		cfg.Push = &push
	}

	return cfg
}

// parseBoolEnv parses a boolean environment variable value.
func parseBoolEnv(val string) bool {
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes"
}

// IsSSH returns true if the remote URL is an SSH URL.
func (c *SnapshotConfig) IsSSH() bool {
	if c == nil || c.URL == "" {
		return false
	}
	return strings.HasPrefix(c.URL, "git@") || strings.HasPrefix(c.URL, "ssh://")
}

// IsPushEnabled returns true if snapshots should be pushed to the remote.
// When SWS_SNAPSHOT_PUSH is not explicitly set, defaults to true if a
// remote URL is configured.
func (c *SnapshotConfig) IsPushEnabled() bool {
	if c == nil {
		return false
	}
	if c.Push != nil {
		return *c.Push
	}
	return c.URL != ""
}

// GetAuth returns the appropriate authentication method for the remote URL.
func (c *SnapshotConfig) GetAuth() (transport.AuthMethod, error) {
	if c == nil || c.URL == "" {
		return nil, apperrors.ErrRemoteNotConfigured
	}

	if c.IsSSH() {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("create SSH agent auth: %w", err)
		}
		return auth, nil
	}

	// HTTPS auth
	if c.Password == "" {
		return nil, apperrors.ErrHTTPSPasswordRequired
	}

	return &http.BasicAuth{
		Username: "oauth2",
		Password: c.Password,
	}, nil
}

// TestConnection verifies that the remote repository is reachable.
func (c *SnapshotConfig) TestConnection(ctx context.Context) error {
	if c == nil || c.URL == "" {
		return apperrors.ErrRemoteNotConfigured
	}

	auth, err := c.GetAuth()
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	rem := git.NewRemote(nil, &config.RemoteConfig{
		Name: remoteName,
		URLs: []string{c.URL},
	})

	_, err = rem.ListContext(ctx, &git.ListOptions{
		Auth: auth,
	})
	if err != nil {
		// An empty repository is still a working connection
		if err.Error() == msgRemoteRepoEmpty {
			return nil
		}
		return fmt.Errorf("list remote: %w", err)
	}

	return nil
}
