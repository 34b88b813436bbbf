package archive

import (
	"errors"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/indexkit/switchstore/internal/apperrors"
)

func TestLoadSnapshotConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"SWS_SNAPSHOT_REPO", "SWS_SNAPSHOT_URL", "SWS_SNAPSHOT_PASS",
		"SWS_SNAPSHOT_BRANCH", "SWS_SNAPSHOT_USER", "SWS_SNAPSHOT_EMAIL",
		"SWS_SNAPSHOT_PUSH",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadSnapshotConfigFromEnv()
	if cfg.Branch != "main" {
		t.Errorf("branch: got %q, want %q", cfg.Branch, "main")
	}
	if cfg.User != "switchstore" {
		t.Errorf("user: got %q, want %q", cfg.User, "switchstore")
	}
	if cfg.Email != "switchstore@local" {
		t.Errorf("email: got %q, want %q", cfg.Email, "switchstore@local")
	}
	if cfg.Push != nil {
		t.Errorf("push: got %v, want nil (auto-detect)", *cfg.Push)
	}
	if cfg.IsPushEnabled() {
		t.Errorf("push enabled without URL")
	}
}

func TestLoadSnapshotConfigFromEnv(t *testing.T) {
	t.Setenv("SWS_SNAPSHOT_REPO", "/var/lib/sws/archive")
	t.Setenv("SWS_SNAPSHOT_URL", "https://example.com/org/archive.git")
	t.Setenv("SWS_SNAPSHOT_PASS", "token")
	t.Setenv("SWS_SNAPSHOT_BRANCH", "snapshots")
	t.Setenv("SWS_SNAPSHOT_USER", "archive-bot")
	t.Setenv("SWS_SNAPSHOT_EMAIL", "bot@example.com")
	t.Setenv("SWS_SNAPSHOT_PUSH", "false")

	cfg := LoadSnapshotConfigFromEnv()
	if cfg.RepoPath != "/var/lib/sws/archive" {
		t.Errorf("repo path: got %q", cfg.RepoPath)
	}
	if cfg.Branch != "snapshots" {
		t.Errorf("branch: got %q", cfg.Branch)
	}
	if cfg.Push == nil || *cfg.Push {
		t.Errorf("push: got %v, want explicit false", cfg.Push)
	}
	if cfg.IsPushEnabled() {
		t.Errorf("push enabled despite SWS_SNAPSHOT_PUSH=false")
	}
}

func TestIsSSH(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want bool
	}{
		{"git@example.com:org/repo.git", true},
		{"ssh://git@example.com/org/repo.git", true},
		{"https://example.com/org/repo.git", false},
		{"", false},
	}
	for _, tc := range cases {
		cfg := &SnapshotConfig{URL: tc.url}
		if got := cfg.IsSSH(); got != tc.want {
			t.Errorf("IsSSH(%q): got %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestGetAuth(t *testing.T) {
	t.Parallel()

	if _, err := (&SnapshotConfig{}).GetAuth(); !errors.Is(err, apperrors.ErrRemoteNotConfigured) {
		t.Errorf("no URL: got %v, want remote not configured", err)
	}

	cfg := &SnapshotConfig{URL: "https://example.com/org/repo.git"}
	if _, err := cfg.GetAuth(); !errors.Is(err, apperrors.ErrHTTPSPasswordRequired) {
		t.Errorf("no password: got %v, want password required", err)
	}

	cfg.Password = "token"
	auth, err := cfg.GetAuth()
	if err != nil {
		t.Fatalf("GetAuth failed: %v", err)
	}
	basic, ok := auth.(*http.BasicAuth)
	if !ok {
		t.Fatalf("auth type: got %T, want *http.BasicAuth", auth)
	}
	if basic.Username != "oauth2" || basic.Password != "token" {
		t.Errorf("basic auth: got %q/%q", basic.Username, basic.Password)
	}
}
