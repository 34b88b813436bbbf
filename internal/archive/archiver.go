package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/indexkit/switchstore/internal/apperrors"
)

// dirPerm is used when the archive directory has to be created.
const dirPerm = 0750

// Archiver commits the state of a directory into a git repository. It is
// safe for concurrent use; snapshots are serialized.
type Archiver struct {
	cfg    *SnapshotConfig
	logger *slog.Logger

	mu   sync.Mutex
	repo *git.Repository
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithLogger sets a custom logger for the archiver.
func WithLogger(l *slog.Logger) ArchiverOption {
	return func(a *Archiver) {
		a.logger = l
	}
}

// NewArchiver opens or initializes the git repository at cfg.RepoPath.
func NewArchiver(cfg *SnapshotConfig, opts ...ArchiverOption) (*Archiver, error) {
	if cfg == nil || cfg.RepoPath == "" {
		return nil, apperrors.ErrSnapshotRepoRequired
	}

	a := &Archiver{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	repo, err := a.openOrInitRepository(cfg.RepoPath)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	return a, nil
}

// openOrInitRepository opens an existing repository or creates a new one.
func (a *Archiver) openOrInitRepository(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	repo, err := git.PlainOpen(path)
	if err == nil {
		return a.ensureRemoteConfigured(repo)
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open git repo: %w", err)
	}

	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init git repo: %w", err)
	}
	return a.ensureRemoteConfigured(repo)
}

// ensureRemoteConfigured adds the origin remote when a URL is configured.
func (a *Archiver) ensureRemoteConfigured(repo *git.Repository) (*git.Repository, error) {
	if a.cfg.URL == "" {
		return repo, nil
	}

	if _, err := repo.Remote(remoteName); err == nil {
		return repo, nil
	}

	a.logger.Info("adding remote origin", "url", a.cfg.URL)
	_, err := repo.CreateRemote(&config.RemoteConfig{
		Name: remoteName,
		URLs: []string{a.cfg.URL},
	})
	if err != nil {
		return nil, fmt.Errorf("add remote origin: %w", err)
	}
	return repo, nil
}

// Snapshot stages everything under the repository path and commits it,
// returning the commit hash. Returns apperrors.ErrNoChanges when the
// directory is unchanged since the previous snapshot.
func (a *Archiver) Snapshot(ctx context.Context, message string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	worktree, err := a.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}

	hasChanges := false
	for _, st := range status {
		if st.Staging != ' ' {
			hasChanges = true
			break
		}
	}
	if !hasChanges {
		return "", apperrors.ErrNoChanges
	}

	if message == "" {
		message = fmt.Sprintf("snapshot at %s", time.Now().UTC().Format(time.RFC3339))
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  a.cfg.User,
			Email: a.cfg.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	a.logger.InfoContext(ctx, "snapshot committed", "hash", hash.String(), "staged", len(status))

	if a.cfg.IsPushEnabled() {
		if err := a.pushLocked(ctx); err != nil {
			return hash.String(), err
		}
	}
	return hash.String(), nil
}

// Push pushes committed snapshots to the configured remote.
func (a *Archiver) Push(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pushLocked(ctx)
}

func (a *Archiver) pushLocked(ctx context.Context) error {
	if a.cfg.URL == "" {
		return apperrors.ErrRemoteNotConfigured
	}

	auth, err := a.cfg.GetAuth()
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	a.logger.InfoContext(ctx, "pushing to remote", "url", a.cfg.URL, "branch", a.cfg.Branch)

	err = a.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		Auth:       auth,
	})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			a.logger.InfoContext(ctx, "nothing to push")
			return nil
		}
		return fmt.Errorf("push: %w", err)
	}

	a.logger.InfoContext(ctx, "push complete")
	return nil
}

// Head returns the current head commit hash, or "" for a repository with
// no snapshots yet.
func (a *Archiver) Head() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ref, err := a.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get head: %w", err)
	}
	return ref.Hash().String(), nil
}
