package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"

	"github.com/indexkit/switchstore/internal/apperrors"
)

const (
	// File and directory permissions.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0600 // File permissions: rw-------
)

// LocalStore implements Store on a flat directory of regular files.
//
// Deletion is deferred for files that are open for reading: the name is
// hidden from listings and length queries immediately, reported by
// PendingDeletions, and physically removed when the last reader closes.
// This keeps delete-while-open behavior identical across platforms instead
// of leaning on POSIX unlink semantics.
type LocalStore struct {
	rootPath    string
	mu          sync.RWMutex
	logger      *slog.Logger
	openInputs  map[string]int
	pending     map[string]struct{}
	tempCounter uint64
	writeLimit  *rate.Limiter
	closed      bool
}

// LocalStoreOption configures LocalStore.
type LocalStoreOption func(*LocalStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) LocalStoreOption {
	return func(s *LocalStore) {
		s.logger = l
	}
}

// WithWriteRateLimit throttles every output of this store to roughly
// bytesPerSec. Zero or negative disables the throttle.
func WithWriteRateLimit(bytesPerSec float64) LocalStoreOption {
	return func(s *LocalStore) {
		if bytesPerSec > 0 {
			s.writeLimit = rate.NewLimiter(rate.Limit(bytesPerSec), rateBurst)
		}
	}
}

// NewLocalStore creates a new local store rooted at the given directory,
// creating it if needed.
func NewLocalStore(path string, opts ...LocalStoreOption) (*LocalStore, error) {
	store := &LocalStore{
		rootPath:   path,
		logger:     slog.Default(),
		openInputs: make(map[string]int),
		pending:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", path, err)
	}

	return store, nil
}

// CreateOutput creates a new file and returns a write handle for it.
func (s *LocalStore) CreateOutput(ctx context.Context, name string) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}
	if _, isPending := s.pending[name]; isPending {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrFilePendingDelete, name)
	}

	fullPath := filepath.Join(s.rootPath, name)
	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) //nolint:gosec // path is application controlled
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrFileAlreadyExists, name)
		}
		return nil, fmt.Errorf("create file %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "created file", "name", name)
	return s.wrapOutput(ctx, &localOutput{name: name, file: file}), nil
}

// CreateTempOutput creates a uniquely named temp file of the form
// <prefix>_<suffix>_<counter>.tmp. The counter is per store and never
// reused.
func (s *LocalStore) CreateTempOutput(ctx context.Context, prefix, suffix string) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	for {
		name := fmt.Sprintf("%s_%s_%d.tmp", prefix, suffix, s.tempCounter)
		s.tempCounter++
		if _, isPending := s.pending[name]; isPending {
			continue
		}

		fullPath := filepath.Join(s.rootPath, name)
		file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) //nolint:gosec // path is application controlled
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("create temp file %s: %w", name, err)
		}

		s.logger.DebugContext(ctx, "created temp file", "name", name)
		return s.wrapOutput(ctx, &localOutput{name: name, file: file}), nil
	}
}

// wrapOutput applies the store-wide write throttle when one is configured.
func (s *LocalStore) wrapOutput(ctx context.Context, out Output) Output {
	if s.writeLimit == nil {
		return out
	}
	return NewRateLimitedOutput(ctx, out, s.writeLimit)
}

// OpenInput opens a file for reading and holds it against physical deletion
// until the input is closed.
func (s *LocalStore) OpenInput(ctx context.Context, name string) (Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}
	if _, isPending := s.pending[name]; isPending {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
	}

	fullPath := filepath.Join(s.rootPath, name)
	file, err := os.Open(fullPath) //nolint:gosec // path is application controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("open file %s: %w", name, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file %s: %w", name, err)
	}

	s.openInputs[name]++
	s.logger.DebugContext(ctx, "opened file", "name", name, "size", info.Size())
	return &localInput{store: s, name: name, file: file, size: info.Size()}, nil
}

// Delete removes a file. If the file is open for reading the removal is
// deferred: the name disappears from listings at once and the bytes go when
// the last reader closes.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	if _, isPending := s.pending[name]; isPending {
		return fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
	}

	fullPath := filepath.Join(s.rootPath, name)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
		}
		return fmt.Errorf("stat file %s: %w", name, err)
	}

	if readers := s.openInputs[name]; readers > 0 {
		s.pending[name] = struct{}{}
		s.logger.DebugContext(ctx, "deferred delete, file open for read", "name", name, "readers", readers)
		return nil
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("delete file %s: %w", name, err)
	}
	s.logger.DebugContext(ctx, "deleted file", "name", name)
	return nil
}

// Rename atomically moves oldName to newName within the store, replacing
// newName if present.
func (s *LocalStore) Rename(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	if _, isPending := s.pending[oldName]; isPending {
		return fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, oldName)
	}
	if _, isPending := s.pending[newName]; isPending {
		return fmt.Errorf("%w: %s", apperrors.ErrFilePendingDelete, newName)
	}

	oldPath := filepath.Join(s.rootPath, oldName)
	newPath := filepath.Join(s.rootPath, newName)
	if _, err := os.Stat(oldPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, oldName)
		}
		return fmt.Errorf("stat file %s: %w", oldName, err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldName, newName, err)
	}

	s.logger.DebugContext(ctx, "renamed file", "from", oldName, "to", newName)
	return nil
}

// ListAll returns all file names in sorted order, excluding names pending
// deletion.
func (s *LocalStore) ListAll(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("list store root %s: %w", s.rootPath, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, isPending := s.pending[entry.Name()]; isPending {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// FileLength returns the byte length of a file. A name pending deletion is
// already logically gone and reports not found.
func (s *LocalStore) FileLength(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, apperrors.ErrStoreClosed
	}
	if _, isPending := s.pending[name]; isPending {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
	}

	info, err := os.Stat(filepath.Join(s.rootPath, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
		}
		return 0, fmt.Errorf("stat file %s: %w", name, err)
	}
	return info.Size(), nil
}

// PendingDeletions returns a copy of the set of names deleted while open.
func (s *LocalStore) PendingDeletions(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	pending := make(map[string]struct{}, len(s.pending))
	for name := range s.pending {
		pending[name] = struct{}{}
	}
	return pending, nil
}

// Sync flushes the named files to stable storage and retries any pending
// deletions that previously failed.
func (s *LocalStore) Sync(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}

	for _, name := range names {
		if err := s.fsyncPath(filepath.Join(s.rootPath, name)); err != nil {
			return fmt.Errorf("sync file %s: %w", name, err)
		}
	}

	s.deletePendingLocked(ctx)
	s.logger.DebugContext(ctx, "synced files", "count", len(names))
	return nil
}

// SyncMetaData flushes the store root directory entry to stable storage.
func (s *LocalStore) SyncMetaData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}

	s.deletePendingLocked(ctx)
	if err := s.fsyncPath(s.rootPath); err != nil {
		return fmt.Errorf("sync store root %s: %w", s.rootPath, err)
	}
	return nil
}

// Close marks the store closed and sweeps deletions still pending. Close is
// idempotent; inputs opened before the close stay readable until they are
// closed themselves.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.deletePendingLocked(context.Background())
	return nil
}

func (s *LocalStore) fsyncPath(path string) error {
	file, err := os.Open(path) //nolint:gosec // path is application controlled
	if err != nil {
		return err
	}
	syncErr := file.Sync()
	closeErr := file.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// deletePendingLocked removes pending files that no longer have readers.
// Callers must hold the write lock.
func (s *LocalStore) deletePendingLocked(ctx context.Context) {
	for name := range s.pending {
		if s.openInputs[name] > 0 {
			continue
		}
		err := os.Remove(filepath.Join(s.rootPath, name))
		if err != nil && !os.IsNotExist(err) {
			s.logger.WarnContext(ctx, "deferred delete failed, will retry", "name", name, "error", err)
			continue
		}
		delete(s.pending, name)
		s.logger.DebugContext(ctx, "completed deferred delete", "name", name)
	}
}

// releaseInput drops one reader reference and finishes a deferred delete
// when the last reader goes away.
func (s *LocalStore) releaseInput(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openInputs[name] > 1 {
		s.openInputs[name]--
		return
	}
	delete(s.openInputs, name)

	if _, isPending := s.pending[name]; !isPending {
		return
	}
	err := os.Remove(filepath.Join(s.rootPath, name))
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warn("deferred delete failed, will retry", "name", name, "error", err)
		return
	}
	delete(s.pending, name)
	s.logger.Debug("completed deferred delete", "name", name)
}

// localOutput writes through to an exclusively created file. Close does not
// fsync; durability is explicit via Store.Sync.
type localOutput struct {
	name   string
	file   *os.File
	closed bool
}

func (o *localOutput) Write(p []byte) (int, error) {
	if o.closed {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrOutputClosed, o.name)
	}
	return o.file.Write(p)
}

func (o *localOutput) Close() error {
	if o.closed {
		return fmt.Errorf("%w: %s", apperrors.ErrOutputClosed, o.name)
	}
	o.closed = true
	if err := o.file.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", o.name, err)
	}
	return nil
}

func (o *localOutput) Name() string {
	return o.name
}

// localInput reads an open file handle; the handle pins the bytes even if
// the name is deleted or renamed while reading.
type localInput struct {
	store  *LocalStore
	name   string
	file   *os.File
	size   int64
	closed bool
}

func (in *localInput) Read(p []byte) (int, error) {
	return in.file.Read(p)
}

func (in *localInput) ReadAt(p []byte, off int64) (int, error) {
	return in.file.ReadAt(p, off)
}

// Close releases the reader reference. Idempotent, so the reference count
// stays balanced even on double close.
func (in *localInput) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true

	err := in.file.Close()
	in.store.releaseInput(in.name)
	if err != nil {
		return fmt.Errorf("close file %s: %w", in.name, err)
	}
	return nil
}

func (in *localInput) Name() string {
	return in.name
}

func (in *localInput) Length() int64 {
	return in.size
}
