package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/indexkit/switchstore/internal/apperrors"
)

// MemoryStore is an in-memory Store. Deletion is immediate, so its
// pending-deletion set is always empty. Inputs read a snapshot of the file
// taken at open time and are unaffected by later renames or deletes.
type MemoryStore struct {
	mu          sync.RWMutex
	files       map[string][]byte
	tempCounter uint64
	closed      bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string][]byte),
	}
}

// CreateOutput creates a new file and returns a write handle for it. The
// name is reserved immediately; content becomes readable once the output is
// closed.
func (s *MemoryStore) CreateOutput(_ context.Context, name string) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}
	if _, exists := s.files[name]; exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrFileAlreadyExists, name)
	}

	s.files[name] = nil
	return &memOutput{store: s, name: name}, nil
}

// CreateTempOutput creates a uniquely named temp file of the form
// <prefix>_<suffix>_<counter>.tmp. The counter is per store and never
// reused.
func (s *MemoryStore) CreateTempOutput(_ context.Context, prefix, suffix string) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	for {
		name := fmt.Sprintf("%s_%s_%d.tmp", prefix, suffix, s.tempCounter)
		s.tempCounter++
		if _, exists := s.files[name]; exists {
			continue
		}
		s.files[name] = nil
		return &memOutput{store: s, name: name}, nil
	}
}

// OpenInput opens a file for reading.
func (s *MemoryStore) OpenInput(_ context.Context, name string) (Input, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}
	data, exists := s.files[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
	}

	return &memInput{name: name, data: data}, nil
}

// Delete removes a file immediately.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	if _, exists := s.files[name]; !exists {
		return fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
	}

	delete(s.files, name)
	return nil
}

// Rename atomically moves oldName to newName, replacing newName if present.
func (s *MemoryStore) Rename(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	data, exists := s.files[oldName]
	if !exists {
		return fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, oldName)
	}

	s.files[newName] = data
	delete(s.files, oldName)
	return nil
}

// ListAll returns all file names in sorted order.
func (s *MemoryStore) ListAll(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FileLength returns the byte length of a file.
func (s *MemoryStore) FileLength(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, apperrors.ErrStoreClosed
	}
	data, exists := s.files[name]
	if !exists {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, name)
	}

	return int64(len(data)), nil
}

// PendingDeletions always returns an empty set; deletion is immediate.
func (s *MemoryStore) PendingDeletions(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	return map[string]struct{}{}, nil
}

// Sync is a no-op; memory needs no durability barrier.
func (s *MemoryStore) Sync(_ context.Context, _ []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	return nil
}

// SyncMetaData is a no-op; memory needs no durability barrier.
func (s *MemoryStore) SyncMetaData(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further operations fail with ErrStoreClosed;
// Close itself is idempotent so the composite can hold the same store in
// both slots.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.files = nil
	return nil
}

// memOutput buffers writes and publishes them to the store on Close.
type memOutput struct {
	store  *MemoryStore
	name   string
	buf    bytes.Buffer
	closed bool
}

func (o *memOutput) Write(p []byte) (int, error) {
	if o.closed {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrOutputClosed, o.name)
	}
	return o.buf.Write(p)
}

func (o *memOutput) Close() error {
	if o.closed {
		return fmt.Errorf("%w: %s", apperrors.ErrOutputClosed, o.name)
	}
	o.closed = true

	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	if o.store.closed {
		return apperrors.ErrStoreClosed
	}
	o.store.files[o.name] = o.buf.Bytes()
	return nil
}

func (o *memOutput) Name() string {
	return o.name
}

// memInput reads from the snapshot taken when the input was opened.
type memInput struct {
	name   string
	data   []byte
	pos    int64
	closed bool
}

func (in *memInput) Read(p []byte) (int, error) {
	if in.closed {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrInputClosed, in.name)
	}
	if in.pos >= int64(len(in.data)) {
		return 0, io.EOF
	}
	n := copy(p, in.data[in.pos:])
	in.pos += int64(n)
	return n, nil
}

func (in *memInput) ReadAt(p []byte, off int64) (int, error) {
	if in.closed {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrInputClosed, in.name)
	}
	if off < 0 || off >= int64(len(in.data)) {
		return 0, io.EOF
	}
	n := copy(p, in.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (in *memInput) Close() error {
	in.closed = true
	return nil
}

func (in *memInput) Name() string {
	return in.name
}

func (in *memInput) Length() int64 {
	return int64(len(in.data))
}
