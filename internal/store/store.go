// Package store provides a flat-namespace file store abstraction, two
// concrete backing stores (in-memory and disk-backed), and a composite store
// that routes each file to one of two backing stores by file name extension.
package store

import (
	"context"
	"io"
)

// Store abstracts a flat namespace of named files. Implementations own file
// existence and content; callers hold no location state. The composite
// SwitchStore implements Store as well, so stores nest.
//
//nolint:interfacebloat // Store mirrors the complete backing-store contract
type Store interface {
	// Write operations
	CreateOutput(ctx context.Context, name string) (Output, error)
	CreateTempOutput(ctx context.Context, prefix, suffix string) (Output, error)
	Delete(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error

	// Read operations
	OpenInput(ctx context.Context, name string) (Input, error)
	FileLength(ctx context.Context, name string) (int64, error)
	ListAll(ctx context.Context) ([]string, error)

	// PendingDeletions returns the names deleted while still open for
	// reading, not yet physically removed.
	PendingDeletions(ctx context.Context) (map[string]struct{}, error)

	// Durability
	Sync(ctx context.Context, names []string) error
	SyncMetaData(ctx context.Context) error

	Close() error
}

// Output is a write handle for a single new file. Name reports the file name
// being written; for temp outputs this is the generated name.
type Output interface {
	io.Writer
	io.Closer
	Name() string
}

// Input is a read handle for a single existing file. ReadAt serves the file
// contents as they were when the input was opened.
type Input interface {
	io.Reader
	io.ReaderAt
	io.Closer
	Name() string
	Length() int64
}
