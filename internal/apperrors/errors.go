// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
)

// CrossStoreRenameError is returned when a rename's source and destination
// names route to different backing stores. Renames are never emulated by
// copying bytes between stores, so this is a hard failure.
type CrossStoreRenameError struct {
	Source string
	Dest   string
}

// Error implements the error interface.
func (e *CrossStoreRenameError) Error() string {
	return fmt.Sprintf("%s -> %s: source and destination are in different backing stores", e.Source, e.Dest)
}

// NewCrossStoreRenameError creates a new CrossStoreRenameError.
func NewCrossStoreRenameError(source, dest string) *CrossStoreRenameError {
	return &CrossStoreRenameError{Source: source, Dest: dest}
}

// Common static errors used throughout the application.
var (
	// ErrFileNotFound is returned when a named file does not exist in the store.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileAlreadyExists is returned when creating a file whose name is already taken.
	ErrFileAlreadyExists = errors.New("file already exists")

	// ErrStoreClosed is returned when an operation is attempted on a closed store.
	ErrStoreClosed = errors.New("store already closed")

	// ErrFilePendingDelete is returned when creating a file whose name is still pending deletion.
	ErrFilePendingDelete = errors.New("file pending delete")

	// ErrOutputClosed is returned when writing to an output that has already been closed.
	ErrOutputClosed = errors.New("output already closed")

	// ErrInputClosed is returned when reading from an input that has already been closed.
	ErrInputClosed = errors.New("input already closed")

	// ErrChecksumMismatch is returned when a segment file's checksum does not match its metadata.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrCorruptSegment is returned when a segment file cannot be decoded.
	ErrCorruptSegment = errors.New("corrupt segment")

	// ErrRecordOutOfRange is returned when a record index is outside a segment's record count.
	ErrRecordOutOfRange = errors.New("record index out of range")

	// ErrRecordTooLarge is returned when a record exceeds the size a segment can frame.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")

	// ErrSegmentNameRequired is returned when a segment operation is attempted without a name.
	ErrSegmentNameRequired = errors.New("segment name required")

	// ErrWriterFinished is returned when using a segment writer after Commit or Abort.
	ErrWriterFinished = errors.New("segment writer already finished")

	// ErrNoChanges is returned when a snapshot is requested but the store contents are unchanged.
	ErrNoChanges = errors.New("no changes since last snapshot")

	// ErrServerAlreadyRunning is returned when starting an inspection server that is already running.
	ErrServerAlreadyRunning = errors.New("server already running")

	// ErrStorePathRequired is returned when store roots are required but not configured.
	ErrStorePathRequired = errors.New("store paths required (set SWS_PRIMARY and SWS_SECONDARY)")

	// ErrSnapshotRepoRequired is returned when a snapshot is attempted without a repository path.
	ErrSnapshotRepoRequired = errors.New("snapshot repository required (set SWS_SNAPSHOT_REPO)")

	// ErrRemoteNotConfigured is returned when a remote operation is attempted without a remote URL.
	ErrRemoteNotConfigured = errors.New("remote repository not configured")

	// ErrHTTPSPasswordRequired is returned when HTTPS authentication is needed but no password is set.
	ErrHTTPSPasswordRequired = errors.New("HTTPS authentication requires a password (set SWS_SNAPSHOT_PASS)")

	// ErrMaxFileSizeExceeded is returned when an imported file exceeds the configured size limit.
	ErrMaxFileSizeExceeded = errors.New("file exceeds maximum size limit")

	// ErrFileNameRequired is returned when a command needs a file name argument.
	ErrFileNameRequired = errors.New("file name required")

	// ErrVerificationFailed is returned when one or more segments fail verification.
	ErrVerificationFailed = errors.New("segment verification failed")
)
