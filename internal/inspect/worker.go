package inspect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/archive"
)

// SnapshotWorker takes git snapshots in the background.
type SnapshotWorker struct {
	archiver *archive.Archiver
	logger   *slog.Logger
	delay    time.Duration
	notify   chan struct{}
}

// SnapshotWorkerOption configures the SnapshotWorker.
type SnapshotWorkerOption func(*SnapshotWorker)

// WithSnapshotDelay sets the debounce delay before snapshotting.
// This allows multiple rapid requests to coalesce into a single snapshot.
func WithSnapshotDelay(d time.Duration) SnapshotWorkerOption {
	return func(w *SnapshotWorker) {
		w.delay = d
	}
}

// NewSnapshotWorker creates a new snapshot worker.
func NewSnapshotWorker(archiver *archive.Archiver, logger *slog.Logger, opts ...SnapshotWorkerOption) *SnapshotWorker {
	worker := &SnapshotWorker{
		archiver: archiver,
		logger:   logger,
		notify:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(worker)
	}

	return worker
}

// Notify signals that a snapshot should be taken.
// This is non-blocking - if a request is already pending, it's a no-op.
func (w *SnapshotWorker) Notify() {
	select {
	case w.notify <- struct{}{}:
		w.logger.Debug("snapshot worker notified")
	default:
		w.logger.Debug("snapshot worker notification skipped (already pending)")
	}
}

// Start runs the snapshot worker until the context is canceled.
// This method blocks and should be called in a goroutine.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.logger.InfoContext(ctx, "snapshot worker started", "snapshot_delay", w.delay)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "snapshot worker stopping")
			return
		case <-w.notify:
			w.snapshotWithDelay(ctx)
		}
	}
}

// snapshotWithDelay waits for the debounce delay (if configured) then snapshots.
func (w *SnapshotWorker) snapshotWithDelay(ctx context.Context) {
	if w.delay > 0 {
		w.logger.DebugContext(ctx, "waiting for snapshot delay", "delay", w.delay)

		timer := time.NewTimer(w.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// Continue to snapshot
		}
	}

	hash, err := w.archiver.Snapshot(ctx, "")
	if err != nil {
		if errors.Is(err, apperrors.ErrNoChanges) {
			w.logger.DebugContext(ctx, "snapshot skipped, no changes")
			return
		}
		w.logger.ErrorContext(ctx, "snapshot failed", "error", err)
		return
	}

	w.logger.InfoContext(ctx, "snapshot taken", "hash", hash)
}
