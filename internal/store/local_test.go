package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/indexkit/switchstore/internal/apperrors"
)

func setupLocalStoreTest(t *testing.T) (context.Context, *LocalStore, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "switch-local-*")
	if err != nil {
		t.Fatalf("failed to create store dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	local, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}

	return context.Background(), local, dir
}

func TestLocalStore_WriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "disk bytes")

	if got := readFile(t, ctx, local, "doc.txt"); got != "disk bytes" {
		t.Errorf("read = %q, want %q", got, "disk bytes")
	}

	length, err := local.FileLength(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("file length: %v", err)
	}
	if length != int64(len("disk bytes")) {
		t.Errorf("length = %d, want %d", length, len("disk bytes"))
	}
}

func TestLocalStore_CreateOutputExclusive(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "first")

	_, err := local.CreateOutput(ctx, "doc.txt")
	if !errors.Is(err, apperrors.ErrFileAlreadyExists) {
		t.Errorf("second create: got %v, want ErrFileAlreadyExists", err)
	}
}

func TestLocalStore_DeferredDeleteWhileOpen(t *testing.T) {
	t.Parallel()
	ctx, local, dir := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "keep until close")

	in, err := local.OpenInput(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err = local.Delete(ctx, "doc.txt"); err != nil {
		t.Fatalf("delete while open: %v", err)
	}

	// Logically gone at once
	if got := countName(listNames(t, ctx, local), "doc.txt"); got != 0 {
		t.Errorf("deleted name still listed")
	}
	if _, err = local.FileLength(ctx, "doc.txt"); !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("length of pending name: got %v, want ErrFileNotFound", err)
	}
	if _, err = local.OpenInput(ctx, "doc.txt"); !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("open of pending name: got %v, want ErrFileNotFound", err)
	}

	pending, err := local.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("pending deletions: %v", err)
	}
	if _, ok := pending["doc.txt"]; !ok {
		t.Errorf("doc.txt missing from pending set: %v", pending)
	}

	// The name stays reserved while pending
	if _, err = local.CreateOutput(ctx, "doc.txt"); !errors.Is(err, apperrors.ErrFilePendingDelete) {
		t.Errorf("create over pending name: got %v, want ErrFilePendingDelete", err)
	}

	// The open reader still sees the full content
	data, err := io.ReadAll(in)
	if err != nil {
		t.Fatalf("read pending file: %v", err)
	}
	if string(data) != "keep until close" {
		t.Errorf("pending read = %q, want %q", data, "keep until close")
	}

	// Last close removes the bytes and clears the pending set
	if err = in.Close(); err != nil {
		t.Fatalf("close input: %v", err)
	}
	pending, err = local.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("pending deletions after close: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending set not empty after last close: %v", pending)
	}
	if _, err = os.Stat(filepath.Join(dir, "doc.txt")); !os.IsNotExist(err) {
		t.Errorf("file still on disk after deferred delete completed")
	}
}

func TestLocalStore_DeferredDeleteWaitsForLastReader(t *testing.T) {
	t.Parallel()
	ctx, local, dir := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "two readers")

	first, err := local.OpenInput(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := local.OpenInput(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("open second: %v", err)
	}

	if err = local.Delete(ctx, "doc.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err = first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}
	pending, err := local.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("pending deletions: %v", err)
	}
	if _, ok := pending["doc.txt"]; !ok {
		t.Errorf("delete completed while a reader was still open")
	}

	if err = second.Close(); err != nil {
		t.Fatalf("close second: %v", err)
	}
	if _, err = os.Stat(filepath.Join(dir, "doc.txt")); !os.IsNotExist(err) {
		t.Errorf("file still on disk after last reader closed")
	}
}

func TestLocalStore_DoubleCloseInputKeepsRefcountBalanced(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "x")

	first, err := local.OpenInput(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := local.OpenInput(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("open second: %v", err)
	}

	// Closing the same input twice must not release the other reader's hold
	if err = first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}
	if err = first.Close(); err != nil {
		t.Fatalf("second close of first input: %v", err)
	}

	if err = local.Delete(ctx, "doc.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pending, err := local.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("pending deletions: %v", err)
	}
	if _, ok := pending["doc.txt"]; !ok {
		t.Errorf("delete not deferred, refcount lost by double close")
	}

	if err = second.Close(); err != nil {
		t.Fatalf("close second: %v", err)
	}
}

func TestLocalStore_RenameAtomicWithinStore(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "old.txt", "payload")

	if err := local.Rename(ctx, "old.txt", "new.txt"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := local.OpenInput(ctx, "old.txt"); !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("old name after rename: got %v, want ErrFileNotFound", err)
	}
	if got := readFile(t, ctx, local, "new.txt"); got != "payload" {
		t.Errorf("renamed content = %q, want %q", got, "payload")
	}

	// A failed rename changes nothing
	err := local.Rename(ctx, "missing.txt", "other.txt")
	if !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("rename missing source: got %v, want ErrFileNotFound", err)
	}
	if got := countName(listNames(t, ctx, local), "other.txt"); got != 0 {
		t.Errorf("failed rename created the destination")
	}
}

func TestLocalStore_TempOutputCounterSkipsTakenNames(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "seg_fdt_0.tmp", "taken")

	out, err := local.CreateTempOutput(ctx, "seg", "fdt")
	if err != nil {
		t.Fatalf("create temp output: %v", err)
	}
	if out.Name() != "seg_fdt_1.tmp" {
		t.Errorf("temp name = %q, want %q", out.Name(), "seg_fdt_1.tmp")
	}
	if err = out.Close(); err != nil {
		t.Fatalf("close temp output: %v", err)
	}
}

func TestLocalStore_SyncFlushesWithoutError(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "a.fdt", "1")
	writeFile(t, ctx, local, "b.fdx", "2")

	if err := local.Sync(ctx, []string{"a.fdt", "b.fdx"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := local.SyncMetaData(ctx); err != nil {
		t.Fatalf("sync metadata: %v", err)
	}
}

func TestLocalStore_ListAllSkipsSubdirectories(t *testing.T) {
	t.Parallel()
	ctx, local, dir := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "x")
	if err := os.Mkdir(filepath.Join(dir, "nested"), dirPerm); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names := listNames(t, ctx, local)
	if len(names) != 1 || names[0] != "doc.txt" {
		t.Errorf("listing = %v, want [doc.txt]", names)
	}
}

func TestLocalStore_ClosedStoreFailsOperations(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	if err := local.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := local.Close(); err != nil {
		t.Errorf("second close: got %v, want nil", err)
	}

	if _, err := local.CreateOutput(ctx, "doc.txt"); !errors.Is(err, apperrors.ErrStoreClosed) {
		t.Errorf("create after close: got %v, want ErrStoreClosed", err)
	}
	if _, err := local.ListAll(ctx); !errors.Is(err, apperrors.ErrStoreClosed) {
		t.Errorf("list after close: got %v, want ErrStoreClosed", err)
	}
}

func TestLocalStore_InputSurvivesStoreClose(t *testing.T) {
	t.Parallel()
	ctx, local, _ := setupLocalStoreTest(t)

	writeFile(t, ctx, local, "doc.txt", "outlives the store")

	in, err := local.OpenInput(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err = local.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		t.Fatalf("read after store close: %v", err)
	}
	if string(data) != "outlives the store" {
		t.Errorf("read = %q, want %q", data, "outlives the store")
	}
	if err = in.Close(); err != nil {
		t.Fatalf("close input: %v", err)
	}
}

func TestLocalStore_WriteRateLimitStillDeliversBytes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "switch-limited-*")
	if err != nil {
		t.Fatalf("failed to create store dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	// Generous limit: the throttle path runs but the test never stalls
	local, err := NewLocalStore(dir, WithWriteRateLimit(64*1024*1024))
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}

	writeFile(t, ctx, local, "doc.txt", "throttled bytes")

	if got := readFile(t, ctx, local, "doc.txt"); got != "throttled bytes" {
		t.Errorf("read = %q, want %q", got, "throttled bytes")
	}
}
