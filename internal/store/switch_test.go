package store

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/indexkit/switchstore/internal/apperrors"
)

func setupSwitchStoreTest(t *testing.T) (context.Context, *SwitchStore) {
	t.Helper()

	sw := NewSwitchStore([]string{"fdt", "fdx", "fdm"}, NewMemoryStore(), NewMemoryStore(), true)
	return context.Background(), sw
}

func writeFile(t *testing.T, ctx context.Context, s Store, name, content string) {
	t.Helper()

	out, err := s.CreateOutput(ctx, name)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	if _, err = out.Write([]byte(content)); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err = out.Close(); err != nil {
		t.Fatalf("close %s: %v", name, err)
	}
}

func readFile(t *testing.T, ctx context.Context, s Store, name string) string {
	t.Helper()

	in, err := s.OpenInput(ctx, name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	if err = in.Close(); err != nil {
		t.Fatalf("close input %s: %v", name, err)
	}
	return string(data)
}

func listNames(t *testing.T, ctx context.Context, s Store) []string {
	t.Helper()

	names, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return names
}

func countName(names []string, want string) int {
	count := 0
	for _, name := range names {
		if name == want {
			count++
		}
	}
	return count
}

func TestExtensionOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
	}{
		{"a.b.ext", "ext"},
		{"noext", ""},
		{"foo.bar", "bar"},
		{"foo_bar_0.tmp", "tmp"},
		{"trailing.", ""},
		{".gitignore", "gitignore"},
		{"", ""},
		{"x.FDT", "FDT"},
	}

	for _, tt := range tests {
		if got := ExtensionOf(tt.name); got != tt.expected {
			t.Errorf("ExtensionOf(%q) = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestSwitchStore_RoutesMemberExtensionsToPrimary(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	writeFile(t, ctx, sw, "seg.fdt", "data")
	writeFile(t, ctx, sw, "seg.log", "log")

	// Member extension lands in primary, non-member in secondary
	if got := countName(listNames(t, ctx, sw.PrimaryStore()), "seg.fdt"); got != 1 {
		t.Errorf("seg.fdt in primary listing %d times, want 1", got)
	}
	if got := countName(listNames(t, ctx, sw.SecondaryStore()), "seg.fdt"); got != 0 {
		t.Errorf("seg.fdt in secondary listing %d times, want 0", got)
	}
	if got := countName(listNames(t, ctx, sw.SecondaryStore()), "seg.log"); got != 1 {
		t.Errorf("seg.log in secondary listing %d times, want 1", got)
	}

	// Reads route the same way the create did
	if got := readFile(t, ctx, sw, "seg.fdt"); got != "data" {
		t.Errorf("read seg.fdt = %q, want %q", got, "data")
	}
}

func TestSwitchStore_NegativePolarityRoutesMembersToSecondary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sw := NewSwitchStore([]string{"fdt"}, NewMemoryStore(), NewMemoryStore(), false)

	writeFile(t, ctx, sw, "seg.fdt", "data")
	writeFile(t, ctx, sw, "seg.log", "log")

	if got := countName(listNames(t, ctx, sw.SecondaryStore()), "seg.fdt"); got != 1 {
		t.Errorf("seg.fdt in secondary listing %d times, want 1", got)
	}
	if got := countName(listNames(t, ctx, sw.PrimaryStore()), "seg.log"); got != 1 {
		t.Errorf("seg.log in primary listing %d times, want 1", got)
	}
}

func TestSwitchStore_EmptyExtensionSetRoutesEverythingOneWay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sw := NewSwitchStore(nil, NewMemoryStore(), NewMemoryStore(), true)

	writeFile(t, ctx, sw, "a.fdt", "x")
	writeFile(t, ctx, sw, "noext", "y")

	// Nothing is a member, so everything goes to the opposite of primary
	if got := len(listNames(t, ctx, sw.PrimaryStore())); got != 0 {
		t.Errorf("primary listing has %d files, want 0", got)
	}
	if got := len(listNames(t, ctx, sw.SecondaryStore())); got != 2 {
		t.Errorf("secondary listing has %d files, want 2", got)
	}
}

func TestSwitchStore_RoutingIsIdempotent(t *testing.T) {
	t.Parallel()
	_, sw := setupSwitchStoreTest(t)

	names := []string{"seg.fdt", "seg.log", "noext", "a.b.fdm", "x.tmp"}
	for _, name := range names {
		first := sw.storeFor(name)
		second := sw.storeFor(name)
		if first != second {
			t.Errorf("storeFor(%q) changed between calls", name)
		}
	}
}

func TestSwitchStore_DeleteRoutesLikeCreate(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	writeFile(t, ctx, sw, "seg.fdx", "idx")
	if err := sw.Delete(ctx, "seg.fdx"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := len(listNames(t, ctx, sw)); got != 0 {
		t.Errorf("composite listing has %d files after delete, want 0", got)
	}
}

func TestSwitchStore_OpenInputPropagatesNotFound(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	_, err := sw.OpenInput(ctx, "missing.fdt")
	if !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("open missing file: got %v, want ErrFileNotFound", err)
	}

	_, err = sw.FileLength(ctx, "missing.log")
	if !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("length of missing file: got %v, want ErrFileNotFound", err)
	}
}

func TestSwitchStore_FileLengthRoutes(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	writeFile(t, ctx, sw, "seg.fdt", "12345")

	length, err := sw.FileLength(ctx, "seg.fdt")
	if err != nil {
		t.Fatalf("file length: %v", err)
	}
	if length != 5 {
		t.Errorf("file length = %d, want 5", length)
	}
}

func TestSwitchStore_ListAllConcatenatesBothStores(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	writeFile(t, ctx, sw, "a.fdt", "1")
	writeFile(t, ctx, sw, "b.fdm", "2")
	writeFile(t, ctx, sw, "c.log", "3")

	names := listNames(t, ctx, sw)
	if len(names) != 3 {
		t.Fatalf("composite listing has %d files, want 3: %v", len(names), names)
	}
	for _, want := range []string{"a.fdt", "b.fdm", "c.log"} {
		if got := countName(names, want); got != 1 {
			t.Errorf("%s appears %d times in composite listing, want 1", want, got)
		}
	}
}

func TestSwitchStore_ListAllDoesNotDeduplicate(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	// Plant the same name in both stores through the diagnostic accessors,
	// violating routing on purpose. The merge must expose the duplicate.
	writeFile(t, ctx, sw.PrimaryStore(), "dup.fdt", "p")
	writeFile(t, ctx, sw.SecondaryStore(), "dup.fdt", "s")

	names := listNames(t, ctx, sw)
	if got := countName(names, "dup.fdt"); got != 2 {
		t.Errorf("dup.fdt appears %d times in composite listing, want 2", got)
	}
}

func TestSwitchStore_SameInstanceBothSlotsDoubleCountsListing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemoryStore()
	sw := NewSwitchStore([]string{"fdt"}, mem, mem, true)

	writeFile(t, ctx, sw, "only.fdt", "x")

	// Both slots answer the enumeration, so the single file shows up twice.
	names := listNames(t, ctx, sw)
	if got := countName(names, "only.fdt"); got != 2 {
		t.Errorf("only.fdt appears %d times in degenerate listing, want 2", got)
	}

	if err := sw.Close(); err != nil {
		t.Errorf("close degenerate composite: %v", err)
	}
}

func TestSwitchStore_CreateTempOutputRoutesBySuffix(t *testing.T) {
	t.Parallel()
	ctx, sw := setupSwitchStoreTest(t)

	// Suffix in the extension set allocates in primary
	out, err := sw.CreateTempOutput(ctx, "seg", "fdt")
	if err != nil {
		t.Fatalf("create temp output: %v", err)
	}
	if out.Name() != "seg_fdt_0.tmp" {
		t.Errorf("temp name = %q, want %q", out.Name(), "seg_fdt_0.tmp")
	}
	if err = out.Close(); err != nil {
		t.Fatalf("close temp output: %v", err)
	}
	if got := countName(listNames(t, ctx, sw.PrimaryStore()), "seg_fdt_0.tmp"); got != 1 {
		t.Errorf("temp file with member suffix not allocated in primary")
	}

	// Suffix outside the set allocates in secondary, with its own counter
	out, err = sw.CreateTempOutput(ctx, "seg", "log")
	if err != nil {
		t.Fatalf("create temp output: %v", err)
	}
	if out.Name() != "seg_log_0.tmp" {
		t.Errorf("temp name = %q, want %q", out.Name(), "seg_log_0.tmp")
	}
	if err = out.Close(); err != nil {
		t.Fatalf("close temp output: %v", err)
	}
	if got := countName(listNames(t, ctx, sw.SecondaryStore()), "seg_log_0.tmp"); got != 1 {
		t.Errorf("temp file with non-member suffix not allocated in secondary")
	}
}

func TestSwitchStore_CrossStoreRenameFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sw := NewSwitchStore([]string{"bar"}, NewMemoryStore(), NewMemoryStore(), true)

	// Suffix "bar" routes the temp allocation to primary, but the generated
	// name ends in ".tmp" and routes to secondary. Renaming it to a ".bar"
	// name therefore crosses the boundary.
	out, err := sw.CreateTempOutput(ctx, "foo", "bar")
	if err != nil {
		t.Fatalf("create temp output: %v", err)
	}
	if _, err = out.Write([]byte("payload")); err != nil {
		t.Fatalf("write temp output: %v", err)
	}
	if err = out.Close(); err != nil {
		t.Fatalf("close temp output: %v", err)
	}

	err = sw.Rename(ctx, out.Name(), "foo.bar")
	if err == nil {
		t.Fatal("expected cross-store rename to fail")
	}

	var crossErr *apperrors.CrossStoreRenameError
	if !errors.As(err, &crossErr) {
		t.Fatalf("got %T, want *apperrors.CrossStoreRenameError", err)
	}
	if crossErr.Source != "foo_bar_0.tmp" || crossErr.Dest != "foo.bar" {
		t.Errorf("error names = %q -> %q, want foo_bar_0.tmp -> foo.bar", crossErr.Source, crossErr.Dest)
	}
	want := "foo_bar_0.tmp -> foo.bar: source and destination are in different backing stores"
	if err.Error() != want {
		t.Errorf("error message = %q, want %q", err.Error(), want)
	}

	// Neither store changed: the temp file stays where it was allocated and
	// the destination name exists nowhere.
	if got := countName(listNames(t, ctx, sw.PrimaryStore()), "foo_bar_0.tmp"); got != 1 {
		t.Errorf("temp file missing from primary after failed rename")
	}
	if got := len(listNames(t, ctx, sw.SecondaryStore())); got != 0 {
		t.Errorf("secondary listing has %d files after failed rename, want 0", got)
	}
	if got := countName(listNames(t, ctx, sw), "foo.bar"); got != 0 {
		t.Errorf("destination name present after failed rename")
	}
}

func TestSwitchStore_SameStoreRenameSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// With both "bar" and "tmp" in the set, the temp allocation and the
	// generated name route to the same store and the rename goes through.
	sw := NewSwitchStore([]string{"bar", "tmp"}, NewMemoryStore(), NewMemoryStore(), true)

	out, err := sw.CreateTempOutput(ctx, "foo", "bar")
	if err != nil {
		t.Fatalf("create temp output: %v", err)
	}
	if _, err = out.Write([]byte("payload")); err != nil {
		t.Fatalf("write temp output: %v", err)
	}
	if err = out.Close(); err != nil {
		t.Fatalf("close temp output: %v", err)
	}

	if err = sw.Rename(ctx, out.Name(), "foo.bar"); err != nil {
		t.Fatalf("same-store rename: %v", err)
	}

	if got := countName(listNames(t, ctx, sw), out.Name()); got != 0 {
		t.Errorf("old name still listed after rename")
	}
	if got := readFile(t, ctx, sw, "foo.bar"); got != "payload" {
		t.Errorf("renamed content = %q, want %q", got, "payload")
	}
}

func TestSwitchStore_PendingDeletionsUnion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	primaryDir, err := os.MkdirTemp("", "switch-primary-*")
	if err != nil {
		t.Fatalf("failed to create primary dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(primaryDir) })

	secondaryDir, err := os.MkdirTemp("", "switch-secondary-*")
	if err != nil {
		t.Fatalf("failed to create secondary dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(secondaryDir) })

	primary, err := NewLocalStore(primaryDir)
	if err != nil {
		t.Fatalf("failed to create primary store: %v", err)
	}
	secondary, err := NewLocalStore(secondaryDir)
	if err != nil {
		t.Fatalf("failed to create secondary store: %v", err)
	}
	sw := NewSwitchStore([]string{"fdt"}, primary, secondary, true)

	writeFile(t, ctx, sw, "seg.fdt", "primary side")
	writeFile(t, ctx, sw, "seg.log", "secondary side")

	inFdt, err := sw.OpenInput(ctx, "seg.fdt")
	if err != nil {
		t.Fatalf("open seg.fdt: %v", err)
	}
	inLog, err := sw.OpenInput(ctx, "seg.log")
	if err != nil {
		t.Fatalf("open seg.log: %v", err)
	}

	// Delete while open defers in both stores; the union shows both names
	if err = sw.Delete(ctx, "seg.fdt"); err != nil {
		t.Fatalf("delete seg.fdt: %v", err)
	}
	if err = sw.Delete(ctx, "seg.log"); err != nil {
		t.Fatalf("delete seg.log: %v", err)
	}

	pending, err := sw.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("pending deletions: %v", err)
	}
	if _, ok := pending["seg.fdt"]; !ok {
		t.Errorf("seg.fdt missing from pending union: %v", pending)
	}
	if _, ok := pending["seg.log"]; !ok {
		t.Errorf("seg.log missing from pending union: %v", pending)
	}

	// Logically gone already
	if got := len(listNames(t, ctx, sw)); got != 0 {
		t.Errorf("composite listing has %d files while deletes pending, want 0", got)
	}

	// Open readers still see the bytes
	data, err := io.ReadAll(inFdt)
	if err != nil {
		t.Fatalf("read deferred seg.fdt: %v", err)
	}
	if string(data) != "primary side" {
		t.Errorf("deferred read = %q, want %q", data, "primary side")
	}

	// Last close completes the physical deletes and empties the union
	if err = inFdt.Close(); err != nil {
		t.Fatalf("close seg.fdt input: %v", err)
	}
	if err = inLog.Close(); err != nil {
		t.Fatalf("close seg.log input: %v", err)
	}

	pending, err = sw.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("pending deletions after close: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending union not empty after readers closed: %v", pending)
	}
	if _, err = os.Stat(primaryDir + "/seg.fdt"); !os.IsNotExist(err) {
		t.Errorf("seg.fdt still on disk after last reader closed")
	}
}

func TestSwitchStore_SyncPartitionsNamesByRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	primary := &recordingStore{Store: NewMemoryStore()}
	secondary := &recordingStore{Store: NewMemoryStore()}
	sw := NewSwitchStore([]string{"fdt", "fdx"}, primary, secondary, true)

	writeFile(t, ctx, sw, "a.fdt", "1")
	writeFile(t, ctx, sw, "b.fdx", "2")
	writeFile(t, ctx, sw, "c.log", "3")

	if err := sw.Sync(ctx, []string{"a.fdt", "c.log", "b.fdx"}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(primary.synced) != 1 || len(primary.synced[0]) != 2 {
		t.Fatalf("primary sync calls = %v, want one call with two names", primary.synced)
	}
	if primary.synced[0][0] != "a.fdt" || primary.synced[0][1] != "b.fdx" {
		t.Errorf("primary sync names = %v, want [a.fdt b.fdx]", primary.synced[0])
	}
	if len(secondary.synced) != 1 || len(secondary.synced[0]) != 1 || secondary.synced[0][0] != "c.log" {
		t.Errorf("secondary sync calls = %v, want one call with [c.log]", secondary.synced)
	}
}

func TestSwitchStore_CloseClosesBothStoresEvenOnFailure(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	secondary := &trackCloseStore{Store: NewMemoryStore()}
	sw := NewSwitchStore(nil, &failCloseStore{Store: NewMemoryStore(), closeErr: errBoom}, secondary, true)

	err := sw.Close()
	if !errors.Is(err, errBoom) {
		t.Errorf("composite close error = %v, want to wrap boom", err)
	}
	if !secondary.closed {
		t.Error("secondary store not closed after primary close failed")
	}
}

func TestSwitchStore_DiagnosticAccessors(t *testing.T) {
	t.Parallel()
	_, sw := setupSwitchStoreTest(t)

	if got := sw.RouteOf("seg.fdt"); got != "primary" {
		t.Errorf("RouteOf(seg.fdt) = %q, want primary", got)
	}
	if got := sw.RouteOf("notes.log"); got != "secondary" {
		t.Errorf("RouteOf(notes.log) = %q, want secondary", got)
	}
	if got := sw.RouteOf("noext"); got != "secondary" {
		t.Errorf("RouteOf(noext) = %q, want secondary", got)
	}

	exts := sw.Extensions()
	if len(exts) != 3 || exts[0] != "fdm" || exts[1] != "fdt" || exts[2] != "fdx" {
		t.Errorf("Extensions() = %v, want [fdm fdt fdx]", exts)
	}
	if !sw.PrimaryOwnsExtensions() {
		t.Error("PrimaryOwnsExtensions() = false, want true")
	}
}

func TestSwitchStore_RouteOfSameInstanceReportsPrimary(t *testing.T) {
	t.Parallel()
	mem := NewMemoryStore()
	sw := NewSwitchStore([]string{"fdt"}, mem, mem, true)

	if got := sw.RouteOf("x.log"); got != "primary" {
		t.Errorf("RouteOf(x.log) with one store in both slots = %q, want primary", got)
	}
}

// failCloseStore fails its Close with a fixed error.
type failCloseStore struct {
	Store
	closeErr error
}

func (s *failCloseStore) Close() error {
	return s.closeErr
}

// trackCloseStore records that Close was called.
type trackCloseStore struct {
	Store
	closed bool
}

func (s *trackCloseStore) Close() error {
	s.closed = true
	return s.Store.Close()
}

// recordingStore records the name lists passed to Sync.
type recordingStore struct {
	Store
	synced [][]string
}

func (s *recordingStore) Sync(ctx context.Context, names []string) error {
	s.synced = append(s.synced, names)
	return s.Store.Sync(ctx, names)
}
