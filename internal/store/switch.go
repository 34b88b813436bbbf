package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/indexkit/switchstore/internal/apperrors"
)

// SwitchStore is a composite Store that routes every file to one of two
// backing stores based on the file name's extension. Routing is a pure
// function of the name and the configured rule; it never depends on where a
// file actually lives, so a file must always be created, read, and deleted
// under the store the rule selects for its name.
//
// The composite adds no locking of its own. Every operation is synchronous
// delegation to one backing store, or a query of both for listings and
// pending-deletion aggregation.
type SwitchStore struct {
	primary               Store
	secondary             Store
	extensions            map[string]struct{}
	primaryOwnsExtensions bool
}

// NewSwitchStore creates a composite over two open backing stores. Files
// whose extension is in extensions route to primary when
// primaryOwnsExtensions is true and to secondary otherwise; all other files
// route to the opposite store. The composite owns both stores from here on
// and closes them when it is closed.
func NewSwitchStore(extensions []string, primary, secondary Store, primaryOwnsExtensions bool) *SwitchStore {
	extSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		extSet[ext] = struct{}{}
	}

	return &SwitchStore{
		primary:               primary,
		secondary:             secondary,
		extensions:            extSet,
		primaryOwnsExtensions: primaryOwnsExtensions,
	}
}

// ExtensionOf returns the extension token of a file name: the substring
// after the last '.', or the empty string when the name has no dot or ends
// with one. Extension matching everywhere in this package is case-sensitive
// and exact.
func ExtensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i == -1 {
		return ""
	}
	return name[i+1:]
}

// storeFor resolves the backing store for a file name. Deterministic: the
// same name always resolves to the same store under one configuration.
func (s *SwitchStore) storeFor(name string) Store {
	return s.storeForExtension(ExtensionOf(name))
}

func (s *SwitchStore) storeForExtension(ext string) Store {
	_, member := s.extensions[ext]
	if member == s.primaryOwnsExtensions {
		return s.primary
	}
	return s.secondary
}

// CreateOutput routes to the store owning the name's extension.
func (s *SwitchStore) CreateOutput(ctx context.Context, name string) (Output, error) {
	return s.storeFor(name).CreateOutput(ctx, name)
}

// CreateTempOutput routes on the suffix, which is the generated temp name's
// routing extension for allocation purposes. Note the generated name itself
// ends in ".tmp", so a later rename to a final name may cross the routing
// boundary and be rejected; callers pick suffixes accordingly.
func (s *SwitchStore) CreateTempOutput(ctx context.Context, prefix, suffix string) (Output, error) {
	return s.storeForExtension(suffix).CreateTempOutput(ctx, prefix, suffix)
}

// OpenInput routes to the store owning the name's extension.
func (s *SwitchStore) OpenInput(ctx context.Context, name string) (Input, error) {
	return s.storeFor(name).OpenInput(ctx, name)
}

// Delete routes to the store owning the name's extension.
func (s *SwitchStore) Delete(ctx context.Context, name string) error {
	return s.storeFor(name).Delete(ctx, name)
}

// Rename delegates to the single store owning both names. When the names
// route to different stores it fails with CrossStoreRenameError and changes
// nothing; bytes are never copied across stores to emulate a rename, since
// a partial copy-then-delete would break rename atomicity.
func (s *SwitchStore) Rename(ctx context.Context, oldName, newName string) error {
	src := s.storeFor(oldName)
	dst := s.storeFor(newName)
	if src != dst {
		return apperrors.NewCrossStoreRenameError(oldName, newName)
	}
	return src.Rename(ctx, oldName, newName)
}

// FileLength routes to the store owning the name's extension.
func (s *SwitchStore) FileLength(ctx context.Context, name string) (int64, error) {
	return s.storeFor(name).FileLength(ctx, name)
}

// ListAll concatenates the primary listing and the secondary listing. No
// deduplication: under correct routing a name exists in at most one store,
// and a duplicate in the merged listing is a routing violation worth seeing.
func (s *SwitchStore) ListAll(ctx context.Context) ([]string, error) {
	primaryNames, err := s.primary.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	secondaryNames, err := s.secondary.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return append(primaryNames, secondaryNames...), nil
}

// PendingDeletions returns the union of both stores' pending sets.
func (s *SwitchStore) PendingDeletions(ctx context.Context) (map[string]struct{}, error) {
	primaryPending, err := s.primary.PendingDeletions(ctx)
	if err != nil {
		return nil, err
	}
	secondaryPending, err := s.secondary.PendingDeletions(ctx)
	if err != nil {
		return nil, err
	}

	union := make(map[string]struct{}, len(primaryPending)+len(secondaryPending))
	for name := range primaryPending {
		union[name] = struct{}{}
	}
	for name := range secondaryPending {
		union[name] = struct{}{}
	}
	return union, nil
}

// Sync partitions the names by routing and forwards each partition to its
// store.
func (s *SwitchStore) Sync(ctx context.Context, names []string) error {
	var primaryNames, secondaryNames []string
	for _, name := range names {
		if s.storeFor(name) == s.primary {
			primaryNames = append(primaryNames, name)
		} else {
			secondaryNames = append(secondaryNames, name)
		}
	}

	if len(primaryNames) > 0 {
		if err := s.primary.Sync(ctx, primaryNames); err != nil {
			return err
		}
	}
	if len(secondaryNames) > 0 {
		if err := s.secondary.Sync(ctx, secondaryNames); err != nil {
			return err
		}
	}
	return nil
}

// SyncMetaData forwards to both stores.
func (s *SwitchStore) SyncMetaData(ctx context.Context) error {
	if err := s.primary.SyncMetaData(ctx); err != nil {
		return err
	}
	return s.secondary.SyncMetaData(ctx)
}

// Close closes both backing stores. The secondary close runs even when the
// primary close fails; failures from both are joined so neither is dropped.
func (s *SwitchStore) Close() error {
	return errors.Join(s.primary.Close(), s.secondary.Close())
}

// PrimaryStore returns the primary backing store handle. Diagnostic
// accessor; ordinary file operations go through routing instead.
func (s *SwitchStore) PrimaryStore() Store {
	return s.primary
}

// SecondaryStore returns the secondary backing store handle. Diagnostic
// accessor; ordinary file operations go through routing instead.
func (s *SwitchStore) SecondaryStore() Store {
	return s.secondary
}

// RouteOf reports which side a file name routes to, "primary" or
// "secondary". Diagnostic accessor.
func (s *SwitchStore) RouteOf(name string) string {
	if s.storeFor(name) == s.primary {
		return "primary"
	}
	return "secondary"
}

// Extensions returns the configured extension set, sorted. Diagnostic
// accessor.
func (s *SwitchStore) Extensions() []string {
	exts := make([]string, 0, len(s.extensions))
	for ext := range s.extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// PrimaryOwnsExtensions reports the routing polarity: true when extension
// set members route to the primary store.
func (s *SwitchStore) PrimaryOwnsExtensions() bool {
	return s.primaryOwnsExtensions
}
