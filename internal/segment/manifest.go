package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/store"
)

// ManifestFileName is the file recording committed segment names.
const ManifestFileName = "segments.json"

// Manifest lists committed segments in commit order. It is advisory
// bookkeeping: List discovers segments from their metadata files and works
// even when the manifest is missing or stale.
type Manifest struct {
	Segments  []string  `json:"segments"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReadManifest loads the manifest from the store. A missing manifest is not
// an error and yields an empty one.
func ReadManifest(ctx context.Context, s store.Store) (*Manifest, error) {
	in, err := s.OpenInput(ctx, ManifestFileName)
	if err != nil {
		if errors.Is(err, apperrors.ErrFileNotFound) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = in.Close() }()

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// AddToManifest records a committed segment name in the manifest. The
// manifest is replaced through a temporary file and a rename; the temporary
// suffix matches the final extension's routing under the default extension
// set, keeping the rename inside one backing store.
func AddToManifest(ctx context.Context, s store.Store, name string) error {
	m, err := ReadManifest(ctx, s)
	if err != nil {
		return err
	}
	if slices.Contains(m.Segments, name) {
		return nil
	}
	m.Segments = append(m.Segments, name)
	m.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	out, err := s.CreateTempOutput(ctx, "segments", "json")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	generatedName := out.Name()
	if _, err = out.Write(data); err != nil {
		_ = out.Close()
		return fmt.Errorf("write manifest temp file: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close manifest temp file: %w", err)
	}

	if err = s.Rename(ctx, generatedName, ManifestFileName); err != nil {
		return fmt.Errorf("install manifest: %w", err)
	}
	if err = s.Sync(ctx, []string{ManifestFileName}); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	return s.SyncMetaData(ctx)
}
