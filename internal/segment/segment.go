// Package segment implements a record-oriented file format on top of a
// store.Store. A segment is a named triple of files: a data file holding
// length-prefixed record payloads, an index file holding one offset per
// record, and a metadata file that commits the segment.
//
// The data and index files are written under their final names; the
// metadata file is written last, so a segment without metadata is simply an
// uncommitted leftover and is ignored by readers and listings. This keeps
// every write single-store when the underlying store is a composite: no
// rename ever needs to cross a routing boundary for segment files
// themselves.
package segment

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/indexkit/switchstore/internal/store"
)

const (
	// DataExt is the extension of the record payload file.
	DataExt = "fdt"
	// IndexExt is the extension of the record offset file.
	IndexExt = "fdx"
	// MetaExt is the extension of the segment metadata file.
	MetaExt = "fdm"

	// segmentMagic opens the data and index files ("SWS1").
	segmentMagic = uint32(0x53575331)
	// formatVersion is bumped on incompatible layout changes.
	formatVersion = uint32(1)

	// headerSize is magic plus version, both uint32.
	headerSize = 8
	// footerSize is the trailing CRC-32C, uint32.
	footerSize = 4
	// recordPrefixSize is the uint32 length in front of every record.
	recordPrefixSize = 4
	// offsetEntrySize is one uint64 index entry per record.
	offsetEntrySize = 8

	// maxRecordSize caps a single record; larger lengths in a data file
	// mean corruption, not data.
	maxRecordSize = 256 << 20 // 256MB
)

// Metadata commits a segment and describes its two sibling files.
type Metadata struct {
	FormatVersion uint32    `json:"format_version"`
	Name          string    `json:"name"`
	RecordCount   int       `json:"record_count"`
	DataLength    int64     `json:"data_length"`
	IndexLength   int64     `json:"index_length"`
	DataChecksum  uint32    `json:"data_checksum"`
	IndexChecksum uint32    `json:"index_checksum"`
	WrittenAt     time.Time `json:"written_at"`
	ToolVersion   string    `json:"tool_version"`
}

// DataFileName returns the data file name for a segment.
func DataFileName(name string) string {
	return name + "." + DataExt
}

// IndexFileName returns the index file name for a segment.
func IndexFileName(name string) string {
	return name + "." + IndexExt
}

// MetaFileName returns the metadata file name for a segment.
func MetaFileName(name string) string {
	return name + "." + MetaExt
}

// List returns the committed segment names in a store, sorted. A segment is
// committed exactly when its metadata file exists.
func List(ctx context.Context, s store.Store) ([]string, error) {
	names, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var segments []string
	for _, name := range names {
		if store.ExtensionOf(name) != MetaExt {
			continue
		}
		segments = append(segments, strings.TrimSuffix(name, "."+MetaExt))
	}
	sort.Strings(segments)
	return segments, nil
}
