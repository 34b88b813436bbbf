package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/store"
)

// Reader provides random access to the records of a committed segment. It
// keeps the data file open for ReadAt and must be closed after use.
type Reader struct {
	name    string
	meta    *Metadata
	offsets []uint64
	data    store.Input
}

// OpenReader opens a committed segment, validating the index file against
// its footer and the segment metadata.
func OpenReader(ctx context.Context, s store.Store, name string) (*Reader, error) {
	if name == "" {
		return nil, apperrors.ErrSegmentNameRequired
	}

	meta, err := ReadMetadata(ctx, s, name)
	if err != nil {
		return nil, err
	}

	indexData, err := readWholeFile(ctx, s, IndexFileName(name))
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	offsets, err := decodeIndex(indexData, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", IndexFileName(name), err)
	}

	data, err := s.OpenInput(ctx, DataFileName(name))
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	if data.Length() != meta.DataLength {
		_ = data.Close()
		return nil, fmt.Errorf("%s: %w: length %d, metadata says %d",
			DataFileName(name), apperrors.ErrCorruptSegment, data.Length(), meta.DataLength)
	}

	return &Reader{name: name, meta: meta, offsets: offsets, data: data}, nil
}

// Count returns the number of records in the segment.
func (r *Reader) Count() int {
	return len(r.offsets)
}

// Metadata returns the segment metadata. Callers must not modify it.
func (r *Reader) Metadata() *Metadata {
	return r.meta
}

// Record reads the record at index i.
func (r *Reader) Record(i int) ([]byte, error) {
	if i < 0 || i >= len(r.offsets) {
		return nil, fmt.Errorf("%w: %d of %d", apperrors.ErrRecordOutOfRange, i, len(r.offsets))
	}

	offset := int64(r.offsets[i])
	payloadEnd := r.meta.DataLength - footerSize

	var prefix [recordPrefixSize]byte
	if offset < headerSize || offset+recordPrefixSize > payloadEnd {
		return nil, fmt.Errorf("%w: record %d offset %d outside data file", apperrors.ErrCorruptSegment, i, offset)
	}
	if _, err := r.data.ReadAt(prefix[:], offset); err != nil {
		return nil, fmt.Errorf("read record %d prefix: %w", i, err)
	}

	length := int64(binary.LittleEndian.Uint32(prefix[:]))
	if length > maxRecordSize || offset+recordPrefixSize+length > payloadEnd {
		return nil, fmt.Errorf("%w: record %d claims %d bytes", apperrors.ErrCorruptSegment, i, length)
	}

	record := make([]byte, length)
	if _, err := r.data.ReadAt(record, offset+recordPrefixSize); err != nil {
		return nil, fmt.Errorf("read record %d: %w", i, err)
	}
	return record, nil
}

// Close releases the underlying data file.
func (r *Reader) Close() error {
	return r.data.Close()
}

// ReadMetadata loads and validates the metadata file of a segment.
func ReadMetadata(ctx context.Context, s store.Store, name string) (*Metadata, error) {
	data, err := readWholeFile(ctx, s, MetaFileName(name))
	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", MetaFileName(name), apperrors.ErrCorruptSegment, err)
	}
	if meta.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%s: %w: unsupported format version %d",
			MetaFileName(name), apperrors.ErrCorruptSegment, meta.FormatVersion)
	}
	return &meta, nil
}

// Verify re-reads a segment's data and index files end to end, checking both
// footers and the checksums recorded in the metadata file.
func Verify(ctx context.Context, s store.Store, name string) error {
	meta, err := ReadMetadata(ctx, s, name)
	if err != nil {
		return err
	}
	if err := verifyFile(ctx, s, DataFileName(name), meta.DataLength, meta.DataChecksum); err != nil {
		return err
	}
	return verifyFile(ctx, s, IndexFileName(name), meta.IndexLength, meta.IndexChecksum)
}

func verifyFile(ctx context.Context, s store.Store, name string, wantLength int64, wantChecksum uint32) error {
	if wantLength < headerSize+footerSize {
		return fmt.Errorf("%s: %w: metadata length %d below minimum", name, apperrors.ErrCorruptSegment, wantLength)
	}

	in, err := s.OpenInput(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if in.Length() != wantLength {
		return fmt.Errorf("%s: %w: length %d, metadata says %d", name, apperrors.ErrCorruptSegment, in.Length(), wantLength)
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(in, header[:]); err != nil {
		return fmt.Errorf("read %s header: %w", name, err)
	}
	if binary.LittleEndian.Uint32(header[0:4]) != segmentMagic {
		return fmt.Errorf("%s: %w: bad magic", name, apperrors.ErrCorruptSegment)
	}

	crc := crc32.New(castagnoliTable)
	_, _ = crc.Write(header[:])
	if _, err := io.CopyN(crc, in, wantLength-headerSize-footerSize); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	var footer [footerSize]byte
	if _, err := io.ReadFull(in, footer[:]); err != nil {
		return fmt.Errorf("read %s footer: %w", name, err)
	}
	stored := binary.LittleEndian.Uint32(footer[:])

	if crc.Sum32() != stored {
		return fmt.Errorf("%s: %w", name, apperrors.ErrChecksumMismatch)
	}
	if stored != wantChecksum {
		return fmt.Errorf("%s: %w: footer checksum differs from metadata", name, apperrors.ErrCorruptSegment)
	}
	return nil
}

func readWholeFile(ctx context.Context, s store.Store, name string) ([]byte, error) {
	in, err := s.OpenInput(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()
	return io.ReadAll(in)
}

func decodeIndex(data []byte, meta *Metadata) ([]uint64, error) {
	if int64(len(data)) != meta.IndexLength {
		return nil, fmt.Errorf("%w: length %d, metadata says %d", apperrors.ErrCorruptSegment, len(data), meta.IndexLength)
	}
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: index too short", apperrors.ErrCorruptSegment)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != segmentMagic {
		return nil, fmt.Errorf("%w: bad magic", apperrors.ErrCorruptSegment)
	}
	if binary.LittleEndian.Uint32(data[4:8]) != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version", apperrors.ErrCorruptSegment)
	}

	body := data[:len(data)-footerSize]
	stored := binary.LittleEndian.Uint32(data[len(data)-footerSize:])
	if crc32.Checksum(body, castagnoliTable) != stored {
		return nil, apperrors.ErrChecksumMismatch
	}
	if stored != meta.IndexChecksum {
		return nil, fmt.Errorf("%w: footer checksum differs from metadata", apperrors.ErrCorruptSegment)
	}

	entries := body[headerSize:]
	if len(entries)%offsetEntrySize != 0 {
		return nil, fmt.Errorf("%w: truncated offset table", apperrors.ErrCorruptSegment)
	}
	count := len(entries) / offsetEntrySize
	if count != meta.RecordCount {
		return nil, fmt.Errorf("%w: %d offsets, metadata says %d records", apperrors.ErrCorruptSegment, count, meta.RecordCount)
	}

	offsets := make([]uint64, count)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(entries[i*offsetEntrySize:])
	}
	return offsets, nil
}
