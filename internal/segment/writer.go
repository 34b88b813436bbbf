package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"log/slog"
	"time"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/store"
	"github.com/indexkit/switchstore/internal/version"
)

// castagnoliTable is the CRC-32C polynomial used by all segment footers.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Writer streams records into a new segment. Records go to the data file as
// they are added; Commit writes the index and metadata files and makes the
// segment visible. A Writer is not safe for concurrent use.
type Writer struct {
	store  store.Store
	name   string
	logger *slog.Logger

	dataOut store.Output
	dataCRC hash.Hash32
	dataLen int64
	offsets []uint64
	done    bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets a custom logger for the writer.
func WithLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = l
	}
}

// NewWriter opens a new segment for writing. The data file is created
// immediately under its final name; the segment stays invisible to List and
// readers until Commit writes the metadata file.
func NewWriter(ctx context.Context, s store.Store, name string, opts ...WriterOption) (*Writer, error) {
	if name == "" {
		return nil, apperrors.ErrSegmentNameRequired
	}

	w := &Writer{
		store:   s,
		name:    name,
		logger:  slog.Default(),
		dataCRC: crc32.New(castagnoliTable),
	}
	for _, opt := range opts {
		opt(w)
	}

	out, err := s.CreateOutput(ctx, DataFileName(name))
	if err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}
	w.dataOut = out

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	if err := w.writeData(header[:]); err != nil {
		_ = out.Close()
		_ = s.Delete(ctx, DataFileName(name))
		return nil, err
	}

	w.logger.DebugContext(ctx, "opened segment writer", "segment", name)
	return w, nil
}

// Add appends one record to the segment.
func (w *Writer) Add(record []byte) error {
	if w.done {
		return apperrors.ErrWriterFinished
	}
	if len(record) > maxRecordSize {
		return fmt.Errorf("%w: %d bytes", apperrors.ErrRecordTooLarge, len(record))
	}

	offset := uint64(w.dataLen)

	var prefix [recordPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(record)))
	if err := w.writeData(prefix[:]); err != nil {
		return err
	}
	if err := w.writeData(record); err != nil {
		return err
	}

	w.offsets = append(w.offsets, offset)
	return nil
}

// Count returns the number of records added so far.
func (w *Writer) Count() int {
	return len(w.offsets)
}

// Commit finishes the data file, writes the index and metadata files, and
// flushes all three to stable storage. The metadata file is the commit
// point: before it exists the segment does not exist.
func (w *Writer) Commit(ctx context.Context) (*Metadata, error) {
	if w.done {
		return nil, apperrors.ErrWriterFinished
	}
	w.done = true

	dataChecksum := w.dataCRC.Sum32()
	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[:], dataChecksum)
	if _, err := w.dataOut.Write(footer[:]); err != nil {
		return nil, fmt.Errorf("write data footer: %w", err)
	}
	w.dataLen += footerSize
	if err := w.dataOut.Close(); err != nil {
		return nil, fmt.Errorf("close data file: %w", err)
	}

	indexData, indexChecksum := encodeIndex(w.offsets)
	if err := w.writeWholeFile(ctx, IndexFileName(w.name), indexData); err != nil {
		return nil, fmt.Errorf("write index file: %w", err)
	}

	meta := &Metadata{
		FormatVersion: formatVersion,
		Name:          w.name,
		RecordCount:   len(w.offsets),
		DataLength:    w.dataLen,
		IndexLength:   int64(len(indexData)),
		DataChecksum:  dataChecksum,
		IndexChecksum: indexChecksum,
		WrittenAt:     time.Now().UTC(),
		ToolVersion:   version.Version,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := w.writeWholeFile(ctx, MetaFileName(w.name), metaData); err != nil {
		return nil, fmt.Errorf("write metadata file: %w", err)
	}

	files := []string{DataFileName(w.name), IndexFileName(w.name), MetaFileName(w.name)}
	if err := w.store.Sync(ctx, files); err != nil {
		return nil, fmt.Errorf("sync segment files: %w", err)
	}
	if err := w.store.SyncMetaData(ctx); err != nil {
		return nil, fmt.Errorf("sync store metadata: %w", err)
	}

	// Manifest bookkeeping is advisory; the metadata file above already
	// committed the segment.
	if err := AddToManifest(ctx, w.store, w.name); err != nil {
		w.logger.WarnContext(ctx, "failed to update segment manifest", "segment", w.name, "error", err)
	}

	w.logger.InfoContext(ctx, "committed segment",
		"segment", w.name,
		"records", meta.RecordCount,
		"data_bytes", meta.DataLength,
	)
	return meta, nil
}

// Abort discards an uncommitted segment, deleting the partial data file.
func (w *Writer) Abort(ctx context.Context) error {
	if w.done {
		return nil
	}
	w.done = true

	closeErr := w.dataOut.Close()
	deleteErr := w.store.Delete(ctx, DataFileName(w.name))
	if deleteErr != nil && errors.Is(deleteErr, apperrors.ErrFileNotFound) {
		deleteErr = nil
	}

	w.logger.DebugContext(ctx, "aborted segment writer", "segment", w.name)
	return errors.Join(closeErr, deleteErr)
}

func (w *Writer) writeData(p []byte) error {
	if _, err := w.dataOut.Write(p); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	_, _ = w.dataCRC.Write(p)
	w.dataLen += int64(len(p))
	return nil
}

func (w *Writer) writeWholeFile(ctx context.Context, name string, data []byte) error {
	out, err := w.store.CreateOutput(ctx, name)
	if err != nil {
		return err
	}
	if _, err = out.Write(data); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// encodeIndex renders the offset file: header, one uint64 per record, and a
// CRC-32C footer over everything before it.
func encodeIndex(offsets []uint64) ([]byte, uint32) {
	body := make([]byte, headerSize+offsetEntrySize*len(offsets), headerSize+offsetEntrySize*len(offsets)+footerSize)
	binary.LittleEndian.PutUint32(body[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(body[4:8], formatVersion)
	for i, off := range offsets {
		binary.LittleEndian.PutUint64(body[headerSize+i*offsetEntrySize:], off)
	}

	checksum := crc32.Checksum(body, castagnoliTable)
	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[:], checksum)
	return append(body, footer[:]...), checksum
}
