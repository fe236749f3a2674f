package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

const archivePageSize = 1000

// Archive describes a Parquet export written by ExportParquet.
type Archive struct {
	Path          string `json:"path"`
	Rows          int    `json:"rows"`
	FirstSequence uint64 `json:"firstSequence"`
	LastSequence  uint64 `json:"lastSequence"`
	// Digest is the hex BLAKE3-256 of the file contents.
	Digest string `json:"digest"`
}

type archiveRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	ID         string `parquet:"name=id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Subject    string `parquet:"name=subject, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes string `parquet:"name=attributes, type=UTF8, encoding=PLAIN_DICTIONARY"`
	CreatedAt  string `parquet:"name=created_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes every event matching f into a Snappy-compressed
// Parquet file under dir. f.Limit is ignored; the export pages through the
// whole match set.
func (s *Sink) ExportParquet(ctx context.Context, dir string, f Filter) (Archive, error) {
	if s == nil {
		return Archive{}, fmt.Errorf("indexer: sink not configured")
	}
	if dir == "" {
		return Archive{}, fmt.Errorf("indexer: archive directory required")
	}

	var rows []archiveRow
	cursor := f
	cursor.Limit = archivePageSize
	for {
		page, err := s.Events(ctx, cursor)
		if err != nil {
			return Archive{}, err
		}
		for _, evt := range page {
			attrs, err := json.Marshal(evt.Attributes)
			if err != nil {
				return Archive{}, err
			}
			rows = append(rows, archiveRow{
				Sequence:   int64(evt.Sequence),
				ID:         evt.ID.String(),
				Type:       evt.Type,
				Subject:    subject(evt.Attributes),
				Attributes: string(attrs),
				CreatedAt:  evt.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		if len(page) < archivePageSize {
			break
		}
		cursor.After = page[len(page)-1].Sequence
	}
	if len(rows) == 0 {
		return Archive{}, fmt.Errorf("%w: no events to archive", ErrNotFound)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Archive{}, fmt.Errorf("indexer: create archive dir: %w", err)
	}
	first, last := uint64(rows[0].Sequence), uint64(rows[len(rows)-1].Sequence)
	path := filepath.Join(dir, fmt.Sprintf("events-%010d-%010d.parquet", first, last))
	if err := writeParquet(path, rows); err != nil {
		return Archive{}, err
	}
	digest, err := fileDigest(path)
	if err != nil {
		return Archive{}, err
	}
	s.logger.Info("events archived", "path", path, "rows", len(rows), "digest", digest)
	return Archive{Path: path, Rows: len(rows), FirstSequence: first, LastSequence: last, Digest: digest}, nil
}

func writeParquet(path string, rows []archiveRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(archiveRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return nil
}

func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("indexer: digest archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
