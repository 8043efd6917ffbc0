package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrExportNotFound = errors.New("store: archived export not found")

// Export kinds kept in the source archive.
const (
	ExportDaily = "daily"
	ExportSites = "sites"
)

// ArchivedExport is a source file as it was ingested.
type ArchivedExport struct {
	Hash       string
	Kind       string
	Name       string
	ArchivedAt time.Time
	Size       int64
}

// ArchiveExport stores a gzip-compressed copy of an ingested file. Files are
// keyed by content hash; it reports false when the same content is already
// archived.
func (s *Store) ArchiveExport(kind, name string, payload []byte) (bool, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return false, fmt.Errorf("compress export: %w", err)
	}
	if err := gz.Close(); err != nil {
		return false, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	result, err := s.db.Exec(`
		INSERT INTO source_exports (hash, kind, name, archived_at, size, payload_compressed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hex.EncodeToString(hash[:]), kind, name, time.Now().UTC(), len(payload), buf.Bytes())
	if err != nil {
		return false, fmt.Errorf("insert export %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ArchivedExportData returns the decompressed content of an archived file.
func (s *Store) ArchivedExportData(hash string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM source_exports WHERE hash = ?`, hash).
		Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrExportNotFound, hash)
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// ArchivedExports lists archived files of one kind, newest first. An empty
// kind lists every file.
func (s *Store) ArchivedExports(kind string) ([]ArchivedExport, error) {
	rows, err := s.db.Query(`
		SELECT hash, kind, name, archived_at, size
		FROM source_exports
		WHERE ? = '' OR kind = ?
		ORDER BY archived_at DESC, name
	`, kind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []ArchivedExport
	for rows.Next() {
		var e ArchivedExport
		if err := rows.Scan(&e.Hash, &e.Kind, &e.Name, &e.ArchivedAt, &e.Size); err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}
