// Package sqlite persists a vector index as a single SQLite file.
//
// Every Persist writes a complete database to a temporary file next to the
// target and renames it into place, so readers always open a finished file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore"
)

// formatVersion is bumped whenever the on-disk schema changes.
const formatVersion = 1

const schema = `
CREATE TABLE meta (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE chunks (
	position    INTEGER PRIMARY KEY,
	char_offset INTEGER NOT NULL,
	content     TEXT NOT NULL,
	vector      BLOB NOT NULL
);`

// locks holds one RWMutex per absolute index path, shared by every Store
// in the process that points at the same file.
var locks sync.Map

func lockFor(path string) *sync.RWMutex {
	mu, _ := locks.LoadOrStore(path, &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

// Store is an IndexStore backed by a SQLite file.
type Store struct {
	path string
	mu   *sync.RWMutex
}

// NewStore creates a store for the index file at path. The file and its
// directory are created on first Persist.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("index path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving index path: %w", err)
	}
	return &Store{path: abs, mu: lockFor(abs)}, nil
}

// Location returns the absolute path of the index file.
func (s *Store) Location() string {
	return s.path
}

// Persist atomically replaces the index file with idx.
func (s *Store) Persist(ctx context.Context, idx *vectorstore.Index) error {
	if idx == nil {
		return fmt.Errorf("%w: nil index", domain.ErrIndexPersist)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating index directory: %w", domain.ErrIndexPersist, err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.db")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", domain.ErrIndexPersist, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := writeIndex(ctx, tmpPath, idx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexPersist, err)
	}
	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("%w: syncing temp file: %w", domain.ErrIndexPersist, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: replacing index: %w", domain.ErrIndexPersist, err)
	}
	committed = true

	if err := syncFile(dir); err != nil {
		return fmt.Errorf("%w: syncing index directory: %w", domain.ErrIndexPersist, err)
	}
	return nil
}

// Load reads the persisted index.
func (s *Store) Load(ctx context.Context) (*vectorstore.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.path)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}

	idx, err := readIndex(ctx, s.path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}
	return idx, nil
}

func writeIndex(ctx context.Context, path string, idx *vectorstore.Index) error {
	// journal_mode OFF: the temp file is discarded on any failure.
	db, err := sql.Open("sqlite", fileDSN(path, "_pragma=journal_mode(OFF)&_pragma=synchronous(FULL)"))
	if err != nil {
		return fmt.Errorf("opening temp index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := writeRows(ctx, db, idx); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func writeRows(ctx context.Context, db *sql.DB, idx *vectorstore.Index) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version": strconv.Itoa(formatVersion),
		"metric":         string(idx.Metric()),
		"dimension":      strconv.Itoa(idx.Dimension()),
		"count":          strconv.Itoa(idx.Len()),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (name, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("writing meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (position, char_offset, content, vector) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range idx.Chunks() {
		if _, err := stmt.ExecContext(ctx, i, ch.Offset, ch.Text, float32SliceToBytes(idx.Vector(i))); err != nil {
			return fmt.Errorf("writing chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

func readIndex(ctx context.Context, path string) (*vectorstore.Index, error) {
	db, err := sql.Open("sqlite", fileDSN(path, "mode=ro"))
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, "SELECT name, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating meta: %w", err)
	}
	rows.Close()

	if meta["format_version"] != strconv.Itoa(formatVersion) {
		return nil, fmt.Errorf("unsupported format version %q", meta["format_version"])
	}
	metric, err := vectorstore.ParseMetric(meta["metric"])
	if err != nil {
		return nil, err
	}
	dimension, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return nil, fmt.Errorf("invalid dimension: %w", err)
	}
	count, err := strconv.Atoi(meta["count"])
	if err != nil {
		return nil, fmt.Errorf("invalid count: %w", err)
	}

	rows, err = db.QueryContext(ctx, "SELECT char_offset, content, vector FROM chunks ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0, count)
	vectors := make([][]float32, 0, count)
	for rows.Next() {
		var (
			ch   domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.Offset, &ch.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if len(blob) != dimension*4 {
			return nil, fmt.Errorf("chunk %d: vector has %d bytes, want %d", len(chunks), len(blob), dimension*4)
		}
		ch.Index = len(chunks)
		chunks = append(chunks, ch)
		vectors = append(vectors, bytesToFloat32Slice(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	if len(chunks) != count {
		return nil, fmt.Errorf("index holds %d chunks, meta says %d", len(chunks), count)
	}

	return vectorstore.NewIndex(metric, chunks, vectors)
}

// fileDSN builds a SQLite URI for path. Reserved characters in the path
// are escaped so the driver never mistakes them for the query or fragment.
func fileDSN(path, query string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: query}
	return u.String()
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
