package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite persists embeddings in a single-table SQLite database so they
// survive restarts.
type SQLite struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the cache database at path.
// ttl <= 0 selects DefaultTTL.
func OpenSQLite(path string, ttl time.Duration) (*SQLite, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			key        TEXT PRIMARY KEY,
			vector     BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating embeddings table: %w", err)
	}
	return &SQLite{db: db, path: path, ttl: ttl, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var (
		blob    []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, expires_at FROM embeddings WHERE key = ?`, key).Scan(&blob, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	if s.now().Unix() > expires {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("evicting cache entry: %w", err)
		}
		return nil, false, nil
	}
	return decodeVector(blob), true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, vec []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (key, vector, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET vector = excluded.vector, expires_at = excluded.expires_at`,
		key, encodeVector(vec), s.now().Add(s.ttl).Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE expires_at < ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
