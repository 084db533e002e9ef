package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_objects (
	hash       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	refs       INTEGER NOT NULL DEFAULT 1,
	payload    BLOB NOT NULL,
	custom     TEXT
);
CREATE INDEX IF NOT EXISTS cache_objects_kind ON cache_objects(kind);
`

// SQLiteStore keeps the whole cache in one database file, which is simpler to
// copy between build agents than the FS store's directory tree. The pure Go
// modernc driver keeps the binary cgo-free.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the database at path. ":memory:" gives a
// private in-memory cache.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache %s: %w", path, err)
	}
	// One connection: ":memory:" databases are per connection, and writes
	// serialize on the file lock anyway.
	db.SetMaxOpenConns(1)

	pragmas := "PRAGMA busy_timeout = 5000;"
	if path != ":memory:" {
		pragmas += " PRAGMA journal_mode = WAL;"
	}
	if _, err := db.Exec(pragmas + sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare sqlite cache %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, obj *Object) (string, error) {
	hash, err := objectHash(obj)
	if err != nil {
		return "", err
	}
	custom, err := json.Marshal(obj.Metadata.Custom)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A repeated hash only bumps refs; the first payload wins.
	const upsert = `INSERT INTO cache_objects (hash, kind, created_at, refs, payload, custom)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET refs = refs + 1`
	if _, err := s.db.ExecContext(ctx, upsert, hash, string(obj.Type), time.Now().UTC().Unix(), obj.Data, custom); err != nil {
		return "", fmt.Errorf("store object %s: %w", hash, err)
	}
	return hash, nil
}

func (s *SQLiteStore) Get(ctx context.Context, hash string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT kind, created_at, refs, payload, custom FROM cache_objects WHERE hash = ?`, hash)

	var (
		kind    string
		created int64
		obj     = Object{Hash: hash}
		custom  sql.NullString
	)
	switch err := row.Scan(&kind, &created, &obj.Metadata.RefCount, &obj.Data, &custom); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound{Hash: hash}
	case err != nil:
		return nil, fmt.Errorf("load object %s: %w", hash, err)
	}

	obj.Type = ObjectType(kind)
	obj.Size = int64(len(obj.Data))
	obj.Metadata.CreatedAt = time.Unix(created, 0).UTC()
	obj.Metadata.Custom = map[string]string{}
	if custom.Valid && custom.String != "" && custom.String != "null" {
		if err := json.NewDecoder(strings.NewReader(custom.String)).Decode(&obj.Metadata.Custom); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", hash, err)
		}
	}
	return &obj, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cache_objects WHERE hash = ?)`, hash).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("probe object %s: %w", hash, err)
	}
	return found, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_objects WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", hash, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete object %s: %w", hash, err)
	} else if n == 0 {
		return ErrNotFound{Hash: hash}
	}
	return nil
}

// List returns hashes in ascending order.
func (s *SQLiteStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM cache_objects WHERE ? = '' OR kind = ? ORDER BY hash`,
		string(objectType), string(objectType))
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
