package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"property-hub/internal/models"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore keeps entries in a SQLite table keyed by (address_key, source)
type SQLiteStore struct {
	db   *sqlx.DB
	opts Options
}

type entryRow struct {
	AddressKey string `db:"address_key"`
	Source     string `db:"source"`
	Address    string `db:"address"`
	Data       string `db:"data"`
	FetchedAt  int64  `db:"fetched_at"`
}

// NewSQLiteStore opens the database and runs migrations
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, opts: opts.withDefaults()}, nil
}

func migrate(db *sqlx.DB) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	_, err = db.Exec(string(schema))
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, addr models.Address, source models.SourceID) (*models.CacheEntry, bool) {
	var row entryRow
	err := s.db.GetContext(ctx, &row,
		`SELECT address_key, source, address, data, fetched_at FROM cache_entries WHERE address_key = ? AND source = ?`,
		addr.Key(), string(source),
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.opts.Logger.Warn("Cache read failed, treating as miss", "source", source, "address", addr.Key(), "error", err)
		}
		return nil, false
	}

	e, err := row.entry()
	if err != nil {
		s.opts.Logger.Warn("Corrupt cache row, treating as miss", "source", source, "address", addr.Key(), "error", err)
		return nil, false
	}
	if e.Expired(s.opts.Now(), s.opts.TTL) {
		return nil, false
	}
	return e, true
}

func (r entryRow) entry() (*models.CacheEntry, error) {
	e := &models.CacheEntry{
		Source:    models.SourceID(r.Source),
		Timestamp: time.Unix(0, r.FetchedAt),
	}
	if err := json.Unmarshal([]byte(r.Address), &e.Address); err != nil {
		return nil, fmt.Errorf("decoding address: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Data), &e.Data); err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	return e, nil
}

// Set upserts the entry in a single statement
func (s *SQLiteStore) Set(ctx context.Context, addr models.Address, source models.SourceID, data models.RawResult) error {
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("failed to encode address: %w", err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	query := `
		INSERT INTO cache_entries (address_key, source, address, data, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address_key, source) DO UPDATE SET
			address = excluded.address,
			data = excluded.data,
			fetched_at = excluded.fetched_at
	`
	_, err = s.db.ExecContext(ctx, query,
		addr.Key(), string(source), string(addrJSON), string(dataJSON), s.opts.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Has(ctx context.Context, addr models.Address, source models.SourceID) bool {
	_, ok := s.Get(ctx, addr, source)
	return ok
}

func (s *SQLiteStore) Delete(ctx context.Context, addr models.Address, source models.SourceID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE address_key = ? AND source = ?`, addr.Key(), string(source))
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearExpired(ctx context.Context) (int, error) {
	if s.opts.TTL <= 0 {
		return 0, nil
	}
	cutoff := s.opts.Now().Add(-s.opts.TTL).UnixNano()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count returns the number of stored entries, fresh or not
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM cache_entries")
	return count, err
}
