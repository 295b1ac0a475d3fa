package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"property-hub/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS property_cache_entries (
    address_key TEXT NOT NULL,
    source      TEXT NOT NULL,
    address     JSONB NOT NULL,
    data        JSONB NOT NULL,
    fetched_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (address_key, source)
);
CREATE INDEX IF NOT EXISTS idx_property_cache_entries_fetched_at ON property_cache_entries (fetched_at);
`

// PostgresStore keeps entries in a PostgreSQL table
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgresStore connects, pings and creates the table if missing
func NewPostgresStore(ctx context.Context, databaseURL string, opts Options) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL configuration is required")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &PostgresStore{pool: pool, opts: opts.withDefaults()}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, addr models.Address, source models.SourceID) (*models.CacheEntry, bool) {
	var (
		addrJSON, dataJSON []byte
		fetchedAt          time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT address, data, fetched_at FROM property_cache_entries WHERE address_key = $1 AND source = $2`,
		addr.Key(), string(source),
	).Scan(&addrJSON, &dataJSON, &fetchedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.opts.Logger.Warn("Cache read failed, treating as miss", "source", source, "address", addr.Key(), "error", err)
		}
		return nil, false
	}

	e := &models.CacheEntry{Source: source, Timestamp: fetchedAt}
	if err := json.Unmarshal(addrJSON, &e.Address); err != nil {
		s.opts.Logger.Warn("Corrupt cache row, treating as miss", "source", source, "error", err)
		return nil, false
	}
	if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
		s.opts.Logger.Warn("Corrupt cache row, treating as miss", "source", source, "error", err)
		return nil, false
	}
	if e.Expired(s.opts.Now(), s.opts.TTL) {
		return nil, false
	}
	return e, true
}

func (s *PostgresStore) Set(ctx context.Context, addr models.Address, source models.SourceID, data models.RawResult) error {
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("failed to encode address: %w", err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	query := `
		INSERT INTO property_cache_entries (address_key, source, address, data, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address_key, source) DO UPDATE SET
			address = EXCLUDED.address,
			data = EXCLUDED.data,
			fetched_at = EXCLUDED.fetched_at
	`
	_, err = s.pool.Exec(ctx, query, addr.Key(), string(source), addrJSON, dataJSON, s.opts.Now())
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Has(ctx context.Context, addr models.Address, source models.SourceID) bool {
	_, ok := s.Get(ctx, addr, source)
	return ok
}

func (s *PostgresStore) Delete(ctx context.Context, addr models.Address, source models.SourceID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM property_cache_entries WHERE address_key = $1 AND source = $2`, addr.Key(), string(source))
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM property_cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearExpired(ctx context.Context) (int, error) {
	if s.opts.TTL <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM property_cache_entries WHERE fetched_at < $1`, s.opts.Now().Add(-s.opts.TTL))
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
