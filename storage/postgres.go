package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"closet_backup/models"
)

// PostgresStore is an optional queryable archive of backed-up listings,
// alongside the object store which holds the canonical JSON documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY,
		closet_id TEXT NOT NULL,
		slug TEXT NOT NULL,
		url TEXT,
		name TEXT,
		description TEXT,
		scraped_at TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE (closet_id, slug)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_closet ON listings(closet_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) UpsertListing(ctx context.Context, closetID, slug string, d *models.ListingDetail) (uuid.UUID, error) {
	query := `
		INSERT INTO listings (id, closet_id, slug, url, name, description, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (closet_id, slug) DO UPDATE SET
			url = EXCLUDED.url,
			name = COALESCE(NULLIF(EXCLUDED.name, ''), listings.name),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), listings.description),
			scraped_at = EXCLUDED.scraped_at,
			updated_at = NOW()
		RETURNING id`

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		uuid.New(), closetID, slug, d.URL, d.Name, d.Description, d.ScrapedAt,
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) GetListing(ctx context.Context, closetID, slug string) (*models.ListingDetail, error) {
	query := `SELECT url, name, description, scraped_at FROM listings WHERE closet_id = $1 AND slug = $2`

	var d models.ListingDetail
	err := s.pool.QueryRow(ctx, query, closetID, slug).Scan(&d.URL, &d.Name, &d.Description, &d.ScrapedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Slugs returns every archived slug for a closet, used for incremental skips.
func (s *PostgresStore) Slugs(ctx context.Context, closetID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT slug FROM listings WHERE closet_id = $1`, closetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slugs := make(map[string]struct{})
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs[slug] = struct{}{}
	}
	return slugs, rows.Err()
}

func (s *PostgresStore) CountListings(ctx context.Context, closetID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE closet_id = $1`, closetID).Scan(&n)
	return n, err
}
