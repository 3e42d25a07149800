// Package registry owns the relational side of the platform: the catalog of
// news sources and the dedup ledger of already-processed items. Postgres is
// the source of truth for both; the vector store never sees a source.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrSourceNotFound is returned when a source id has no row.
var ErrSourceNotFound = errors.New("source not found")

// Source is one registered news source. ConfigJSON carries the
// type-specific settings (url, poll interval) as a JSON document.
type Source struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	ConfigJSON string    `json:"config"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store wraps the Postgres pool for source and dedup queries.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewStore connects a traced pgx pool and verifies the connection.
func NewStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected")
	return &Store{pool: pool, log: logger}, nil
}

// EnsureSchema creates the registry tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateSource inserts a source and returns it with the generated id.
func (s *Store) CreateSource(ctx context.Context, src Source) (Source, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sources (name, type, config, is_active)
		 VALUES ($1, $2, $3::jsonb, $4)
		 RETURNING id, created_at, updated_at`,
		src.Name, src.Type, src.ConfigJSON, src.IsActive,
	)
	if err := row.Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return Source{}, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

// GetSource fetches one source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, type, config::text, is_active, created_at, updated_at
		 FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

// ListSources returns every source, newest first.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	return s.list(ctx,
		`SELECT id, name, type, config::text, is_active, created_at, updated_at
		 FROM sources ORDER BY id DESC`)
}

// ListActiveSources returns the sources the scheduler should be polling.
func (s *Store) ListActiveSources(ctx context.Context) ([]Source, error) {
	return s.list(ctx,
		`SELECT id, name, type, config::text, is_active, created_at, updated_at
		 FROM sources WHERE is_active ORDER BY id`)
}

func (s *Store) list(ctx context.Context, query string) ([]Source, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateSource overwrites the mutable fields of a source and returns the
// updated row.
func (s *Store) UpdateSource(ctx context.Context, src Source) (Source, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sources
		 SET name = $2, type = $3, config = $4::jsonb, is_active = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, type, config::text, is_active, created_at, updated_at`,
		src.ID, src.Name, src.Type, src.ConfigJSON, src.IsActive,
	)
	return scanSource(row)
}

// DeleteSource removes a source and returns the deleted row so callers can
// publish its removal.
func (s *Store) DeleteSource(ctx context.Context, id int64) (Source, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM sources WHERE id = $1
		 RETURNING id, name, type, config::text, is_active, created_at, updated_at`, id)
	return scanSource(row)
}

func scanSource(row pgx.Row) (Source, error) {
	var src Source
	err := row.Scan(&src.ID, &src.Name, &src.Type, &src.ConfigJSON, &src.IsActive, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Source{}, ErrSourceNotFound
	}
	if err != nil {
		return Source{}, fmt.Errorf("scan source: %w", err)
	}
	return src, nil
}

// FilterNewItems returns the subset of itemIDs not yet recorded for the
// source, preserving input order.
func (s *Store) FilterNewItems(ctx context.Context, sourceID int64, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT item_id FROM processed_items
		 WHERE source_id = $1 AND item_id = ANY($2)`,
		sourceID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("filter processed items: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed item: %w", err)
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var fresh []string
	for _, id := range itemIDs {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

// MarkProcessed records item ids as handled for the source. Conflicts are
// ignored so re-deliveries stay idempotent.
func (s *Store) MarkProcessed(ctx context.Context, sourceID int64, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range itemIDs {
		batch.Queue(
			`INSERT INTO processed_items (source_id, item_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			sourceID, id)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
