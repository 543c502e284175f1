package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const uniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS catalog_items (
	item_id     TEXT PRIMARY KEY,
	concept_id  TEXT NOT NULL,
	difficulty  DOUBLE PRECISION NOT NULL CHECK (difficulty >= 0 AND difficulty <= 1),
	kind        TEXT NOT NULL,
	payload_ref TEXT NOT NULL DEFAULT '',
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps items ingested at runtime in PostgreSQL so they
// survive restarts and reach other instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on pool and ensures its table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure catalog_items schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveItems inserts the batch in one transaction. An ID already stored,
// for example by another instance, fails the whole batch with
// ErrDuplicateItem.
func (s *PostgresStore) SaveItems(ctx context.Context, items []Item) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, it := range items {
			_, err := tx.Exec(ctx,
				`INSERT INTO catalog_items (item_id, concept_id, difficulty, kind, payload_ref)
				 VALUES ($1, $2, $3, $4, $5)`,
				it.ID,
				it.ConceptID,
				it.Difficulty,
				string(it.Kind),
				it.PayloadRef,
			)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
			}
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// LoadItems returns every stored item in ingestion order.
func (s *PostgresStore) LoadItems(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, concept_id, difficulty, kind, payload_ref
		 FROM catalog_items
		 ORDER BY ingested_at ASC, item_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query catalog items: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ItemID, &r.ConceptID, &r.IntrinsicDifficulty, &r.Kind, &r.PayloadRef); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog items: %w", err)
	}
	return out, nil
}
