package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const postgresSchema = `
CREATE TABLE IF NOT EXISTS attempts (
	seq          BIGSERIAL PRIMARY KEY,
	learner_id   TEXT NOT NULL,
	item_id      TEXT NOT NULL,
	session_id   TEXT,
	score        DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 1),
	latency_us   BIGINT NOT NULL DEFAULT 0,
	attempted_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_learner_seq_idx ON attempts (learner_id, seq);
`

// PostgresLog is a PostgreSQL-backed attempt log.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a log on pool and ensures its table exists.
func NewPostgresLog(ctx context.Context, pool *pgxpool.Pool) (*PostgresLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure attempts schema: %w", err)
	}
	return &PostgresLog{pool: pool}, nil
}

// Append stores a and returns it with Seq set. Timestamps are truncated to
// microseconds, the precision PostgreSQL keeps, so replay sees exactly what
// the caller folds in.
func (l *PostgresLog) Append(ctx context.Context, a Attempt) (Attempt, error) {
	a.At = a.At.UTC().Truncate(time.Microsecond)
	a.Latency = a.Latency.Truncate(time.Microsecond)
	if err := a.Validate(); err != nil {
		return Attempt{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := l.pool.QueryRow(ctx,
		`INSERT INTO attempts (learner_id, item_id, session_id, score, latency_us, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		a.LearnerID,
		a.ItemID,
		nullIfEmpty(a.SessionID),
		a.Score,
		a.Latency.Microseconds(),
		a.At,
	).Scan(&a.Seq)
	if err != nil {
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

func (l *PostgresLog) ForLearner(ctx context.Context, learnerID string, afterSeq int64) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT seq, learner_id, item_id, session_id, score, latency_us, attempted_at
		 FROM attempts
		 WHERE learner_id = $1 AND seq > $2
		 ORDER BY seq ASC`,
		learnerID,
		afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func (l *PostgresLog) Range(ctx context.Context, afterSeq int64, fn func(Attempt) error) error {
	rows, err := l.pool.Query(ctx,
		`SELECT seq, learner_id, item_id, session_id, score, latency_us, attempted_at
		 FROM attempts
		 WHERE seq > $1
		 ORDER BY seq ASC`,
		afterSeq,
	)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate attempts: %w", err)
	}
	return nil
}

func scanAttempt(rows pgx.Rows) (Attempt, error) {
	var a Attempt
	var sessionID *string
	var latencyUS int64
	if err := rows.Scan(
		&a.Seq,
		&a.LearnerID,
		&a.ItemID,
		&sessionID,
		&a.Score,
		&latencyUS,
		&a.At,
	); err != nil {
		return Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	if sessionID != nil {
		a.SessionID = *sessionID
	}
	a.Latency = time.Duration(latencyUS) * time.Microsecond
	a.At = a.At.UTC()
	return a, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
