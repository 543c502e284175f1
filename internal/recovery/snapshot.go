package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// SnapshotStore persists checkpoints.
type SnapshotStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	// Latest returns the learner's checkpoint with the highest LastSeq.
	Latest(ctx context.Context, learnerID string) (Checkpoint, bool, error)
}

// MemorySnapshotStore keeps the latest checkpoint per learner in memory.
type MemorySnapshotStore struct {
	latest map[string]Checkpoint
	mu     sync.RWMutex
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{latest: make(map[string]Checkpoint)}
}

func (s *MemorySnapshotStore) Save(_ context.Context, cp Checkpoint) error {
	if cp.LearnerID == "" {
		return fmt.Errorf("learner_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.latest[cp.LearnerID]; ok && prev.LastSeq > cp.LastSeq {
		return nil
	}
	s.latest[cp.LearnerID] = cp
	return nil
}

func (s *MemorySnapshotStore) Latest(_ context.Context, learnerID string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.latest[learnerID]
	return cp, ok, nil
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS mastery_checkpoints (
	learner_id      TEXT NOT NULL,
	last_seq        BIGINT NOT NULL,
	last_attempt_at TIMESTAMPTZ,
	digest          TEXT NOT NULL,
	body            JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (learner_id, last_seq)
);
`

// PostgresSnapshotStore stores checkpoints as jsonb rows.
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshotStore creates the store and ensures its table exists.
func NewPostgresSnapshotStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresSnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := pool.Exec(ctx, snapshotSchema); err != nil {
		return nil, fmt.Errorf("ensure checkpoint schema: %w", err)
	}
	return &PostgresSnapshotStore{pool: pool}, nil
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.LearnerID == "" {
		return fmt.Errorf("learner_id is required")
	}
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	var lastAt *time.Time
	if !cp.LastAttemptAt.IsZero() {
		lastAt = &cp.LastAttemptAt
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO mastery_checkpoints (learner_id, last_seq, last_attempt_at, digest, body, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 ON CONFLICT (learner_id, last_seq) DO UPDATE
		 SET digest = EXCLUDED.digest, body = EXCLUDED.body, created_at = EXCLUDED.created_at`,
		cp.LearnerID,
		cp.LastSeq,
		lastAt,
		cp.Digest,
		string(body),
		cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Latest(ctx context.Context, learnerID string) (Checkpoint, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM mastery_checkpoints
		 WHERE learner_id = $1
		 ORDER BY last_seq DESC
		 LIMIT 1`,
		learnerID,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("query checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}
