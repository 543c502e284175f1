package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS attempts (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	learner_id   TEXT NOT NULL,
	item_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL DEFAULT '',
	score        REAL NOT NULL,
	latency_ns   INTEGER NOT NULL DEFAULT 0,
	attempted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_learner_seq_idx ON attempts (learner_id, seq);
`

// sqliteRow mirrors the attempts table; times are unix nanoseconds so
// replay is bit-exact.
type sqliteRow struct {
	Seq         int64   `db:"seq"`
	LearnerID   string  `db:"learner_id"`
	ItemID      string  `db:"item_id"`
	SessionID   string  `db:"session_id"`
	Score       float64 `db:"score"`
	LatencyNS   int64   `db:"latency_ns"`
	AttemptedAt int64   `db:"attempted_at"`
}

func (r sqliteRow) attempt() Attempt {
	return Attempt{
		Seq:       r.Seq,
		LearnerID: r.LearnerID,
		ItemID:    r.ItemID,
		SessionID: r.SessionID,
		Score:     r.Score,
		Latency:   time.Duration(r.LatencyNS),
		At:        time.Unix(0, r.AttemptedAt).UTC(),
	}
}

// SQLiteLog is a file-backed attempt log for local and offline use.
type SQLiteLog struct {
	db *sqlx.DB
}

// OpenSQLiteLog opens (or creates) the log at path. Use ":memory:" for tests.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite log: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure attempts schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) Append(ctx context.Context, a Attempt) (Attempt, error) {
	a.At = a.At.UTC()
	if err := a.Validate(); err != nil {
		return Attempt{}, err
	}

	res, err := l.db.NamedExecContext(ctx,
		`INSERT INTO attempts (learner_id, item_id, session_id, score, latency_ns, attempted_at)
		 VALUES (:learner_id, :item_id, :session_id, :score, :latency_ns, :attempted_at)`,
		sqliteRow{
			LearnerID:   a.LearnerID,
			ItemID:      a.ItemID,
			SessionID:   a.SessionID,
			Score:       a.Score,
			LatencyNS:   int64(a.Latency),
			AttemptedAt: a.At.UnixNano(),
		},
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Attempt{}, fmt.Errorf("read attempt seq: %w", err)
	}
	a.Seq = seq
	return a, nil
}

func (l *SQLiteLog) ForLearner(ctx context.Context, learnerID string, afterSeq int64) ([]Attempt, error) {
	var rows []sqliteRow
	err := l.db.SelectContext(ctx, &rows,
		`SELECT * FROM attempts WHERE learner_id = ? AND seq > ? ORDER BY seq ASC`,
		learnerID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}

	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.attempt())
	}
	return out, nil
}

func (l *SQLiteLog) Range(ctx context.Context, afterSeq int64, fn func(Attempt) error) error {
	rows, err := l.db.QueryxContext(ctx,
		`SELECT * FROM attempts WHERE seq > ? ORDER BY seq ASC`, afterSeq)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r sqliteRow
		if err := rows.StructScan(&r); err != nil {
			return fmt.Errorf("scan attempt: %w", err)
		}
		if err := fn(r.attempt()); err != nil {
			return err
		}
	}
	return rows.Err()
}
