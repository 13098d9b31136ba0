// Package history journals finished tasks for the ops surface. It records
// outcomes only — in-flight work is never persisted and is lost on restart.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Outcome values for a journaled task.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Entry is one finished task.
type Entry struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ExecutorID string    `json:"executor_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"` // failure reason; empty on success
	Attempts   int       `json:"attempts"`
	FinishedAt time.Time `json:"finished_at"`
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS task_history (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  executor_id TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL CHECK(outcome IN ('completed','failed')),
  detail TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL DEFAULT 0,
  finished_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_task_history_finished ON task_history(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_task_history_task ON task_history(task_id);
`
	_, err := db.Exec(schema)
	return err
}

type Repository interface {
	Append(ctx context.Context, e Entry) (string, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	CountByOutcome(ctx context.Context) (map[string]int, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

func (r *sqliteRepo) Append(ctx context.Context, e Entry) (string, error) {
	id := e.ID
	if id == "" {
		id = "hst_" + uuid.NewString()
	}
	finished := e.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO task_history (id,task_id,executor_id,outcome,detail,attempts,finished_at)
VALUES (?,?,?,?,?,?,?)
`, id, e.TaskID, e.ExecutorID, e.Outcome, e.Detail, e.Attempts, finished)
	return id, err
}

func (r *sqliteRepo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,task_id,executor_id,outcome,detail,attempts,finished_at
FROM task_history ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ExecutorID, &e.Outcome, &e.Detail, &e.Attempts, &e.FinishedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *sqliteRepo) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT outcome, COUNT(*) FROM task_history GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (r *sqliteRepo) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM task_history WHERE finished_at < ?`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
