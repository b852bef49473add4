package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one finished job.
type Entry struct {
	JobID       string        `json:"job_id"`
	ChatID      int64         `json:"chat_id"`
	PromptHash  string        `json:"prompt_hash"`
	Status      string        `json:"status"`
	ExitCode    int           `json:"exit_code"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	LastError   string        `json:"last_error,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
}

// Journal records finished jobs in the job_log table. Queue and conversation
// state are deliberately not stored here.
type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record inserts e. Recording the same job twice is an error.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO job_log(id, chat_id, prompt_hash, status, exit_code, enqueued_at, started_at, completed_at, duration_ms, last_error, stderr)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.JobID,
		e.ChatID,
		e.PromptHash,
		e.Status,
		e.ExitCode,
		formatTime(e.EnqueuedAt),
		formatTime(e.StartedAt),
		formatTime(e.CompletedAt),
		e.Duration.Milliseconds(),
		nullString(e.LastError),
		nullString(e.Stderr),
	)
	if err != nil {
		return fmt.Errorf("insert job_log %s: %w", e.JobID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, chat_id, prompt_hash, status, exit_code, enqueued_at, started_at, completed_at, duration_ms, last_error, stderr
FROM job_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                               Entry
			enqueuedAt, startedAt, complete string
			durationMS                      int64
			lastErr, stderr                 sql.NullString
		)
		if err := rows.Scan(&e.JobID, &e.ChatID, &e.PromptHash, &e.Status, &e.ExitCode,
			&enqueuedAt, &startedAt, &complete, &durationMS, &lastErr, &stderr); err != nil {
			return nil, fmt.Errorf("scan job_log: %w", err)
		}
		e.EnqueuedAt = parseTime(enqueuedAt)
		e.StartedAt = parseTime(startedAt)
		e.CompletedAt = parseTime(complete)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.LastError = lastErr.String
		e.Stderr = stderr.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job_log: %w", err)
	}
	return out, nil
}

// Prune deletes entries completed before cutoff and returns how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM job_log WHERE completed_at < ?;`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune job_log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
