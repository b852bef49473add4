package api

import "time"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	Processing    bool   `json:"processing"`
}

// CurrentJob describes the running job.
type CurrentJob struct {
	JobID     string    `json:"job_id"`
	ChatID    int64     `json:"chat_id"`
	Preview   string    `json:"preview"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Processing  bool        `json:"processing"`
	Current     *CurrentJob `json:"current,omitempty"`
	QueueLength int         `json:"queue_length"`
	TimeoutMS   int64       `json:"timeout_ms"`
}

// PendingRequest is one entry of GET /queue. Only a preview of the prompt
// is exposed.
type PendingRequest struct {
	Position   int       `json:"position"`
	JobID      string    `json:"job_id"`
	ChatID     int64     `json:"chat_id"`
	Preview    string    `json:"preview"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueResponse is returned by GET /queue.
type QueueResponse struct {
	Pending []PendingRequest `json:"pending"`
}

// HistoryEntry is one finished job in GET /history.
type HistoryEntry struct {
	JobID       string    `json:"job_id"`
	ChatID      int64     `json:"chat_id"`
	Status      string    `json:"status"`
	ExitCode    int       `json:"exit_code"`
	PromptHash  string    `json:"prompt_hash"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	LastError   string    `json:"last_error,omitempty"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Jobs []HistoryEntry `json:"jobs"`
}

// CancelResponse is returned by POST /cancel.
type CancelResponse struct {
	Canceled  bool   `json:"canceled"`
	JobID     string `json:"job_id,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Cleared   int    `json:"cleared"`
	Finished  bool   `json:"finished"`
	Settled   bool   `json:"settled"`
}
