package engine

import (
	"context"
	"time"

	"github.com/mattjoyce/claudegram/internal/queue"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCanceled  State = "canceled"
)

// Job is the request currently owned by the worker.
type Job struct {
	ID         string
	ChatID     int64
	SenderID   int64
	Prompt     string
	EnqueuedAt time.Time
	StartedAt  time.Time
	State      State

	// toolDone is set, under the engine mutex, once the tool has exited.
	// From then on the job is only delivering its answer and cannot be
	// canceled.
	toolDone bool
	cancel   context.CancelCauseFunc
	done     chan struct{}
}

func newJob(req queue.Request, started time.Time, cancel context.CancelCauseFunc) *Job {
	return &Job{
		ID:         req.ID,
		ChatID:     req.ChatID,
		SenderID:   req.SenderID,
		Prompt:     req.Prompt,
		EnqueuedAt: req.EnqueuedAt,
		StartedAt:  started,
		State:      StateRunning,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// JobView is a read-only copy of the running job.
type JobView struct {
	ID        string        `json:"id"`
	ChatID    int64         `json:"chat_id"`
	Preview   string        `json:"preview"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Snapshot is the engine state at one instant.
type Snapshot struct {
	Processing  bool            `json:"processing"`
	Current     *JobView        `json:"current,omitempty"`
	QueueLength int             `json:"queue_length"`
	Pending     []queue.Request `json:"pending"`
}

// CancelResult describes what a cancel did.
type CancelResult struct {
	JobID   string
	Elapsed time.Duration
	Cleared int
	// Finished is true when the tool had already exited and the job was
	// delivering its answer. Nothing was killed.
	Finished bool
	// Settled is false when the worker had not released the job by the
	// time the wait gave up.
	Settled bool

	done <-chan struct{}
}

// Done is closed once the worker has released the job.
func (r CancelResult) Done() <-chan struct{} { return r.done }

// ResetResult describes what a reset did.
type ResetResult struct {
	Cleared int
	Killed  bool
	Settled bool

	done <-chan struct{}
}

// Done is closed once the worker has released the stopped job. It is nil
// when nothing was killed.
func (r ResetResult) Done() <-chan struct{} { return r.done }
