package engine

import "errors"

var (
	// ErrWorkerRunning is returned by Run when a worker is already active.
	ErrWorkerRunning = errors.New("engine worker already running")

	// errCancelRequested and errResetRequested are the causes attached to
	// a job's context when an operator kills it.
	errCancelRequested = errors.New("cancel requested")
	errResetRequested  = errors.New("reset requested")
)
