package control

import (
	"context"

	"github.com/mattjoyce/claudegram/internal/engine"
	"github.com/mattjoyce/claudegram/internal/journal"
)

//go:generate mockgen -destination=mocks/mock_vcs.go -package=mocks github.com/mattjoyce/claudegram/internal/control VCS

// VCS is the repository the tool works in.
type VCS interface {
	Log(ctx context.Context) (string, error)
	Revert(ctx context.Context) (string, error)
}

// Engine is the part of *engine.Engine the commands drive.
type Engine interface {
	Snapshot() engine.Snapshot
	Interrupt() (engine.CancelResult, bool)
	ResetChat(chatID int64) engine.ResetResult
	Settle(ctx context.Context, done <-chan struct{}) bool
}

// History lists finished jobs. *journal.Journal satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}
