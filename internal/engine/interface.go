package engine

import (
	"context"
	"time"

	"github.com/mattjoyce/claudegram/internal/journal"
	"github.com/mattjoyce/claudegram/internal/supervisor"
)

//go:generate mockgen -destination=mocks/mock_messenger.go -package=mocks github.com/mattjoyce/claudegram/internal/engine Messenger

// Messenger sends one text message to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Runner executes one tool invocation to completion. *supervisor.Supervisor
// satisfies it.
type Runner interface {
	Run(ctx context.Context, inv supervisor.Invocation) supervisor.Outcome
	Timeout() time.Duration
}

// Recorder persists finished jobs. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Publisher fans lifecycle events out to observers. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}
