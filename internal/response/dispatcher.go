package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDelivery wraps any failure to hand a message to the transport.
var ErrDelivery = errors.New("delivery failed")

// DefaultLimit keeps chunks under the 4096 cap of Telegram messages.
const DefaultLimit = 4000

// Sender delivers one text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Dispatcher formats tool output and sends it in ordered chunks.
type Dispatcher struct {
	sender Sender
	limit  int
	logger *slog.Logger
}

func NewDispatcher(sender Sender, limit int, logger *slog.Logger) *Dispatcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Dispatcher{sender: sender, limit: limit, logger: logger}
}

// Deliver classifies raw, renders it and sends each chunk in order. The
// first failed send stops delivery.
func (d *Dispatcher) Deliver(ctx context.Context, chatID int64, raw string) (Response, error) {
	resp := Classify(raw)
	return resp, d.Send(ctx, chatID, Format(resp))
}

// Send chunks an already formatted message.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, text string) error {
	chunks := Chunk(text, d.limit)
	for i, c := range chunks {
		if err := d.sender.Send(ctx, chatID, c); err != nil {
			return fmt.Errorf("%w: chunk %d/%d: %w", ErrDelivery, i+1, len(chunks), err)
		}
	}
	if len(chunks) > 1 {
		d.logger.Debug("delivered chunked message", "chat_id", chatID, "chunks", len(chunks))
	}
	return nil
}
