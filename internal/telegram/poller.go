package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const maxConsecutiveFailures = 10

// Handler receives updates in arrival order, one at a time.
type Handler func(ctx context.Context, u Update)

// Poll long-polls getUpdates and hands each update to handle. It returns nil
// when ctx ends, and an error when the transport is unusable: a rejected
// token or too many failures in a row.
func (c *Client) Poll(ctx context.Context, handle Handler) error {
	var offset int64
	if c.cfg.DropPending {
		next, err := c.skipBacklog(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("drop pending updates: %w", err)
		}
		offset = next
	}

	c.logger.Info("polling for updates", "offset", offset, "timeout", c.cfg.PollTimeout)
	failures := 0
	for {
		updates, err := c.GetUpdates(ctx, offset, c.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			failures++
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("getUpdates failed %d times in a row: %w", failures, err)
			}

			delay := c.retryDelay
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				delay = time.Duration(apiErr.RetryAfter) * time.Second
			}
			c.logger.Warn("getUpdates failed", "error", err, "failures", failures, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		failures = 0
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			handle(ctx, u)
		}
	}
}

// skipBacklog acknowledges everything that arrived while the bot was down.
func (c *Client) skipBacklog(ctx context.Context) (int64, error) {
	updates, err := c.GetUpdates(ctx, -1, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}
	last := updates[len(updates)-1].UpdateID
	c.logger.Info("dropped pending updates", "last_update_id", last)
	return last + 1, nil
}
