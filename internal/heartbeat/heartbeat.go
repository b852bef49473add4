// Package heartbeat sends periodic progress notices while a job runs.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the spacing between progress notices.
const DefaultInterval = 120 * time.Second

// Beat describes one progress notice. N starts at 1.
type Beat struct {
	N         int
	Elapsed   time.Duration
	Remaining time.Duration
}

// Notify delivers a beat. Errors are logged and never stop the emitter.
type Notify func(ctx context.Context, b Beat) error

// Ticker is the subset of *time.Ticker the emitter needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc builds a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Config controls an Emitter.
type Config struct {
	Interval time.Duration
	// Timeout is the job's wall-clock limit, used for the remaining-time field.
	Timeout time.Duration
	// NewTicker defaults to time.NewTicker.
	NewTicker TickerFunc
}

// Emitter runs one notifier goroutine for the lifetime of a job.
type Emitter struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	beats int
}

// Start launches the emitter. The caller must call Stop on every exit path.
func Start(ctx context.Context, cfg Config, notify Notify, logger *slog.Logger) *Emitter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = newRealTicker
	}

	ctx, cancel := context.WithCancel(ctx)
	e := &Emitter{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticker := cfg.NewTicker(cfg.Interval)
	go func() {
		defer close(e.done)
		defer ticker.Stop()

		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
			}
			// A tick racing with Stop must not produce a notice.
			if ctx.Err() != nil {
				return
			}

			n++
			elapsed := time.Duration(n) * cfg.Interval
			b := Beat{N: n, Elapsed: elapsed, Remaining: max(cfg.Timeout-elapsed, 0)}
			if err := notify(ctx, b); err != nil {
				logger.Warn("heartbeat delivery failed", "beat", n, "error", err)
			}
			e.mu.Lock()
			e.beats = n
			e.mu.Unlock()
		}
	}()
	return e
}

// Stop cancels the emitter and waits for its goroutine to exit. Once Stop
// returns no further notice is sent. Safe to call more than once.
func (e *Emitter) Stop() {
	e.once.Do(e.cancel)
	<-e.done
}

// Beats reports how many notices were attempted.
func (e *Emitter) Beats() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beats
}
