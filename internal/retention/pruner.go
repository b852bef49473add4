// Package retention trims the job journal on a fixed interval.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/claudegram/internal/retention Store

// Store deletes journal rows completed before cutoff. *journal.Journal
// satisfies it.
type Store interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner runs Store.Prune once at start and then every interval.
type Pruner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(store Store, retention, interval time.Duration, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the prune loop in the background.
func (p *Pruner) Start(ctx context.Context) {
	p.logger.Info("starting journal pruner", "retention", p.retention, "interval", p.interval)
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends the loop and waits for an in-flight prune.
func (p *Pruner) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.prune(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to prune job journal", "error", err)
		}
		return
	}
	if n > 0 {
		p.logger.Info("pruned job journal", "removed", n, "cutoff", cutoff)
	}
}
