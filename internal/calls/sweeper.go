package calls

import (
	"context"
	"log/slog"
	"time"

	"wrapdesk/pkg/logger"
)

// Sweeper periodically expires calls stuck in ringing.
type Sweeper struct {
	svc        *Service
	interval   time.Duration
	staleAfter time.Duration
	log        *slog.Logger
}

func NewSweeper(svc *Service, interval, staleAfter time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, staleAfter: staleAfter, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	ctx = logger.With(ctx, w.log.With("worker", "stale_call_sweeper"))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.svc.ExpireStaleRinging(ctx, w.staleAfter); err != nil && ctx.Err() == nil {
				w.log.Error("stale call sweep failed", "err", err)
			}
		}
	}
}
