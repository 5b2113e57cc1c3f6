// Package staleness periodically asks the calendar sync collaborator to refresh accounts whose busy
// data has gone stale.
package staleness

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
)

type AccountClaimer interface {
	ClaimStaleAccounts(ctx context.Context, olderThan, now time.Time, limit int) ([]model.CalendarAccount, error)
}

type Worker struct {
	claimer    AccountClaimer
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

type WorkerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

func NewWorker(claimer AccountClaimer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		claimer:    claimer,
		logger:     logger,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.sweep(ctx); err != nil {
				w.logger.Error("staleness sweep failed", "err", err)
			}
		}
	}
}

// sweep claims batches until a short one comes back, so a backlog drains within one tick.
func (w *Worker) sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		now := w.now().UTC()
		accounts, err := w.claimer.ClaimStaleAccounts(ctx, now.Add(-w.staleAfter), now, w.batchSize)
		if err != nil {
			return total, err
		}
		for _, a := range accounts {
			w.logger.Info("calendar sync requested", "account_id", a.ID, "mentor_id", a.MentorID, "provider", a.Provider)
		}
		total += len(accounts)
		if len(accounts) < w.batchSize || ctx.Err() != nil {
			return total, nil
		}
	}
}
