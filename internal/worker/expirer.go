// Package worker holds the background loops: the stale-attempt expirer and
// the reconciliation sweeper.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// Expirer fails booking attempts that sat uncaptured past their expiry.
// Captured attempts are never touched here; money already moved for those
// and they belong to the reconciliation path.
type Expirer struct {
	attempts  domain.AttemptRepository
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    *logrus.Logger
}

func NewExpirer(attempts domain.AttemptRepository, interval time.Duration, logger *logrus.Logger) *Expirer {
	return &Expirer{
		attempts:  attempts,
		interval:  interval,
		batchSize: 50,
		now:       time.Now,
		logger:    logger,
	}
}

// Run loops until the context is cancelled.
func (e *Expirer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.WithField("interval", e.interval.String()).Info("attempt expirer started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("attempt expirer stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of stale attempts. Exported so a deployment can
// also trigger it on demand.
func (e *Expirer) Sweep(ctx context.Context) {
	ids, err := e.attempts.ListStale(ctx, e.now(), e.batchSize)
	if err != nil {
		e.logger.WithError(err).Error("failed to list stale attempts")
		return
	}

	for _, id := range ids {
		if err := e.expire(ctx, id); err != nil {
			e.logger.WithError(err).WithField("attempt_id", id).Error("failed to expire attempt")
		}
	}

	if len(ids) > 0 {
		e.logger.WithField("count", len(ids)).Info("expired stale booking attempts")
	}
}

func (e *Expirer) expire(ctx context.Context, id uuid.UUID) error {
	attempt, err := e.attempts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	// A racing request may have finished or captured the attempt between
	// the listing and now.
	if attempt.State.Terminal() || attempt.PaymentCaptured {
		return nil
	}

	attempt.State = domain.StateFailed
	attempt.FailureReason = domain.FailureExpired
	return e.attempts.Update(ctx, attempt)
}
