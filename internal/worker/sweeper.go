package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// Sweeper periodically re-surfaces unresolved payment reconciliations so
// they show up in the logs until an operator voids or refunds them. It
// reports; it never moves money.
type Sweeper struct {
	reconciliations domain.ReconciliationRepository
	interval        time.Duration
	batchSize       int
	logger          *logrus.Logger
}

func NewSweeper(reconciliations domain.ReconciliationRepository, interval time.Duration, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		reconciliations: reconciliations,
		interval:        interval,
		batchSize:       20,
		logger:          logger,
	}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("reconciliation sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep logs every open reconciliation record once.
func (s *Sweeper) Sweep(ctx context.Context) {
	recs, err := s.reconciliations.ListUnresolved(ctx, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("failed to list unresolved reconciliations")
		return
	}

	for _, rec := range recs {
		s.logger.WithFields(logrus.Fields{
			"reconciliation_id": rec.ID,
			"attempt_id":        rec.AttemptID,
			"payment_intent_id": rec.PaymentIntentID,
			"amount":            rec.Amount.Amount.String(),
			"currency":          rec.Amount.Currency,
			"reason":            rec.Reason,
			"age":               time.Since(rec.CreatedAt).Round(time.Second).String(),
		}).Warn("payment awaiting reconciliation")
	}
}
