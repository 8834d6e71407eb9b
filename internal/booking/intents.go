package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// PaymentIntentManager owns the mapping from a booking attempt to its
// provider payment-intent id. One intent per attempt: when the amount
// changes before confirmation the intent is updated in place, never
// recreated. This is the idempotency anchor for the whole saga and avoids
// orphaned intents.
type PaymentIntentManager struct {
	api    domain.DistributionAPI
	logger *logrus.Logger
}

// NewPaymentIntentManager creates an intent manager.
func NewPaymentIntentManager(api domain.DistributionAPI, logger *logrus.Logger) *PaymentIntentManager {
	return &PaymentIntentManager{api: api, logger: logger}
}

// CreateOrUpdate creates an intent for the attempt, or updates the existing
// one when existingIntentID is set. The attempt id doubles as the provider
// idempotency key, so a client retry of a create cannot open a second
// intent.
func (m *PaymentIntentManager) CreateOrUpdate(
	ctx context.Context,
	attemptID uuid.UUID,
	existingIntentID string,
	amount domain.Money,
	breakdown *domain.PricingBreakdown,
) (*domain.PaymentIntent, error) {
	metadata := breakdownMetadata(attemptID, breakdown)

	var (
		intent *domain.PaymentIntent
		err    error
	)
	if existingIntentID == "" {
		intent, err = m.api.CreatePaymentIntent(ctx, attemptID.String(), amount, metadata)
	} else {
		intent, err = m.api.UpdatePaymentIntent(ctx, existingIntentID, amount, metadata)
	}
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"intent_id":  intent.ID,
		"amount":     amount.Amount.String(),
		"currency":   amount.Currency,
		"updated":    existingIntentID != "",
	}).Info("payment intent ready")

	return intent, nil
}

// breakdownMetadata snapshots the pricing totals onto the intent for later
// reconciliation and audit, independent of the provider's own records.
func breakdownMetadata(attemptID uuid.UUID, b *domain.PricingBreakdown) map[string]string {
	metadata := map[string]string{
		"booking_attempt_id": attemptID.String(),
	}
	if b == nil {
		return metadata
	}
	metadata["base_amount"] = b.BaseAmount.StringFixed(2)
	metadata["markup_total"] = b.MarkupTotal.StringFixed(2)
	metadata["service_total"] = b.ServiceTotal.StringFixed(2)
	metadata["ancillary_total"] = b.AncillaryTotal.StringFixed(2)
	metadata["grand_total"] = b.GrandTotal.StringFixed(2)
	metadata["currency"] = b.Currency
	return metadata
}
