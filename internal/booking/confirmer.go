package booking

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// ConfirmOutcome is the interpreted result of one confirm call.
type ConfirmOutcome struct {
	Status       domain.IntentStatus
	ClientSecret string
}

// PaymentConfirmer submits payment-method details against an existing
// intent and interprets the provider response. succeeded is terminal
// success for this component; failed is terminal failure and is not retried
// automatically, because declined cards are not transient. It has no side
// effect beyond the remote call and never creates the order.
type PaymentConfirmer struct {
	api    domain.DistributionAPI
	logger *logrus.Logger
}

// NewPaymentConfirmer creates a confirmer.
func NewPaymentConfirmer(api domain.DistributionAPI, logger *logrus.Logger) *PaymentConfirmer {
	return &PaymentConfirmer{api: api, logger: logger}
}

// Confirm drives one confirmation round. Resumption after a step-up
// challenge is a fresh Confirm call keyed by the same intent id with the
// challenge result set on the method.
func (c *PaymentConfirmer) Confirm(ctx context.Context, intentID string, method domain.PaymentMethod) (*ConfirmOutcome, error) {
	intent, err := c.api.ConfirmPaymentIntent(ctx, intentID, method)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"intent_id": intentID,
		"status":    intent.Status,
	}).Info("payment confirmation round finished")

	switch intent.Status {
	case domain.IntentSucceeded:
		return &ConfirmOutcome{Status: domain.IntentSucceeded}, nil
	case domain.IntentRequiresAction:
		return &ConfirmOutcome{
			Status:       domain.IntentRequiresAction,
			ClientSecret: intent.ClientSecret,
		}, nil
	case domain.IntentFailed:
		return nil, domain.NewBookingError(domain.ErrPaymentFailed,
			"payment method was declined", "PAYMENT_FAILED")
	default:
		// requires_payment_method / requires_confirmation after a confirm
		// call means the provider did not accept the method details.
		return nil, domain.NewBookingError(domain.ErrPaymentFailed,
			"provider left the intent unconfirmed", "PAYMENT_FAILED")
	}
}
