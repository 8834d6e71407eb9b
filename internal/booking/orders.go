package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// OrderCreator submits passengers, the selected offer and the confirmed
// payment reference to the provider to create a binding order. The
// distinction between offer-rejection errors ("search again") and generic
// order errors ("retry order creation") is preserved by the error taxonomy,
// never collapsed.
type OrderCreator struct {
	api    domain.DistributionAPI
	logger *logrus.Logger
}

// NewOrderCreator creates an order creator.
func NewOrderCreator(api domain.DistributionAPI, logger *logrus.Logger) *OrderCreator {
	return &OrderCreator{api: api, logger: logger}
}

// Create places the order. The intent must already be succeeded; calling
// with anything else is a programmer error, not a provider error. Failures
// here happen after capture, so every returned error carries the
// PaymentCaptured tag.
func (o *OrderCreator) Create(
	ctx context.Context,
	attemptID uuid.UUID,
	offerID string,
	passengers []domain.Passenger,
	intent *domain.PaymentIntent,
	metadata map[string]string,
) (*domain.Order, error) {
	if intent == nil || intent.Status != domain.IntentSucceeded {
		return nil, domain.NewBookingError(domain.ErrPreconditionViolation,
			"order creation requires a succeeded payment intent", "PRECONDITION_VIOLATION")
	}

	order, err := o.api.CreateOrder(ctx, attemptID.String(), domain.OrderRequest{
		SelectedOfferIDs: []string{offerID},
		Passengers:       passengers,
		PaymentIntentID:  intent.ID,
		Metadata:         metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOfferExpired), errors.Is(err, domain.ErrOfferNotFound):
			return nil, domain.NewCapturedError(domain.ErrOfferExpired,
				fmt.Sprintf("provider rejected offer %s at order creation", offerID),
				"OFFER_INVALID")
		case errors.Is(err, domain.ErrUpstreamUnavailable):
			return nil, domain.NewCapturedError(domain.ErrUpstreamUnavailable,
				"provider unavailable during order creation", "UPSTREAM_UNAVAILABLE")
		default:
			return nil, domain.NewCapturedError(domain.ErrOrderCreation,
				"provider failed to create the order", "ORDER_CREATION_FAILED")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"attempt_id":        attemptID,
		"order_id":          order.ID,
		"booking_reference": order.BookingReference,
	}).Info("order created")

	return order, nil
}
