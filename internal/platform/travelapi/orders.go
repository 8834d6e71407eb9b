package travelapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// orderRequest is the order-creation payload.
type orderRequest struct {
	Data struct {
		SelectedOffers  []string           `json:"selected_offers"`
		Passengers      []domain.Passenger `json:"passengers"`
		PaymentIntentID string             `json:"payment_intent_id"`
		Metadata        map[string]string  `json:"metadata,omitempty"`
	} `json:"data"`
}

// orderResponse is the provider's confirmed-order payload.
type orderResponse struct {
	Data struct {
		ID               string             `json:"id"`
		BookingReference string             `json:"booking_reference"`
		Passengers       []domain.Passenger `json:"passengers"`
		TotalAmount      int64              `json:"total_amount"`
		TotalCurrency    string             `json:"total_currency"`
		CreatedAt        time.Time          `json:"created_at"`
	} `json:"data"`
}

// CreateOrder submits the booking to the provider. The idempotency key is
// the attempt id, so a network retry cannot double-book. Provider errors
// other than offer rejection and availability map to ErrOrderCreation.
func (c *Client) CreateOrder(ctx context.Context, idempotencyKey string, req domain.OrderRequest) (*domain.Order, error) {
	url := fmt.Sprintf("%s/air/orders", c.baseURL)

	var payload orderRequest
	payload.Data.SelectedOffers = req.SelectedOfferIDs
	payload.Data.Passengers = req.Passengers
	payload.Data.PaymentIntentID = req.PaymentIntentID
	payload.Data.Metadata = req.Metadata

	var resp orderResponse
	// A bare 404 on order creation means the selected offer is gone.
	if err := c.doJSON(ctx, http.MethodPost, url, idempotencyKey, &payload, &resp, domain.ErrOfferNotFound); err != nil {
		if errors.Is(err, domain.ErrOfferExpired) ||
			errors.Is(err, domain.ErrOfferNotFound) ||
			errors.Is(err, domain.ErrUpstreamUnavailable) ||
			errors.Is(err, domain.ErrRateLimited) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrOrderCreation, err)
	}

	return &domain.Order{
		ID:               resp.Data.ID,
		BookingReference: resp.Data.BookingReference,
		Passengers:       resp.Data.Passengers,
		TotalAmount:      fromMinor(resp.Data.TotalAmount, resp.Data.TotalCurrency),
		CreatedAt:        resp.Data.CreatedAt,
	}, nil
}
