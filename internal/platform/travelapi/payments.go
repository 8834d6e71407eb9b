package travelapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// intentRequest is the create/update payload for a payment intent.
type intentRequest struct {
	Data struct {
		Amount   int64             `json:"amount"`
		Currency string            `json:"currency"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"data"`
}

// intentResponse is the provider's payment-intent payload.
type intentResponse struct {
	Data struct {
		ID           string `json:"id"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
		Status       string `json:"status"`
		ClientSecret string `json:"client_secret"`
	} `json:"data"`
}

func (r *intentResponse) toDomain() *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           r.Data.ID,
		Amount:       fromMinor(r.Data.Amount, r.Data.Currency),
		Status:       domain.IntentStatus(r.Data.Status),
		ClientSecret: r.Data.ClientSecret,
	}
}

// CreatePaymentIntent opens a new intent. The idempotency key makes a
// retried create land on the same provider-side intent.
func (c *Client) CreatePaymentIntent(ctx context.Context, idempotencyKey string, amount domain.Money, metadata map[string]string) (*domain.PaymentIntent, error) {
	url := fmt.Sprintf("%s/air/payment_intents", c.baseURL)

	var req intentRequest
	req.Data.Amount = toMinor(amount)
	req.Data.Currency = amount.Currency
	req.Data.Metadata = metadata

	var resp intentResponse
	if err := c.doJSON(ctx, http.MethodPost, url, idempotencyKey, &req, &resp, domain.ErrIntentNotFound); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// UpdatePaymentIntent changes the amount and metadata of an unconfirmed
// intent in place.
func (c *Client) UpdatePaymentIntent(ctx context.Context, intentID string, amount domain.Money, metadata map[string]string) (*domain.PaymentIntent, error) {
	url := fmt.Sprintf("%s/air/payment_intents/%s", c.baseURL, intentID)

	var req intentRequest
	req.Data.Amount = toMinor(amount)
	req.Data.Currency = amount.Currency
	req.Data.Metadata = metadata

	var resp intentResponse
	if err := c.doJSON(ctx, http.MethodPatch, url, "", &req, &resp, domain.ErrIntentNotFound); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// confirmRequest carries the payment-method token, plus the completed
// step-up challenge result when resuming.
type confirmRequest struct {
	Data struct {
		PaymentMethodToken string `json:"payment_method_token,omitempty"`
		ChallengeResult    string `json:"challenge_result,omitempty"`
	} `json:"data"`
}

// ConfirmPaymentIntent submits payment-method details against an intent.
func (c *Client) ConfirmPaymentIntent(ctx context.Context, intentID string, method domain.PaymentMethod) (*domain.PaymentIntent, error) {
	url := fmt.Sprintf("%s/air/payment_intents/%s/confirm", c.baseURL, intentID)

	var req confirmRequest
	req.Data.PaymentMethodToken = method.Token
	req.Data.ChallengeResult = method.ChallengeResult

	var resp intentResponse
	if err := c.doJSON(ctx, http.MethodPost, url, "", &req, &resp, domain.ErrIntentNotFound); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}
