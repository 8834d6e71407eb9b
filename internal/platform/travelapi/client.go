// Package travelapi implements the domain.DistributionAPI interface by
// communicating with the travel-distribution provider's REST API.
package travelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// Client implements domain.DistributionAPI by making HTTP requests to the
// provider. Amounts cross this boundary in minor units; everything the
// client returns is converted to major-unit decimals.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new provider client.
func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// apiError is the provider's structured error envelope.
type apiError struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// code returns the first error code in the envelope, or "".
func (e *apiError) code() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Code
}

func (e *apiError) detail() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Detail
}

// doJSON sends one request with auth headers and decodes the JSON response
// into out. A 429 is retried once after honoring Retry-After; a second 429
// surfaces as ErrRateLimited. Transport errors and 5xx responses map to
// ErrUpstreamUnavailable so callers can treat them uniformly as transient.
// notFound is the sentinel a bare 404 maps to; it depends on which resource
// the URL addresses, so each call site supplies its own.
func (c *Client) doJSON(ctx context.Context, method, url, idempotencyKey string, body, out interface{}, notFound error) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	retried := false
	for {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if retried {
				return fmt.Errorf("%w: provider rate limit after retry", domain.ErrRateLimited)
			}
			retried = true
			c.logger.WithFields(logrus.Fields{
				"url":  url,
				"wait": wait.String(),
			}).Warn("provider rate limited, retrying once")
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = c.handleResponse(resp, out, notFound)
		resp.Body.Close()
		return err
	}
}

func (c *Client) handleResponse(resp *http.Response, out interface{}, notFound error) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		// A 404 may carry an error envelope naming the real cause; only a
		// bare 404 falls back to the caller's resource sentinel.
		var envelope apiError
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && len(envelope.Errors) > 0 {
			return mapProviderError(&envelope, resp.StatusCode)
		}
		return notFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("authentication failed with provider API (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: provider status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	default:
		var envelope apiError
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || len(envelope.Errors) == 0 {
			return fmt.Errorf("unexpected provider status %d", resp.StatusCode)
		}
		return mapProviderError(&envelope, resp.StatusCode)
	}
}

// mapProviderError translates the provider's error codes into domain
// sentinels. Offer-rejection codes get their own sentinel because callers
// distinguish "the offer died" from "the provider broke".
func mapProviderError(envelope *apiError, status int) error {
	switch envelope.code() {
	case "offer_no_longer_available", "offer_expired", "offer_request_expired":
		return fmt.Errorf("%w: %s", domain.ErrOfferExpired, envelope.detail())
	case "offer_not_found":
		return fmt.Errorf("%w: %s", domain.ErrOfferNotFound, envelope.detail())
	case "payment_intent_not_found":
		return fmt.Errorf("%w: %s", domain.ErrIntentNotFound, envelope.detail())
	default:
		return fmt.Errorf("provider rejected request (status %d, code %s): %s",
			status, envelope.code(), envelope.detail())
	}
}

// retryAfter parses the Retry-After header, falling back to one second.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

// fromMinor converts a provider minor-unit integer amount into a
// major-unit Money using the currency's exponent.
func fromMinor(units int64, currency string) domain.Money {
	exp := domain.CurrencyExponent(currency)
	return domain.Money{
		Amount:   decimal.New(units, -exp),
		Currency: currency,
	}
}

// toMinor converts a major-unit Money into the provider's minor-unit
// integer representation.
func toMinor(m domain.Money) int64 {
	exp := domain.CurrencyExponent(m.Currency)
	return m.Amount.Shift(exp).IntPart()
}
