// Package domain contains the core business entities and interfaces for the
// booking service.
package domain

import "errors"

// Domain errors represent business rule violations and provider failures.
// The split between them is load-bearing for the presentation layer: it
// decides whether the user is told to fix input, search again, retry, or
// try a different payment method.
var (
	// ErrInvalidInput is returned for bad input before any provider
	// contact. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAmountExceedsLimit is returned when a prospective charge is above
	// the provider ceiling. Terminal; the user must reduce the amount or
	// split the booking.
	ErrAmountExceedsLimit = errors.New("amount exceeds provider limit")

	// ErrUpstreamUnavailable is returned for transient provider failures,
	// including timeouts. Safe to retry with the same idempotency key.
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")

	// ErrOfferNotFound is returned when an offer id no longer resolves.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOfferExpired is returned when an offer is past its expiry.
	// Not retried; the caller must restart the search flow.
	ErrOfferExpired = errors.New("offer expired")

	// ErrIntentNotFound is returned when a payment intent id no longer
	// resolves with the provider.
	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrPaymentFailed is returned when the payment method was declined.
	// Card errors are not transient: never retried automatically.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrOrderCreation is returned when order creation fails after payment
	// capture. Retryable against the same payment intent; retries must not
	// re-charge.
	ErrOrderCreation = errors.New("order creation failed")

	// ErrPreconditionViolation marks an internal sequencing bug. Always a
	// defect, never shown to users verbatim.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrAttemptNotFound is returned when a booking attempt id is unknown.
	ErrAttemptNotFound = errors.New("booking attempt not found")

	// ErrDuplicateOrder is returned when order creation was already claimed
	// by a concurrent call for the same attempt.
	ErrDuplicateOrder = errors.New("order already created for this attempt")

	// ErrRateLimited is returned when a client exceeded the per-IP request
	// budget on the offer endpoints.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// BookingError wraps a domain error with context for the caller.
// PaymentCaptured tags every error raised after payment confirmation
// succeeded, so it can be routed to reconciliation instead of being treated
// as a plain failure.
type BookingError struct {
	Err             error
	Message         string
	Code            string
	PaymentCaptured bool
}

// Error implements the error interface.
func (e *BookingError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with BookingError.
func (e *BookingError) Unwrap() error {
	return e.Err
}

// NewBookingError creates a BookingError with the given cause and context.
func NewBookingError(err error, message, code string) *BookingError {
	return &BookingError{Err: err, Message: message, Code: code}
}

// NewCapturedError creates a BookingError for a failure that happened after
// money moved.
func NewCapturedError(err error, message, code string) *BookingError {
	return &BookingError{Err: err, Message: message, Code: code, PaymentCaptured: true}
}

// Retryable reports whether the caller may retry the same attempt without
// changing anything.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrOrderCreation)
}
