package booking

import (
	"errors"

	"github.com/google/uuid"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// ResultError is the structured error surfaced to callers: a stable code to
// switch on plus a human-readable detail.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the single outward-facing outcome of a booking attempt
// operation. Status is always one of the named state-machine values, never
// free text, so calling UIs can switch on it deterministically.
type Result struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	Success          bool                 `json:"success"`
	Status           domain.AttemptState  `json:"status"`
	FailureReason    domain.FailureReason `json:"failure_reason,omitempty"`
	BookingReference string               `json:"booking_reference,omitempty"`
	Order            *domain.Order        `json:"order,omitempty"`
	RequiresAction   bool                 `json:"requires_action,omitempty"`
	ClientSecret     string               `json:"client_secret,omitempty"`
	PaymentCaptured  bool                 `json:"payment_captured,omitempty"`
	Error            *ResultError         `json:"error,omitempty"`
}

// resultFromAttempt derives the caller-facing result from a persisted
// attempt, e.g. for status polling or when a concurrent caller already
// finished the work.
func resultFromAttempt(attempt *domain.BookingAttempt) *Result {
	res := &Result{
		AttemptID:        attempt.ID,
		Success:          attempt.State == domain.StateCompleted,
		Status:           attempt.State,
		FailureReason:    attempt.FailureReason,
		BookingReference: attempt.BookingReference,
		PaymentCaptured:  attempt.PaymentCaptured,
		RequiresAction:   attempt.State == domain.StateAwaitingAction,
	}
	if attempt.State == domain.StateFailed {
		res.Error = &ResultError{
			Code:    failureCode(attempt.FailureReason),
			Message: failureMessage(attempt.FailureReason),
		}
	}
	return res
}

// failureResult builds the result for a fresh failure, carrying the
// structured error that caused it.
func failureResult(attempt *domain.BookingAttempt, err error) *Result {
	res := resultFromAttempt(attempt)
	res.Success = false

	var bookingErr *domain.BookingError
	if errors.As(err, &bookingErr) {
		res.Error = &ResultError{Code: bookingErr.Code, Message: userFacingMessage(bookingErr)}
		res.PaymentCaptured = res.PaymentCaptured || bookingErr.PaymentCaptured
		return res
	}
	res.Error = &ResultError{Code: "INTERNAL_ERROR", Message: "internal error"}
	return res
}

// userFacingMessage hides precondition violations behind a generic message;
// they are defects, logged but never shown verbatim.
func userFacingMessage(err *domain.BookingError) string {
	if errors.Is(err, domain.ErrPreconditionViolation) {
		return "an internal error occurred, please contact support"
	}
	return err.Message
}

func failureCode(reason domain.FailureReason) string {
	switch reason {
	case domain.FailureValidation:
		return "VALIDATION_ERROR"
	case domain.FailureAmountLimit:
		return "AMOUNT_EXCEEDS_LIMIT"
	case domain.FailureProvider:
		return "UPSTREAM_UNAVAILABLE"
	case domain.FailurePayment:
		return "PAYMENT_FAILED"
	case domain.FailureOfferInvalid:
		return "OFFER_INVALID"
	case domain.FailureOrderCreation:
		return "ORDER_CREATION_FAILED"
	case domain.FailureAbandoned:
		return "ATTEMPT_ABANDONED"
	case domain.FailureExpired:
		return "ATTEMPT_EXPIRED"
	default:
		return "INTERNAL_ERROR"
	}
}

// failureMessage is the user-visible instruction for each failure class:
// offer-invalid users search again, payment failures retry with a different
// method, upstream failures simply retry.
func failureMessage(reason domain.FailureReason) string {
	switch reason {
	case domain.FailureValidation:
		return "the booking request was invalid"
	case domain.FailureAmountLimit:
		return "the amount exceeds the accepted limit; reduce the amount or split the booking"
	case domain.FailureProvider:
		return "the travel provider is temporarily unavailable, please retry"
	case domain.FailurePayment:
		return "the payment was declined, please retry with a different payment method"
	case domain.FailureOfferInvalid:
		return "the offer is no longer available, please search again"
	case domain.FailureOrderCreation:
		return "the booking could not be finalized, please retry"
	case domain.FailureAbandoned:
		return "the booking attempt was abandoned"
	case domain.FailureExpired:
		return "the booking attempt expired, please start again"
	default:
		return "an internal error occurred"
	}
}
