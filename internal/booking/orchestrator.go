package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
	"github.com/skyroute/skyroute-bookings/internal/pricing"
)

// StartRequest is one price-locked booking request from the storefront.
// BaseAmount is the fare displayed to the customer; the live offer amount is
// checked against it before any money moves.
type StartRequest struct {
	// AttemptID lets a caller retry a failed attempt idempotently. Zero for
	// a fresh attempt.
	AttemptID   uuid.UUID                   `json:"attempt_id,omitempty"`
	OfferID     string                      `json:"offer_id"`
	BaseAmount  domain.Money                `json:"base_amount"`
	Passengers  []domain.Passenger          `json:"passengers"`
	Ancillaries []domain.AncillarySelection `json:"ancillaries,omitempty"`
	Payment     domain.PaymentMethod        `json:"payment"`
}

// Orchestrator is the booking state machine. It sequences pricing, the
// amount guard, offer verification, payment intent management, confirmation
// and order creation, owns the retry/idempotency policy, and produces the
// single outward-facing result the presentation layer consumes.
//
// Each attempt is a strictly sequential chain of blocking remote calls;
// distinct attempts are independent and run fully concurrently with no
// shared mutable state beyond each attempt's own record.
type Orchestrator struct {
	engine          *pricing.Engine
	guard           *pricing.AmountGuard
	verifier        *OfferVerifier
	intents         *PaymentIntentManager
	confirmer       *PaymentConfirmer
	orders          *OrderCreator
	attempts        domain.AttemptRepository
	reconciliations domain.ReconciliationRepository
	attemptTTL      time.Duration
	now             func() time.Time
	logger          *logrus.Logger
}

// NewOrchestrator wires the saga. now is injectable for tests; pass nil for
// time.Now.
func NewOrchestrator(
	engine *pricing.Engine,
	guard *pricing.AmountGuard,
	verifier *OfferVerifier,
	intents *PaymentIntentManager,
	confirmer *PaymentConfirmer,
	orders *OrderCreator,
	attempts domain.AttemptRepository,
	reconciliations domain.ReconciliationRepository,
	attemptTTL time.Duration,
	now func() time.Time,
	logger *logrus.Logger,
) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		engine:          engine,
		guard:           guard,
		verifier:        verifier,
		intents:         intents,
		confirmer:       confirmer,
		orders:          orders,
		attempts:        attempts,
		reconciliations: reconciliations,
		attemptTTL:      attemptTTL,
		now:             now,
		logger:          logger,
	}
}

// Price runs the pricing engine and the amount guard only, with no provider
// contact. Used by the storefront price preview.
func (o *Orchestrator) Price(base domain.Money, passengerCount int, ancillaries []domain.AncillarySelection) (*domain.PricingBreakdown, error) {
	breakdown, err := o.engine.Compute(base, passengerCount, ancillaries)
	if err != nil {
		return nil, err
	}
	if err := o.guard.Check(breakdown.Total()); err != nil {
		return nil, err
	}
	return breakdown, nil
}

// Start drives a booking attempt from pricing up to either completion, a
// suspended step-up challenge, or a terminal failure. Passing the id of an
// existing attempt replays it idempotently: finished attempts return their
// recorded outcome, and an uncaptured provider failure re-runs the saga
// under the same id, reusing any intent it already opened.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*Result, error) {
	var attempt *domain.BookingAttempt
	if req.AttemptID != uuid.Nil {
		retry, res, err := o.replay(ctx, req.AttemptID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		attempt = retry
	}

	// Pricing: pure computation plus ceiling check, before any provider
	// call. Failures here are user-actionable and never retried.
	if attempt == nil {
		attempt = &domain.BookingAttempt{
			ID:         req.AttemptID,
			OfferID:    req.OfferID,
			State:      domain.StatePricing,
			Passengers: req.Passengers,
			CreatedAt:  o.now(),
			UpdatedAt:  o.now(),
			ExpiresAt:  o.now().Add(o.attemptTTL),
		}
		if attempt.ID == uuid.Nil {
			attempt.ID = uuid.New()
		}
		if err := o.attempts.Create(ctx, attempt); err != nil {
			return nil, storeError(err, false)
		}
	} else {
		// Retry of a provider failure: same row, same intent if one was
		// opened, fresh pricing inputs and a fresh TTL.
		attempt.State = domain.StatePricing
		attempt.FailureReason = ""
		attempt.OfferID = req.OfferID
		attempt.Passengers = req.Passengers
		attempt.ExpiresAt = o.now().Add(o.attemptTTL)
	}

	breakdown, err := o.engine.Compute(req.BaseAmount, len(req.Passengers), req.Ancillaries)
	if err != nil {
		return o.fail(ctx, attempt, domain.FailureValidation, err)
	}
	attempt.Breakdown = breakdown
	attempt.Amount = breakdown.Total()

	if err := o.guard.Check(attempt.Amount); err != nil {
		reason := domain.FailureValidation
		if errors.Is(err, domain.ErrAmountExceedsLimit) {
			reason = domain.FailureAmountLimit
		}
		return o.fail(ctx, attempt, reason, err)
	}
	if err := o.transition(ctx, attempt, domain.StatePricing); err != nil {
		return nil, err
	}

	return o.runFromIntent(ctx, attempt, req.Payment)
}

// runFromIntent executes IntentPending -> Confirming and onwards for an
// attempt that has already passed pricing.
func (o *Orchestrator) runFromIntent(ctx context.Context, attempt *domain.BookingAttempt, method domain.PaymentMethod) (*Result, error) {
	// First offer verification, before money is committed.
	offer, err := o.verifier.Verify(ctx, attempt.OfferID)
	if err != nil {
		return o.failFromProviderErr(ctx, attempt, err)
	}
	if !offer.TotalAmount.Amount.Equal(attempt.Breakdown.BaseAmount) ||
		offer.TotalAmount.Currency != attempt.Breakdown.Currency {
		return o.fail(ctx, attempt, domain.FailureValidation,
			domain.NewBookingError(domain.ErrInvalidInput,
				"the offer price changed since it was displayed, please re-price",
				"OFFER_PRICE_CHANGED"))
	}

	if err := o.transition(ctx, attempt, domain.StateIntentPending); err != nil {
		return nil, err
	}

	intent, err := o.intents.CreateOrUpdate(ctx, attempt.ID, attempt.PaymentIntentID, attempt.Amount, attempt.Breakdown)
	if err != nil {
		return o.fail(ctx, attempt, domain.FailureProvider,
			domain.NewBookingError(domain.ErrUpstreamUnavailable,
				"failed to prepare the payment", "UPSTREAM_UNAVAILABLE"))
	}
	attempt.PaymentIntentID = intent.ID

	if err := o.transition(ctx, attempt, domain.StateConfirming); err != nil {
		return nil, err
	}

	return o.confirmAndFinish(ctx, attempt, method)
}

// confirmAndFinish drives one confirmation round and, on capture, the
// post-payment half of the saga.
func (o *Orchestrator) confirmAndFinish(ctx context.Context, attempt *domain.BookingAttempt, method domain.PaymentMethod) (*Result, error) {
	outcome, err := o.confirmer.Confirm(ctx, attempt.PaymentIntentID, method)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentFailed) {
			return o.fail(ctx, attempt, domain.FailurePayment, err)
		}
		return o.failFromProviderErr(ctx, attempt, err)
	}

	if outcome.Status == domain.IntentRequiresAction {
		// The only legitimate suspension point: the customer completes an
		// out-of-band challenge for an unbounded amount of real-world
		// time. Resume is a fresh confirm keyed by the same intent id.
		if err := o.transition(ctx, attempt, domain.StateAwaitingAction); err != nil {
			return nil, err
		}
		res := resultFromAttempt(attempt)
		res.ClientSecret = outcome.ClientSecret
		return res, nil
	}

	// Money moved. From here every path either completes or leaves an
	// explicit, queryable record that a captured payment exists.
	attempt.PaymentCaptured = true
	if err := o.transition(ctx, attempt, domain.StateVerifyingOffer); err != nil {
		return nil, err
	}

	return o.finalize(ctx, attempt)
}

// finalize re-verifies the offer and creates the order. Only entered with a
// captured payment.
func (o *Orchestrator) finalize(ctx context.Context, attempt *domain.BookingAttempt) (*Result, error) {
	if _, err := o.verifier.Verify(ctx, attempt.OfferID); err != nil {
		if errors.Is(err, domain.ErrOfferExpired) || errors.Is(err, domain.ErrOfferNotFound) {
			return o.strand(ctx, attempt, "offer invalid after payment capture", err)
		}
		// Transient: the captured payment stays on the attempt, the caller
		// retries order creation with the same attempt id.
		return nil, domain.NewCapturedError(domain.ErrUpstreamUnavailable,
			"provider unavailable while re-verifying the offer", "UPSTREAM_UNAVAILABLE")
	}

	if err := o.attempts.ClaimOrderCreation(ctx, attempt.ID); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			// A concurrent caller won the claim; surface its outcome.
			current, loadErr := o.attempts.GetByID(ctx, attempt.ID)
			if loadErr != nil {
				return nil, storeError(loadErr, true)
			}
			return resultFromAttempt(current), nil
		}
		return nil, storeError(err, true)
	}
	attempt.State = domain.StateCreatingOrder

	order, err := o.orders.Create(ctx, attempt.ID, attempt.OfferID, attempt.Passengers,
		&domain.PaymentIntent{ID: attempt.PaymentIntentID, Status: domain.IntentSucceeded},
		breakdownMetadata(attempt.ID, attempt.Breakdown))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOfferExpired), errors.Is(err, domain.ErrOfferNotFound):
			return o.strand(ctx, attempt, "provider rejected offer at order creation", err)
		case errors.Is(err, domain.ErrUpstreamUnavailable):
			// Release the claim so a retry can go through order creation
			// again with the same intent. The provider call is idempotent
			// keyed by attempt id, so a replay cannot double-book.
			if revertErr := o.transition(ctx, attempt, domain.StateVerifyingOffer); revertErr != nil {
				return nil, revertErr
			}
			return nil, err
		default:
			return o.fail(ctx, attempt, domain.FailureOrderCreation, err)
		}
	}

	attempt.OrderID = order.ID
	attempt.BookingReference = order.BookingReference
	if err := o.transition(ctx, attempt, domain.StateCompleted); err != nil {
		return nil, err
	}

	res := resultFromAttempt(attempt)
	res.Order = order
	return res, nil
}

// Resume continues an attempt suspended in awaiting_action with the
// completed challenge result. No re-pricing, no new intent: the saga picks
// up at confirmation with the stored intent id.
func (o *Orchestrator) Resume(ctx context.Context, attemptID uuid.UUID, challengeResult string) (*Result, error) {
	attempt, err := o.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State.Terminal() {
		return resultFromAttempt(attempt), nil
	}
	if attempt.State != domain.StateAwaitingAction {
		return nil, domain.NewBookingError(domain.ErrPreconditionViolation,
			"attempt is not awaiting a challenge", "PRECONDITION_VIOLATION")
	}

	if err := o.transition(ctx, attempt, domain.StateConfirming); err != nil {
		return nil, err
	}
	return o.confirmAndFinish(ctx, attempt, domain.PaymentMethod{ChallengeResult: challengeResult})
}

// RetryOrder retries order creation for an attempt whose payment is already
// captured. The existing intent is reused; the customer is never re-charged.
func (o *Orchestrator) RetryOrder(ctx context.Context, attemptID uuid.UUID) (*Result, error) {
	attempt, err := o.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State == domain.StateCompleted {
		return resultFromAttempt(attempt), nil
	}
	retryable := attempt.PaymentCaptured &&
		(attempt.State == domain.StateVerifyingOffer ||
			(attempt.State == domain.StateFailed && attempt.FailureReason == domain.FailureOrderCreation))
	if !retryable {
		return nil, domain.NewBookingError(domain.ErrPreconditionViolation,
			"attempt is not retryable for order creation", "PRECONDITION_VIOLATION")
	}

	attempt.FailureReason = ""
	if err := o.transition(ctx, attempt, domain.StateVerifyingOffer); err != nil {
		return nil, err
	}
	return o.finalize(ctx, attempt)
}

// Get returns the current outward-facing state of an attempt.
func (o *Orchestrator) Get(ctx context.Context, attemptID uuid.UUID) (*Result, error) {
	attempt, err := o.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return resultFromAttempt(attempt), nil
}

// Abandon discards an attempt on the caller's request. Before capture this
// has no side effects to reconcile; after capture it carries the same
// reconciliation obligation as an offer-invalid failure.
func (o *Orchestrator) Abandon(ctx context.Context, attemptID uuid.UUID) (*Result, error) {
	attempt, err := o.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State.Terminal() {
		return resultFromAttempt(attempt), nil
	}

	if attempt.PaymentCaptured {
		return o.strand(ctx, attempt, "attempt abandoned after payment capture",
			domain.NewCapturedError(domain.ErrOfferExpired, "attempt abandoned after payment capture", "ATTEMPT_ABANDONED"))
	}
	return o.fail(ctx, attempt, domain.FailureAbandoned,
		domain.NewBookingError(domain.ErrInvalidInput, "attempt abandoned", "ATTEMPT_ABANDONED"))
}

// replay resolves Start calls that carry an existing attempt id. An unknown
// id returns all-nil, meaning Start should create the attempt fresh under
// the supplied id. An uncaptured provider failure returns the stored attempt
// for a re-run; everything else returns its recorded outcome: completed and
// failed attempts report their result, a suspended attempt re-surfaces the
// challenge, an in-flight attempt its state.
func (o *Orchestrator) replay(ctx context.Context, attemptID uuid.UUID) (*domain.BookingAttempt, *Result, error) {
	attempt, err := o.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if attempt.State == domain.StateFailed &&
		attempt.FailureReason == domain.FailureProvider &&
		!attempt.PaymentCaptured {
		// No money moved and nothing about the request was rejected; the
		// provider was simply unreachable. The caller retries with the
		// same id and the saga runs again from pricing.
		return attempt, nil, nil
	}
	return nil, resultFromAttempt(attempt), nil
}

// strand records that an authorized payment exists without an order, then
// fails the attempt. The reconciliation row is what keeps the money from
// being silently lost.
func (o *Orchestrator) strand(ctx context.Context, attempt *domain.BookingAttempt, reason string, cause error) (*Result, error) {
	rec := &domain.PaymentReconciliation{
		ID:              uuid.New(),
		AttemptID:       attempt.ID,
		PaymentIntentID: attempt.PaymentIntentID,
		Amount:          attempt.Amount,
		Reason:          reason,
		CreatedAt:       o.now(),
	}
	if err := o.reconciliations.Create(ctx, rec); err != nil {
		// The attempt row still carries payment_captured=true, so the
		// obligation is queryable even when this insert fails.
		o.logger.WithError(err).WithFields(logrus.Fields{
			"attempt_id": attempt.ID,
			"intent_id":  attempt.PaymentIntentID,
		}).Error("failed to record payment reconciliation")
	}

	reasonCode := domain.FailureOfferInvalid
	var bookingErr *domain.BookingError
	if errors.As(cause, &bookingErr) && bookingErr.Code == "ATTEMPT_ABANDONED" {
		reasonCode = domain.FailureAbandoned
	}
	return o.fail(ctx, attempt, reasonCode, cause)
}

// fail moves the attempt into its terminal failed state and builds the
// caller-facing result.
func (o *Orchestrator) fail(ctx context.Context, attempt *domain.BookingAttempt, reason domain.FailureReason, cause error) (*Result, error) {
	attempt.FailureReason = reason
	if err := o.transition(ctx, attempt, domain.StateFailed); err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"attempt_id":       attempt.ID,
		"reason":           reason,
		"payment_captured": attempt.PaymentCaptured,
	}).WithError(cause).Info("booking attempt failed")

	return failureResult(attempt, cause), nil
}

// failFromProviderErr classifies a pre-capture provider error into the
// matching failure reason.
func (o *Orchestrator) failFromProviderErr(ctx context.Context, attempt *domain.BookingAttempt, err error) (*Result, error) {
	switch {
	case errors.Is(err, domain.ErrOfferExpired), errors.Is(err, domain.ErrOfferNotFound):
		return o.fail(ctx, attempt, domain.FailureOfferInvalid, err)
	default:
		return o.fail(ctx, attempt, domain.FailureProvider, err)
	}
}

// transition persists a state change. Attempts only ever move forward;
// verifying_offer is re-enterable for post-capture retries.
func (o *Orchestrator) transition(ctx context.Context, attempt *domain.BookingAttempt, next domain.AttemptState) error {
	attempt.State = next
	attempt.UpdatedAt = o.now()
	if err := o.attempts.Update(ctx, attempt); err != nil {
		return storeError(err, attempt.PaymentCaptured)
	}
	return nil
}

func storeError(err error, captured bool) error {
	be := domain.NewBookingError(domain.ErrUpstreamUnavailable,
		"failed to persist booking attempt state: "+err.Error(), "STORE_ERROR")
	be.PaymentCaptured = captured
	return be
}
