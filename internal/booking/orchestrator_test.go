package booking_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/booking"
	"github.com/skyroute/skyroute-bookings/internal/domain"
	"github.com/skyroute/skyroute-bookings/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func liveOffer() *domain.Offer {
	return &domain.Offer{
		ID:          "off_1",
		TotalAmount: eur("450.00"),
		ExpiresAt:   fixedNow.Add(20 * time.Minute),
	}
}

func eur(amount string) domain.Money {
	return domain.Money{Amount: decimal.RequireFromString(amount), Currency: "EUR"}
}

type testEnv struct {
	api      *fakeAPI
	attempts *memAttempts
	recs     *memReconciliations
	orch     *booking.Orchestrator
}

func newTestEnv(t *testing.T, api *fakeAPI) *testEnv {
	t.Helper()
	logger := testLogger()
	now := func() time.Time { return fixedNow }

	attempts := newMemAttempts()
	recs := &memReconciliations{}
	orch := booking.NewOrchestrator(
		pricing.NewEngine(pricing.DefaultConfig()),
		pricing.NewAmountGuard(pricing.DefaultGuardConfig(), logger),
		booking.NewOfferVerifier(api, now, logger),
		booking.NewPaymentIntentManager(api, logger),
		booking.NewPaymentConfirmer(api, logger),
		booking.NewOrderCreator(api, logger),
		attempts,
		recs,
		30*time.Minute,
		now,
		logger,
	)
	return &testEnv{api: api, attempts: attempts, recs: recs, orch: orch}
}

func startRequest() booking.StartRequest {
	return booking.StartRequest{
		OfferID:    "off_1",
		BaseAmount: eur("450.00"),
		Passengers: []domain.Passenger{
			{GivenName: "Amelia", FamilyName: "Ward", Email: "amelia@example.com"},
			{GivenName: "Noah", FamilyName: "Ward", Email: "noah@example.com"},
		},
		Ancillaries: []domain.AncillarySelection{
			{ServiceID: "ase_bag", Kind: domain.AncillaryBaggage, ProviderAmount: eur("20.00")},
		},
		Payment: domain.PaymentMethod{Token: "pm_tok_1"},
	}
}

func TestStart_CompletesBooking(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, domain.StateCompleted, res.Status)
	assert.Equal(t, "SKYREF1", res.BookingReference)
	require.NotNil(t, res.Order)
	assert.True(t, res.PaymentCaptured)

	// Offer verified before the intent and again before the order.
	assert.Equal(t, 2, env.api.getOfferCalls)
	assert.Equal(t, 1, env.api.createIntentCalls)
	assert.Equal(t, 1, env.api.confirmCalls)
	assert.Equal(t, 1, env.api.createOrderCalls)

	attempt, err := env.attempts.GetByID(context.Background(), res.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, attempt.State)
	assert.True(t, attempt.Breakdown.GrandTotal.Equal(decimal.RequireFromString("478.80")))
}

func TestStart_AmountLimit_NoProviderContact(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	req := startRequest()
	req.BaseAmount = eur("6000.00")

	offer := liveOffer()
	offer.TotalAmount = eur("6000.00")
	env.api.offers[offer.ID] = offer

	res, err := env.orch.Start(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, domain.StateFailed, res.Status)
	assert.Equal(t, domain.FailureAmountLimit, res.FailureReason)
	assert.Equal(t, "AMOUNT_EXCEEDS_LIMIT", res.Error.Code)
	assert.False(t, res.PaymentCaptured)

	// The guard fires before any network call.
	assert.Zero(t, env.api.getOfferCalls)
	assert.Zero(t, env.api.createIntentCalls)
}

func TestStart_InvalidInput_FailsValidation(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	req := startRequest()
	req.Ancillaries[0].MarkupIncluded = true

	res, err := env.orch.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.FailureValidation, res.FailureReason)
	assert.Equal(t, "MARKUP_ALREADY_APPLIED", res.Error.Code)
	assert.Zero(t, env.api.getOfferCalls)
}

func TestStart_OfferPriceChanged(t *testing.T) {
	offer := liveOffer()
	offer.TotalAmount = eur("460.00")
	env := newTestEnv(t, newFakeAPI(offer))

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, res.Status)
	assert.Equal(t, "OFFER_PRICE_CHANGED", res.Error.Code)
	assert.Zero(t, env.api.createIntentCalls)
}

func TestStart_OfferExpiredBeforeIntent(t *testing.T) {
	offer := liveOffer()
	offer.ExpiresAt = fixedNow.Add(-time.Second)
	env := newTestEnv(t, newFakeAPI(offer))

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.FailureOfferInvalid, res.FailureReason)
	assert.False(t, res.PaymentCaptured)
	assert.Zero(t, env.api.createIntentCalls)
}

func TestStart_PaymentDeclined(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.confirmFn = func(_ int, _ domain.PaymentMethod) (*domain.PaymentIntent, error) {
		return &domain.PaymentIntent{ID: "pit_1", Status: domain.IntentFailed}, nil
	}
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.FailurePayment, res.FailureReason)
	assert.Equal(t, "PAYMENT_FAILED", res.Error.Code)
	assert.False(t, res.PaymentCaptured)
	assert.Zero(t, env.api.createOrderCalls)
}

func TestStart_ProviderFailureIsRetryableWithSameAttemptID(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.intentErr = domain.ErrUpstreamUnavailable
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.FailureProvider, res.FailureReason)
	assert.False(t, res.PaymentCaptured)
	assert.Equal(t, 1, api.createIntentCalls)

	// The outage clears; the caller re-submits under the same attempt id
	// and the saga runs again from pricing.
	api.intentErr = nil
	req := startRequest()
	req.AttemptID = res.AttemptID

	retried, err := env.orch.Start(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, retried.Success)
	assert.Equal(t, domain.StateCompleted, retried.Status)
	assert.Equal(t, res.AttemptID, retried.AttemptID)
	assert.Equal(t, 2, api.createIntentCalls)
	assert.Equal(t, 1, api.confirmCalls)
}

func TestStart_RetryAfterConfirmOutage_ReusesIntent(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.confirmFn = func(call int, _ domain.PaymentMethod) (*domain.PaymentIntent, error) {
		if call == 1 {
			return nil, domain.ErrUpstreamUnavailable
		}
		return &domain.PaymentIntent{ID: "pit_1", Status: domain.IntentSucceeded}, nil
	}
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, domain.FailureProvider, res.FailureReason)

	req := startRequest()
	req.AttemptID = res.AttemptID

	retried, err := env.orch.Start(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, retried.Success)
	// The intent opened before the outage is updated in place, never
	// recreated.
	assert.Equal(t, 1, api.createIntentCalls)
	assert.Equal(t, 1, api.updateIntentCalls)
	assert.Equal(t, 2, api.confirmCalls)
}

func TestStart_DeclinedPaymentReplaysOutcome(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.confirmFn = func(_ int, _ domain.PaymentMethod) (*domain.PaymentIntent, error) {
		return &domain.PaymentIntent{ID: "pit_1", Status: domain.IntentFailed}, nil
	}
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, domain.FailurePayment, res.FailureReason)

	// A decline is a provider verdict, not an outage: the same attempt id
	// returns the recorded outcome instead of re-charging.
	req := startRequest()
	req.AttemptID = res.AttemptID

	replayed, err := env.orch.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.FailurePayment, replayed.FailureReason)
	assert.Equal(t, 1, api.confirmCalls)
}

func TestStart_OfferExpiresDuringChallenge_PaymentFlaggedForReconciliation(t *testing.T) {
	// The offer is live at intent time but expires before the post-capture
	// re-verification.
	offer := liveOffer()
	api := newFakeAPI(offer)
	env := newTestEnv(t, api)

	api.confirmFn = func(_ int, _ domain.PaymentMethod) (*domain.PaymentIntent, error) {
		// Capture succeeds, and at that moment the offer goes stale.
		expired := *offer
		expired.ExpiresAt = fixedNow.Add(-time.Second)
		api.mu.Lock()
		api.offers[offer.ID] = &expired
		api.mu.Unlock()
		return &domain.PaymentIntent{ID: "pit_1", Status: domain.IntentSucceeded}, nil
	}

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, res.Status)
	assert.Equal(t, domain.FailureOfferInvalid, res.FailureReason)
	assert.True(t, res.PaymentCaptured, "captured payment must never be silently lost")
	assert.Zero(t, env.api.createOrderCalls)

	rows, err := env.recs.ListUnresolved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pit_1", rows[0].PaymentIntentID)
	assert.True(t, rows[0].Amount.Amount.Equal(decimal.RequireFromString("478.80")))
}

func TestStart_RequiresAction_SuspendsAndResumes(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.confirmFn = func(call int, method domain.PaymentMethod) (*domain.PaymentIntent, error) {
		if call == 1 {
			return &domain.PaymentIntent{
				ID:           "pit_1",
				Status:       domain.IntentRequiresAction,
				ClientSecret: "secret_1",
			}, nil
		}
		if method.ChallengeResult == "" {
			return nil, domain.NewBookingError(domain.ErrPaymentFailed, "challenge missing", "PAYMENT_FAILED")
		}
		return &domain.PaymentIntent{ID: "pit_1", Status: domain.IntentSucceeded}, nil
	}
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, domain.StateAwaitingAction, res.Status)
	assert.True(t, res.RequiresAction)
	assert.Equal(t, "secret_1", res.ClientSecret)
	assert.False(t, res.PaymentCaptured)

	intentCallsBeforeResume := env.api.createIntentCalls

	resumed, err := env.orch.Resume(context.Background(), res.AttemptID, "challenge_ok")
	require.NoError(t, err)

	assert.True(t, resumed.Success)
	assert.Equal(t, domain.StateCompleted, resumed.Status)
	// Resume re-confirms against the same intent: no re-pricing, no second
	// intent.
	assert.Equal(t, intentCallsBeforeResume, env.api.createIntentCalls)
	assert.Zero(t, env.api.updateIntentCalls)
	assert.Equal(t, 2, env.api.confirmCalls)
}

func TestResume_NotAwaitingAction(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.True(t, res.Success)

	// Resuming a finished attempt replays its recorded outcome.
	replayed, err := env.orch.Resume(context.Background(), res.AttemptID, "challenge_ok")
	require.NoError(t, err)
	assert.True(t, replayed.Success)
	assert.Equal(t, 1, env.api.createOrderCalls)
}

func TestStart_ReplayCompletedAttempt(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	first, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.True(t, first.Success)

	req := startRequest()
	req.AttemptID = first.AttemptID
	second, err := env.orch.Start(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, first.BookingReference, second.BookingReference)
	// No second round of provider calls.
	assert.Equal(t, 2, env.api.getOfferCalls)
	assert.Equal(t, 1, env.api.createIntentCalls)
	assert.Equal(t, 1, env.api.createOrderCalls)
}

func TestOrderCreationFails_RetryDoesNotRecharge(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.orderErr = domain.ErrOrderCreation
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, res.Status)
	assert.Equal(t, domain.FailureOrderCreation, res.FailureReason)
	assert.True(t, res.PaymentCaptured)

	// Provider recovers; the retry reuses the captured intent.
	api.mu.Lock()
	api.orderErr = nil
	api.mu.Unlock()

	retried, err := env.orch.RetryOrder(context.Background(), res.AttemptID)
	require.NoError(t, err)

	assert.True(t, retried.Success)
	assert.Equal(t, domain.StateCompleted, retried.Status)
	assert.Equal(t, 1, env.api.confirmCalls, "retry must not re-charge")
	assert.Equal(t, 2, env.api.createOrderCalls)
}

func TestConcurrentOrderCreation_AtMostOneOrder(t *testing.T) {
	api := newFakeAPI(liveOffer())
	env := newTestEnv(t, api)

	// Seed an attempt that is captured and ready for order creation.
	attempt := &domain.BookingAttempt{
		ID:              uuid.New(),
		OfferID:         "off_1",
		State:           domain.StateVerifyingOffer,
		PaymentIntentID: "pit_1",
		PaymentCaptured: true,
		Amount:          eur("478.80"),
		Breakdown: &domain.PricingBreakdown{
			GrandTotal: decimal.RequireFromString("478.80"),
			Currency:   "EUR",
		},
		ExpiresAt: fixedNow.Add(30 * time.Minute),
	}
	require.NoError(t, env.attempts.Create(context.Background(), attempt))

	var wg sync.WaitGroup
	results := make([]*booking.Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.orch.RetryOrder(context.Background(), attempt.ID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, env.api.createOrderCalls, "exactly one provider order per attempt")

	var completed int
	for i := 0; i < 2; i++ {
		if errs[i] == nil && results[i] != nil && results[i].Status == domain.StateCompleted {
			completed++
		}
	}
	assert.GreaterOrEqual(t, completed, 1)

	final, err := env.attempts.GetByID(context.Background(), attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, final.State)
}

func TestAbandon_BeforeCapture(t *testing.T) {
	api := newFakeAPI(liveOffer())
	api.confirmFn = func(_ int, _ domain.PaymentMethod) (*domain.PaymentIntent, error) {
		return &domain.PaymentIntent{ID: "pit_1", Status: domain.IntentRequiresAction, ClientSecret: "s"}, nil
	}
	env := newTestEnv(t, api)

	res, err := env.orch.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingAction, res.Status)

	abandoned, err := env.orch.Abandon(context.Background(), res.AttemptID)
	require.NoError(t, err)

	assert.Equal(t, domain.FailureAbandoned, abandoned.FailureReason)
	assert.False(t, abandoned.PaymentCaptured)

	rows, err := env.recs.ListUnresolved(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "no side effects to reconcile before capture")
}

func TestAbandon_AfterCapture_RecordsReconciliation(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	attempt := &domain.BookingAttempt{
		ID:              uuid.New(),
		OfferID:         "off_1",
		State:           domain.StateVerifyingOffer,
		PaymentIntentID: "pit_1",
		PaymentCaptured: true,
		Amount:          eur("478.80"),
		ExpiresAt:       fixedNow.Add(30 * time.Minute),
	}
	require.NoError(t, env.attempts.Create(context.Background(), attempt))

	res, err := env.orch.Abandon(context.Background(), attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.FailureAbandoned, res.FailureReason)
	assert.True(t, res.PaymentCaptured)

	rows, err := env.recs.ListUnresolved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, attempt.ID, rows[0].AttemptID)
}

func TestPrice_PreviewOnly(t *testing.T) {
	env := newTestEnv(t, newFakeAPI(liveOffer()))

	breakdown, err := env.orch.Price(eur("450.00"), 2, []domain.AncillarySelection{
		{ServiceID: "ase_bag", Kind: domain.AncillaryBaggage, ProviderAmount: eur("20.00")},
	})
	require.NoError(t, err)

	assert.True(t, breakdown.GrandTotal.Equal(decimal.RequireFromString("478.80")))
	assert.Zero(t, env.api.getOfferCalls)
}
