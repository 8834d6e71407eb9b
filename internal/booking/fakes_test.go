package booking_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// fakeAPI is an in-memory distribution provider with call counters.
type fakeAPI struct {
	mu sync.Mutex

	offers   map[string]*domain.Offer
	offerErr error

	intent    *domain.PaymentIntent
	intentErr error

	confirmFn func(call int, method domain.PaymentMethod) (*domain.PaymentIntent, error)

	order    *domain.Order
	orderErr error

	getOfferCalls     int
	createIntentCalls int
	updateIntentCalls int
	confirmCalls      int
	createOrderCalls  int
}

func newFakeAPI(offer *domain.Offer) *fakeAPI {
	api := &fakeAPI{offers: map[string]*domain.Offer{}}
	if offer != nil {
		api.offers[offer.ID] = offer
	}
	api.intent = &domain.PaymentIntent{
		ID:           "pit_1",
		Status:       domain.IntentRequiresConfirmation,
		ClientSecret: "secret_1",
	}
	api.order = &domain.Order{
		ID:               "ord_1",
		BookingReference: "SKYREF1",
		CreatedAt:        time.Now(),
	}
	return api
}

func (f *fakeAPI) GetOffer(_ context.Context, offerID string) (*domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOfferCalls++
	if f.offerErr != nil {
		return nil, f.offerErr
	}
	offer, ok := f.offers[offerID]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	cp := *offer
	return &cp, nil
}

func (f *fakeAPI) ListAvailableServices(_ context.Context, _ string) ([]domain.AncillaryService, error) {
	return nil, nil
}

func (f *fakeAPI) CreatePaymentIntent(_ context.Context, _ string, amount domain.Money, _ map[string]string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createIntentCalls++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	cp := *f.intent
	cp.Amount = amount
	return &cp, nil
}

func (f *fakeAPI) UpdatePaymentIntent(_ context.Context, intentID string, amount domain.Money, _ map[string]string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateIntentCalls++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	cp := *f.intent
	cp.ID = intentID
	cp.Amount = amount
	return &cp, nil
}

func (f *fakeAPI) ConfirmPaymentIntent(_ context.Context, intentID string, method domain.PaymentMethod) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	confirmFn := f.confirmFn
	f.confirmCalls++
	call := f.confirmCalls
	f.mu.Unlock()

	if confirmFn != nil {
		return confirmFn(call, method)
	}
	return &domain.PaymentIntent{ID: intentID, Status: domain.IntentSucceeded}, nil
}

func (f *fakeAPI) CreateOrder(_ context.Context, _ string, req domain.OrderRequest) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createOrderCalls++
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	cp := *f.order
	cp.Passengers = req.Passengers
	return &cp, nil
}

// memAttempts is a thread-safe in-memory attempt repository. It stores
// copies so tests cannot alias the orchestrator's working state.
type memAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]domain.BookingAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: map[uuid.UUID]domain.BookingAttempt{}}
}

func (m *memAttempts) Create(_ context.Context, attempt *domain.BookingAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *memAttempts) GetByID(_ context.Context, id uuid.UUID) (*domain.BookingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	cp := attempt
	return &cp, nil
}

func (m *memAttempts) Update(_ context.Context, attempt *domain.BookingAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *memAttempts) ClaimOrderCreation(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.State != domain.StateVerifyingOffer {
		return domain.ErrDuplicateOrder
	}
	attempt.State = domain.StateCreatingOrder
	m.attempts[id] = attempt
	return nil
}

func (m *memAttempts) ListStale(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, attempt := range m.attempts {
		if len(ids) >= limit {
			break
		}
		if !attempt.State.Terminal() && !attempt.PaymentCaptured && attempt.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// memReconciliations is an in-memory reconciliation store.
type memReconciliations struct {
	mu   sync.Mutex
	rows []domain.PaymentReconciliation
}

func (m *memReconciliations) Create(_ context.Context, rec *domain.PaymentReconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *rec)
	return nil
}

func (m *memReconciliations) ListUnresolved(_ context.Context, limit int) ([]domain.PaymentReconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentReconciliation
	for _, r := range m.rows {
		if len(out) >= limit {
			break
		}
		if !r.Resolved {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReconciliations) MarkResolved(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Resolved = true
			now := time.Now()
			m.rows[i].ResolvedAt = &now
		}
	}
	return nil
}
