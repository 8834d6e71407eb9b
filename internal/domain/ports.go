// Package domain contains the core business entities and interfaces for the
// booking service.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DistributionAPI is the port to the external travel-distribution provider.
// The domain defines what it needs; internal/platform/travelapi provides the
// HTTP implementation. Every call takes a context because every call crosses
// the network.
type DistributionAPI interface {
	// GetOffer performs a live fetch of an offer. Returns ErrOfferNotFound
	// when the id no longer resolves and ErrUpstreamUnavailable for
	// transient failures.
	GetOffer(ctx context.Context, offerID string) (*Offer, error)

	// ListAvailableServices lists the ancillaries purchasable for an offer.
	ListAvailableServices(ctx context.Context, offerID string) ([]AncillaryService, error)

	// CreatePaymentIntent opens a new intent for the given amount. The
	// idempotencyKey is the BookingAttempt id; replays with the same key
	// must not create a second intent.
	CreatePaymentIntent(ctx context.Context, idempotencyKey string, amount Money, metadata map[string]string) (*PaymentIntent, error)

	// UpdatePaymentIntent changes the amount/metadata of an existing,
	// unconfirmed intent in place.
	UpdatePaymentIntent(ctx context.Context, intentID string, amount Money, metadata map[string]string) (*PaymentIntent, error)

	// ConfirmPaymentIntent submits payment-method details against an
	// existing intent and reports the resulting status.
	ConfirmPaymentIntent(ctx context.Context, intentID string, method PaymentMethod) (*PaymentIntent, error)

	// CreateOrder submits the booking to the provider. Returns
	// ErrOfferExpired/ErrOfferNotFound for offer-rejection errors and
	// ErrOrderCreation for everything else the provider rejects.
	CreateOrder(ctx context.Context, idempotencyKey string, req OrderRequest) (*Order, error)
}

// AncillaryService is one purchasable add-on as listed by the provider.
type AncillaryService struct {
	ID             string        `json:"id"`
	Kind           AncillaryKind `json:"kind"`
	ProviderAmount Money         `json:"provider_amount"`
	PassengerRef   string        `json:"passenger_ref,omitempty"`
	SegmentRef     string        `json:"segment_ref,omitempty"`
}

// PaymentMethod carries opaque payment-method details through to the
// provider. The service never sees raw card numbers; Token is the
// provider-issued method token, ChallengeResult the completed step-up
// challenge on resume.
type PaymentMethod struct {
	Token           string `json:"token,omitempty"`
	ChallengeResult string `json:"challenge_result,omitempty"`
}

// OrderRequest is the payload for creating a provider order.
type OrderRequest struct {
	SelectedOfferIDs []string          `json:"selected_offer_ids"`
	Passengers       []Passenger       `json:"passengers"`
	PaymentIntentID  string            `json:"payment_intent_id"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// AttemptRepository persists booking attempts. Implementations must make
// ClaimOrderCreation safe under concurrent callers: exactly one claim per
// attempt may succeed.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *BookingAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*BookingAttempt, error)
	Update(ctx context.Context, attempt *BookingAttempt) error

	// ClaimOrderCreation transitions the attempt into creating_order only
	// if it is currently in verifying_offer. Returns ErrDuplicateOrder when
	// another caller already claimed it.
	ClaimOrderCreation(ctx context.Context, id uuid.UUID) error

	// ListStale returns ids of non-terminal, uncaptured attempts whose
	// expiry passed. Used by the background expirer.
	ListStale(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ReconciliationRepository persists stranded-payment records.
type ReconciliationRepository interface {
	Create(ctx context.Context, rec *PaymentReconciliation) error
	ListUnresolved(ctx context.Context, limit int) ([]PaymentReconciliation, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
}

// OfferCache is a short-TTL display cache for offer payloads. It is used by
// the browse endpoints only; money-moving decisions always bypass it.
type OfferCache interface {
	Get(ctx context.Context, offerID string) (*Offer, error)
	Set(ctx context.Context, offer *Offer, ttl time.Duration) error
	Invalidate(ctx context.Context, offerID string) error
}

// RateLimiter bounds request rates per client key.
type RateLimiter interface {
	// Allow reports whether the key has budget left in the current window.
	Allow(ctx context.Context, key string) (bool, error)
}
