// Package domain contains the core business entities and interfaces for the
// booking service. This is the innermost layer - it has no dependencies on
// external frameworks or infrastructure.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money is a major-unit monetary amount in a specific currency.
// Provider payloads that express amounts in minor units are converted at the
// client boundary; nothing past that boundary ever guesses units from
// magnitude.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money from a major-unit decimal string such as "450.00".
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: currency}, nil
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Offer is a priced, time-limited quote from the distribution provider.
// Immutable once fetched; it must be re-fetched (never served from cache)
// before any money-moving decision, since price and availability can change
// between display and checkout.
type Offer struct {
	ID                string    `json:"id"`
	TotalAmount       Money     `json:"total_amount"`
	ExpiresAt         time.Time `json:"expires_at"`
	Slices            []Slice   `json:"slices"`
	AvailableServices []string  `json:"available_services"`
}

// Expired reports whether the offer is past its expiry at the given instant.
func (o *Offer) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Slice is one direction of travel within an offer. Opaque to pricing.
type Slice struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Departure   time.Time `json:"departure"`
	Arrival     time.Time `json:"arrival"`
	Segments    []Segment `json:"segments"`
}

// Segment is a single flight leg within a slice.
type Segment struct {
	ID               string `json:"id"`
	MarketingCarrier string `json:"marketing_carrier"`
	FlightNumber     string `json:"flight_number"`
}

// AncillaryKind classifies an optional paid add-on.
type AncillaryKind string

const (
	AncillaryBaggage                AncillaryKind = "baggage"
	AncillarySeat                   AncillaryKind = "seat"
	AncillaryCancellationProtection AncillaryKind = "cancellation_protection"
	AncillaryOther                  AncillaryKind = "other"
)

// AncillarySelection is one add-on picked by the storefront. It is untrusted
// input: ProviderAmount must be the raw provider quote, and the pricing
// engine re-derives every markup itself.
type AncillarySelection struct {
	ServiceID      string        `json:"service_id"`
	Kind           AncillaryKind `json:"kind"`
	ProviderAmount Money         `json:"provider_amount"`
	PassengerRef   string        `json:"passenger_ref,omitempty"`
	SegmentRef     string        `json:"segment_ref,omitempty"`
	// MarkupIncluded is a contract violation when set: callers must always
	// send raw provider amounts. The engine rejects it rather than trying
	// to reverse an unknown markup.
	MarkupIncluded bool `json:"markup_included,omitempty"`
}

// AncillaryLineItem is one priced add-on inside a breakdown. It carries both
// the original provider amount and the markup so the breakdown is auditable
// and reversible.
type AncillaryLineItem struct {
	ServiceID      string          `json:"service_id"`
	Kind           AncillaryKind   `json:"kind"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Markup         decimal.Decimal `json:"markup"`
	Total          decimal.Decimal `json:"total"`
}

// PricingBreakdown is the itemized result of pricing one booking attempt.
// Invariant: GrandTotal == BaseAmount + MarkupTotal + ServiceTotal +
// AncillaryTotal to 2 decimal places.
type PricingBreakdown struct {
	BaseAmount             decimal.Decimal     `json:"base_amount"`
	PerPassengerServiceFee decimal.Decimal     `json:"per_passenger_service_fee"`
	PerPassengerMarkup     decimal.Decimal     `json:"per_passenger_markup"`
	PassengerCount         int                 `json:"passenger_count"`
	AncillaryLineItems     []AncillaryLineItem `json:"ancillary_line_items"`
	MarkupTotal            decimal.Decimal     `json:"markup_total"`
	ServiceTotal           decimal.Decimal     `json:"service_total"`
	AncillaryTotal         decimal.Decimal     `json:"ancillary_total"`
	GrandTotal             decimal.Decimal     `json:"grand_total"`
	Currency               string              `json:"currency"`
}

// Total returns the chargeable amount as Money.
func (b *PricingBreakdown) Total() Money {
	return Money{Amount: b.GrandTotal, Currency: b.Currency}
}

// IntentStatus is the provider-side lifecycle of a payment intent.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentFailed                IntentStatus = "failed"
)

// PaymentIntent is the provider-side authorization-in-progress for a
// specific amount. Created once per booking attempt; the amount is updated
// in place, never recreated, when the selection changes before confirmation.
type PaymentIntent struct {
	ID           string       `json:"id"`
	Amount       Money        `json:"amount"`
	Status       IntentStatus `json:"status"`
	ClientSecret string       `json:"client_secret"`
}

// Passenger is the traveler data submitted with an order.
type Passenger struct {
	ID          string `json:"id,omitempty"`
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	DateOfBirth string `json:"date_of_birth"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// Order is the provider's binding confirmation of a booking, created only
// after payment capture succeeds.
type Order struct {
	ID               string      `json:"id"`
	BookingReference string      `json:"booking_reference"`
	Passengers       []Passenger `json:"passengers"`
	TotalAmount      Money       `json:"total_amount"`
	CreatedAt        time.Time   `json:"created_at"`
}

// AttemptState is a position in the booking state machine. States advance
// monotonically; failed is reachable from every non-terminal state.
type AttemptState string

const (
	StatePricing        AttemptState = "pricing"
	StateIntentPending  AttemptState = "intent_pending"
	StateConfirming     AttemptState = "confirming"
	StateAwaitingAction AttemptState = "awaiting_action"
	StateVerifyingOffer AttemptState = "verifying_offer"
	StateCreatingOrder  AttemptState = "creating_order"
	StateCompleted      AttemptState = "completed"
	StateFailed         AttemptState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s AttemptState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureReason classifies a terminal failure for the presentation layer.
type FailureReason string

const (
	FailureValidation    FailureReason = "validation"
	FailureAmountLimit   FailureReason = "amount_limit"
	FailureProvider      FailureReason = "provider"
	FailurePayment       FailureReason = "payment"
	FailureOfferInvalid  FailureReason = "offer_invalid"
	FailureOrderCreation FailureReason = "order_creation"
	FailureAbandoned     FailureReason = "abandoned"
	FailureExpired       FailureReason = "expired"
)

// BookingAttempt is the aggregate tracking one end-to-end attempt to convert
// an offer into an order. It binds one offer id, one breakdown, one payment
// intent id and the passenger list, and is the idempotency anchor for the
// whole saga.
type BookingAttempt struct {
	ID               uuid.UUID         `json:"id"`
	OfferID          string            `json:"offer_id"`
	State            AttemptState      `json:"state"`
	FailureReason    FailureReason     `json:"failure_reason,omitempty"`
	PaymentIntentID  string            `json:"payment_intent_id,omitempty"`
	PaymentCaptured  bool              `json:"payment_captured"`
	Passengers       []Passenger       `json:"passengers"`
	Breakdown        *PricingBreakdown `json:"breakdown,omitempty"`
	Amount           Money             `json:"amount"`
	OrderID          string            `json:"order_id,omitempty"`
	BookingReference string            `json:"booking_reference,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// PaymentReconciliation records an authorized-but-unbooked payment so an
// operator or out-of-core job can void or refund it. The saga never discards
// knowledge that money moved.
type PaymentReconciliation struct {
	ID              uuid.UUID  `json:"id"`
	AttemptID       uuid.UUID  `json:"attempt_id"`
	PaymentIntentID string     `json:"payment_intent_id"`
	Amount          Money      `json:"amount"`
	Reason          string     `json:"reason"`
	Resolved        bool       `json:"resolved"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}
