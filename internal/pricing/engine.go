// Package pricing computes the chargeable amount for a booking attempt and
// guards it against provider limits. Everything here is pure computation;
// no I/O happens before the guard has passed.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// MarkupRule prices the fee added on top of a provider-quoted ancillary
// amount: markup = Fixed + amount * Rate.
type MarkupRule struct {
	Fixed decimal.Decimal
	Rate  decimal.Decimal
}

// Apply computes the markup for a raw provider amount at full precision.
func (r MarkupRule) Apply(amount decimal.Decimal) decimal.Decimal {
	return r.Fixed.Add(amount.Mul(r.Rate))
}

// Config holds the markup table and per-passenger fees. The table is fixed
// at startup and read-only afterwards.
type Config struct {
	// MarkupRules is keyed by ancillary kind. Kinds without an entry fall
	// back to DefaultRate with no fixed component.
	MarkupRules map[domain.AncillaryKind]MarkupRule

	// DefaultRate applies to ancillary kinds missing from MarkupRules.
	DefaultRate decimal.Decimal

	// PerPassengerMarkup and PerPassengerServiceFee are flat amounts
	// multiplied by passenger count, not per ancillary.
	PerPassengerMarkup     decimal.Decimal
	PerPassengerServiceFee decimal.Decimal
}

// DefaultConfig returns the production markup table.
func DefaultConfig() Config {
	return Config{
		MarkupRules: map[domain.AncillaryKind]MarkupRule{
			domain.AncillaryBaggage: {
				Fixed: decimal.NewFromInt(1),
				Rate:  decimal.RequireFromString("0.09"),
			},
			domain.AncillarySeat: {
				Fixed: decimal.RequireFromString("0.50"),
				Rate:  decimal.RequireFromString("0.07"),
			},
			domain.AncillaryCancellationProtection: {
				Fixed: decimal.Zero,
				Rate:  decimal.RequireFromString("0.12"),
			},
		},
		DefaultRate:            decimal.RequireFromString("0.09"),
		PerPassengerMarkup:     decimal.NewFromInt(2),
		PerPassengerServiceFee: decimal.NewFromInt(1),
	}
}

// Engine is the single source of truth for markup. It always receives raw
// provider amounts; input that claims to be pre-marked-up is a caller bug
// and is rejected, never reversed or special-cased.
type Engine struct {
	cfg Config
}

// NewEngine creates a pricing engine with the given markup configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute produces an itemized breakdown and the chargeable grand total for
// a base fare, a passenger count and a list of ancillary selections.
// Line items and intermediate sums keep full precision; rounding to the
// currency's minor unit happens exactly once, at the grand total.
func (e *Engine) Compute(base domain.Money, passengerCount int, ancillaries []domain.AncillarySelection) (*domain.PricingBreakdown, error) {
	if err := validateInput(base, passengerCount, ancillaries); err != nil {
		return nil, err
	}

	exp := domain.CurrencyExponent(base.Currency)
	paxCount := decimal.NewFromInt(int64(passengerCount))

	markupTotal := e.cfg.PerPassengerMarkup.Mul(paxCount)
	serviceTotal := e.cfg.PerPassengerServiceFee.Mul(paxCount)

	lineItems := make([]domain.AncillaryLineItem, 0, len(ancillaries))
	ancillaryTotal := decimal.Zero
	for _, sel := range ancillaries {
		markup := e.ruleFor(sel.Kind).Apply(sel.ProviderAmount.Amount)
		total := sel.ProviderAmount.Amount.Add(markup)
		lineItems = append(lineItems, domain.AncillaryLineItem{
			ServiceID:      sel.ServiceID,
			Kind:           sel.Kind,
			OriginalAmount: sel.ProviderAmount.Amount,
			Markup:         markup,
			Total:          total,
		})
		ancillaryTotal = ancillaryTotal.Add(total)
	}

	grandTotal := base.Amount.
		Add(markupTotal).
		Add(serviceTotal).
		Add(ancillaryTotal).
		Round(exp)

	return &domain.PricingBreakdown{
		BaseAmount:             base.Amount,
		PerPassengerServiceFee: e.cfg.PerPassengerServiceFee,
		PerPassengerMarkup:     e.cfg.PerPassengerMarkup,
		PassengerCount:         passengerCount,
		AncillaryLineItems:     lineItems,
		MarkupTotal:            markupTotal,
		ServiceTotal:           serviceTotal,
		AncillaryTotal:         ancillaryTotal,
		GrandTotal:             grandTotal,
		Currency:               base.Currency,
	}, nil
}

func (e *Engine) ruleFor(kind domain.AncillaryKind) MarkupRule {
	if rule, ok := e.cfg.MarkupRules[kind]; ok {
		return rule
	}
	return MarkupRule{Fixed: decimal.Zero, Rate: e.cfg.DefaultRate}
}

func validateInput(base domain.Money, passengerCount int, ancillaries []domain.AncillarySelection) error {
	if base.Currency == "" {
		return domain.NewBookingError(domain.ErrInvalidInput,
			"base currency is required", "VALIDATION_ERROR")
	}
	if base.IsNegative() {
		return domain.NewBookingError(domain.ErrInvalidInput,
			"base amount must not be negative", "VALIDATION_ERROR")
	}
	if passengerCount < 1 {
		return domain.NewBookingError(domain.ErrInvalidInput,
			"passenger count must be at least 1", "VALIDATION_ERROR")
	}
	for _, sel := range ancillaries {
		if sel.MarkupIncluded {
			return domain.NewBookingError(domain.ErrInvalidInput,
				fmt.Sprintf("ancillary %s claims markup already applied; raw provider amounts are required", sel.ServiceID),
				"MARKUP_ALREADY_APPLIED")
		}
		if sel.ProviderAmount.IsNegative() {
			return domain.NewBookingError(domain.ErrInvalidInput,
				fmt.Sprintf("ancillary %s has a negative amount", sel.ServiceID),
				"VALIDATION_ERROR")
		}
		if sel.ProviderAmount.Currency != base.Currency {
			return domain.NewBookingError(domain.ErrInvalidInput,
				fmt.Sprintf("ancillary %s currency %s does not match base currency %s",
					sel.ServiceID, sel.ProviderAmount.Currency, base.Currency),
				"CURRENCY_MISMATCH")
		}
	}
	return nil
}
