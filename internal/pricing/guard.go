package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// GuardConfig holds the amount ceiling and the static FX table used to
// normalize amounts into the reference currency. Rates are read-only after
// startup.
type GuardConfig struct {
	// ReferenceCurrency is the currency the ceiling is expressed in.
	ReferenceCurrency string

	// Ceiling is the maximum accepted charge, in the reference currency.
	Ceiling decimal.Decimal

	// Rates maps a currency code to its value in the reference currency.
	// The reference currency itself does not need an entry.
	Rates map[string]decimal.Decimal

	// PlausibilityThreshold triggers a warning log for suspiciously large
	// major-unit amounts that look like unconverted minor units. Amounts are
	// typed as major units everywhere, so this only ever logs.
	PlausibilityThreshold decimal.Decimal
}

// DefaultGuardConfig returns the production limits: a 5000 EUR-equivalent
// ceiling with a small static rate table.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		ReferenceCurrency: "EUR",
		Ceiling:           decimal.NewFromInt(5000),
		Rates: map[string]decimal.Decimal{
			"USD": decimal.RequireFromString("0.92"),
			"GBP": decimal.RequireFromString("1.17"),
			"CHF": decimal.RequireFromString("1.04"),
			"JPY": decimal.RequireFromString("0.0062"),
		},
		PlausibilityThreshold: decimal.NewFromInt(100000),
	}
}

// AmountGuard validates a prospective charge against provider currency
// limits. It runs before any provider call; a failure here is terminal for
// the current attempt and surfaced as a user-actionable validation error.
type AmountGuard struct {
	cfg    GuardConfig
	logger *logrus.Logger
}

// NewAmountGuard creates a guard with the given limits.
func NewAmountGuard(cfg GuardConfig, logger *logrus.Logger) *AmountGuard {
	return &AmountGuard{cfg: cfg, logger: logger}
}

// Check converts the amount to the reference currency and compares it
// against the ceiling.
func (g *AmountGuard) Check(amount domain.Money) error {
	if amount.IsNegative() {
		return domain.NewBookingError(domain.ErrInvalidInput,
			"amount must not be negative", "VALIDATION_ERROR")
	}

	if amount.Amount.GreaterThan(g.cfg.PlausibilityThreshold) {
		// Historically minor-unit amounts leaked in here and were guessed
		// from magnitude. Amounts are typed as major units now; anything
		// this large is worth a look but is trusted as-is.
		g.logger.WithFields(logrus.Fields{
			"amount":   amount.Amount.String(),
			"currency": amount.Currency,
		}).Warn("amount exceeds plausibility threshold for a major-unit value")
	}

	normalized, err := g.normalize(amount)
	if err != nil {
		return err
	}

	if normalized.GreaterThan(g.cfg.Ceiling) {
		return domain.NewBookingError(domain.ErrAmountExceedsLimit,
			fmt.Sprintf("amount %s %s (%s %s) exceeds the %s %s limit",
				amount.Amount.StringFixed(2), amount.Currency,
				normalized.StringFixed(2), g.cfg.ReferenceCurrency,
				g.cfg.Ceiling.StringFixed(2), g.cfg.ReferenceCurrency),
			"AMOUNT_EXCEEDS_LIMIT")
	}
	return nil
}

func (g *AmountGuard) normalize(amount domain.Money) (decimal.Decimal, error) {
	if amount.Currency == g.cfg.ReferenceCurrency {
		return amount.Amount, nil
	}
	rate, ok := g.cfg.Rates[amount.Currency]
	if !ok {
		return decimal.Zero, domain.NewBookingError(domain.ErrInvalidInput,
			fmt.Sprintf("unsupported currency %s", amount.Currency),
			"UNSUPPORTED_CURRENCY")
	}
	return amount.Amount.Mul(rate), nil
}
