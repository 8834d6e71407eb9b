package pricing_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
	"github.com/skyroute/skyroute-bookings/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard() *pricing.AmountGuard {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return pricing.NewAmountGuard(pricing.DefaultGuardConfig(), logger)
}

func TestCheck_WithinLimit(t *testing.T) {
	guard := newGuard()
	assert.NoError(t, guard.Check(mustMoney("4999.99", "EUR")))
	assert.NoError(t, guard.Check(mustMoney("478.80", "EUR")))
}

func TestCheck_ExceedsCeiling(t *testing.T) {
	guard := newGuard()

	err := guard.Check(mustMoney("6000.00", "EUR"))
	require.ErrorIs(t, err, domain.ErrAmountExceedsLimit)

	var bookingErr *domain.BookingError
	require.ErrorAs(t, err, &bookingErr)
	assert.Equal(t, "AMOUNT_EXCEEDS_LIMIT", bookingErr.Code)
	assert.False(t, bookingErr.PaymentCaptured)
}

func TestCheck_ConvertsToReferenceCurrency(t *testing.T) {
	guard := newGuard()

	// 5000 USD * 0.92 = 4600 EUR, under the ceiling
	assert.NoError(t, guard.Check(mustMoney("5000.00", "USD")))

	// 6000 USD * 0.92 = 5520 EUR, over the ceiling
	err := guard.Check(mustMoney("6000.00", "USD"))
	assert.ErrorIs(t, err, domain.ErrAmountExceedsLimit)
}

func TestCheck_UnsupportedCurrency(t *testing.T) {
	guard := newGuard()

	err := guard.Check(mustMoney("100.00", "XXX"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCheck_NegativeAmount(t *testing.T) {
	guard := newGuard()

	err := guard.Check(mustMoney("-10.00", "EUR"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
