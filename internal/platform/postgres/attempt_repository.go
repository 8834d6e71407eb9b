// Package postgres implements the repository ports on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// AttemptRepository persists booking attempts. Passenger lists and pricing
// breakdowns are stored as JSONB; amounts as NUMERIC so no float ever
// touches money.
type AttemptRepository struct {
	db *sqlx.DB
}

func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// attemptRow mirrors the booking_attempts table.
type attemptRow struct {
	ID               uuid.UUID      `db:"id"`
	OfferID          string         `db:"offer_id"`
	State            string         `db:"state"`
	FailureReason    sql.NullString `db:"failure_reason"`
	PaymentIntentID  sql.NullString `db:"payment_intent_id"`
	PaymentCaptured  bool           `db:"payment_captured"`
	Passengers       []byte         `db:"passengers"`
	Breakdown        []byte         `db:"breakdown"`
	Amount           string         `db:"amount"`
	Currency         string         `db:"currency"`
	OrderID          sql.NullString `db:"order_id"`
	BookingReference sql.NullString `db:"booking_reference"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	ExpiresAt        time.Time      `db:"expires_at"`
}

func (r *attemptRow) toDomain() (*domain.BookingAttempt, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in row %s: %w", r.ID, err)
	}

	attempt := &domain.BookingAttempt{
		ID:               r.ID,
		OfferID:          r.OfferID,
		State:            domain.AttemptState(r.State),
		FailureReason:    domain.FailureReason(r.FailureReason.String),
		PaymentIntentID:  r.PaymentIntentID.String,
		PaymentCaptured:  r.PaymentCaptured,
		Amount:           domain.Money{Amount: amount, Currency: r.Currency},
		OrderID:          r.OrderID.String,
		BookingReference: r.BookingReference.String,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		ExpiresAt:        r.ExpiresAt,
	}
	if len(r.Passengers) > 0 {
		if err := json.Unmarshal(r.Passengers, &attempt.Passengers); err != nil {
			return nil, fmt.Errorf("invalid passengers in row %s: %w", r.ID, err)
		}
	}
	if len(r.Breakdown) > 0 {
		if err := json.Unmarshal(r.Breakdown, &attempt.Breakdown); err != nil {
			return nil, fmt.Errorf("invalid breakdown in row %s: %w", r.ID, err)
		}
	}
	return attempt, nil
}

func marshalAttempt(a *domain.BookingAttempt) (passengers, breakdown []byte, err error) {
	passengers, err = json.Marshal(a.Passengers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode passengers: %w", err)
	}
	if a.Breakdown != nil {
		breakdown, err = json.Marshal(a.Breakdown)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode breakdown: %w", err)
		}
	}
	return passengers, breakdown, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new attempt and fills in the database timestamps.
func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.BookingAttempt) error {
	passengers, breakdown, err := marshalAttempt(attempt)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO booking_attempts (
			id, offer_id, state, failure_reason, payment_intent_id,
			payment_captured, passengers, breakdown, amount, currency,
			order_id, booking_reference, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), $13
		)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowContext(
		ctx,
		query,
		attempt.ID,
		attempt.OfferID,
		string(attempt.State),
		nullable(string(attempt.FailureReason)),
		nullable(attempt.PaymentIntentID),
		attempt.PaymentCaptured,
		passengers,
		breakdown,
		attempt.Amount.Amount.String(),
		attempt.Amount.Currency,
		nullable(attempt.OrderID),
		nullable(attempt.BookingReference),
		attempt.ExpiresAt,
	).Scan(&attempt.CreatedAt, &attempt.UpdatedAt)
}

// GetByID loads one attempt. Returns ErrAttemptNotFound when the id does
// not exist.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingAttempt, error) {
	query := `
		SELECT id, offer_id, state, failure_reason, payment_intent_id,
			   payment_captured, passengers, breakdown, amount, currency,
			   order_id, booking_reference, created_at, updated_at, expires_at
		FROM booking_attempts
		WHERE id = $1
	`

	var row attemptRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// Update writes the attempt's mutable fields back.
func (r *AttemptRepository) Update(ctx context.Context, attempt *domain.BookingAttempt) error {
	passengers, breakdown, err := marshalAttempt(attempt)
	if err != nil {
		return err
	}

	query := `
		UPDATE booking_attempts
		SET state = $2,
			failure_reason = $3,
			payment_intent_id = $4,
			payment_captured = $5,
			passengers = $6,
			breakdown = $7,
			amount = $8,
			currency = $9,
			order_id = $10,
			booking_reference = $11,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		attempt.ID,
		string(attempt.State),
		nullable(string(attempt.FailureReason)),
		nullable(attempt.PaymentIntentID),
		attempt.PaymentCaptured,
		passengers,
		breakdown,
		attempt.Amount.Amount.String(),
		attempt.Amount.Currency,
		nullable(attempt.OrderID),
		nullable(attempt.BookingReference),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

// ClaimOrderCreation is the single serialization point for order creation:
// the conditional UPDATE succeeds for exactly one caller, everyone else
// gets ErrDuplicateOrder.
func (r *AttemptRepository) ClaimOrderCreation(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE booking_attempts
		SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3
	`

	result, err := r.db.ExecContext(ctx, query, id,
		string(domain.StateCreatingOrder), string(domain.StateVerifyingOffer))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrDuplicateOrder
	}
	return nil
}

// ListStale returns non-terminal, uncaptured attempts past their expiry.
// Captured attempts are excluded: those carry a payment and belong to the
// reconciliation path, not the expirer.
func (r *AttemptRepository) ListStale(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM booking_attempts
		WHERE state NOT IN ($1, $2)
		  AND payment_captured = FALSE
		  AND expires_at < $3
		ORDER BY expires_at ASC
		LIMIT $4
	`

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query,
		string(domain.StateCompleted), string(domain.StateFailed), now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
