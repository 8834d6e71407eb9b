package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// ReconciliationRepository persists stranded-payment records.
type ReconciliationRepository struct {
	db *sqlx.DB
}

func NewReconciliationRepository(db *sqlx.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

type reconciliationRow struct {
	ID              uuid.UUID    `db:"id"`
	AttemptID       uuid.UUID    `db:"attempt_id"`
	PaymentIntentID string       `db:"payment_intent_id"`
	Amount          string       `db:"amount"`
	Currency        string       `db:"currency"`
	Reason          string       `db:"reason"`
	Resolved        bool         `db:"resolved"`
	CreatedAt       time.Time    `db:"created_at"`
	ResolvedAt      sql.NullTime `db:"resolved_at"`
}

func (r *reconciliationRow) toDomain() (*domain.PaymentReconciliation, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in row %s: %w", r.ID, err)
	}
	rec := &domain.PaymentReconciliation{
		ID:              r.ID,
		AttemptID:       r.AttemptID,
		PaymentIntentID: r.PaymentIntentID,
		Amount:          domain.Money{Amount: amount, Currency: r.Currency},
		Reason:          r.Reason,
		Resolved:        r.Resolved,
		CreatedAt:       r.CreatedAt,
	}
	if r.ResolvedAt.Valid {
		t := r.ResolvedAt.Time
		rec.ResolvedAt = &t
	}
	return rec, nil
}

// Create inserts a new reconciliation record.
func (r *ReconciliationRepository) Create(ctx context.Context, rec *domain.PaymentReconciliation) error {
	query := `
		INSERT INTO payment_reconciliations (
			id, attempt_id, payment_intent_id, amount, currency,
			reason, resolved, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		RETURNING created_at
	`

	return r.db.QueryRowContext(
		ctx,
		query,
		rec.ID,
		rec.AttemptID,
		rec.PaymentIntentID,
		rec.Amount.Amount.String(),
		rec.Amount.Currency,
		rec.Reason,
	).Scan(&rec.CreatedAt)
}

// ListUnresolved returns open records, oldest first, for the sweeper.
func (r *ReconciliationRepository) ListUnresolved(ctx context.Context, limit int) ([]domain.PaymentReconciliation, error) {
	query := `
		SELECT id, attempt_id, payment_intent_id, amount, currency,
			   reason, resolved, created_at, resolved_at
		FROM payment_reconciliations
		WHERE resolved = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`

	var rows []reconciliationRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}

	recs := make([]domain.PaymentReconciliation, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

// MarkResolved closes a record after an operator voided or refunded the
// payment out of band.
func (r *ReconciliationRepository) MarkResolved(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE payment_reconciliations
		SET resolved = TRUE, resolved_at = NOW()
		WHERE id = $1 AND resolved = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id)
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
