package db

import (
	"context"

	"github.com/google/uuid"

	"wayfarer/internal/types"
)

// PaymentRepository provides access to the append-only payments table.
// Rows are never updated after creation; the table exists for display and
// audit, and is not consulted for access control.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new PaymentRepository backed by the given
// database connection (pool or transaction).
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Insert appends one payment record. The external payment id carries a unique
// constraint; a duplicate insert (same provider payment reported twice) is a
// harmless no-op rather than an error.
func (r *PaymentRepository) Insert(ctx context.Context, p *types.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (id, account_id, external_id, amount_cents, currency, status, tier, billing_period)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO NOTHING`,
		p.ID, p.AccountID, p.ExternalID, p.AmountCents, p.Currency, p.Status, p.Tier, p.BillingPeriod,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record payment", err)
	}
	return nil
}

// ListByAccount returns the account's payment history, newest first.
func (r *PaymentRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*types.PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, account_id, external_id, amount_cents, currency, status, tier, billing_period, created_at
		 FROM payments
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list payments", err)
	}
	defer rows.Close()

	var records []*types.PaymentRecord
	for rows.Next() {
		var p types.PaymentRecord
		if err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&p.ExternalID,
			&p.AmountCents,
			&p.Currency,
			&p.Status,
			&p.Tier,
			&p.BillingPeriod,
			&p.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment row", err)
		}
		records = append(records, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate payment rows", err)
	}
	return records, nil
}
