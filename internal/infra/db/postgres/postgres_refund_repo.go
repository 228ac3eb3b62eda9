package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
)

var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

const refundColumns = `id, payment_transaction_id, user_id, refund_amount, currency, reason, status, reviewed_by_admin_id,
  provider_refund_reference, admin_notes, error_message, requested_at, reviewed_at, processed_at`

func scanRefund(row pgx.Row) (*model.RefundRequest, error) {
	r := &model.RefundRequest{}
	var status int16
	var currency string
	if err := row.Scan(&r.ID, &r.PaymentTransactionID, &r.UserID, &r.RefundAmount, &currency, &r.Reason, &status,
		&r.ReviewedByAdminID, &r.ProviderRefundReference, &r.AdminNotes, &r.ErrorMessage, &r.RequestedAt,
		&r.ReviewedAt, &r.ProcessedAt); err != nil {
		return nil, scanErr(err)
	}
	r.Status = model.RefundStatus(status)
	r.Currency = model.Currency(currency)
	return r, nil
}

func (r *refundRepo) Create(ctx context.Context, tx repository.Tx, rr *model.RefundRequest) error {
	const q = `
INSERT INTO refund_requests (
  payment_transaction_id, user_id, refund_amount, currency, reason, status, reviewed_by_admin_id,
  provider_refund_reference, admin_notes, error_message, requested_at, reviewed_at, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, rr.PaymentTransactionID, rr.UserID, rr.RefundAmount, string(rr.Currency),
		rr.Reason, int16(rr.Status), rr.ReviewedByAdminID, rr.ProviderRefundReference, rr.AdminNotes, rr.ErrorMessage,
		rr.RequestedAt, rr.ReviewedAt, rr.ProcessedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&rr.ID); err != nil {
		return scanErr(err)
	}
	return nil
}

func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.RefundRequest, error) {
	q := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) Update(ctx context.Context, tx repository.Tx, rr *model.RefundRequest) error {
	const q = `
UPDATE refund_requests
   SET status=$2, reviewed_by_admin_id=$3, provider_refund_reference=$4, admin_notes=$5,
       error_message=$6, reviewed_at=$7, processed_at=$8
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, rr.ID, int16(rr.Status), rr.ReviewedByAdminID, rr.ProviderRefundReference,
		rr.AdminNotes, rr.ErrorMessage, rr.ReviewedAt, rr.ProcessedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
