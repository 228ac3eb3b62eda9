package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, provider_reference, user_id, provider, amount, currency, product_type, billing_cycle, status,
  payment_method, checkout_url, expires_at, webhook_payload, provider_metadata, idempotency_key, discount_code,
  failure_reason, failure_code, completed_at, last_verified_at, subscription_id, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	var provider, productType, cycle, status, method int16
	var currency string
	err := row.Scan(&p.ID, &p.ProviderReference, &p.UserID, &provider, &p.Amount, &currency, &productType, &cycle, &status,
		&method, &p.CheckoutURL, &p.ExpiresAt, &p.WebhookPayload, &p.ProviderMetadata, &p.IdempotencyKey, &p.DiscountCode,
		&p.FailureReason, &p.FailureCode, &p.CompletedAt, &p.LastVerifiedAt, &p.SubscriptionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	p.Provider = model.PaymentProvider(provider)
	p.Currency = model.Currency(currency)
	p.ProductType = model.ProductType(productType)
	p.BillingCycle = model.BillingCycle(cycle)
	p.Status = model.PaymentStatus(status)
	p.PaymentMethod = model.PaymentMethod(method)
	if p.ProviderMetadata == nil {
		p.ProviderMetadata = map[string]string{}
	}
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (
  provider_reference, user_id, provider, amount, currency, product_type, billing_cycle, status,
  payment_method, checkout_url, expires_at, webhook_payload, provider_metadata, idempotency_key, discount_code,
  failure_reason, failure_code, completed_at, last_verified_at, subscription_id, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
) RETURNING id;`

	if p.ProviderMetadata == nil {
		p.ProviderMetadata = map[string]string{}
	}
	row, err := pickRow(ctx, r.pool, tx, q,
		p.ProviderReference, p.UserID, int16(p.Provider), p.Amount, string(p.Currency), int16(p.ProductType),
		int16(p.BillingCycle), int16(p.Status), int16(p.PaymentMethod), p.CheckoutURL, p.ExpiresAt, p.WebhookPayload,
		p.ProviderMetadata, p.IdempotencyKey, p.DiscountCode, p.FailureReason, p.FailureCode, p.CompletedAt,
		p.LastVerifiedAt, p.SubscriptionID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&p.ID); err != nil {
		return scanErr(err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.PaymentTransaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByReference(ctx context.Context, tx repository.Tx, providerReference string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE provider_reference=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, providerReference)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// UpdateIfStatusIn is the compare-and-set that makes completion happen once:
// of two racing writers only the first sees its from-status still in place.
func (r *paymentRepo) UpdateIfStatusIn(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction, from []model.PaymentStatus) (bool, error) {
	if len(from) == 0 {
		return false, domain.ErrInvalidArgument
	}
	states := make([]int16, len(from))
	for i, s := range from {
		states[i] = int16(s)
	}
	const q = `
UPDATE payment_transactions
   SET status = $2,
       payment_method = $3,
       webhook_payload = $4,
       provider_metadata = $5,
       failure_reason = $6,
       failure_code = $7,
       completed_at = $8,
       last_verified_at = $9,
       updated_at = $10
 WHERE id = $1
   AND status = ANY($11);`

	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, int16(p.Status), int16(p.PaymentMethod), p.WebhookPayload,
		p.ProviderMetadata, p.FailureReason, p.FailureCode, p.CompletedAt, p.LastVerifiedAt, p.UpdatedAt, states)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() >= 1, nil
}

// SetSubscription stamps the subscription id once; a second stamp is a no-op.
func (r *paymentRepo) SetSubscription(ctx context.Context, tx repository.Tx, id, subscriptionID int64) error {
	const q = `UPDATE payment_transactions SET subscription_id=$2, updated_at=NOW() WHERE id=$1 AND subscription_id IS NULL;`
	_, err := execSQL(ctx, r.pool, tx, q, id, subscriptionID)
	return err
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, offset, limit int) ([]*model.PaymentTransaction, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM payment_transactions WHERE user_id=$1;`, userID)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, scanErr(err)
	}

	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE user_id=$1 ORDER BY created_at DESC, id DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.PaymentTransaction, 0, limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPgError(err)
	}
	return out, total, nil
}

func (r *paymentRepo) ListOpenOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions
WHERE status IN ($1, $2) AND created_at < $3 ORDER BY created_at ASC LIMIT $4;`
	rows, err := queryRows(ctx, r.pool, tx, q, int16(model.PaymentStatusPending), int16(model.PaymentStatusProcessing), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (r *paymentRepo) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error) {
	stats := model.NewPaymentStats(since)

	const grouped = `
SELECT status, provider, product_type, currency, COUNT(*), COALESCE(SUM(amount), 0)
  FROM payment_transactions
 WHERE created_at >= $1
 GROUP BY status, provider, product_type, currency;`
	rows, err := queryRows(ctx, r.pool, tx, grouped, since)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status, provider, product int16
		var currency string
		var n int
		g := model.DailyRevenue{}
		if err := rows.Scan(&status, &provider, &product, &currency, &n, &g.Amount); err != nil {
			rows.Close()
			return nil, domain.ErrReadDatabaseRow
		}
		stats.TotalTransactions += n
		stats.ByStatus[model.PaymentStatus(status)] += n
		stats.ByProvider[model.PaymentProvider(provider)] += n
		stats.ByProduct[model.ProductType(product)] += n
		if model.PaymentStatus(status) == model.PaymentStatusCompleted {
			cur := model.Currency(currency)
			stats.Revenue[cur] = stats.Revenue[cur].Add(g.Amount)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	const daily = `
SELECT date_trunc('day', completed_at) AS day, currency, COUNT(*), SUM(amount)
  FROM payment_transactions
 WHERE status = $1 AND completed_at >= $2
 GROUP BY day, currency
 ORDER BY day ASC, currency ASC;`
	rows, err = queryRows(ctx, r.pool, tx, daily, int16(model.PaymentStatusCompleted), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d model.DailyRevenue
		var currency string
		if err := rows.Scan(&d.Day, &currency, &d.Count, &d.Amount); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		d.Currency = model.Currency(currency)
		stats.DailyRevenue = append(stats.DailyRevenue, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return stats, nil
}
