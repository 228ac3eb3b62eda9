package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
)

var _ repository.SubscriptionPlanRepository = (*planRepo)(nil)

type planRepo struct{ pool *pgxpool.Pool }

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	p := &model.SubscriptionPlan{}
	var currency string
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &currency, &p.DurationMonths, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	p.Currency = model.Currency(currency)
	return p, nil
}

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	if p.ID == 0 {
		const q = `
INSERT INTO subscription_plans (name, price, currency, duration_months, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q, p.Name, p.Price, string(p.Currency), p.DurationMonths, p.IsActive, p.CreatedAt)
		if err != nil {
			return err
		}
		if err := row.Scan(&p.ID); err != nil {
			return scanErr(err)
		}
		return nil
	}
	const q = `UPDATE subscription_plans SET name=$2, price=$3, currency=$4, duration_months=$5, is_active=$6 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Price, string(p.Currency), p.DurationMonths, p.IsActive)
	return err
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error) {
	const q = `SELECT id, name, price, currency, duration_months, is_active, created_at FROM subscription_plans WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	const q = `SELECT id, name, price, currency, duration_months, is_active, created_at
FROM subscription_plans WHERE is_active ORDER BY id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
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
