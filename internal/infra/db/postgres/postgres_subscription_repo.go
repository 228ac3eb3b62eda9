package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.UserSubscription, error) {
	q := `SELECT id, user_id, plan_id, start_date, end_date, is_active, created_at, updated_at
FROM user_subscriptions WHERE user_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	s := &model.UserSubscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return s, nil
}

// Save inserts a new row (user_id is unique, so a concurrent insert surfaces
// as domain.ErrAlreadyExists) or updates an existing one.
func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	if s.ID == 0 {
		const q = `
INSERT INTO user_subscriptions (user_id, plan_id, start_date, end_date, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q, s.UserID, s.PlanID, s.StartDate, s.EndDate, s.IsActive, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return err
		}
		if err := row.Scan(&s.ID); err != nil {
			return scanErr(err)
		}
		return nil
	}

	const q = `
UPDATE user_subscriptions SET plan_id=$2, start_date=$3, end_date=$4, is_active=$5, updated_at=$6
WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, s.ID, s.PlanID, s.StartDate, s.EndDate, s.IsActive, s.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
