package repository

import (
	"context"

	"careera-payments/internal/domain/model"
)

type SubscriptionPlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.SubscriptionPlan) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.SubscriptionPlan, error)
	// ListAll returns active plans ordered by id.
	ListAll(ctx context.Context, tx Tx) ([]*model.SubscriptionPlan, error)
}
