package repository

import (
	"context"

	"careera-payments/internal/domain/model"
)

type SubscriptionRepository interface {
	// FindByUser locks the row when tx is a live transaction.
	FindByUser(ctx context.Context, tx Tx, userID int64) (*model.UserSubscription, error)
	// Save inserts when s.ID is zero, updates otherwise.
	Save(ctx context.Context, tx Tx, s *model.UserSubscription) error
}
