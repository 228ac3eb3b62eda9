package repository

import (
	"context"

	"careera-payments/internal/domain/model"
)

type RefundRepository interface {
	Create(ctx context.Context, tx Tx, r *model.RefundRequest) error
	// FindByID locks the row when tx is a live transaction.
	FindByID(ctx context.Context, tx Tx, id int64) (*model.RefundRequest, error)
	Update(ctx context.Context, tx Tx, r *model.RefundRequest) error
}
