package repository

import (
	"context"
	"time"

	"careera-payments/internal/domain/model"
)

type PaymentRepository interface {
	// Create inserts p and sets p.ID. A duplicate provider reference yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, p *model.PaymentTransaction) error
	// FindByID and FindByReference lock the row when tx is a live transaction.
	FindByID(ctx context.Context, tx Tx, id int64) (*model.PaymentTransaction, error)
	FindByReference(ctx context.Context, tx Tx, providerReference string) (*model.PaymentTransaction, error)
	// UpdateIfStatusIn writes the mutable verification fields of p only while the
	// stored status is one of from. It reports whether the row was updated.
	UpdateIfStatusIn(ctx context.Context, tx Tx, p *model.PaymentTransaction, from []model.PaymentStatus) (bool, error)
	SetSubscription(ctx context.Context, tx Tx, id, subscriptionID int64) error
	ListByUser(ctx context.Context, tx Tx, userID int64, offset, limit int) ([]*model.PaymentTransaction, int, error)
	// ListOpenOlderThan returns Pending/Processing rows created before cutoff, oldest first.
	ListOpenOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.PaymentTransaction, error)
	Stats(ctx context.Context, tx Tx, since time.Time) (*model.PaymentStats, error)
}
