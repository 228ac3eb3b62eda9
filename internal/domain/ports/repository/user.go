package repository

import (
	"context"

	"careera-payments/internal/domain/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
	UpdateRole(ctx context.Context, tx Tx, userID, roleID int64) error
}

type RoleRepository interface {
	FindByName(ctx context.Context, tx Tx, name string) (*model.Role, error)
	Create(ctx context.Context, tx Tx, r *model.Role) error
}
