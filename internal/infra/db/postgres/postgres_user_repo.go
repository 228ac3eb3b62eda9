package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
)

var (
	_ repository.UserRepository = (*userRepo)(nil)
	_ repository.RoleRepository = (*roleRepo)(nil)
)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, full_name, role_id, created_at`

func (r *userRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.RoleID, &u.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return u, nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return r.findOne(ctx, tx, `id=$1`, id)
}

// FindByEmail is used by the seeder only.
func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.findOne(ctx, tx, `email=$1`, email)
}

func (r *userRepo) UpdateRole(ctx context.Context, tx repository.Tx, userID, roleID int64) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE users SET role_id=$2 WHERE id=$1;`, userID, roleID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Create is used by the seeder only.
func (r *userRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `INSERT INTO users (email, full_name, role_id, created_at) VALUES ($1,$2,$3,$4) RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, u.Email, u.FullName, u.RoleID, u.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&u.ID); err != nil {
		return scanErr(err)
	}
	return nil
}

type roleRepo struct{ pool *pgxpool.Pool }

func NewRoleRepo(pool *pgxpool.Pool) *roleRepo {
	return &roleRepo{pool: pool}
}

func (r *roleRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.Role, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT id, name FROM roles WHERE name=$1;`, name)
	if err != nil {
		return nil, err
	}
	role := &model.Role{}
	if err := row.Scan(&role.ID, &role.Name); err != nil {
		return nil, scanErr(err)
	}
	return role, nil
}

// Create inserts the role; when another writer won the race the existing id is returned.
func (r *roleRepo) Create(ctx context.Context, tx repository.Tx, role *model.Role) error {
	const q = `
INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, role.Name)
	if err != nil {
		return err
	}
	if err := row.Scan(&role.ID); err != nil {
		return scanErr(err)
	}
	return nil
}
