package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rhythmnet/rhythmd/internal/domain/user"
)

type userRow struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	Country    string    `db:"country"`
	Restricted bool      `db:"restricted"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:         r.ID,
		Name:       r.Name,
		Country:    r.Country,
		Restricted: r.Restricted,
		CreatedAt:  r.CreatedAt,
	}
}

const selectUserByID = `
SELECT id, name, country, restricted, created_at
FROM users
WHERE id = $1 AND deleted_at IS NULL`

const selectUsersByIDs = `
SELECT id, name, country, restricted, created_at
FROM users
WHERE id IN (?) AND deleted_at IS NULL`

const updateUserRestricted = `
UPDATE users SET restricted = $1, updated_at = now()
WHERE id = $2 AND deleted_at IS NULL`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) (*UserRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &UserRepository{db: db}, nil
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) GetByID(ctx context.Context, id int64) (user.User, bool, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUserByID, id); err != nil {
		if isNotFound(err) {
			return user.User{}, false, nil
		}
		return user.User{}, false, fmt.Errorf("select user by id: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *UserRepository) ListByIDs(ctx context.Context, ids []int64) (map[int64]user.User, error) {
	if len(ids) == 0 {
		return map[int64]user.User{}, nil
	}

	query, args, err := sqlx.In(selectUsersByIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("expand user id list: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select users by ids: %w", err)
	}

	out := make(map[int64]user.User, len(rows))
	for _, row := range rows {
		out[row.ID] = row.toDomain()
	}
	return out, nil
}

func (r *UserRepository) SetRestricted(ctx context.Context, id int64, restricted bool) error {
	if _, err := r.db.ExecContext(ctx, updateUserRestricted, restricted, id); err != nil {
		return fmt.Errorf("update user restricted flag: %w", err)
	}
	return nil
}
