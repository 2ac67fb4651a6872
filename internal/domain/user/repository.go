package user

import "context"

type Repository interface {
	GetByID(ctx context.Context, id int64) (User, bool, error)
	// ListByIDs returns the found users keyed by ID; absent IDs are skipped.
	ListByIDs(ctx context.Context, ids []int64) (map[int64]User, error)
	SetRestricted(ctx context.Context, id int64, restricted bool) error
}
