package memory

import (
	"context"
	"sync"

	"github.com/rhythmnet/rhythmd/internal/domain/user"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[int64]user.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[int64]user.User)}
}

var _ user.Repository = (*UserRepository)(nil)

// Put seeds or replaces a user row.
func (r *UserRepository) Put(u user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (user.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	return u, ok, nil
}

func (r *UserRepository) ListByIDs(_ context.Context, ids []int64) (map[int64]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]user.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *UserRepository) SetRestricted(_ context.Context, id int64, restricted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil
	}
	u.Restricted = restricted
	r.users[id] = u

	return nil
}
