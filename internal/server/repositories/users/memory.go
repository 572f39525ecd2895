package users

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
)

// MemoryRepository keeps users in process memory. Records are copied in and
// out so callers never share state with the store.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.User
	byUsername map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*models.User),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[user.Username]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if _, ok := r.byID[user.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}

	r.byID[user.ID] = clone(user)
	r.byUsername[user.Username] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) SetRoles(ctx context.Context, id string, roles []string) error {
	return r.update(id, func(u *models.User) { u.Roles = slices.Clone(roles) })
}

func (r *MemoryRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return r.update(id, func(u *models.User) { u.Disabled = disabled })
}

func (r *MemoryRepository) update(id string, fn func(u *models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func clone(u *models.User) *models.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}
