package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// maxWatchRetries bounds optimistic-lock retries for read-modify-write updates.
const maxWatchRetries = 5

// RedisRepository stores each user as a JSON document under
// <prefix>id:<id> plus a <prefix>name:<username> -> id index.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) idKey(id string) string {
	return r.prefix + "id:" + id
}

func (r *RedisRepository) nameKey(username string) string {
	return r.prefix + "name:" + username
}

// Create claims the username index first so two concurrent registrations of
// the same name cannot both succeed.
func (r *RedisRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.nameKey(user.Username), user.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return nil, common.ErrorAlreadyExists
	}

	if err := r.client.Set(ctx, r.idKey(user.ID), data, 0).Err(); err != nil {
		r.client.Del(ctx, r.nameKey(user.Username))
		return nil, fmt.Errorf("redis error: %w", err)
	}

	return user, nil
}

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, r.client, id)
}

func (r *RedisRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	id, err := r.client.Get(ctx, r.nameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisRepository) SetRoles(ctx context.Context, id string, roles []string) error {
	return r.update(ctx, id, func(u *models.User) { u.Roles = roles })
}

func (r *RedisRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return r.update(ctx, id, func(u *models.User) { u.Disabled = disabled })
}

// update applies fn under WATCH so a concurrent writer forces a retry
// instead of a lost update.
func (r *RedisRepository) update(ctx context.Context, id string, fn func(u *models.User)) error {
	key := r.idKey(id)

	txf := func(tx *redis.Tx) error {
		user, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		fn(user)

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis error: update of %s kept conflicting", id)
}

func (r *RedisRepository) get(ctx context.Context, c getter, id string) (*models.User, error) {
	b, err := c.Get(ctx, r.idKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	user := &models.User{}
	if err := json.Unmarshal(b, user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	return user, nil
}
