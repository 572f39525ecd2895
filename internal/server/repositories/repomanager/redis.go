package repomanager

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

type RedisRepositoryManager struct {
	client redis.UniversalClient
	repo   *users.RedisRepository
}

// NewRedisClient connects to addr (host:port or a redis:// URL) and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if u, err := redis.ParseURL(addr); err == nil {
		opts = u
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

func NewRedisRepositoryManager(client redis.UniversalClient, prefix string) *RedisRepositoryManager {
	return &RedisRepositoryManager{client: client, repo: users.NewRedisRepository(client, prefix)}
}

func (m *RedisRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *RedisRepositoryManager) Users() users.Repository {
	return m.repo
}

// InTx runs fn directly. Each repository write is atomic on its own.
func (m *RedisRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error {
	return fn(ctx, m.repo)
}

func (m *RedisRepositoryManager) Close() error {
	return m.client.Close()
}
