package repomanager

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/dmitrijs2005/gophgate/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryManager(t *testing.T) {
	m := NewMemoryRepositoryManager()
	ctx := context.Background()

	require.NoError(t, m.RunMigrations(ctx))

	err := m.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		_, err := repo.Create(ctx, &models.User{ID: "u1", Username: "alice", Roles: []string{common.RoleUser}})
		return err
	})
	require.NoError(t, err)

	got, err := m.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.NoError(t, m.Close())
}

func TestRedisRepositoryManager(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, mr.Addr())
	require.NoError(t, err)

	m := NewRedisRepositoryManager(client, "gate:")
	require.NoError(t, m.RunMigrations(ctx))

	err = m.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		_, err := repo.Create(ctx, &models.User{ID: "u1", Username: "alice"})
		return err
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("gate:id:u1"))

	require.NoError(t, m.Close())
}

func TestNewRedisClient_AcceptsURL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr)
	assert.Error(t, err)
}
