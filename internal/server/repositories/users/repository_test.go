package users

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepositoryContract checks the behaviour every backend shares.
func testRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	alice := &models.User{
		ID:           "7f1c2d3e-0000-4000-8000-000000000001",
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: "$2a$04$hash",
		Roles:        []string{common.RoleUser},
		CreatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("create and get", func(t *testing.T) {
		_, err := repo.Create(ctx, alice)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Username, got.Username)
		assert.Equal(t, alice.DisplayName, got.DisplayName)
		assert.Equal(t, alice.PasswordHash, got.PasswordHash)
		assert.Equal(t, []string{common.RoleUser}, got.Roles)
		assert.False(t, got.Disabled)
		assert.True(t, alice.CreatedAt.Equal(got.CreatedAt))

		byName, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byName.ID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		dup := *alice
		dup.ID = "7f1c2d3e-0000-4000-8000-000000000002"
		_, err := repo.Create(ctx, &dup)
		require.ErrorIs(t, err, common.ErrorAlreadyExists)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "missing")
		require.ErrorIs(t, err, common.ErrorNotFound)
		_, err = repo.GetByUsername(ctx, "ghost")
		require.ErrorIs(t, err, common.ErrorNotFound)
		require.ErrorIs(t, repo.SetRoles(ctx, "missing", []string{common.RoleAdmin}), common.ErrorNotFound)
		require.ErrorIs(t, repo.SetDisabled(ctx, "missing", true), common.ErrorNotFound)
	})

	t.Run("set roles", func(t *testing.T) {
		require.NoError(t, repo.SetRoles(ctx, alice.ID, []string{common.RoleUser, common.RoleAdmin}))
		got, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{common.RoleUser, common.RoleAdmin}, got.Roles)
	})

	t.Run("set disabled", func(t *testing.T) {
		require.NoError(t, repo.SetDisabled(ctx, alice.ID, true))
		got, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.True(t, got.Disabled)

		require.NoError(t, repo.SetDisabled(ctx, alice.ID, false))
		got, err = repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.False(t, got.Disabled)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		got, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		got.Roles = append(got.Roles, "ROOT")
		got.Disabled = true

		again, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.NotContains(t, again.Roles, "ROOT")
		assert.False(t, again.Disabled)
	})
}
