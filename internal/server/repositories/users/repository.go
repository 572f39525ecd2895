// Package users stores identity records. Every backend returns
// common.ErrorNotFound for an absent record and common.ErrorAlreadyExists for
// a duplicate username; any other error is an infrastructure failure.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	SetRoles(ctx context.Context, id string, roles []string) error
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
