// Package identity resolves token subjects to identity records.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
)

// Store is the read-only lookup the loader needs. It returns
// common.ErrorNotFound when id names no record.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type Loader struct {
	store Store
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load returns (identity, true, nil) for a stored subject and
// (zero, false, nil) when the subject does not exist. Disabled records are
// returned with Enabled=false; the caller decides what that means.
// Any other failure is reported as common.ErrStoreUnavailable, or as the
// context error when ctx ended first.
func (l *Loader) Load(ctx context.Context, subjectID string) (models.Identity, bool, error) {
	user, err := l.store.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Identity{}, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Identity{}, false, ctxErr
		}
		return models.Identity{}, false, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	id := user.Identity()
	if id.Roles == nil {
		id.Roles = []string{}
	}
	return id, true, nil
}
