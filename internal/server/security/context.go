// Package security authenticates bearer credentials and authorizes requests
// against statically declared access requirements.
package security

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/gophgate/internal/server/models"
)

// SecurityContext is the per-request outcome of authentication: Anonymous
// or Authenticated. The zero value is Anonymous.
type SecurityContext struct {
	identity *models.Identity
	roles    []string
}

func Anonymous() SecurityContext {
	return SecurityContext{}
}

func Authenticated(identity models.Identity, roles []string) SecurityContext {
	return SecurityContext{identity: &identity, roles: slices.Clone(roles)}
}

func (sc SecurityContext) IsAuthenticated() bool {
	return sc.identity != nil
}

// Identity returns the resolved identity, or false for Anonymous.
func (sc SecurityContext) Identity() (models.Identity, bool) {
	if sc.identity == nil {
		return models.Identity{}, false
	}
	return *sc.identity, true
}

func (sc SecurityContext) HasRole(role string) bool {
	return sc.identity != nil && slices.Contains(sc.roles, role)
}

func (sc SecurityContext) Roles() []string {
	return slices.Clone(sc.roles)
}

func (sc SecurityContext) String() string {
	if sc.identity == nil {
		return "anonymous"
	}
	return "authenticated(" + sc.identity.ID + ")"
}

type ctxKey struct{}

// WithContext attaches sc to ctx for the handler that serves one request.
func WithContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the request's SecurityContext, or Anonymous when none
// was attached.
func FromContext(ctx context.Context) SecurityContext {
	sc, _ := ctx.Value(ctxKey{}).(SecurityContext)
	return sc
}
