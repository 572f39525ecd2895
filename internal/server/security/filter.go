package security

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
)

type TokenValidator interface {
	Validate(token string, now time.Time) (string, error)
}

type IdentityLoader interface {
	Load(ctx context.Context, subjectID string) (models.Identity, bool, error)
}

// Authenticator turns a raw credential value into a SecurityContext. It holds
// no per-request state and is safe for concurrent use.
type Authenticator struct {
	tokens     TokenValidator
	identities IdentityLoader
	clock      func() time.Time
	logger     logging.Logger
	metrics    *Metrics
}

func NewAuthenticator(tokens TokenValidator, identities IdentityLoader, clock func() time.Time, logger logging.Logger, metrics *Metrics) *Authenticator {
	if clock == nil {
		clock = time.Now
	}
	return &Authenticator{
		tokens:     tokens,
		identities: identities,
		clock:      clock,
		logger:     logger.With("module", "authn"),
		metrics:    metrics,
	}
}

// BearerToken extracts the token from "Bearer <token>". A missing or
// different scheme, or an empty token, yields ok=false.
func BearerToken(credential string) (string, bool) {
	rest, ok := strings.CutPrefix(credential, common.BearerScheme+" ")
	if !ok {
		return "", false
	}
	token := strings.TrimSpace(rest)
	return token, token != ""
}

// Authenticate never fails for a bad or missing credential: those resolve to
// Anonymous. The error is non-nil only when the identity store is
// unreachable or ctx ends, and the returned context is then Anonymous.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (SecurityContext, error) {
	token, ok := BearerToken(credential)
	if !ok {
		a.metrics.authOutcome(outcomeAnonymous)
		return Anonymous(), nil
	}

	subjectID, err := a.tokens.Validate(token, a.clock())
	if err != nil {
		reason := TokenErrorReason(err)
		a.logger.Debug(ctx, "bearer token rejected", "reason", reason)
		a.metrics.tokenRejected(reason)
		a.metrics.authOutcome(outcomeInvalidToken)
		return Anonymous(), nil
	}

	identity, found, err := a.identities.Load(ctx, subjectID)
	if err != nil {
		a.metrics.authOutcome(outcomeStoreError)
		return Anonymous(), err
	}
	if !found {
		a.logger.Debug(ctx, "token subject not found", "subject", subjectID)
		a.metrics.authOutcome(outcomeUnknownSubject)
		return Anonymous(), nil
	}
	if !identity.Enabled {
		a.logger.Debug(ctx, "token subject disabled", "subject", subjectID)
		a.metrics.authOutcome(outcomeDisabled)
		return Anonymous(), nil
	}

	a.metrics.authOutcome(outcomeAuthenticated)
	return Authenticated(identity, identity.Roles), nil
}
