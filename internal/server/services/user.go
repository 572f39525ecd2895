// Package services contains server-side business logic. This file implements
// UserService: login, registration and the admin operations that change
// identity records.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/auth"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/dmitrijs2005/gophgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"github.com/google/uuid"
)

const (
	MinSecretLength   = 8
	MaxSecretLength   = 72 // bcrypt ignores anything longer
	MaxUsernameLength = 64
)

// LoginResult is what a successful login hands back to the transport.
type LoginResult struct {
	Token     string
	TokenType string
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

type UserService struct {
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hashes      *auth.HashPool
	logger      logging.Logger
	metrics     *security.Metrics
}

func NewUserService(m repomanager.RepositoryManager, tokens *auth.TokenService, hashes *auth.HashPool, logger logging.Logger, metrics *security.Metrics) *UserService {
	return &UserService{
		repomanager: m,
		tokens:      tokens,
		hashes:      hashes,
		logger:      logger.With("module", "users"),
		metrics:     metrics,
	}
}

// Login verifies the credential and issues a bearer token. Unknown
// identifiers, wrong secrets and disabled accounts all return
// common.ErrorUnauthorized, and unknown identifiers still cost one hash
// verification.
func (s *UserService) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	user, err := s.repomanager.Users().GetByUsername(ctx, strings.TrimSpace(identifier))
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	hash := s.hashes.DummyHash()
	if user != nil {
		hash = user.PasswordHash
	}

	ok, err := s.hashes.Verify(ctx, secret, hash)
	if err != nil {
		return nil, err
	}

	if user == nil || !ok || user.Disabled {
		s.metrics.ObserveLogin(false)
		return nil, common.ErrorUnauthorized
	}

	tok, err := s.tokens.Issue(user.ID, s.tokens.Now())
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.metrics.ObserveLogin(true)
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)

	return &LoginResult{
		Token:     tok.Value,
		TokenType: common.BearerScheme,
		ExpiresIn: tok.TTL,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// Register creates a USER identity.
func (s *UserService) Register(ctx context.Context, username, displayName, secret string) (*models.User, error) {
	return s.create(ctx, username, displayName, secret, []string{common.RoleUser})
}

// EnsureAdmin creates an ADMIN identity named username unless one with that
// name already exists. It reports whether a record was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, secret string) (bool, error) {
	_, err := s.repomanager.Users().GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return false, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	_, err = s.create(ctx, username, "Administrator", secret, []string{common.RoleUser, common.RoleAdmin})
	if errors.Is(err, common.ErrorAlreadyExists) {
		return false, nil
	}
	return err == nil, err
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users().GetByID(ctx, id)
}

// SetRoles replaces the roles of a user. The set must stay non-empty.
func (s *UserService) SetRoles(ctx context.Context, id string, roles []string) error {
	roles = models.NormalizeRoles(roles)
	if len(roles) == 0 {
		return fmt.Errorf("%w: roles must not be empty", common.ErrorValidation)
	}

	err := s.repomanager.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		return repo.SetRoles(ctx, id, roles)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "roles changed", "user_id", id, "roles", roles)
	return nil
}

// SetDisabled enables or disables a user. Tokens already issued to a
// disabled user stop authenticating on the next request.
func (s *UserService) SetDisabled(ctx context.Context, id string, disabled bool) error {
	if err := s.repomanager.Users().SetDisabled(ctx, id, disabled); err != nil {
		return err
	}
	s.logger.Info(ctx, "user status changed", "user_id", id, "disabled", disabled)
	return nil
}

func (s *UserService) create(ctx context.Context, username, displayName, secret string, roles []string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredential(username, secret); err != nil {
		return nil, err
	}

	hash, err := s.hashes.Hash(ctx, secret)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.repomanager.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		_, err := repo.Create(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "roles", roles)
	return user, nil
}

func validateCredential(username, secret string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", common.ErrorValidation)
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return fmt.Errorf("%w: username longer than %d characters", common.ErrorValidation, MaxUsernameLength)
	case len(secret) < MinSecretLength:
		return fmt.Errorf("%w: secret shorter than %d bytes", common.ErrorValidation, MinSecretLength)
	case len(secret) > MaxSecretLength:
		return fmt.Errorf("%w: secret longer than %d bytes", common.ErrorValidation, MaxSecretLength)
	}
	return nil
}
