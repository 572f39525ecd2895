package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Clock supplies the current time. Tests inject a fixed one.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now()
}

// Claims carries only registered claims. Roles are not embedded; they are
// read from the identity store on every request.
type Claims struct {
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	ExpiresAt time.Time
	TTL       time.Duration
}

type TokenService struct {
	keys  *KeyRing
	ttl   time.Duration
	clock Clock
}

func NewTokenService(keys *KeyRing, ttl time.Duration, clock Clock) *TokenService {
	if clock == nil {
		clock = SystemClock
	}
	return &TokenService{keys: keys, ttl: ttl, clock: clock}
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Now reads the injected clock.
func (s *TokenService) Now() time.Time {
	return s.clock()
}

// Issue signs a token for subjectID with iat = now and exp = now + TTL.
// JWT timestamps have whole-second precision, so exp is rounded up to the
// next second and the token lives at least TTL.
func (s *TokenService) Issue(subjectID string, now time.Time) (Token, error) {
	if subjectID == "" {
		return Token{}, fmt.Errorf("%w: empty subject", common.ErrorValidation)
	}

	expiresAt := ceilToPrecision(now.Add(s.ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	tokenString, err := token.SignedString(s.keys.Current())
	if err != nil {
		return Token{}, err
	}

	return Token{Value: tokenString, ExpiresAt: expiresAt, TTL: s.ttl}, nil
}

// Validate returns the subject of a well-formed, correctly signed and
// unexpired token. A token is valid while now < exp. The error wraps
// common.ErrInvalidToken and exactly one of ErrTokenMalformed,
// ErrTokenBadSignature or ErrTokenExpired.
func (s *TokenService) Validate(tokenString string, now time.Time) (string, error) {
	key := s.keys.Current()

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithStrictDecoding(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return "", invalid(classify(err))
	}

	if !token.Valid || claims.Subject == "" {
		return "", invalid(common.ErrTokenMalformed)
	}

	return claims.Subject, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return common.ErrTokenBadSignature
	default:
		return common.ErrTokenMalformed
	}
}

func invalid(reason error) error {
	return fmt.Errorf("%w: %w", common.ErrInvalidToken, reason)
}

// ceilToPrecision rounds t up to the precision JWT NumericDates carry.
func ceilToPrecision(t time.Time) time.Time {
	tr := t.Truncate(jwt.TimePrecision)
	if tr.Before(t) {
		return tr.Add(jwt.TimePrecision)
	}
	return tr
}
