package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/auth"
	"github.com/dmitrijs2005/gophgate/internal/server/identity"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/dmitrijs2005/gophgate/internal/server/repositories/users"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("filter-test-signing-key-0123456789abcdef")
	epoch   = time.Unix(1_700_000_000, 0)
)

type fixture struct {
	tokens  *auth.TokenService
	ring    *auth.KeyRing
	repo    *users.MemoryRepository
	metrics *Metrics
	authn   *Authenticator
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ring, err := auth.NewKeyRing(testKey)
	require.NoError(t, err)

	f := &fixture{ring: ring, repo: users.NewMemoryRepository(), now: epoch}
	clock := func() time.Time { return f.now }
	f.tokens = auth.NewTokenService(ring, 24*time.Hour, clock)
	f.metrics = NewMetrics(prometheus.NewRegistry())
	f.authn = NewAuthenticator(f.tokens, identity.NewLoader(f.repo), clock, logging.Nop(), f.metrics)

	for _, u := range []*models.User{
		{ID: "u1", Username: "alice", Roles: []string{common.RoleUser}},
		{ID: "admin", Username: "root", Roles: []string{common.RoleUser, common.RoleAdmin}},
		{ID: "off", Username: "mallory", Roles: []string{common.RoleUser}, Disabled: true},
	} {
		_, err := f.repo.Create(context.Background(), u)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) bearer(t *testing.T, subject string) string {
	t.Helper()
	tok, err := f.tokens.Issue(subject, f.now)
	require.NoError(t, err)
	return "Bearer " + tok.Value
}

func counterValue(t *testing.T, c *prometheus.CounterVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.WithLabelValues(label).Write(&m))
	return m.GetCounter().GetValue()
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in    string
		token string
		ok    bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer   padded  ", "padded", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearerabc", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.token, token, tt.in)
	}
}

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)

	sc, err := f.authn.Authenticate(context.Background(), f.bearer(t, "admin"))
	require.NoError(t, err)
	require.True(t, sc.IsAuthenticated())

	id, _ := sc.Identity()
	assert.Equal(t, "admin", id.ID)
	assert.True(t, sc.HasRole(common.RoleAdmin))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.AuthOutcomes, outcomeAuthenticated))
}

func TestAuthenticate_AnonymousOutcomes(t *testing.T) {
	f := newFixture(t)

	expiredTok, err := f.tokens.Issue("u1", epoch.Add(-48*time.Hour))
	require.NoError(t, err)

	otherRing, err := auth.NewKeyRing([]byte("some-other-signing-key-0123456789abcdef"))
	require.NoError(t, err)
	forged, err := auth.NewTokenService(otherRing, time.Hour, nil).Issue("admin", epoch)
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		outcome    string
	}{
		{"absent", "", outcomeAnonymous},
		{"wrong scheme", "Token abc", outcomeAnonymous},
		{"empty token", "Bearer ", outcomeAnonymous},
		{"garbage token", "Bearer not-a-token", outcomeInvalidToken},
		{"expired", "Bearer " + expiredTok.Value, outcomeInvalidToken},
		{"forged", "Bearer " + forged.Value, outcomeInvalidToken},
		{"unknown subject", f.bearer(t, "deleted-user"), outcomeUnknownSubject},
		{"disabled subject", f.bearer(t, "off"), outcomeDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := counterValue(t, f.metrics.AuthOutcomes, tt.outcome)

			sc, err := f.authn.Authenticate(context.Background(), tt.credential)
			require.NoError(t, err)
			assert.False(t, sc.IsAuthenticated())
			assert.Equal(t, before+1, counterValue(t, f.metrics.AuthOutcomes, tt.outcome))
		})
	}

	assert.Equal(t, 1.0, counterValue(t, f.metrics.TokenRejections, "expired"))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.TokenRejections, "bad_signature"))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.TokenRejections, "malformed"))
}

func TestAuthenticate_DisabledAfterIssue(t *testing.T) {
	f := newFixture(t)
	cred := f.bearer(t, "u1")

	sc, err := f.authn.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	require.True(t, sc.IsAuthenticated())

	require.NoError(t, f.repo.SetDisabled(context.Background(), "u1", true))

	_, err = f.tokens.Validate(cred[len("Bearer "):], f.now)
	require.NoError(t, err, "the token itself is still valid")

	sc, err = f.authn.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, sc.IsAuthenticated())
}

func TestAuthenticate_RolesReadOnEveryRequest(t *testing.T) {
	f := newFixture(t)
	cred := f.bearer(t, "u1")

	sc, err := f.authn.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, sc.HasRole(common.RoleAdmin))

	require.NoError(t, f.repo.SetRoles(context.Background(), "u1", []string{common.RoleUser, common.RoleAdmin}))

	sc, err = f.authn.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.True(t, sc.HasRole(common.RoleAdmin))
}

func TestAuthenticate_KeyRotation(t *testing.T) {
	f := newFixture(t)
	cred := f.bearer(t, "u1")

	require.NoError(t, f.ring.Rotate([]byte("rotated-signing-key-0123456789abcdefgh")))

	sc, err := f.authn.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, sc.IsAuthenticated())
}

type failingLoader struct{ err error }

func (l failingLoader) Load(ctx context.Context, id string) (models.Identity, bool, error) {
	return models.Identity{}, false, l.err
}

func TestAuthenticate_StoreFailurePropagates(t *testing.T) {
	f := newFixture(t)
	authn := NewAuthenticator(f.tokens, failingLoader{err: common.ErrStoreUnavailable}, func() time.Time { return f.now }, logging.Nop(), nil)

	sc, err := authn.Authenticate(context.Background(), f.bearer(t, "u1"))
	require.True(t, errors.Is(err, common.ErrStoreUnavailable))
	assert.False(t, sc.IsAuthenticated())

	// no credential never touches the store
	sc, err = authn.Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, sc.IsAuthenticated())
}
