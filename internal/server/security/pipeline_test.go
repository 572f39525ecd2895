package security

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler reports the identity it was called with.
func echoHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		sc := FromContext(r.Context())
		id, _ := sc.Identity()
		_ = json.NewEncoder(w).Encode(map[string]any{"authenticated": sc.IsAuthenticated(), "id": id.ID})
	})
}

func serve(h http.Handler, credential string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if credential != "" {
		req.Header.Set(common.AuthorizationHeaderName, credential)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestGuard_Outcomes(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.authn, logging.Nop(), f.metrics)

	tests := []struct {
		name       string
		req        Requirement
		credential string
		wantStatus int
		wantBody   string
		wantCalled bool
	}{
		{"public anonymous", Public(), "", http.StatusOK, "", true},
		{"public corrupted token", Public(), "Bearer eyJhbGciOiJIUzI1NiJ9.garbage.sig", http.StatusOK, "", true},
		{"authenticated no header", AuthenticatedOnly(), "", http.StatusUnauthorized, MsgUnauthorized, false},
		{"authenticated bad token", AuthenticatedOnly(), "Bearer nope", http.StatusUnauthorized, MsgUnauthorized, false},
		{"authenticated valid", AuthenticatedOnly(), f.bearer(t, "u1"), http.StatusOK, "", true},
		{"admin as user", RequiresRole(common.RoleAdmin), f.bearer(t, "u1"), http.StatusForbidden, MsgForbidden, false},
		{"admin anonymous", RequiresRole(common.RoleAdmin), "", http.StatusUnauthorized, MsgUnauthorized, false},
		{"admin as admin", RequiresRole(common.RoleAdmin), f.bearer(t, "admin"), http.StatusOK, "", true},
		{"disabled user", AuthenticatedOnly(), f.bearer(t, "off"), http.StatusUnauthorized, MsgUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			rec := serve(p.Guard(tt.req, echoHandler(&called)), tt.credential)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, decodeError(t, rec))
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestGuard_UnauthenticatedBodiesAreIdentical(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.authn, logging.Nop(), nil)
	h := p.Guard(AuthenticatedOnly(), echoHandler(new(bool)))

	expired, err := f.tokens.Issue("u1", epoch.Add(-25*time.Hour))
	require.NoError(t, err)

	var bodies []string
	for _, cred := range []string{"", "Bearer x", "Bearer " + expired.Value, f.bearer(t, "ghost"), f.bearer(t, "off")} {
		rec := serve(h, cred)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestGuard_HandlerSeesIdentity(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.authn, logging.Nop(), nil)

	called := false
	rec := serve(p.Guard(AuthenticatedOnly(), echoHandler(&called)), f.bearer(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "u1", body["id"])
}

func TestGuard_StoreFailureIs500(t *testing.T) {
	f := newFixture(t)
	authn := NewAuthenticator(f.tokens, failingLoader{err: common.ErrStoreUnavailable}, func() time.Time { return f.now }, logging.Nop(), nil)
	p := NewPipeline(authn, logging.Nop(), nil)

	called := false
	rec := serve(p.Guard(AuthenticatedOnly(), echoHandler(&called)), f.bearer(t, "u1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternalError, decodeError(t, rec))
	assert.False(t, called)
}

// cancellingLoader resolves the identity but cancels the request first.
type cancellingLoader struct {
	cancel context.CancelFunc
}

func (l cancellingLoader) Load(ctx context.Context, id string) (models.Identity, bool, error) {
	l.cancel()
	return models.Identity{ID: id, Roles: []string{common.RoleUser}, Enabled: true}, true, nil
}

func TestGuard_CancelledAfterAuthenticationSkipsHandler(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authn := NewAuthenticator(f.tokens, cancellingLoader{cancel: cancel}, func() time.Time { return f.now }, logging.Nop(), nil)
	p := NewPipeline(authn, logging.Nop(), nil)

	called := false
	req := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
	req.Header.Set(common.AuthorizationHeaderName, f.bearer(t, "u1"))
	rec := httptest.NewRecorder()

	p.Guard(Public(), echoHandler(&called)).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Empty(t, rec.Body.String())
}

func TestGuard_CancelledDuringLoad(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	authn := NewAuthenticator(f.tokens, failingLoader{err: context.Canceled}, func() time.Time { return f.now }, logging.Nop(), nil)
	p := NewPipeline(authn, logging.Nop(), nil)

	called := false
	req := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
	req.Header.Set(common.AuthorizationHeaderName, f.bearer(t, "u1"))
	rec := httptest.NewRecorder()

	p.Guard(AuthenticatedOnly(), echoHandler(&called)).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.NotEqual(t, http.StatusInternalServerError, rec.Code)
}

func TestGuard_DecisionMetrics(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.authn, logging.Nop(), f.metrics)

	serve(p.Guard(AuthenticatedOnly(), echoHandler(new(bool))), "")
	serve(p.Guard(RequiresRole(common.RoleAdmin), echoHandler(new(bool))), f.bearer(t, "u1"))
	serve(p.Guard(Public(), echoHandler(new(bool))), "")

	assert.Equal(t, 1.0, counterValue(t, f.metrics.Decisions, "unauthenticated"))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.Decisions, "forbidden"))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.Decisions, "allowed"))
}
