package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/auth"
	"github.com/dmitrijs2005/gophgate/internal/server/identity"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/dmitrijs2005/gophgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"github.com/dmitrijs2005/gophgate/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type testEnv struct {
	conn    *grpc.ClientConn
	users   *services.UserService
	tokens  *auth.TokenService
	userID  string
	adminID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	ring, err := auth.NewKeyRing([]byte("grpc-test-signing-key-0123456789abcdef"))
	require.NoError(t, err)
	tokens := auth.NewTokenService(ring, time.Hour, auth.SystemClock)
	rm := repomanager.NewMemoryRepositoryManager()
	hashes := auth.NewHashPool(auth.NewPasswordVerifier(bcrypt.MinCost), 2)
	us := services.NewUserService(rm, tokens, hashes, logging.Nop(), nil)

	u, err := us.Register(ctx, "alice", "Alice", "alice-secret")
	require.NoError(t, err)
	_, err = us.EnsureAdmin(ctx, "root", "root-secret")
	require.NoError(t, err)
	admin, err := rm.Users().GetByUsername(ctx, "root")
	require.NoError(t, err)

	authn := security.NewAuthenticator(tokens, identity.NewLoader(rm.Users()), time.Now, logging.Nop(), nil)
	srv := NewGRPCServer("bufnet", logging.Nop(), us, NewAuthInterceptor(authn, MethodRequirements, logging.Nop()))

	lis := bufconn.Listen(1 << 20)
	sctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(sctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})

	return &testEnv{conn: conn, users: us, tokens: tokens, userID: u.ID, adminID: admin.ID}
}

func (e *testEnv) withToken(t *testing.T, subject string) context.Context {
	t.Helper()
	tok, err := e.tokens.Issue(subject, time.Now())
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AuthorizationMetadataKey, "Bearer "+tok.Value)
}

func (e *testEnv) whoAmI(ctx context.Context) (*IdentityReply, error) {
	out := new(IdentityReply)
	err := e.conn.Invoke(ctx, WhoAmIFullMethod, &WhoAmIRequest{}, out, grpc.CallContentSubtype(JSONCodecName))
	return out, err
}

func (e *testEnv) getUser(ctx context.Context, id string) (*IdentityReply, error) {
	out := new(IdentityReply)
	err := e.conn.Invoke(ctx, GetUserFullMethod, &GetUserRequest{ID: id}, out, grpc.CallContentSubtype(JSONCodecName))
	return out, err
}

func TestHealth_IsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestWhoAmI(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.whoAmI(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), common.AuthorizationMetadataKey, "Bearer garbage")
	_, err = env.whoAmI(bad)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	reply, err := env.whoAmI(env.withToken(t, env.userID))
	require.NoError(t, err)
	assert.Equal(t, env.userID, reply.ID)
	assert.Equal(t, "alice", reply.Username)
	assert.Equal(t, []string{common.RoleUser}, reply.Roles)
}

func TestGetUser_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.getUser(context.Background(), env.userID)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.getUser(env.withToken(t, env.userID), env.userID)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	reply, err := env.getUser(env.withToken(t, env.adminID), env.userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", reply.Username)

	_, err = env.getUser(env.withToken(t, env.adminID), "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDisabledUserLosesAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.withToken(t, env.userID)

	_, err := env.whoAmI(ctx)
	require.NoError(t, err)

	require.NoError(t, env.users.SetDisabled(context.Background(), env.userID, true))

	_, err = env.whoAmI(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

// ---- interceptor unit tests ----

type brokenLoader struct{}

func (brokenLoader) Load(context.Context, string) (models.Identity, bool, error) {
	return models.Identity{}, false, common.ErrStoreUnavailable
}

func TestInterceptor_UnknownMethodRequiresAuthentication(t *testing.T) {
	ring, err := auth.NewKeyRing([]byte("grpc-test-signing-key-0123456789abcdef"))
	require.NoError(t, err)
	authn := security.NewAuthenticator(auth.NewTokenService(ring, time.Hour, nil), brokenLoader{}, time.Now, logging.Nop(), nil)
	a := NewAuthInterceptor(authn, MethodRequirements, logging.Nop())

	called := false
	h := func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	}

	_, err = a.Unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/pkg.Service/Other"}, h)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, called)
}

func TestInterceptor_StoreFailureIsInternal(t *testing.T) {
	ring, err := auth.NewKeyRing([]byte("grpc-test-signing-key-0123456789abcdef"))
	require.NoError(t, err)
	tokens := auth.NewTokenService(ring, time.Hour, nil)
	authn := security.NewAuthenticator(tokens, brokenLoader{}, time.Now, logging.Nop(), nil)
	a := NewAuthInterceptor(authn, MethodRequirements, logging.Nop())

	tok, err := tokens.Issue("u1", time.Now())
	require.NoError(t, err)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AuthorizationMetadataKey, "Bearer "+tok.Value))

	called := false
	h := func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	}

	_, err = a.Unary(ctx, nil, &grpc.UnaryServerInfo{FullMethod: WhoAmIFullMethod}, h)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.False(t, called)
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), nil, &AuthInterceptor{})
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
