package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MethodRequirements declares the access rule of every served method.
// Methods missing here require an authenticated caller.
var MethodRequirements = map[string]security.Requirement{
	healthpb.Health_Check_FullMethodName: security.Public(),
	healthpb.Health_Watch_FullMethodName: security.Public(),
	WhoAmIFullMethod:                     security.AuthenticatedOnly(),
	GetUserFullMethod:                    security.RequiresRole(common.RoleAdmin),
}

// AuthInterceptor applies the same authenticate-then-authorize pipeline as
// the HTTP transport, reading the credential from the "authorization"
// metadata key.
type AuthInterceptor struct {
	authn        *security.Authenticator
	requirements map[string]security.Requirement
	logger       logging.Logger
}

func NewAuthInterceptor(authn *security.Authenticator, requirements map[string]security.Requirement, logger logging.Logger) *AuthInterceptor {
	return &AuthInterceptor{authn: authn, requirements: requirements, logger: logger.With("module", "grpc_auth")}
}

func (a *AuthInterceptor) requirement(method string) security.Requirement {
	if req, ok := a.requirements[method]; ok {
		return req
	}
	return security.AuthenticatedOnly()
}

func credential(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(common.AuthorizationMetadataKey); len(values) > 0 {
		return values[0]
	}
	return ""
}

// guard returns the context to hand to the handler, or a status error.
func (a *AuthInterceptor) guard(ctx context.Context, method string) (context.Context, error) {
	sc, err := a.authn.Authenticate(ctx, credential(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		a.logger.Error(ctx, "authentication failed", "method", method, "error", err)
		return nil, status.Error(codes.Internal, security.MsgInternalError)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	req := a.requirement(method)
	d := security.Authorize(sc, req)
	if !d.Allowed {
		a.logger.Debug(ctx, "call denied", "method", method, "requirement", req.String(), "reason", d.Reason.String())
		if d.Reason == security.DenyForbidden {
			return nil, status.Error(codes.PermissionDenied, security.MsgForbidden)
		}
		return nil, status.Error(codes.Unauthenticated, security.MsgUnauthorized)
	}

	return security.WithContext(ctx, sc), nil
}

func (a *AuthInterceptor) Unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := a.guard(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (a *AuthInterceptor) Stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := a.guard(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &guardedStream{ServerStream: ss, ctx: ctx})
}

type guardedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *guardedStream) Context() context.Context {
	return s.ctx
}
