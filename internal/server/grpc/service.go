package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/models"
	"github.com/dmitrijs2005/gophgate/internal/server/security"
	"github.com/dmitrijs2005/gophgate/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	IdentityServiceName = "gophgate.v1.Identity"
	WhoAmIFullMethod    = "/" + IdentityServiceName + "/WhoAmI"
	GetUserFullMethod   = "/" + IdentityServiceName + "/GetUser"
)

type WhoAmIRequest struct{}

type GetUserRequest struct {
	ID string `json:"id"`
}

type IdentityReply struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	Enabled     bool     `json:"enabled"`
}

func replyFromIdentity(id models.Identity) *IdentityReply {
	return &IdentityReply{
		ID:          id.ID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Roles:       id.Roles,
		Enabled:     id.Enabled,
	}
}

type IdentityServer interface {
	WhoAmI(ctx context.Context, in *WhoAmIRequest) (*IdentityReply, error)
	GetUser(ctx context.Context, in *GetUserRequest) (*IdentityReply, error)
}

type identityService struct {
	users *services.UserService
}

func (s *identityService) WhoAmI(ctx context.Context, _ *WhoAmIRequest) (*IdentityReply, error) {
	id, ok := security.FromContext(ctx).Identity()
	if !ok {
		return nil, status.Error(codes.Unauthenticated, security.MsgUnauthorized)
	}
	return replyFromIdentity(id), nil
}

func (s *identityService) GetUser(ctx context.Context, in *GetUserRequest) (*IdentityReply, error) {
	user, err := s.users.GetUser(ctx, in.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, status.Error(codes.NotFound, "not found")
		}
		return nil, status.Error(codes.Internal, security.MsgInternalError)
	}
	return replyFromIdentity(user.Identity()), nil
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WhoAmIRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).WhoAmI(ctx, req.(*WhoAmIRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetUserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).GetUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetUserFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).GetUser(ctx, req.(*GetUserRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// identityServiceDesc is declared by hand; messages travel with the json
// codec.
var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
		{MethodName: "GetUser", Handler: getUserHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophgate/v1/identity",
}
