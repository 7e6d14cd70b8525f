package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/authn"
)

const (
	sessionsServiceName = "sessionkeeper.v1.Sessions"
	sessionsMeMethod    = "/" + sessionsServiceName + "/Me"
)

// SessionsServer is the authenticated session service. Me answers with the
// caller's access token claims.
type SessionsServer interface {
	Me(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

func sessionsMeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsServer).Me(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sessionsMeMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionsServer).Me(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var sessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionsServiceName,
	HandlerType: (*SessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Me", Handler: sessionsMeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func (s *GRPCServer) Me(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	claims, ok := authn.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "TOKEN_REQUIRED")
	}

	fields := map[string]interface{}{
		"userId":   claims.UserID,
		"name":     claims.Name,
		"authCode": claims.AuthCode,
	}
	if claims.ExpiresAt != nil {
		fields["expiresAt"] = claims.ExpiresAt.Unix()
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "INTERNAL_ERROR")
	}
	return out, nil
}
