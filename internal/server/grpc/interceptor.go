package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/authn"
)

// publicMethods skip authentication.
var publicMethods = map[string]struct{}{
	"/grpc.health.v1.Health/Check": {},
	"/grpc.health.v1.Health/Watch": {},
	"/grpc.health.v1.Health/List":  {},
}

// Status messages carry the same codes as the REST error bodies.
var unauthenticated = []struct {
	err  error
	code string
}{
	{common.ErrTokenRequired, "TOKEN_REQUIRED"},
	{common.ErrAccessExpired, "ACCESS_EXPIRED"},
	{common.ErrInvalidRefreshToken, "INVALID_REFRESH_TOKEN"},
	{common.ErrRefreshExpired, "REFRESH_EXPIRED"},
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if _, ok := publicMethods[info.FullMethod]; ok {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	claims, err := s.authn.Authenticate(ctx,
		firstValue(md, strings.ToLower(common.AuthorizationHeaderName)),
		firstValue(md, strings.ToLower(common.DeviceIDHeaderName)),
	)
	if err != nil {
		return nil, s.toStatus(ctx, info.FullMethod, err)
	}

	return handler(authn.WithClaims(ctx, claims), req)
}

func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	for _, u := range unauthenticated {
		if errors.Is(err, u.err) {
			return status.Error(codes.Unauthenticated, u.code)
		}
	}
	s.logger.Error(ctx, "authentication failed", "method", method, "error", err)
	return status.Error(codes.Internal, "INTERNAL_ERROR")
}
