// Package grpc exposes the gRPC surface of the session service: the standard
// health service and the authenticated Sessions service, behind an
// interceptor that runs the request authenticator.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
)

// Authenticator is satisfied by *authn.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization, deviceID string) (*auth.Claims, error)
}

type GRPCServer struct {
	address string
	authn   Authenticator
	health  *health.Server
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, authn Authenticator) *GRPCServer {
	return &GRPCServer{
		address: a,
		authn:   authn,
		health:  health.NewServer(),
		logger:  l.With("module", "grpc_server"),
	}
}

// Health returns the health server so callers can flip serving status.
func (s *GRPCServer) Health() *health.Server {
	return s.health
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	srv.RegisterService(&sessionsServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
