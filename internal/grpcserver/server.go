package grpcserver

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/patric-chuzhbe/userapi/internal/grpcserver/interceptor"
)

type authenticator interface {
	Enabled() bool
	GetSubjectFromToken(tokenString string) (string, error)
}

// NewGRPCServer binds addr and returns a server exposing userapi.UserService
// and the standard health service. The caller owns Serve and Stop.
func NewGRPCServer(
	addr string,
	handler UserServiceServer,
	auth authenticator,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	authInterceptor := interceptor.NewAuthInterceptor(auth)

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor([]string{
				GetUserMethod,
				ListUsersMethod,
			}),
			authInterceptor.UnaryAuthInterceptor([]string{
				GetUserMethod,
				ListUsersMethod,
			}),
		),
	)
	RegisterUserServiceServer(server, handler)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, lis, nil
}
