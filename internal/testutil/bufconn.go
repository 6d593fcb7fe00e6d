// Package testutil provides in-process gRPC servers and scripted fakes for
// pool, prober, and dialer seams.
package testutil

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// BufconnServer is an in-process gRPC server reachable without sockets.
type BufconnServer struct {
	Server   *grpc.Server
	Health   *health.Server
	listener *bufconn.Listener
}

// NewBufconnServer starts a gRPC server with the standard health service
// registered and serving. Extra services can be registered on Server before
// the first Dial.
func NewBufconnServer() *BufconnServer {
	s := &BufconnServer{
		Server:   grpc.NewServer(),
		Health:   health.NewServer(),
		listener: bufconn.Listen(bufSize),
	}
	s.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s.Server, s.Health)

	go func() {
		_ = s.Server.Serve(s.listener)
	}()
	return s
}

// Dial opens a client connection to the in-process server.
func (s *BufconnServer) Dial(ctx context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

// SetNotServing flips the health service to NOT_SERVING.
func (s *BufconnServer) SetNotServing() {
	s.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// SetServing flips the health service back to SERVING.
func (s *BufconnServer) SetServing() {
	s.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// Stop shuts the server down.
func (s *BufconnServer) Stop() {
	s.Server.Stop()
}
