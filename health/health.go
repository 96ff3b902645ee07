// Package health serves the standard gRPC health protocol for the process.
package health

import (
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/coupserver/logger"
)

// Service is the health service name reported for the game server.
const Service = "coup.GameServer"

type Server struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *grpchealth.Server
}

// New listens on addr. Both the overall ("") and the game service start
// NOT_SERVING until SetServing is called.
func New(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s := &Server{
		listener: listener,
		grpc:     grpc.NewServer(),
		health:   grpchealth.NewServer(),
	}
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Serve blocks until Stop.
func (s *Server) Serve() error {
	logger.Log.Infof("health server listening on %s", s.Addr())
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC health: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers and then stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
