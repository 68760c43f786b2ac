package health

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name reported for the book feed. The empty
// service name mirrors it as the overall server status.
const Service = "ladder.feed"

// Server wraps a gRPC server exposing the standard health service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	log        zerolog.Logger
}

// New creates a health server bound to addr. An addr of the form
// "unix:/path" listens on a Unix domain socket; anything else is TCP.
// The feed starts out NOT_SERVING.
func New(addr string, logger zerolog.Logger) (*Server, error) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		return newUnix(path, logger)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health: listen on %s: %w", addr, err)
	}
	return newServer(lis, "", logger), nil
}

func newUnix(socketPath string, logger zerolog.Logger) (*Server, error) {
	// Ensure the socket directory exists.
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("health: create socket directory: %w", err)
	}

	// Remove any stale socket file from a previous run.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("health: remove stale socket: %w", err)
	}

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("health: listen on unix socket %s: %w", socketPath, err)
	}
	return newServer(lis, socketPath, logger), nil
}

func newServer(lis net.Listener, socketPath string, logger zerolog.Logger) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		grpcServer: gs,
		health:     hs,
		listener:   lis,
		socketPath: socketPath,
		log:        logger.With().Str("component", "health").Logger(),
	}
	s.SetServing(false)
	return s
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// SetServing flips the feed status. Watchers are notified by the health
// service itself.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, status)
	s.health.SetServingStatus("", status)
	s.log.Debug().Str("status", status.String()).Msg("health status")
}

// Serve starts accepting gRPC connections. It blocks until the server
// is stopped or an error occurs.
func (s *Server) Serve() error {
	s.log.Info().Str("addr", s.listener.Addr().String()).Msg("health listening")
	return s.grpcServer.Serve(s.listener)
}

// GracefulStop drains in-flight RPCs and cleans up the socket file, if any.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.listener.Close()
	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}
}
