// Package grpcapi exposes the same read-only batch introspection as
// internal/httpapi over gRPC: BatchService.GetBatch and GetProgress,
// wrapping a single shared BatchManager.
package grpcapi

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/observability"
)

// ServerConfig configures NewServer.
type ServerConfig struct {
	Port    int
	Manager *batchmgr.BatchManager
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server wraps the grpc.Server serving BatchService.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *observability.Logger
}

// NewServer builds and binds a Server; call Start to begin serving.
func NewServer(config *ServerConfig) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", config.Port, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(config.Logger),
			recoveryInterceptor(config.Logger),
			metricsInterceptor(config.Metrics),
		),
	)

	server := &Server{
		grpcServer: grpcServer,
		listener:   listener,
		logger:     config.Logger,
	}

	server.registerServices(config.Manager)
	reflection.Register(grpcServer)

	return server, nil
}

func (s *Server) registerServices(mgr *batchmgr.BatchManager) {
	s.grpcServer.RegisterService(&batchServiceDesc, NewBatchService(mgr, s.logger))
}

// Start blocks serving RPCs until Stop is called.
func (s *Server) Start() error {
	s.logger.Infof("gRPC server listening on %s", s.listener.Addr().String())
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// GetListener returns the bound listener, useful for tests.
func (s *Server) GetListener() net.Listener {
	return s.listener
}
