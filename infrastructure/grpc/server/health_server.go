package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"trainer-chat/auth"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// MessagingService is the name probes use to ask about the messaging store.
const MessagingService = "trainerchat.Messaging"

const DefaultProbeInterval = 5 * time.Second

// Store is what the health server probes, *badger.DB satisfies it.
type Store interface {
	IsClosed() bool
}

// HealthServer exposes grpc.health.v1 and reports SERVING while the store is open.
type HealthServer struct {
	log           *slog.Logger
	address       string
	store         Store
	validator     *auth.TokenValidator
	probeInterval time.Duration
	health        *health.Server
}

func NewHealthServer(log *slog.Logger, address string, store Store,
	validator *auth.TokenValidator, probeInterval time.Duration) *HealthServer {
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	return &HealthServer{
		log:           log,
		address:       address,
		store:         store,
		validator:     validator,
		probeInterval: probeInterval,
		health:        health.NewServer(),
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(s.log),
			s.validator.UnaryInterceptor(grpc_health_v1.Health_Check_FullMethodName),
		))
	grpc_health_v1.RegisterHealthServer(srv, s.health)
	s.refresh()

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting gRPC health server", "address", s.address, "at", time.Now().UTC())
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			srv.GracefulStop()
			return nil
		case err := <-errChan:
			srv.Stop()
			return err
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *HealthServer) refresh() {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if s.store.IsClosed() {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(MessagingService, status)
}
