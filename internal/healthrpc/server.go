// Package healthrpc mirrors pipeline status through the standard gRPC health service.
package healthrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

// Service names registered with the health server. The empty name is the overall status.
const (
	ServiceOverall = ""
	ServiceMic     = "mic"
	ServiceRec     = "rec"
	ServiceRcon    = "rcon"
	ServicePlayer  = "player"
)

// Server is a gRPC server exposing only grpc.health.v1.Health.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// New creates a server with every service NOT_SERVING.
func New(logger *slog.Logger) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, logger: logger}
	for _, name := range []string{ServiceOverall, ServiceMic, ServiceRec, ServiceRcon, ServicePlayer} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Apply maps one snapshot onto the per-service statuses.
func (s *Server) Apply(snap status.Snapshot) {
	s.health.SetServingStatus(ServiceMic, serving(snap.Mic == fsm.MicListening))
	s.health.SetServingStatus(ServiceRec, serving(snap.Rec != fsm.RecError))
	s.health.SetServingStatus(ServiceRcon, serving(snap.Rcon == fsm.RconConnected))
	s.health.SetServingStatus(ServicePlayer, serving(snap.Player == fsm.PlayerLocated))
	s.health.SetServingStatus(ServiceOverall, serving(snap.Ready() && !snap.Restarting))
}

// Serve answers health checks on lis and mirrors snaps until ctx ends or snaps closes.
func (s *Server) Serve(ctx context.Context, lis net.Listener, snaps <-chan status.Snapshot) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer s.stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				s.Apply(snap)
			}
		}
	})

	if s.logger != nil {
		s.logger.Info("health server listening", "addr", lis.Addr().String())
	}
	return g.Wait()
}

func (s *Server) stop() {
	// Shutdown flips every service to NOT_SERVING so watchers see the exit.
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func serving(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
