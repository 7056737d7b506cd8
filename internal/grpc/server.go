package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const DefaultProbeInterval = 15 * time.Second

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Server is the operational gRPC endpoint: standard health checking and
// reflection for grpcurl.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *logrus.Entry

	mu     sync.Mutex
	probes map[string]Probe
}

func NewServer(log *logrus.Entry) *Server {
	log = log.WithField("component", "grpc")
	s := &Server{
		health: health.NewServer(),
		log:    log,
		probes: make(map[string]Probe),
	}
	s.srv = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(recoveryInterceptor(log), loggingInterceptor(log)),
	)
	healthpb.RegisterHealthServer(s.srv, s.health)
	reflection.Register(s.srv)
	return s
}

// AddProbe registers a dependency reported under the given health service
// name. The overall ("") status is SERVING only while every probe passes.
func (s *Server) AddProbe(service string, p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[service] = p
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
}

// CheckOnce runs every probe and publishes the results.
func (s *Server) CheckOnce(ctx context.Context) {
	s.mu.Lock()
	probes := make(map[string]Probe, len(s.probes))
	for name, p := range s.probes {
		probes[name] = p
	}
	s.mu.Unlock()

	overall := healthpb.HealthCheckResponse_SERVING
	for name, p := range probes {
		st := healthpb.HealthCheckResponse_SERVING
		if err := p(ctx); err != nil {
			s.log.WithError(err).WithField("service", name).Warn("health probe failed")
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)
}

// RunProbes checks dependencies every interval until ctx is cancelled.
func (s *Server) RunProbes(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.probe(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx, interval)
		}
	}
}

func (s *Server) probe(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.CheckOnce(ctx)
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.WithField("addr", lis.Addr().String()).Info("gRPC server listening")
	return s.srv.Serve(lis)
}

// GracefulStop reports NOT_SERVING to every watcher before draining.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func loggingInterceptor(log *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("rpc failed")
		} else {
			entry.Debug("rpc served")
		}
		return resp, err
	}
}

func recoveryInterceptor(log *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("method", info.FullMethod).Errorf("panic in rpc: %v", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
