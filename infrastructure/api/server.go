package api

import (
	"context"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

// NewHandler exposes status, health and prometheus metrics.
func NewHandler(status *StatusCache) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/status", status)
	mux.HandleFunc("GET /health", Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// RunHTTPServer runs the http server until ctx is done.
func RunHTTPServer(ctx context.Context, listenAddr string, handler http.Handler, logger *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("Starting http server", "address", listenAddr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-serverErr // http.ErrServerClosed
	return err
}

// HealthServer reports the service health over grpc.health.v1.
type HealthServer struct {
	health *health.Server
}

func NewHealthServer() *HealthServer {
	return &HealthServer{health: health.NewServer()}
}

func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Serve runs the grpc server until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, listenAddr string, logger *zap.SugaredLogger) error {
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, h.health)
	reflection.Register(srv)

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("Starting grpc server", "address", listenAddr)
		serverErr <- srv.Serve(lis)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		h.health.Shutdown()
		srv.GracefulStop()
		return nil
	}
}
