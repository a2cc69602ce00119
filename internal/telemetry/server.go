package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dcagrid/internal/core"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the read-only /metrics endpoint. It implements
// bootstrap.Runner so it runs under App.Run's errgroup; Recovery and the
// Registry's supervisors are not part of that group (spec §1 places the
// HTTP surface out of scope except for this one ambient observability
// endpoint).
type Server struct {
	port   int
	logger core.Logger
}

func NewServer(port int, logger core.Logger) *Server {
	return &Server{port: port, logger: logger.WithField("component", "metrics_server")}
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", "port", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("telemetry: metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("metrics server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
