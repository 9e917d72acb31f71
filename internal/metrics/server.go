package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Config for the standalone metrics endpoint.
type Config struct {
	Enabled bool   `default:"true"`
	Port    string `default:"9090"`
}

// Server exposes /metrics on its own port so scraping never competes
// with the API listener.
type Server struct {
	srv    *http.Server
	logger *logrus.Logger
}

// StartMetricsServer registers the given service metrics and starts the
// scrape endpoint. Returns nil when metrics are disabled.
func StartMetricsServer(cfg Config, services []string, logger *logrus.Logger) *Server {
	if !cfg.Enabled {
		return nil
	}

	RegisterMetrics(services, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv: &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: mux,
		},
		logger: logger,
	}

	go func() {
		logger.Infof("metrics server listening on :%s", cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()

	return s
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
