// Package server runs the Overture HTTP service: the decision API plus
// the health, version, and metrics endpoints, under one middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"signalhouse/overture/pkg/api"
	"signalhouse/overture/pkg/config"
	"signalhouse/overture/pkg/telemetry/health"
	"signalhouse/overture/pkg/telemetry/metrics"
)

// BuildInfo identifies the running binary on /version. The values are
// stamped at link time by the build.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server owns the HTTP listener and its graceful lifecycle. Readiness
// probes are registered on the checker by the caller before Start; the
// server only mounts the endpoints.
type Server struct {
	cfg        *config.ServerConfig
	metricsCfg *config.MetricsConfig
	api        *api.API
	checker    *health.Checker
	collector  *metrics.Collector
	build      BuildInfo
	logger     *slog.Logger

	httpServer   *http.Server
	shutdownChan chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once

	mu        sync.RWMutex
	isRunning bool
	addr      string
}

// New assembles a server over the decision API. A nil checker serves
// readiness with no probes; a nil or disabled collector leaves the
// metrics endpoint unmounted.
func New(cfg *config.ServerConfig, metricsCfg *config.MetricsConfig, apiSurface *api.API, checker *health.Checker, collector *metrics.Collector, build BuildInfo, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = &config.DefaultConfig().Server
	}
	if checker == nil {
		checker = health.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		metricsCfg:   metricsCfg,
		api:          apiSurface,
		checker:      checker,
		collector:    collector,
		build:        build,
		logger:       logger.With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start binds the listen address and serves until the context is
// cancelled, a shutdown signal arrives, Stop is called, or the listener
// fails. A bind failure is returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddress, err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server started",
			"address", listener.Addr().String(),
			"request_timeout", s.cfg.RequestTimeout.String(),
		)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("serving: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Stop requests a graceful shutdown of a server blocked in Start. It is
// safe to call more than once and before Start.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// Shutdown drains in-flight requests, bounded by the configured shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		s.logger.Info("draining requests", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("shutdown incomplete", "error", err)
				shutdownErr = fmt.Errorf("shutting down: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// Handler returns the fully assembled handler: decision API routes,
// operational endpoints, and the middleware chain. Useful for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.api != nil {
		s.api.Register(mux)
	}

	mux.HandleFunc("/health", s.checker.LivenessHandler())
	mux.HandleFunc("/ready", s.checker.ReadinessHandler())
	mux.HandleFunc("/version", health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))

	if s.collector.Enabled() {
		mux.Handle(s.metricsPath(), s.collector.Handler())
	}

	// Innermost first; Recovery ends up outermost so it also covers the
	// other middlewares.
	var handler http.Handler = mux
	handler = api.CORS(&s.cfg.CORS)(handler)
	if s.cfg.RequestTimeout > 0 {
		handler = api.Timeout(s.cfg.RequestTimeout)(handler)
	}
	handler = api.Logging(s.logger)(handler)
	handler = api.RequestID(handler)
	handler = api.Recovery(s.logger)(handler)

	return handler
}

// Addr returns the bound listen address, useful when the configured port
// is 0. Empty until Start has bound the listener.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// IsRunning reports whether Start has bound the listener and not yet
// shut down.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Health reports whether the server is running and every readiness probe
// passes. The run command uses it to verify startup before declaring the
// service up.
func (s *Server) Health(ctx context.Context) error {
	if !s.IsRunning() {
		return errors.New("server is not running")
	}

	report := s.checker.Readiness(ctx)
	if report.Status == health.StatusReady {
		return nil
	}
	for name, result := range report.Checks {
		if result.Status == health.StatusUnhealthy {
			return fmt.Errorf("probe %s: %s", name, result.Message)
		}
	}
	return fmt.Errorf("readiness %s", report.Status)
}

func (s *Server) metricsPath() string {
	if s.metricsCfg != nil && s.metricsCfg.Path != "" {
		return s.metricsCfg.Path
	}
	return config.DefaultMetricsPath
}
