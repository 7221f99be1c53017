package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TrasparenzAI/rule-service/internal/logger"
)

// Server is a gin engine with lifecycle management.
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger logger.Logger
	config *Config
}

// Builder assembles a Server.
type Builder struct {
	config  *Config
	logger  logger.Logger
	routes  []func(*gin.Engine)
	checks  map[string]HealthChecker
	metrics http.Handler
}

// NewBuilder starts a server definition for the named service.
func NewBuilder(cfg Config) *Builder {
	return &Builder{config: &cfg, checks: make(map[string]HealthChecker)}
}

// WithLogger sets the server logger.
func (b *Builder) WithLogger(log logger.Logger) *Builder {
	b.logger = log
	return b
}

// WithHealthCheck adds a named check to GET /health.
func (b *Builder) WithHealthCheck(name string, check HealthChecker) *Builder {
	b.checks[name] = check
	return b
}

// WithMetrics serves h on GET /metrics.
func (b *Builder) WithMetrics(h http.Handler) *Builder {
	b.metrics = h
	return b
}

// WithRoutes registers service routes. It can be called more than once.
func (b *Builder) WithRoutes(setup func(*gin.Engine)) *Builder {
	b.routes = append(b.routes, setup)
	return b
}

// Build creates the server.
func (b *Builder) Build() *Server {
	log := b.logger
	if log == nil {
		log = logger.NewNop()
	}
	cfg := b.config
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		RecoveryMiddleware(log),
		RequestIDLoggerMiddleware(log),
		LoggerMiddleware(),
		CORSMiddleware(cfg.CORS),
	)

	RegisterHealthRoutes(router, cfg.ServiceName, cfg.ServiceVersion, time.Now(), b.checks)
	if b.metrics != nil {
		router.GET("/metrics", gin.WrapH(b.metrics))
	}
	for _, setup := range b.routes {
		setup(router)
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: log,
		config: cfg,
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		logger.String("address", s.http.Addr),
		logger.String("service", s.config.ServiceName),
		logger.String("version", s.config.ServiceVersion),
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains active connections within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", logger.Duration("timeout", s.config.ShutdownTimeout))

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	}

	//nolint:contextcheck // ctx is already done, shutdown needs a live one
	return s.Shutdown(context.Background())
}
