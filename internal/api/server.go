// Package api exposes the orchestrator over HTTP: lifecycle submission
// endpoints, operation polling, live status queries and streaming.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/config"
	"github.com/devcage/devcage/internal/middleware"
	"github.com/devcage/devcage/internal/ops"
	"github.com/devcage/devcage/internal/runtime"
	"github.com/devcage/devcage/internal/utils"
)

// Server is the HTTP front end over the orchestrator.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	logger     *logrus.Logger

	adapter      runtime.Adapter
	clients      *runtime.ClientManager
	orchestrator *ops.Orchestrator
	coordinator  *ops.Coordinator

	stopLimiterJanitor func()
	shutdownCh         chan os.Signal
}

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Adapter      runtime.Adapter
	Clients      *runtime.ClientManager
	Orchestrator *ops.Orchestrator
	Coordinator  *ops.Coordinator
}

// NewServer creates an API server with its middleware chain and routes
// registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Adapter == nil {
		return nil, errors.New("runtime adapter is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}

	switch cfg.Config.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:       cfg.Config,
		logger:       cfg.Logger,
		adapter:      cfg.Adapter,
		clients:      cfg.Clients,
		orchestrator: cfg.Orchestrator,
		coordinator:  cfg.Coordinator,
		shutdownCh:   make(chan os.Signal, 1),
	}

	limiter := utils.NewRateLimiter(50, 100)
	server.stopLimiterJanitor = limiter.StartJanitor(10*time.Minute, 10*time.Minute)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(limiter))

	if len(cfg.Config.Server.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Config.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("invalid trusted proxies: %w", err)
		}
	}

	server.router = router
	server.registerRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Server.Host, cfg.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Config.Server.ReadTimeout,
		WriteTimeout: cfg.Config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// Start serves HTTP in the background and installs the signal handler that
// triggers graceful shutdown.
func (s *Server) Start() error {
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.WithField("address", s.httpServer.Addr).Info("starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Wait blocks until a shutdown signal arrives, then shuts down.
func (s *Server) Wait() {
	<-s.shutdownCh
	s.logger.Info("shutdown signal received")
	s.Shutdown()
}

// Shutdown drains in-flight HTTP requests, stops the orchestrator and
// closes the runtime client.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("error during server shutdown")
	}

	s.stopLimiterJanitor()
	s.orchestrator.Stop()

	if s.clients != nil {
		if err := s.clients.Close(); err != nil {
			s.logger.WithError(err).Error("error closing runtime client")
		}
	}

	s.logger.Info("API server shutdown complete")
}

// Router returns the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
