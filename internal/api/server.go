package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/printwatch/internal/audit"
	"github.com/nerrad567/printwatch/internal/history"
	"github.com/nerrad567/printwatch/internal/infrastructure/config"
	"github.com/nerrad567/printwatch/internal/infrastructure/logging"
	"github.com/nerrad567/printwatch/internal/printer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Authorizer answers access-level checks. *access.Registry implements it.
type Authorizer interface {
	IsAuthorized(userID int64, level string) bool
}

// StateSource exposes the last observed printer state. *watcher.Watcher
// implements it.
type StateSource interface {
	Current() (printer.State, bool)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Authorizer   Authorizer
	MonitorLevel string
	ControlLevel string
	State        StateSource
	History      history.Repository // optional
	Audit        audit.Repository   // optional
	Version      string
}

// Server is the HTTP API server.
//
// It owns the HTTP listener and the WebSocket state feed.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secret       string
	logger       *logging.Logger
	authorizer   Authorizer
	monitorLevel string
	controlLevel string
	state        StateSource
	history      history.Repository
	audit        audit.Repository
	auditor      *audit.Recorder
	feed         *Feed
	version      string
	server       *http.Server
	cancel       context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if deps.State == nil {
		return nil, errors.New("state source is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        withWebSocketDefaults(deps.WS),
		secret:       deps.Security.JWT.Secret,
		logger:       deps.Logger,
		authorizer:   deps.Authorizer,
		monitorLevel: deps.MonitorLevel,
		controlLevel: deps.ControlLevel,
		state:        deps.State,
		history:      deps.History,
		audit:        deps.Audit,
		version:      deps.Version,
	}
	if deps.Audit != nil {
		s.auditor = audit.NewRecorder(deps.Audit)
		s.auditor.SetLogger(deps.Logger)
	}
	s.feed = NewFeed(s.wsCfg, deps.State, deps.Logger)
	return s, nil
}

// Feed returns the WebSocket state feed. Register it as a watcher observer
// to stream transitions to connected clients.
func (s *Server) Feed() *Feed {
	return s.feed
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The feed runs until Close is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.feed.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

func withWebSocketDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return cfg
}
