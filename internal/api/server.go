package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/application"
	"github.com/nerrad567/gray-logic-edge/internal/audit"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/work"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Orchestrator is the part of *work.Orchestrator the server uses.
type Orchestrator interface {
	Status() work.Status
	Retry() error
}

// ApplicationStatus reports the device application. *application.App
// satisfies it.
type ApplicationStatus interface {
	Status() application.Status
}

// HealthChecker is a dependency checked by /healthz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// TokenVerifier checks operator bearer tokens. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(token string) bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Logger       *logging.Logger
	Orchestrator Orchestrator
	Application  ApplicationStatus        // optional
	Sessions     audit.Repository         // optional: enables /v1/sessions
	Metrics      http.Handler             // optional: enables /metrics
	Checks       map[string]HealthChecker // optional
	Events       *Hub                     // optional: enables /v1/events
	Tokens       TokenVerifier            // optional: guards POST /v1/retry
	BootID       string
	Version      string
}

// Server is the HTTP status server.
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	orchestrator Orchestrator
	application  ApplicationStatus
	sessions     audit.Repository
	metrics      http.Handler
	checks       map[string]HealthChecker
	events       *Hub
	tokens       TokenVerifier
	bootID       string
	version      string
	started      time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server. The server is not started until Start() is
// called.
//
// Parameters:
//   - deps: Configuration, logger and the orchestrator are required; the
//     session log, event hub, health checks and token verifier are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		orchestrator: deps.Orchestrator,
		application:  deps.Application,
		sessions:     deps.Sessions,
		metrics:      deps.Metrics,
		checks:       deps.Checks,
		events:       deps.Events,
		tokens:       deps.Tokens,
		bootID:       deps.BootID,
		version:      deps.Version,
		started:      time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine. Binding
// errors (port in use) are returned directly.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrAlreadyStarted
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.server = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
