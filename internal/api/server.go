package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
	"github.com/nerrad567/inkframe/internal/infrastructure/logging"
	"github.com/nerrad567/inkframe/internal/ledger"
	"github.com/nerrad567/inkframe/internal/mode"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Request timeouts. The API only serves small read-only responses.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// HealthChecker is a dependency the health endpoint checks (the database).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LedgerReader returns what a display is showing.
type LedgerReader interface {
	Current(ctx context.Context, displayID string) (*ledger.Render, error)
}

// ChannelStatus reports whether the message channel is connected.
type ChannelStatus interface {
	ChannelConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	// Logger is tagged with component=api and the device ID by New.
	Logger  *logging.Logger
	Version string

	DeviceID string
	Display  DisplayInfo

	State    *mode.State
	Channel  ChannelStatus
	Ledger   LedgerReader
	Database HealthChecker
	// Metrics serves /metrics. Optional.
	Metrics http.Handler
}

// DisplayInfo describes the panel in status responses.
type DisplayInfo struct {
	Model  string `json:"model"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Server is the frame's local status API.
//
// It is created with New, started with Start (or Run), and stopped with Close.
type Server struct {
	deps      Deps
	logger    *logging.Logger
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("mode state is required")
	}

	return &Server{
		deps:      deps,
		logger:    deps.Logger.Component("api").With("device_id", deps.DeviceID),
		startTime: time.Now(),
	}, nil
}

// Handler returns the router. Used by Start and tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.deps.Config.Host, fmt.Sprint(s.deps.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Run starts the server and blocks until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
