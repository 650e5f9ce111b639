package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/history"
	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
	"github.com/Dlizzz/catspaw/internal/infrastructure/logging"
	"github.com/Dlizzz/catspaw/internal/power"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the receiver surface served by the API.
// Satisfied by *avr.Controller.
type Controller interface {
	State() avr.State
	PowerOn(ctx context.Context) avr.Outcome
	PowerOff(ctx context.Context) avr.Outcome
	QueryPower(ctx context.Context) avr.Outcome
	VolumeSet(ctx context.Context, adj avr.Adjustment) avr.Outcome
	VolumeGet(ctx context.Context) avr.Outcome
	MuteToggle(ctx context.Context) avr.Outcome
	MuteStatus(ctx context.Context) avr.Outcome
	Refresh(ctx context.Context) avr.Outcome
}

// HistoryLister reads the command log. Satisfied by history.Repository.
type HistoryLister interface {
	List(ctx context.Context, filter history.Filter) (*history.ListResult, error)
}

// PowerService handles host power. Satisfied by *power.Manager.
type PowerService interface {
	Handle(ctx context.Context, ev power.Event) (power.Result, error)
	Suspend(ctx context.Context) error
}

// HealthChecker is a dependency reported by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Controller Controller

	// Optional collaborators; the matching routes answer 503 without them.
	History HistoryLister
	Power   PowerService

	// Checks are reported by /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for Catspaw.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	controller Controller
	history    HistoryLister
	power      PowerService
	checks     map[string]HealthChecker
	version    string
	hub        *Hub
	tickets    *ticketStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	srvCtx   context.Context
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The WebSocket hub
// exists from New so controller events can be broadcast before Start.
//
// Parameters:
//   - deps: Required dependencies (logger, controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		controller: deps.Controller,
		history:    deps.History,
		power:      deps.Power,
		checks:     deps.Checks,
		version:    deps.Version,
		hub:        NewHub(deps.Logger),
		tickets:    newTicketStore(),
		srvCtx:     ctx,
		cancel:     cancel,
	}, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns, so a port conflict is
// reported here rather than logged from the serve goroutine.
//
// Parameters:
//   - ctx: Parent context; cancelling it stops background goroutines
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.srvCtx.Done():
		}
	}()
	go s.hub.Run(s.srvCtx)
	go s.cleanTicketsLoop(s.srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.srvCtx },
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
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
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.cancel()

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

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
