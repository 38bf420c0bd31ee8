package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shsf-rail/shsf-hub/internal/events"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/config"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/logging"
	"github.com/shsf-rail/shsf-hub/internal/journal"
	"github.com/shsf-rail/shsf-hub/internal/relay"
)

// healthCheckTimeout bounds the dependency checks behind GET /health.
const healthCheckTimeout = 2 * time.Second

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// wsEventBuffer is the bus subscription size for the WebSocket hub.
const wsEventBuffer = 256

// CommandRelay is the relay surface the API needs. *relay.Relay satisfies it.
type CommandRelay interface {
	Submit(ctx context.Context, payload, sender string) (relay.Command, error)
	Snapshot() relay.Snapshot
}

// LinkStatus reports the BLE link. *ble.Transport satisfies it.
type LinkStatus interface {
	State() string
	Name() string
}

// ConnectionStatus reports a broker connection. *mqtt.Client satisfies it.
type ConnectionStatus interface {
	IsConnected() bool
	SubscriptionCount() int
}

// HealthChecker is a dependency that /health checks on every request.
// *mqtt.Client, *database.DB and *influxdb.Client satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ExchangeLister lists journaled exchanges. *journal.SQLiteRepository satisfies it.
type ExchangeLister interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// EventSource is the hub event bus. *events.Bus satisfies it.
type EventSource interface {
	Subscribe(buffer int) (<-chan events.Event, func())
	Dropped() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Relay  CommandRelay
	Events EventSource

	// Optional.
	Link    LinkStatus
	MQTT    ConnectionStatus
	Journal ExchangeLister

	// Checks are run by GET /health, keyed by the name reported on failure.
	Checks map[string]HealthChecker

	// LocalSender is reserved for the window and refused from HTTP callers.
	LocalSender string

	// DefaultSender tags commands posted without a sender.
	DefaultSender string

	// WaitTimeout bounds how long POST /api/commands waits for a response.
	WaitTimeout time.Duration

	Version string
}

// Server is the HTTP API server for the hub.
type Server struct {
	cfg           config.APIConfig
	logger        *logging.Logger
	relay         CommandRelay
	events        EventSource
	link          LinkStatus
	mqtt          ConnectionStatus
	journal       ExchangeLister
	checks        map[string]HealthChecker
	localSender   string
	defaultSender string
	waitTimeout   time.Duration
	version       string
	started       time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// Default values for optional Deps fields.
const (
	DefaultAPISender   = "api"
	defaultWaitTimeout = 5 * time.Second
)

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event source is required")
	}

	s := &Server{
		cfg:           deps.Config,
		logger:        deps.Logger,
		relay:         deps.Relay,
		events:        deps.Events,
		link:          deps.Link,
		mqtt:          deps.MQTT,
		journal:       deps.Journal,
		checks:        deps.Checks,
		localSender:   deps.LocalSender,
		defaultSender: deps.DefaultSender,
		waitTimeout:   deps.WaitTimeout,
		version:       deps.Version,
		started:       time.Now(),
		hub:           NewHub(deps.Logger),
	}
	if s.defaultSender == "" {
		s.defaultSender = DefaultAPISender
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = defaultWaitTimeout
	}
	return s, nil
}

// Start binds the listener and serves in the background. Hub events are
// streamed to WebSocket clients until Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	feed, unsubscribe := s.events.Subscribe(wsEventBuffer)
	go func() {
		defer unsubscribe()
		s.hub.Run(srvCtx, feed)
	}()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Bind synchronously so a port clash is reported to the caller.
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is listening. main runs it with the
// other dependency checks once startup completes.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
