// ABOUTME: Bridge orchestrator that owns the agent and dashboard websocket endpoints.
// ABOUTME: Manages listener lifecycle, single-session enforcement, and graceful shutdown.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatbox/agentic-bridge/internal/config"
	"github.com/chatbox/agentic-bridge/internal/relay"
	"github.com/chatbox/agentic-bridge/internal/session"
	"github.com/chatbox/agentic-bridge/internal/transport"
)

// Bridge wires the synchronization core to the two websocket endpoints.
// It runs one HTTP server per endpoint: the agent endpoint listens on all
// interfaces, the dashboard endpoint on loopback only (per config).
type Bridge struct {
	config   *config.Config
	exchange *relay.Exchange
	logger   *slog.Logger
	upgrader websocket.Upgrader

	agentServer     *http.Server
	dashboardServer *http.Server

	// mu guards the active-session slots. Exactly one agent and one
	// dashboard session may exist at a time; additional connections on
	// either endpoint are rejected with a close reason.
	mu            sync.Mutex
	agentConn     *transport.Conn
	dashboardConn *transport.Conn
}

// New creates a Bridge with a fresh Exchange and both endpoint servers configured.
func New(cfg *config.Config, logger *slog.Logger) *Bridge {
	b := &Bridge{
		config:   cfg,
		exchange: relay.NewExchange(),
		logger:   logger.With("component", "bridge"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // peers are not browsers; origin checks do not apply
			},
		},
	}

	agentMux := http.NewServeMux()
	agentMux.HandleFunc("/", b.handleAgent)
	b.agentServer = &http.Server{
		Addr:              cfg.Server.AgentAddr,
		Handler:           agentMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	dashboardMux := http.NewServeMux()
	dashboardMux.HandleFunc("/", b.handleDashboard)
	dashboardMux.HandleFunc("/health", b.handleHealth)
	dashboardMux.HandleFunc("/health/ready", b.handleReady)
	b.dashboardServer = &http.Server{
		Addr:              cfg.Server.DashboardAddr,
		Handler:           dashboardMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return b
}

// Run starts both endpoint servers and blocks until the context is canceled
// or a server fails. Returns nil on graceful shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	agentLn, dashboardLn, err := b.setupListeners()
	if err != nil {
		return err
	}

	// Session handler contexts derive from the run context so that a
	// handler blocked on a signal wait is released on shutdown.
	baseCtx := func(net.Listener) context.Context { return ctx }
	b.agentServer.BaseContext = baseCtx
	b.dashboardServer.BaseContext = baseCtx

	errCh := b.startServers(agentLn, dashboardLn)
	serverErr := b.waitForShutdownSignal(ctx, errCh)

	shutdownErr := b.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListeners creates the TCP listeners for both endpoints.
func (b *Bridge) setupListeners() (agentLn, dashboardLn net.Listener, err error) {
	b.logger.Info("starting bridge",
		"agent_addr", b.config.Server.AgentAddr,
		"dashboard_addr", b.config.Server.DashboardAddr,
	)

	agentLn, err = net.Listen("tcp", b.config.Server.AgentAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on agent address: %w", err)
	}

	dashboardLn, err = net.Listen("tcp", b.config.Server.DashboardAddr)
	if err != nil {
		_ = agentLn.Close()
		return nil, nil, fmt.Errorf("listening on dashboard address: %w", err)
	}

	return agentLn, dashboardLn, nil
}

// startServers starts both endpoint servers in goroutines, returning an error channel.
func (b *Bridge) startServers(agentLn, dashboardLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		b.logger.Info("agent endpoint listening", "addr", agentLn.Addr().String())
		if err := b.agentServer.Serve(agentLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("agent server: %w", err)
		}
	}()

	go func() {
		b.logger.Info("dashboard endpoint listening", "addr", dashboardLn.Addr().String())
		if err := b.dashboardServer.Serve(dashboardLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (b *Bridge) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		b.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		b.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is already canceled.
func (b *Bridge) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.Shutdown(ctx)
}

// Shutdown stops both endpoint servers and closes any active sessions.
// Websocket connections are hijacked from the HTTP server, so the active
// transports are closed explicitly to unblock their handlers.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.logger.Info("shutting down bridge")

	b.mu.Lock()
	if b.agentConn != nil {
		_ = b.agentConn.Close()
	}
	if b.dashboardConn != nil {
		_ = b.dashboardConn.Close()
	}
	b.mu.Unlock()

	var errs []error
	if err := b.dashboardServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dashboard shutdown: %w", err))
	}
	if err := b.agentServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("agent shutdown: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleAgent upgrades an agent connection and runs its session handler.
func (b *Bridge) handleAgent(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("agent websocket upgrade failed", "error", err)
		return
	}

	t := transport.NewConn(conn)
	if !b.claimAgent(t) {
		b.logger.Warn("rejecting second concurrent agent connection", "remote", conn.RemoteAddr().String())
		rejectBusy(conn)
		return
	}
	defer b.releaseAgent(t)
	defer t.Close()

	logger := b.logger.With("role", "agent", "session_id", uuid.NewString())
	handler := session.NewAgentHandler(b.exchange, t, logger, b.config.Relay.TurnTimeout)
	if err := handler.Run(r.Context()); err != nil {
		logger.Info("agent session ended", "reason", err)
	}
}

// handleDashboard upgrades a dashboard connection and runs its session handler.
// When the session ends — sentinel, disconnect, or error — the exchange is
// reset so the next pairing starts from a clean mailbox.
func (b *Bridge) handleDashboard(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("dashboard websocket upgrade failed", "error", err)
		return
	}

	t := transport.NewConn(conn)
	if !b.claimDashboard(t) {
		b.logger.Warn("rejecting second concurrent dashboard connection", "remote", conn.RemoteAddr().String())
		rejectBusy(conn)
		return
	}
	defer b.releaseDashboard(t)
	defer t.Close()
	defer b.exchange.Reset()

	logger := b.logger.With("role", "dashboard", "session_id", uuid.NewString())
	handler := session.NewDashboardHandler(b.exchange, t, logger, b.config.Relay.TurnTimeout)
	if err := handler.Run(r.Context()); err != nil {
		logger.Info("dashboard session ended", "reason", err)
	} else {
		logger.Info("dashboard session terminated by sentinel")
	}
}

// handleHealth returns 200 OK if the bridge is alive.
func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once an agent is connected.
func (b *Bridge) handleReady(w http.ResponseWriter, r *http.Request) {
	if !b.AgentConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agent connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// AgentConnected reports whether an agent session is currently active.
func (b *Bridge) AgentConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agentConn != nil
}

// claimAgent takes the agent session slot. Returns false if it is occupied.
func (b *Bridge) claimAgent(t *transport.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.agentConn != nil {
		return false
	}
	b.agentConn = t
	return true
}

func (b *Bridge) releaseAgent(t *transport.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.agentConn == t {
		b.agentConn = nil
	}
}

// claimDashboard takes the dashboard session slot. Returns false if it is occupied.
func (b *Bridge) claimDashboard(t *transport.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dashboardConn != nil {
		return false
	}
	b.dashboardConn = t
	return true
}

func (b *Bridge) releaseDashboard(t *transport.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dashboardConn == t {
		b.dashboardConn = nil
	}
}

// rejectBusy closes a surplus connection with an explicit close reason so the
// peer can tell the difference between "busy" and a network failure.
func rejectBusy(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session already active")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}
