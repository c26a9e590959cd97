// ABOUTME: Dashboard-side session handler — accepts requests and returns agent replies.
// ABOUTME: Owns the turn loop: prime, signal turn, await reply, deliver, repeat until "exit".

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatbox/agentic-bridge/internal/relay"
)

// Sentinel is the literal dashboard payload that ends the dashboard session.
// It is consumed by the handler, never relayed to the agent.
const Sentinel = "exit"

// DashboardHandler drives the dashboard side of the relay. It writes each
// incoming request into the mailbox, hands the turn to the agent side, and
// delivers the agent's reply back over its own transport.
type DashboardHandler struct {
	exchange    *relay.Exchange
	transport   Transport
	logger      *slog.Logger
	turnTimeout time.Duration
}

// NewDashboardHandler creates a handler bound to one dashboard connection.
func NewDashboardHandler(exchange *relay.Exchange, transport Transport, logger *slog.Logger, turnTimeout time.Duration) *DashboardHandler {
	return &DashboardHandler{
		exchange:    exchange,
		transport:   transport,
		logger:      logger,
		turnTimeout: turnTimeout,
	}
}

// Run processes requests until the dashboard sends the sentinel, the
// transport fails, or ctx is done. A nil return means the dashboard
// terminated the session with the sentinel.
func (h *DashboardHandler) Run(ctx context.Context) error {
	h.logger.Info("dashboard session established")
	defer h.logger.Info("dashboard session closed")

	// The first request primes the mailbox directly; no turn signal exists yet.
	payload, err := h.transport.Receive(ctx)
	if err != nil {
		return fmt.Errorf("receiving initial request: %w", err)
	}
	h.exchange.Write(payload)

	for payload != Sentinel {
		h.logger.Debug("request received from dashboard")
		h.exchange.SetTurn()

		waitCtx, cancel := waitContext(ctx, h.turnTimeout)
		err = h.exchange.WaitReply(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("waiting for reply: %w", err)
		}

		if err := h.transport.Send(ctx, h.exchange.Read()); err != nil {
			return fmt.Errorf("sending reply to dashboard: %w", err)
		}
		h.logger.Debug("reply delivered to dashboard")

		payload, err = h.transport.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receiving request: %w", err)
		}
		h.exchange.Write(payload)
	}

	// Sentinel received: close without raising a new turn.
	return nil
}
