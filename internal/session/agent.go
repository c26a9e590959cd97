// ABOUTME: Agent-side session handler — delivers each pending request to the agent.
// ABOUTME: Captures the agent's reply back into the mailbox and signals the dashboard side.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatbox/agentic-bridge/internal/relay"
)

// AgentHandler drives the agent side of the relay. Each turn it waits for a
// dashboard request to land in the mailbox, forwards it to the agent, and
// stores the agent's reply before raising the reply signal.
type AgentHandler struct {
	exchange    *relay.Exchange
	transport   Transport
	logger      *slog.Logger
	turnTimeout time.Duration
}

// NewAgentHandler creates a handler bound to one agent connection.
// turnTimeout bounds each hand-off wait; zero means wait forever, which is
// the base contract.
func NewAgentHandler(exchange *relay.Exchange, transport Transport, logger *slog.Logger, turnTimeout time.Duration) *AgentHandler {
	return &AgentHandler{
		exchange:    exchange,
		transport:   transport,
		logger:      logger,
		turnTimeout: turnTimeout,
	}
}

// Run processes turns until the transport fails or ctx is done. The returned
// error describes why the session ended; it is for logging only and is never
// surfaced to the dashboard side, which may be left waiting (a documented
// starvation condition, not a crash).
func (h *AgentHandler) Run(ctx context.Context) error {
	h.logger.Info("agent session established")
	defer h.logger.Info("agent session closed")

	for {
		waitCtx, cancel := waitContext(ctx, h.turnTimeout)
		err := h.exchange.WaitTurn(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("waiting for turn: %w", err)
		}

		if err := h.transport.Send(ctx, h.exchange.Read()); err != nil {
			return fmt.Errorf("sending request to agent: %w", err)
		}
		h.logger.Debug("request delivered to agent")

		reply, err := h.transport.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receiving agent reply: %w", err)
		}
		h.logger.Debug("reply received from agent")

		h.exchange.Write(reply)
		h.exchange.SetReply()
	}
}

// waitContext bounds a hand-off wait with the configured timeout. A zero
// timeout leaves ctx untouched so the wait can block indefinitely.
func waitContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
