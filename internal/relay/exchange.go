// ABOUTME: Synchronization core for the bridge — single-slot mailbox plus turn/reply signals.
// ABOUTME: Guarantees at-most-one-message-in-flight and strict alternation between handlers.

package relay

import (
	"context"
	"sync"
)

// signal is a one-shot, re-armable notification. set arms it; wait suspends
// until armed and then consumes it as one atomic step. A set that lands before
// the waiter starts waiting stays armed, so the wakeup is never missed.
type signal struct {
	ch chan struct{}
}

func newSignal() signal {
	return signal{ch: make(chan struct{}, 1)}
}

// set arms the signal. Arming an already-armed signal is a no-op.
func (s signal) set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// wait blocks until the signal is armed, consuming it, or until ctx is done.
func (s signal) wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending reports whether the signal is armed but not yet consumed.
func (s signal) pending() bool {
	return len(s.ch) > 0
}

// drain disarms the signal without blocking.
func (s signal) drain() {
	select {
	case <-s.ch:
	default:
	}
}

// Exchange is the shared state between the dashboard and agent session
// handlers: one mailbox slot and the two hand-off signals. Write permission to
// the mailbox alternates between the handlers, gated purely by the signals —
// the dashboard handler writes before SetTurn, the agent handler writes before
// SetReply. The mutex protects the slot itself, not the alternation.
type Exchange struct {
	mu      sync.Mutex
	payload string

	turn  signal
	reply signal
}

// NewExchange creates an Exchange with an empty mailbox and both signals disarmed.
func NewExchange() *Exchange {
	return &Exchange{
		turn:  newSignal(),
		reply: newSignal(),
	}
}

// Write stores a payload in the mailbox, replacing the previous one.
func (e *Exchange) Write(payload string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payload = payload
}

// Read returns the current mailbox payload.
func (e *Exchange) Read() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payload
}

// SetTurn announces that a dashboard request is ready in the mailbox.
func (e *Exchange) SetTurn() {
	e.turn.set()
}

// WaitTurn blocks until a dashboard request is ready, consuming the turn
// signal. Returns the context error if ctx is done first.
func (e *Exchange) WaitTurn(ctx context.Context) error {
	return e.turn.wait(ctx)
}

// SetReply announces that an agent reply is ready in the mailbox.
func (e *Exchange) SetReply() {
	e.reply.set()
}

// WaitReply blocks until an agent reply is ready, consuming the reply signal.
// Returns the context error if ctx is done first.
func (e *Exchange) WaitReply(ctx context.Context) error {
	return e.reply.wait(ctx)
}

// TurnPending reports whether a turn signal is armed and unconsumed.
func (e *Exchange) TurnPending() bool {
	return e.turn.pending()
}

// ReplyPending reports whether a reply signal is armed and unconsumed.
func (e *Exchange) ReplyPending() bool {
	return e.reply.pending()
}

// Reset clears the mailbox and disarms both signals. The bridge calls this
// when a dashboard session closes so a later pairing never observes a stale
// payload or a leftover signal from the previous session.
func (e *Exchange) Reset() {
	e.mu.Lock()
	e.payload = ""
	e.mu.Unlock()

	e.turn.drain()
	e.reply.drain()
}
