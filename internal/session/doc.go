// Package session contains the two connection handlers that drive the relay.
//
// Each accepted connection is bound to exactly one handler instance for its
// lifetime. The DashboardHandler owns the turn loop: it primes the mailbox
// with the first request, raises a turn for each request, and returns the
// agent's reply. The AgentHandler serves turns: it forwards each pending
// request to the agent and captures the reply.
//
// Handlers are transport-agnostic; they run over any Transport. A transport
// failure ends the owning session silently — the peer handler is not
// notified and may be left blocked on a signal that never arrives. That
// starvation is the documented single-session contract; recovery is a new
// pairing, not a retry.
package session
