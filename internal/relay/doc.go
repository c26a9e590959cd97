// Package relay implements the hand-off synchronization core of the bridge.
//
// # Protocol
//
// Both session handlers share one Exchange: a single mailbox slot plus two
// one-shot, re-armable signals. The relay is a strict two-phase alternation:
//
//	Phase A (dashboard owns the mailbox):
//	    dashboard handler writes the request, calls SetTurn.
//	Phase B (agent owns the mailbox):
//	    agent handler consumes the turn via WaitTurn, reads the request,
//	    writes the reply, calls SetReply.
//	Phase A resumes:
//	    dashboard handler consumes the reply via WaitReply, reads it,
//	    delivers it to the dashboard.
//
// At every instant at most one side holds write permission to the mailbox.
// This is enforced purely by the alternation of signal ownership, not by a
// lock: the Exchange mutex protects the slot against torn access, not against
// out-of-turn writes. A handler writing out of turn is a protocol bug, not a
// guarded error.
//
// # Guarantees
//
//   - At most one message is in flight: the turn and reply signals are never
//     pending simultaneously, because the reply cannot be armed until the
//     turn has been consumed, and vice versa.
//   - No missed wakeups: a signal armed before the waiter begins waiting
//     stays armed until consumed.
//   - Waits cannot fail except by context cancellation. With a background
//     context they block indefinitely, which is the base contract: a stalled
//     peer starves the other side rather than erroring.
package relay
