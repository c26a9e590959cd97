// ABOUTME: Transport abstraction the session handlers run over.
// ABOUTME: One opaque text payload out, one opaque text payload in, nothing else.

package session

import "context"

// Transport is a bidirectional text-message channel bound to one peer.
// Send and Receive block until the operation completes or the connection
// fails; a context deadline, if any, bounds the wait. Payloads are opaque —
// the bridge never inspects or transforms them.
type Transport interface {
	Send(ctx context.Context, payload string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}
