// ABOUTME: Tests for the dashboard and agent session handlers over an in-memory transport.
// ABOUTME: Covers pass-through fidelity, sentinel termination, priming, and starvation.

package session

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbox/agentic-bridge/internal/relay"
)

// fakeTransport is a channel-backed Transport. Tests feed inbound payloads
// through in and observe outbound payloads on out.
type fakeTransport struct {
	in  chan string
	out chan string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan string, 16),
		out:    make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, payload string) error {
	select {
	case f.out <- payload:
		return nil
	case <-f.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Receive(ctx context.Context) (string, error) {
	select {
	case payload := <-f.in:
		return payload, nil
	case <-f.closed:
		return "", net.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startAgentPeer runs an AgentHandler plus a scripted agent peer that replies
// to every delivered request with reply(request).
func startAgentPeer(ctx context.Context, ex *relay.Exchange, reply func(string) string) (*fakeTransport, chan error) {
	agentT := newFakeTransport()
	handler := NewAgentHandler(ex, agentT, testLogger(), 0)

	done := make(chan error, 1)
	go func() {
		done <- handler.Run(ctx)
	}()
	go func() {
		for {
			select {
			case req := <-agentT.out:
				agentT.in <- reply(req)
			case <-agentT.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return agentT, done
}

func TestRelayRoundTrips(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	agentT, _ := startAgentPeer(ctx, ex, func(req string) string { return "reply to " + req })
	defer agentT.Close()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 0)
	dashDone := make(chan error, 1)
	go func() {
		dashDone <- dashboard.Run(ctx)
	}()

	requests := []string{"first", "second", "third"}
	for _, req := range requests {
		dashT.in <- req

		select {
		case reply := <-dashT.out:
			assert.Equal(t, "reply to "+req, reply)
		case <-ctx.Done():
			t.Fatalf("no reply for request %q", req)
		}
	}

	dashT.in <- Sentinel
	require.NoError(t, <-dashDone)
}

func TestPassThroughFidelity(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Capture what the agent actually receives; echo it back unchanged.
	received := make(chan string, 16)
	agentT, _ := startAgentPeer(ctx, ex, func(req string) string {
		received <- req
		return req
	})
	defer agentT.Close()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 0)
	go func() { _ = dashboard.Run(ctx) }()

	payloads := []string{
		"plain text",
		`{"json": "payload", "nested": {"exit": true}}`,
		"unicode: héllo wörld é世界",
		"whitespace\n\ttabs and newlines\n",
		"", // empty payload is still one message
	}
	for _, payload := range payloads {
		dashT.in <- payload
		assert.Equal(t, payload, <-received, "agent-side payload mutated")
		assert.Equal(t, payload, <-dashT.out, "dashboard-side reply mutated")
	}

	dashT.in <- Sentinel
}

func TestSentinelTerminatesWithoutTurn(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 0)
	done := make(chan error, 1)
	go func() {
		done <- dashboard.Run(ctx)
	}()

	dashT.in <- Sentinel

	require.NoError(t, <-done)
	assert.False(t, ex.TurnPending(), "sentinel must not raise a turn")
	assert.Empty(t, dashT.out, "sentinel must not be answered")
}

// TestPriming verifies that the very first dashboard payload is relayed with
// no prior turn signal, even when the agent attaches afterwards.
func TestPriming(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 0)
	go func() { _ = dashboard.Run(ctx) }()

	// First request arrives before any agent exists.
	dashT.in <- "primer"

	agentT, _ := startAgentPeer(ctx, ex, func(req string) string { return "got " + req })
	defer agentT.Close()

	assert.Equal(t, "got primer", <-dashT.out)
	dashT.in <- Sentinel
}

// TestStarvationBlocksUntilAgentConnects pins down the no-timeout contract:
// a request issued with no agent connected blocks the dashboard handler on
// the reply signal — no error, no timeout — until an agent attaches.
func TestStarvationBlocksUntilAgentConnects(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 0)
	done := make(chan error, 1)
	go func() {
		done <- dashboard.Run(ctx)
	}()

	dashT.in <- "stranded request"

	// The handler must still be blocked, not returned and not replied.
	select {
	case err := <-done:
		t.Fatalf("dashboard handler returned during starvation: %v", err)
	case reply := <-dashT.out:
		t.Fatalf("unexpected reply during starvation: %q", reply)
	case <-time.After(100 * time.Millisecond):
	}

	// A late-attaching agent releases the stranded turn.
	agentT, _ := startAgentPeer(ctx, ex, func(req string) string { return "rescued: " + req })
	defer agentT.Close()

	assert.Equal(t, "rescued: stranded request", <-dashT.out)
	dashT.in <- Sentinel
	require.NoError(t, <-done)
}

func TestAgentTransportFailureEndsSessionSilently(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	agentT := newFakeTransport()
	agent := NewAgentHandler(ex, agentT, testLogger(), 0)
	agentDone := make(chan error, 1)
	go func() {
		agentDone <- agent.Run(ctx)
	}()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 0)
	dashDone := make(chan error, 1)
	go func() {
		dashDone <- dashboard.Run(ctx)
	}()

	dashT.in <- "doomed request"

	// Wait for the request to reach the agent, then kill its transport
	// before it can reply.
	select {
	case <-agentT.out:
	case <-ctx.Done():
		t.Fatal("request never reached the agent")
	}
	_ = agentT.Close()

	require.ErrorIs(t, <-agentDone, net.ErrClosed)

	// The dashboard side is left waiting on a reply that will never arrive.
	select {
	case err := <-dashDone:
		t.Fatalf("dashboard handler returned after agent failure: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTurnTimeoutReleasesStalledDashboard(t *testing.T) {
	ex := relay.NewExchange()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dashT := newFakeTransport()
	dashboard := NewDashboardHandler(ex, dashT, testLogger(), 30*time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- dashboard.Run(ctx)
	}()

	// No agent connected: the reply wait must expire instead of hanging.
	dashT.in <- "request into the void"

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("turn timeout did not release the dashboard handler")
	}
}
