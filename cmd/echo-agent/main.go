// ABOUTME: Minimal fake agent for E2E testing — connects to the bridge and echoes requests.
// ABOUTME: Usage: echo-agent [-addr localhost:12691] [-prefix "echo: "]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:12691", "bridge agent endpoint address")
	prefix := flag.String("prefix", "echo: ", "prefix prepended to every reply; empty echoes verbatim")
	flag.Parse()

	if err := run(*addr, *prefix); err != nil {
		log.Fatal(err)
	}
}

func run(addr, prefix string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing bridge: %w", err)
	}
	defer conn.Close()

	// Close the connection on interrupt to unblock the read loop.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	fmt.Fprintf(os.Stderr, "connected to %s\n", addr)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		log.Printf("received request: %s", data)

		reply := prefix + string(data)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}
}
