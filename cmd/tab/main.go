// Command tab is a thin client: it connects to a running daemon, creates or
// attaches to a named tab, and streams stdin/stdout between the terminal and
// the PTY. Terminal rendering beyond raw passthrough is out of scope (§1
// Non-goals); this binary exists so the daemon has a caller to exercise.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabd/tabd/internal/chunk"
	"github.com/tabd/tabd/internal/daemonfile"
	"github.com/tabd/tabd/internal/tab"
	"github.com/tabd/tabd/internal/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tab:", err)
		os.Exit(1)
	}
}

// conn wraps the websocket with a write mutex: gorilla/websocket permits
// only one concurrent writer, and this client writes from both the stdin
// forwarder and the subscribe-on-start handler.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(req wire.Request) error {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func run() error {
	name := "default"
	if len(os.Args) > 1 {
		name = os.Args[1]
	}

	rec, err := daemonfile.Read()
	if err != nil {
		return fmt.Errorf("no running daemon found: %w", err)
	}

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("127.0.0.1:%d", rec.Port), Path: "/"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial daemon: %w", err)
	}
	defer ws.Close()

	c := &conn{ws: ws}

	if err := c.send(wire.Request{Auth: &rec.AuthToken}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	create := tab.CreateMetadata{Name: name, Dimensions: tab.Dimensions{Cols: 80, Rows: 24}}
	if err := c.send(wire.Request{CreateTab: &create}); err != nil {
		return fmt.Errorf("create tab: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tabID atomic.Uint64

	go readStdin(ctx, c, &tabID)
	return readResponses(c, &tabID, cancel)
}

// readResponses drains daemon responses, subscribing once the tab starts
// and writing raw output/scrollback bytes straight to stdout.
func readResponses(c *conn, tabID *atomic.Uint64, cancel context.CancelFunc) error {
	defer cancel()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil
		}

		resp, err := wire.DecodeResponse(data)
		if err != nil {
			continue
		}

		switch {
		case resp.TabStarted != nil:
			id := resp.TabStarted.Id
			tabID.Store(uint64(id))
			c.send(wire.Request{Subscribe: &id})
		case resp.TabStopped != nil:
			return nil
		case resp.Output != nil:
			os.Stdout.Write(resp.Output.Chunk.Data)
		case resp.Scrollback != nil:
			os.Stdout.Write(resp.Scrollback.Chunk.Data)
		}
	}
}

// readStdin forwards raw stdin bytes to the daemon as Input requests once a
// tab id has been assigned via TabStarted.
func readStdin(ctx context.Context, c *conn, tabID *atomic.Uint64) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if id := tabID.Load(); id != 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				payload := wire.InputPayload{Id: tab.Id(id), Data: chunk.InputChunk{Data: data}}
				c.send(wire.Request{Input: &payload})
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
