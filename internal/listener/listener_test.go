package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabd/tabd/internal/auth"
	"github.com/tabd/tabd/internal/bus"
	"github.com/tabd/tabd/internal/clientsession"
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/tab"
	"github.com/tabd/tabd/internal/wire"
)

func setupTestServer(t *testing.T, token auth.Token) (*httptest.Server, clientsession.Deps, func()) {
	t.Helper()
	deps := clientsession.Deps{
		TabRecv:          bus.NewBroadcast[message.TabRecv](16),
		TabSend:          bus.NewBroadcast[message.TabSend](16),
		ManagerRecv:      bus.NewFIFO[message.TabManagerRecv](16),
		ManagerSend:      bus.NewBroadcast[message.TabManagerSend](16),
		ListenerShutdown: bus.NewFIFO[message.ListenerShutdown](1),
		DaemonShutdown:   bus.NewWatch(message.DaemonShutdown{}),
	}
	l := &Listener{token: token, deps: deps, shutdown: deps.ListenerShutdown}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		l.handleUpgrade(context.Background(), w, r)
	})
	server := httptest.NewServer(mux)
	return server, deps, server.Close
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// TestAuthFailureClosesConnection pins §8 scenario 5: a mismatched first
// frame closes the socket without ever reaching the tab manager.
func TestAuthFailureClosesConnection(t *testing.T) {
	server, _, cleanup := setupTestServer(t, auth.Token("correct-token"))
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	badToken := "wrong-token"
	data, _ := wire.EncodeRequest(wire.Request{Auth: &badToken})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed after auth failure")
	}
}

// TestAuthSuccessForwardsCreateTab exercises the full inbound path: a
// correctly authenticated connection sending CreateTab reaches the shared
// TabManagerRecv FIFO.
func TestAuthSuccessForwardsCreateTab(t *testing.T) {
	token := auth.Token("correct-token")
	server, deps, cleanup := setupTestServer(t, token)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	tok := string(token)
	if data, _ := wire.EncodeRequest(wire.Request{Auth: &tok}); true {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("write auth: %v", err)
		}
	}

	create := tab.CreateMetadata{Name: "build", Dimensions: tab.Dimensions{Cols: 80, Rows: 24}}
	data, _ := wire.EncodeRequest(wire.Request{CreateTab: &create})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write create tab: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, ok := deps.ManagerRecv.Recv(recvCtx)
	if !ok {
		t.Fatal("timed out waiting for CreateTab to reach the tab manager")
	}
	if req.CreateTab == nil || req.CreateTab.Name != "build" {
		t.Fatalf("unexpected manager request: %+v", req)
	}
}
