// Package listener implements the websocket accept loop (§4.8 C8): binds a
// loopback TCP socket on an ephemeral port (whose address the daemon root
// writes to the daemon file), upgrades incoming connections, checks the
// bearer auth frame, and spawns a client session per connection. Modeled on
// the teacher's ws router + client read/write pump pair; the HTTP mux has a
// single "/" route since there is no REST surface here -- every connection
// is the same tab-session protocol.
package listener

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tabd/tabd/internal/auth"
	"github.com/tabd/tabd/internal/bus"
	"github.com/tabd/tabd/internal/clientsession"
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Listener owns the accept loop and the shared buses every client session
// forwards against.
type Listener struct {
	log   *logrus.Logger
	token auth.Token
	deps  clientsession.Deps

	ln       net.Listener
	shutdown *bus.FIFO[message.ListenerShutdown]
}

// New binds an ephemeral loopback port. Callers read Addr() to publish the
// daemon file before calling Serve.
func New(log *logrus.Logger, token auth.Token, deps clientsession.Deps, shutdown *bus.FIFO[message.ListenerShutdown]) (*Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &Listener{log: log, token: token, deps: deps, ln: ln, shutdown: shutdown}, nil
}

// Addr returns the bound address, whose port belongs in the daemon file.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or a ListenerShutdown
// arrives (§4.8 "On ListenerShutdown, stops accepting and drops the
// listener resource").
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		l.shutdown.Recv(ctx)
		l.ln.Close()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		l.handleUpgrade(ctx, w, r)
	})
	srv := &http.Server{Handler: mux}

	err := srv.Serve(l.ln)
	if err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}

func (l *Listener) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if l.log != nil {
			l.log.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}

	connID := uuid.New().String()
	log := l.log
	if log != nil {
		log = log.WithField("conn", connID).Logger
	}

	if !l.authenticate(conn) {
		if l.log != nil {
			l.log.WithField("conn", connID).Warn("auth failed, closing connection")
		}
		conn.Close()
		return
	}

	cliSend := bus.NewFIFO[message.CliSend](bus.DefaultFIFOCapacity)
	cliRecv := bus.NewFIFO[message.CliRecv](bus.DefaultFIFOCapacity)

	sess := clientsession.New(log, l.deps, cliSend, cliRecv)

	connCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		readPump(log, conn, cliSend)
	}()
	go writePump(log, conn, cliRecv, connCtx)

	sess.Run(connCtx)
}

// authenticate requires the first frame to be Auth(token) (§6).
func (l *Listener) authenticate(conn *websocket.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	req, err := wire.DecodeRequest(data)
	if err != nil || req.Auth == nil {
		return false
	}
	return l.token.Check(*req.Auth) == nil
}

// readPump mirrors the teacher client's ReadPump: binary frames are raw
// input bytes are not used here since this protocol is JSON-framed end to
// end, so every frame (text or binary) is decoded as a wire.Request.
func readPump(log *logrus.Logger, conn *websocket.Conn, cliSend *bus.FIFO[message.CliSend]) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && log != nil {
				log.WithError(err).Debug("websocket read error")
			}
			cliSend.Close()
			return
		}

		req, err := wire.DecodeRequest(data)
		if err != nil {
			if log != nil {
				log.WithError(err).Warn("invalid request frame")
			}
			continue
		}

		cliSend.Send(ctx, fromWireRequest(req))
	}
}

// writePump mirrors the teacher client's WritePump: drains CliRecv,
// encodes each as a wire.Response, and keepalive-pings on an interval. The
// blocking FIFO.Recv is fed through an internal channel so this loop can
// still select against the ping ticker while idle.
func writePump(log *logrus.Logger, conn *websocket.Conn, cliRecv *bus.FIFO[message.CliRecv], ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	out := make(chan message.CliRecv)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			msg, ok := cliRecv.Recv(ctx)
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-out:
			data, err := wire.EncodeResponse(toWireResponse(msg))
			if err != nil {
				if log != nil {
					log.WithError(err).Warn("failed to encode response")
				}
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-closed:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed)
}
