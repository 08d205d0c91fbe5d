package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

const (
	// WebSocketPath is where browsers and ws clients connect.
	WebSocketPath = "/ws"

	// MaxMessageSize caps one WebSocket message, i.e. one write of a frame
	// plus its separator.
	MaxMessageSize = protocol.MaxFrameSize + 64
)

// WebSocketListener is a net.Listener whose connections are WebSocket
// sessions. Each connection carries the same framed byte stream as a TCP
// socket, split across binary messages.
type WebSocketListener struct {
	ln     net.Listener
	srv    *http.Server
	conns  chan net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	closeOnce sync.Once
}

// ListenWebSocket serves WebSocket upgrades on addr at WebSocketPath.
func ListenWebSocket(addr string, logger *slog.Logger) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &WebSocketListener{
		ln:     ln,
		conns:  make(chan net.Conn),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, l.handle)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	l.srv = &http.Server{Handler: mux}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server stopped", "address", ln.Addr().String(), "error", err)
		}
	}()
	return l, nil
}

func (l *WebSocketListener) handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		l.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c.SetReadLimit(MaxMessageSize)

	// the conn outlives this handler, so it is bound to the listener's
	// context rather than the request's
	nc := websocket.NetConn(l.ctx, c, websocket.MessageBinary)
	select {
	case l.conns <- nc:
	case <-l.ctx.Done():
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (l *WebSocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (l *WebSocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.srv.Close()
	})
	return err
}

func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }
