package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/KDT2006/defusedivision/internal/protocol"
	"nhooyr.io/websocket"
)

// InboundBuffer is how many decoded events may wait for GetState before the
// receive pump stops reading and lets TCP push back on the server.
const InboundBuffer = 256

// maxMessageSize matches the server's WebSocket read limit.
const maxMessageSize = protocol.MaxFrameSize + 64

// Session is the client side of one player's connection.
type Session struct {
	ServerAddr string
	conn       *protocol.Conn
	logger     *slog.Logger

	nameMu sync.RWMutex
	name   string

	// renaming is the requested name until a snapshot confirms it
	renaming string
	prevName string
	// others are the other players' names in the last snapshot that still
	// listed ours
	others map[string]bool

	first    chan protocol.PlayerSnapshot
	gotHello bool
	inbound  chan protocol.Event
	done     chan struct{}

	quitOnce sync.Once
	quit     chan struct{}
}

// Dial connects over TCP to addr and waits for the server's opening
// snapshot.
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return start(ctx, conn, addr, logger)
}

// DialWebSocket connects to a server's WebSocket endpoint, e.g.
// ws://host:8080/ws.
func DialWebSocket(ctx context.Context, url string, logger *slog.Logger) (*Session, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	c.SetReadLimit(maxMessageSize)
	// bounded by Close, not by the dial context
	conn := websocket.NetConn(context.Background(), c, websocket.MessageBinary)
	return start(ctx, conn, url, logger)
}

// NewSession runs the client protocol over an already connected conn.
func NewSession(ctx context.Context, conn net.Conn, logger *slog.Logger) (*Session, error) {
	return start(ctx, conn, conn.RemoteAddr().String(), logger)
}

func start(ctx context.Context, conn net.Conn, addr string, logger *slog.Logger) (*Session, error) {
	s := &Session{
		ServerAddr: addr,
		conn:       protocol.NewConn(conn),
		logger:     logger.With("address", addr),
		first:      make(chan protocol.PlayerSnapshot, 1),
		inbound:    make(chan protocol.Event, InboundBuffer),
		done:       make(chan struct{}),
		quit:       make(chan struct{}),
	}

	protocol.Go(s.logger, "recv", func() {
		protocol.RecvLoop(s.conn, s.dispatch, s.closed, s.logger)
	})

	select {
	case hello := <-s.first:
		s.setName(hello.Name)
		s.logger.Info("connected to server", "player", hello.Name)
		return s, nil
	case <-s.done:
		return nil, fmt.Errorf("server closed the connection before sending state: %w", protocol.ErrClosed)
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("waiting for server state: %w", ctx.Err())
	}
}

// dispatch runs on the receive goroutine only.
func (s *Session) dispatch(raw json.RawMessage) {
	if !s.gotHello {
		var hello protocol.PlayerSnapshot
		if err := json.Unmarshal(raw, &hello); err != nil {
			s.logger.Warn("ignoring undecodable opening state", "error", err)
			return
		}
		s.gotHello = true
		s.first <- hello
		return
	}

	var ev protocol.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn("ignoring undecodable event", "error", err)
		return
	}
	if ev.Kind == protocol.EventNewState && ev.State != nil {
		s.reconcileName(ev.State)
	}
	select {
	case s.inbound <- ev:
	case <-s.quit:
	}
}

// reconcileName follows a rename through the snapshots. While the old name
// is still listed the rename has not been applied. Once it is gone, the one
// name starting with the request that was not held by another player in the
// last snapshot listing the old name is ours; the server may have appended
// digits to it.
func (s *Session) reconcileName(state *protocol.BoutSnapshot) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	current := s.name
	if s.renaming != "" {
		current = s.prevName
	}
	if _, ok := state.Players[current]; ok {
		s.name = current
		s.others = make(map[string]bool, len(state.Players))
		for name := range state.Players {
			if name != current {
				s.others[name] = true
			}
		}
		return
	}
	if s.renaming == "" {
		return
	}

	var match string
	for name := range state.Players {
		if s.others[name] || !strings.HasPrefix(name, s.renaming) {
			continue
		}
		if match != "" {
			// ambiguous, wait for the next snapshot
			return
		}
		match = name
	}
	if match != "" {
		s.name = match
		s.renaming = ""
		s.prevName = ""
	}
}

func (s *Session) closed() {
	close(s.done)
	close(s.inbound)
}

// Name is the player's current name as this client knows it.
func (s *Session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	s.name = name
}

// SendInput transmits in. A rename updates the cached name first; if the
// server adds a suffix, the next snapshot corrects it.
func (s *Session) SendInput(in protocol.Input) error {
	if in.ChangeName != nil && *in.ChangeName != "" {
		s.nameMu.Lock()
		if s.renaming == "" {
			s.prevName = s.name
		}
		s.name = *in.ChangeName
		s.renaming = *in.ChangeName
		s.nameMu.Unlock()
	}
	s.logger.Debug("sending input", "player", s.Name(), "input", in)
	if err := s.conn.Send(in); err != nil {
		return err
	}
	return nil
}

// GetState blocks for the next event in arrival order.
func (s *Session) GetState() (protocol.Event, error) {
	ev, ok := <-s.inbound
	if !ok {
		return protocol.Event{}, protocol.ErrClosed
	}
	return ev, nil
}

// Done is closed when the connection is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() error {
	s.quitOnce.Do(func() { close(s.quit) })
	err := s.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
