package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/KDT2006/defusedivision/internal/game"
	"github.com/KDT2006/defusedivision/internal/protocol"
	"github.com/google/uuid"
)

// authority is the part of a bout a session talks to.
type authority interface {
	SendInput(ev game.InputEvent) error
	RemovePlayer(name string)
}

// Session binds one accepted connection to one player. It owns the
// connection; the player's queue is the only way the bout reaches it.
type Session struct {
	ID     uuid.UUID
	conn   *protocol.Conn
	player *game.Player
	bout   authority
	logger *slog.Logger

	// admitted is closed once the first queued event goes out; the bout only
	// queues events for players it has inserted.
	admitOnce sync.Once
	admitted  chan struct{}

	// sending is closed when the send pump exits.
	sending chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession starts the receive and send pumps for conn and sends the
// player's opening snapshot, from which the client learns its name.
func NewSession(conn net.Conn, p *game.Player, bout authority, logger *slog.Logger) (*Session, error) {
	id := uuid.New()
	s := &Session{
		ID:       id,
		conn:     protocol.NewConn(conn),
		player:   p,
		bout:     bout,
		logger:   logger.With("session", id.String(), "remote", conn.RemoteAddr().String()),
		admitted: make(chan struct{}),
		sending:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	protocol.Go(s.logger, "recv", func() {
		protocol.RecvLoop(s.conn, s.applyInput, s.removeSelf, s.logger)
	})
	protocol.Go(s.logger, "send", s.sendLoop)

	if err := s.conn.Send(p.Snapshot()); err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("failed to send opening state: %w", err)
	}
	s.logger.Info("session started", "player", p.Name())
	return s, nil
}

// ErrPumped is returned by GetState: a server session's events belong to
// its send pump and go out over the connection.
var ErrPumped = errors.New("session events are delivered by the send pump")

// GetState never pops the player's queue; doing so would take events away
// from the connection. It reports ErrPumped, or ErrQueueClosed once the
// session is gone.
func (s *Session) GetState() (protocol.Event, error) {
	if s.player.Queue().Closed() {
		return protocol.Event{}, game.ErrQueueClosed
	}
	return protocol.Event{}, ErrPumped
}

// SendInput tags in with the player's current name and forwards it.
func (s *Session) SendInput(in protocol.Input) error {
	return s.bout.SendInput(game.InputEvent{Player: s.player.Name(), Input: in})
}

// Done is closed once the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) applyInput(raw json.RawMessage) {
	var in protocol.Input
	if err := json.Unmarshal(raw, &in); err != nil {
		s.logger.Warn("ignoring undecodable input", "error", err)
		return
	}
	// input read before admission would name a player the bout does not
	// know yet
	select {
	case <-s.admitted:
	case <-s.sending:
		return
	}
	if err := s.SendInput(in); err != nil {
		s.logger.Warn("input rejected", "player", s.player.Name(), "error", err)
	}
}

func (s *Session) sendLoop() {
	defer close(s.sending)
	protocol.SendLoop(s.conn, s.next, s.logger)
	// a failed write or a closed queue both end the connection, which in
	// turn stops the receive pump and removes the player
	s.conn.Close()
}

func (s *Session) next() (protocol.Event, bool) {
	ev, ok := s.player.Queue().Pop()
	if ok {
		s.admitOnce.Do(func() { close(s.admitted) })
	}
	return ev, ok
}

func (s *Session) removeSelf() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		s.player.Queue().Close()
		name := s.player.Name()
		s.bout.RemovePlayer(name)
		s.logger.Info("session closed", "player", name)
		close(s.done)
	})
}
