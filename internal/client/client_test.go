package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer is the far end of a pipe speaking the server's side of the
// protocol.
type fakeServer struct {
	conn   *protocol.Conn
	inputs chan protocol.Input
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	t.Helper()
	f := &fakeServer{conn: protocol.NewConn(conn), inputs: make(chan protocol.Input, 16)}
	go protocol.RecvLoop(f.conn, func(raw json.RawMessage) {
		var in protocol.Input
		if err := json.Unmarshal(raw, &in); err == nil {
			f.inputs <- in
		}
	}, func() {}, discardLogger())
	t.Cleanup(func() { f.conn.Close() })
	return f
}

func (f *fakeServer) send(t *testing.T, msg any) {
	t.Helper()
	if err := f.conn.Send(msg); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

func (f *fakeServer) nextInput(t *testing.T) protocol.Input {
	t.Helper()
	select {
	case in := <-f.inputs:
		return in
	case <-time.After(waitTimeout):
		t.Fatal("no input reached the server")
		return protocol.Input{}
	}
}

// connect returns a session whose opening snapshot names it name.
func connect(t *testing.T, name string) (*Session, *fakeServer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	srv := newFakeServer(t, serverEnd)
	go srv.conn.Send(protocol.PlayerSnapshot{Name: name, Living: true})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	s, err := NewSession(ctx, clientEnd, discardLogger())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, srv
}

func nextEvent(t *testing.T, s *Session) protocol.Event {
	t.Helper()
	got := make(chan protocol.Event, 1)
	errc := make(chan error, 1)
	go func() {
		ev, err := s.GetState()
		if err != nil {
			errc <- err
			return
		}
		got <- ev
	}()
	select {
	case ev := <-got:
		return ev
	case err := <-errc:
		t.Fatalf("GetState: %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("no event arrived")
	}
	return protocol.Event{}
}

func state(names ...string) protocol.Event {
	players := make(map[string]protocol.PlayerSnapshot, len(names))
	for _, n := range names {
		players[n] = protocol.PlayerSnapshot{Name: n, Living: true}
	}
	return protocol.StateEvent(protocol.BoutSnapshot{Players: players})
}

func TestOpeningSnapshotNamesSession(t *testing.T) {
	s, _ := connect(t, "Player1-42")
	if s.Name() != "Player1-42" {
		t.Errorf("Name = %q", s.Name())
	}
}

func TestEventsArriveInOrder(t *testing.T) {
	s, srv := connect(t, "Player1-1")

	srv.send(t, state("Player1-1"))
	srv.send(t, protocol.SelectedEvent("Player1-1", 2, 3))

	if ev := nextEvent(t, s); ev.Kind != protocol.EventNewState {
		t.Fatalf("first event = %q", ev.Kind)
	}
	ev := nextEvent(t, s)
	if ev.Kind != protocol.EventUpdateSelected || *ev.Selected != (protocol.SelectedUpdate{Player: "Player1-1", X: 2, Y: 3}) {
		t.Errorf("second event = %+v", ev)
	}
}

func TestSendInputReachesServer(t *testing.T) {
	s, srv := connect(t, "Player1-1")

	if err := s.SendInput(protocol.KeyInput(protocol.KeyFlag)); err != nil {
		t.Fatalf("SendInput: %v", err)
	}
	if in := srv.nextInput(t); in.Key != protocol.KeyFlag {
		t.Errorf("server got %+v", in)
	}

	if err := s.SendInput(protocol.NewMinefieldInput(protocol.MinefieldSpec{Width: 4, Height: 4})); err != nil {
		t.Fatal(err)
	}
	if in := srv.nextInput(t); in.NewMinefield == nil || in.NewMinefield.Width != 4 {
		t.Errorf("server got %+v", in)
	}
}

func TestRenameReconciledFromSnapshots(t *testing.T) {
	s, srv := connect(t, "Player2-9")
	srv.send(t, state("bob", "Player2-9"))
	nextEvent(t, s)

	if err := s.SendInput(protocol.RenameInput("bob")); err != nil {
		t.Fatal(err)
	}
	if in := srv.nextInput(t); in.ChangeName == nil || *in.ChangeName != "bob" {
		t.Fatalf("server got %+v", in)
	}

	// a snapshot from before the rename was applied keeps the old name
	srv.send(t, state("bob", "Player2-9"))
	nextEvent(t, s)
	if s.Name() != "Player2-9" {
		t.Errorf("Name before rename applied = %q", s.Name())
	}

	srv.send(t, state("bob", "bob17"))
	nextEvent(t, s)
	if s.Name() != "bob17" {
		t.Errorf("Name after suffixed rename = %q", s.Name())
	}
}

func TestRenameBeforeFirstState(t *testing.T) {
	s, srv := connect(t, "Player2-9")

	if err := s.SendInput(protocol.RenameInput("bob")); err != nil {
		t.Fatal(err)
	}
	srv.nextInput(t)

	// admission broadcast, taken before the rename; bob is somebody else
	srv.send(t, state("bob", "Player2-9"))
	nextEvent(t, s)
	if s.Name() != "Player2-9" {
		t.Errorf("Name before rename applied = %q", s.Name())
	}

	srv.send(t, state("bob", "bob17"))
	nextEvent(t, s)
	if s.Name() != "bob17" {
		t.Errorf("Name after suffixed rename = %q, want bob17", s.Name())
	}

	// settled: later snapshots leave the name alone
	srv.send(t, state("bob", "bob17", "bobby"))
	nextEvent(t, s)
	if s.Name() != "bob17" {
		t.Errorf("Name after a later join = %q", s.Name())
	}
}

func TestRenameAppliedInNextSnapshot(t *testing.T) {
	s, srv := connect(t, "Player2-9")
	srv.send(t, state("bob", "Player2-9"))
	nextEvent(t, s)

	if err := s.SendInput(protocol.RenameInput("bob")); err != nil {
		t.Fatal(err)
	}
	srv.nextInput(t)

	// no snapshot with the old name arrives after the rename was sent
	srv.send(t, state("bob", "bob4"))
	nextEvent(t, s)
	if s.Name() != "bob4" {
		t.Errorf("Name = %q, want bob4", s.Name())
	}
}

func TestRenameWithoutCollision(t *testing.T) {
	s, srv := connect(t, "Player1-3")
	srv.send(t, state("Player1-3"))
	nextEvent(t, s)

	if err := s.SendInput(protocol.RenameInput("alice")); err != nil {
		t.Fatal(err)
	}
	srv.nextInput(t)

	srv.send(t, state("alice"))
	nextEvent(t, s)
	if s.Name() != "alice" {
		t.Errorf("Name = %q", s.Name())
	}
}

func TestServerClosesBeforeHello(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	serverEnd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := NewSession(ctx, clientEnd, discardLogger())
	if !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestHelloTimeout(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	defer serverEnd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewSession(ctx, clientEnd, discardLogger())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestGetStateAfterDisconnect(t *testing.T) {
	s, srv := connect(t, "Player1-1")
	srv.send(t, state("Player1-1"))
	srv.conn.Close()

	// buffered events are still delivered first
	if ev := nextEvent(t, s); ev.Kind != protocol.EventNewState {
		t.Fatalf("event = %+v", ev)
	}

	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session not done after server hung up")
	}
	if _, err := s.GetState(); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("GetState = %v, want ErrClosed", err)
	}
	if err := s.SendInput(protocol.KeyInput(protocol.KeyUp)); err == nil {
		t.Error("SendInput on a dead connection succeeded")
	}
}

func TestCloseUnblocksFullInbound(t *testing.T) {
	s, srv := connect(t, "Player1-1")
	for i := 0; i < InboundBuffer+1; i++ {
		srv.send(t, protocol.SelectedEvent("Player1-1", 0, 0))
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("receive pump stuck on a full inbound queue")
	}
}
