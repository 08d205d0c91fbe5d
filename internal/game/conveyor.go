package game

import (
	"github.com/KDT2006/defusedivision/internal/protocol"
)

// Conveyor is how anything outside the bout plays: local in-process
// players, server-side sessions and client-side sessions all implement it.
type Conveyor interface {
	// GetState blocks for the next event addressed to this player.
	GetState() (protocol.Event, error)
	// SendInput hands one input to the game.
	SendInput(in protocol.Input) error
}

// PlayerConstructor builds the Conveyor that will own p. It may block, for
// example to accept a network connection. The bout calls it once per
// admitted player, outside its mutation lock.
type PlayerConstructor func(b *Bout, p *Player) (Conveyor, error)

// LocalPlayer is an in-process Conveyor bound directly to a Bout.
type LocalPlayer struct {
	bout   *Bout
	player *Player
}

// NewLocalPlayer is the default PlayerConstructor.
func NewLocalPlayer(b *Bout, p *Player) (Conveyor, error) {
	return &LocalPlayer{bout: b, player: p}, nil
}

func (l *LocalPlayer) Name() string { return l.player.Name() }

func (l *LocalPlayer) GetState() (protocol.Event, error) {
	ev, ok := l.player.Queue().Pop()
	if !ok {
		return protocol.Event{}, ErrQueueClosed
	}
	return ev, nil
}

func (l *LocalPlayer) SendInput(in protocol.Input) error {
	return l.bout.SendInput(InputEvent{Player: l.player.Name(), Input: in})
}

// Leave removes the player from the bout and stops its queue.
func (l *LocalPlayer) Leave() {
	l.player.Queue().Close()
	l.bout.RemovePlayer(l.player.Name())
}
