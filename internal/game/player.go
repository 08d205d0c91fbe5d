package game

import (
	"sync"

	"github.com/KDT2006/defusedivision/internal/minefield"
	"github.com/KDT2006/defusedivision/internal/protocol"
)

// Player is one participant of a Bout. Everything except the name is only
// touched under the owning bout's lock; the name is also read by the
// player's session when tagging input, so it has its own guard.
type Player struct {
	nameMu sync.RWMutex
	name   string

	field   *minefield.Minefield
	living  bool
	victory bool
	queue   *Queue
}

func newPlayer(name string, field *minefield.Minefield, queue *Queue) *Player {
	return &Player{
		name:   name,
		field:  field,
		living: true,
		queue:  queue,
	}
}

func (p *Player) Name() string {
	p.nameMu.RLock()
	defer p.nameMu.RUnlock()
	return p.name
}

func (p *Player) setName(name string) {
	p.nameMu.Lock()
	defer p.nameMu.Unlock()
	p.name = name
}

// Queue is the player's outbox; the bout pushes snapshots and events into it.
func (p *Player) Queue() *Queue { return p.queue }

// Snapshot must not race with bout mutations: call it before the player is
// admitted, or while holding the bout's lock.
func (p *Player) Snapshot() protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		Name:      p.Name(),
		Living:    p.living,
		Minefield: p.field.Snapshot(),
		Victory:   p.victory,
	}
}
