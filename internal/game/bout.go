package game

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"

	"github.com/KDT2006/defusedivision/internal/minefield"
	"github.com/KDT2006/defusedivision/internal/protocol"
)

var (
	ErrUnknownPlayer = errors.New("no such player in bout")
	ErrNameExhausted = errors.New("could not find a free player name")
	ErrInvalidName   = errors.New("player name must not be empty")
	// ErrPlayerGone means the connection dropped while the player was being
	// admitted, so it was never added.
	ErrPlayerGone = errors.New("player left before admission")
)

const (
	DefaultMaxPlayers = 2

	// maxNameSuffix bounds the random number appended on a rename collision.
	maxNameSuffix = 100
	// DefaultRenameAttempts bounds how many suffixes a rename tries.
	DefaultRenameAttempts = 32
)

// InputEvent is an input tagged with the name of the player that sent it.
type InputEvent struct {
	Player string
	Input  protocol.Input
}

// Options configures a Bout. Zero values fall back to defaults.
type Options struct {
	MaxPlayers int
	Width      int
	Height     int
	// MineCount of zero derives the count from the board area.
	MineCount int

	QueueSize int
	Overflow  OverflowPolicy

	// Construct builds each admitted player's Conveyor. Defaults to
	// NewLocalPlayer.
	Construct PlayerConstructor

	Logger *slog.Logger
	Rand   *rand.Rand
}

// Bout is the match authority. Every mutation of player or minefield state
// happens in SendInput, AddPlayer or RemovePlayer under a single lock.
//
// A bout never moves to a terminal state by itself: after a victory or after
// every player died it keeps processing input. Callers stop feeding it once
// a broadcast snapshot reports Concluded.
type Bout struct {
	maxPlayers int
	width      int
	height     int
	mineCount  int
	queueSize  int
	overflow   OverflowPolicy
	construct  PlayerConstructor
	logger     *slog.Logger

	renameAttempts int

	// admitMu serializes AddPlayer so only one constructor runs at a time.
	admitMu sync.Mutex

	mu        sync.Mutex
	players   map[string]*Player
	ready     bool
	admitting string // name reserved for the player being constructed
	rng       *rand.Rand
}

func New(opts Options) *Bout {
	b := &Bout{
		maxPlayers:     opts.MaxPlayers,
		width:          opts.Width,
		height:         opts.Height,
		mineCount:      opts.MineCount,
		queueSize:      opts.QueueSize,
		overflow:       opts.Overflow,
		construct:      opts.Construct,
		logger:         opts.Logger,
		rng:            opts.Rand,
		renameAttempts: DefaultRenameAttempts,
		players:        make(map[string]*Player),
	}
	if b.maxPlayers <= 0 {
		b.maxPlayers = DefaultMaxPlayers
	}
	if b.width <= 0 {
		b.width = minefield.DefaultWidth
	}
	if b.height <= 0 {
		b.height = minefield.DefaultHeight
	}
	if b.construct == nil {
		b.construct = NewLocalPlayer
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return b
}

func (b *Bout) MaxPlayers() int { return b.maxPlayers }

// Ready reports whether the bout is filled to capacity.
func (b *Bout) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Len is the number of admitted players.
func (b *Bout) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.players)
}

// Players returns the sorted names of admitted players.
func (b *Bout) Players() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.players))
	for name := range b.players {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Snapshot returns the full state of the bout.
func (b *Bout) Snapshot() protocol.BoutSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// AddPlayer admits one new player. It returns (nil, nil) when the bout is
// already full. The constructor runs without holding the mutation lock, so
// a constructor blocked on accept never stalls other players' input.
func (b *Bout) AddPlayer() (Conveyor, error) {
	b.admitMu.Lock()
	defer b.admitMu.Unlock()

	b.mu.Lock()
	if len(b.players) >= b.maxPlayers {
		b.mu.Unlock()
		return nil, nil
	}
	name := b.generateName()
	field, err := minefield.New(b.width, b.height, b.mineCount, b.rng)
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to build minefield: %w", err)
	}
	b.admitting = name
	b.mu.Unlock()

	p := newPlayer(name, field, NewQueue(b.queueSize, b.overflow))
	conv, err := b.construct(b, p)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.admitting = ""
	if err != nil {
		return nil, fmt.Errorf("failed to construct player %q: %w", name, err)
	}
	if p.queue.Closed() {
		b.logger.Info("player left before admission", "player", name)
		return nil, ErrPlayerGone
	}

	b.players[name] = p
	b.updateReady()
	b.logger.Info("adding player", "player", name, "players", len(b.players), "ready", b.ready)
	b.pushState()
	return conv, nil
}

// RemovePlayer drops the named player. Unknown names are a no-op apart
// from the broadcast.
func (b *Bout) RemovePlayer(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("removing player", "player", name)
	delete(b.players, name)
	b.updateReady()
	b.pushState()
}

// SendInput applies one player's input and broadcasts the result. This is
// the only place minefields are mutated after admission.
func (b *Bout) SendInput(ev InputEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.players[ev.Player]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlayer, ev.Player)
	}
	in := ev.Input

	if in.ChangeName != nil {
		if err := b.rename(p, *in.ChangeName); err != nil {
			return err
		}
	}
	if spec := in.NewMinefield; spec != nil {
		field, err := minefield.New(spec.Width, spec.Height, spec.MineCount, b.rng)
		if err != nil {
			return fmt.Errorf("invalid new-minefield for %q: %w", p.Name(), err)
		}
		p.field = field
		b.logger.Info("replaced minefield", "player", p.Name(),
			"width", spec.Width, "height", spec.Height, "mines", field.MineCount())
	}

	field := p.field
	switch {
	case in.Key.IsDirection():
		sel := moveSelected(in.Key, field)
		b.pushSelected(p.Name(), sel)
		return nil
	case in.Key == protocol.KeyProbe:
		if !probeSelected(field) {
			p.living = false
			b.logger.Info("player probed a mine", "player", p.Name())
		}
	case in.Key == protocol.KeyFlag:
		flagSelected(field)
	}

	if checkWin(field) && !p.victory {
		p.victory = true
		b.logger.Info("player cleared their minefield", "player", p.Name())
	}

	b.pushState()
	return nil
}

func (b *Bout) rename(p *Player, requested string) error {
	if requested == "" {
		return ErrInvalidName
	}
	old := p.Name()
	if requested == old {
		return nil
	}

	name := requested
	for attempt := 0; b.nameTaken(name); attempt++ {
		if attempt >= b.renameAttempts {
			return fmt.Errorf("%w: %q", ErrNameExhausted, requested)
		}
		name += strconv.Itoa(b.rng.IntN(maxNameSuffix + 1))
	}

	b.logger.Info("changing player name", "from", old, "to", name)
	p.setName(name)
	b.players[name] = p
	delete(b.players, old)
	return nil
}

func (b *Bout) generateName() string {
	for {
		name := fmt.Sprintf("Player%d-%d", len(b.players)+1, b.rng.IntN(10001))
		if !b.nameTaken(name) {
			return name
		}
	}
}

func (b *Bout) nameTaken(name string) bool {
	_, ok := b.players[name]
	return ok || name == b.admitting
}

func (b *Bout) updateReady() {
	b.ready = len(b.players) >= b.maxPlayers
}

func (b *Bout) snapshotLocked() protocol.BoutSnapshot {
	players := make(map[string]protocol.PlayerSnapshot, len(b.players))
	for name, p := range b.players {
		players[name] = p.Snapshot()
	}
	return protocol.BoutSnapshot{Players: players, Ready: b.ready}
}

// pushState queues the full snapshot for every player. Consumers must treat
// the shared snapshot as read-only.
func (b *Bout) pushState() {
	b.broadcast(protocol.StateEvent(b.snapshotLocked()))
}

func (b *Bout) pushSelected(name string, sel minefield.Point) {
	b.broadcast(protocol.SelectedEvent(name, sel.X, sel.Y))
}

func (b *Bout) broadcast(ev protocol.Event) {
	for name, p := range b.players {
		if p.queue.Closed() {
			continue
		}
		if !p.queue.Push(ev) {
			b.logger.Warn("player queue overflowed", "player", name, "policy", p.queue.policy)
		}
	}
}
