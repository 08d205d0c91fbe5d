package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Key is a bare input token sent by a client.
type Key string

// Client -> Server
const (
	KeyUp    Key = "UP"
	KeyDown  Key = "DOWN"
	KeyLeft  Key = "LEFT"
	KeyRight Key = "RIGHT"
	KeyProbe Key = "PROBE"
	KeyFlag  Key = "FLAG"
)

// IsDirection reports whether k moves the selection cursor.
func (k Key) IsDirection() bool {
	switch k {
	case KeyUp, KeyDown, KeyLeft, KeyRight:
		return true
	}
	return false
}

// EventKind names a server -> client event.
type EventKind string

// Server -> Client
const (
	EventNewState       EventKind = "new-state"
	EventUpdateSelected EventKind = "update-selected"
)

// MinefieldSpec is the payload of a new-minefield command. A zero MineCount
// asks for the derived default.
type MinefieldSpec struct {
	Height    int `json:"height"`
	Width     int `json:"width"`
	MineCount int `json:"mine_count"`
}

// Input is one client -> server message: either a bare Key or a structured
// command. Anything else decodes to the zero Input and is ignored by the bout.
type Input struct {
	Key          Key
	ChangeName   *string
	NewMinefield *MinefieldSpec
}

// KeyInput wraps a bare token.
func KeyInput(k Key) Input { return Input{Key: k} }

// RenameInput builds a change-name command.
func RenameInput(name string) Input { return Input{ChangeName: &name} }

// NewMinefieldInput builds a new-minefield command.
func NewMinefieldInput(spec MinefieldSpec) Input { return Input{NewMinefield: &spec} }

// IsCommand reports whether the input carries a structured command.
func (in Input) IsCommand() bool {
	return in.ChangeName != nil || in.NewMinefield != nil
}

type command struct {
	ChangeName   *string        `json:"change-name,omitempty"`
	NewMinefield *MinefieldSpec `json:"new-minefield,omitempty"`
}

func (in Input) MarshalJSON() ([]byte, error) {
	if in.IsCommand() {
		return json.Marshal(command{ChangeName: in.ChangeName, NewMinefield: in.NewMinefield})
	}
	return json.Marshal(string(in.Key))
}

func (in *Input) UnmarshalJSON(data []byte) error {
	*in = Input{}

	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		in.Key = Key(key)
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		// numbers, arrays, null: not an input we know, leave it zero
		return nil
	}
	if raw, ok := obj["change-name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return fmt.Errorf("invalid change-name value: %w", err)
		}
		in.ChangeName = &name
	}
	if raw, ok := obj["new-minefield"]; ok {
		var spec MinefieldSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("invalid new-minefield value: %w", err)
		}
		in.NewMinefield = &spec
	}
	return nil
}

// CellSnapshot is one cell of a minefield snapshot. Neighbors maps a compass
// direction to whether that neighbor holds a mine, or nil when off the board.
type CellSnapshot struct {
	X         int              `json:"x"`
	Y         int              `json:"y"`
	Contents  string           `json:"contents"`
	Probed    bool             `json:"probed"`
	Flagged   bool             `json:"flagged"`
	Neighbors map[string]*bool `json:"neighbors"`
}

// Cell contents values.
const (
	ContentsMine  = "mine"
	ContentsEmpty = "empty"
)

// MineContacts counts the neighbors holding a mine.
func (c CellSnapshot) MineContacts() int {
	n := 0
	for _, mine := range c.Neighbors {
		if mine != nil && *mine {
			n++
		}
	}
	return n
}

// MinefieldSnapshot is a serializable view of one board. Cells are ordered
// column-major: index x*Height+y.
type MinefieldSnapshot struct {
	Selected  [2]int         `json:"selected"`
	Height    int            `json:"height"`
	Width     int            `json:"width"`
	MineCount int            `json:"mine_count"`
	Cells     []CellSnapshot `json:"cells"`
}

// Cell returns the snapshot of the cell at x, y.
func (m MinefieldSnapshot) Cell(x, y int) (CellSnapshot, bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return CellSnapshot{}, false
	}
	i := x*m.Height + y
	if i >= len(m.Cells) {
		return CellSnapshot{}, false
	}
	return m.Cells[i], true
}

// PlayerSnapshot is both the opening message a server sends to a new client
// and the per-player entry of a BoutSnapshot.
type PlayerSnapshot struct {
	Name      string            `json:"name"`
	Living    bool              `json:"living"`
	Minefield MinefieldSnapshot `json:"minefield"`
	Victory   bool              `json:"victory"`
}

// BoutSnapshot is the full state broadcast to every player.
type BoutSnapshot struct {
	Players map[string]PlayerSnapshot `json:"players"`
	Ready   bool                      `json:"ready"`
}

// Concluded reports whether some player has won or every player is dead.
// The bout keeps accepting input after this; stopping is up to the caller.
func (b BoutSnapshot) Concluded() bool {
	if len(b.Players) == 0 {
		return false
	}
	living := 0
	for _, p := range b.Players {
		if p.Victory {
			return true
		}
		if p.Living {
			living++
		}
	}
	return living == 0
}

// SelectedUpdate is the lightweight cursor-moved event.
type SelectedUpdate struct {
	Player string
	X, Y   int
}

// Event is one server -> client message after the opening player snapshot.
// On the wire it is a two element array: [kind, payload].
type Event struct {
	Kind     EventKind
	State    *BoutSnapshot
	Selected *SelectedUpdate
}

// StateEvent wraps a full snapshot.
func StateEvent(s BoutSnapshot) Event {
	return Event{Kind: EventNewState, State: &s}
}

// SelectedEvent wraps a cursor move.
func SelectedEvent(player string, x, y int) Event {
	return Event{Kind: EventUpdateSelected, Selected: &SelectedUpdate{Player: player, X: x, Y: y}}
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventNewState:
		if e.State == nil {
			return nil, errors.New("new-state event without state")
		}
		return json.Marshal([]any{e.Kind, e.State})
	case EventUpdateSelected:
		if e.Selected == nil {
			return nil, errors.New("update-selected event without selection")
		}
		return json.Marshal([]any{e.Kind, []any{e.Selected.Player, [2]int{e.Selected.X, e.Selected.Y}}})
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("event is not a tuple: %w", err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("event tuple has %d elements, want 2", len(parts))
	}

	var kind EventKind
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return fmt.Errorf("invalid event kind: %w", err)
	}

	*e = Event{Kind: kind}
	switch kind {
	case EventNewState:
		var s BoutSnapshot
		if err := json.Unmarshal(parts[1], &s); err != nil {
			return fmt.Errorf("invalid new-state payload: %w", err)
		}
		e.State = &s
	case EventUpdateSelected:
		var pair []json.RawMessage
		if err := json.Unmarshal(parts[1], &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("invalid update-selected payload")
		}
		var sel SelectedUpdate
		var xy [2]int
		if err := json.Unmarshal(pair[0], &sel.Player); err != nil {
			return fmt.Errorf("invalid update-selected player: %w", err)
		}
		if err := json.Unmarshal(pair[1], &xy); err != nil {
			return fmt.Errorf("invalid update-selected position: %w", err)
		}
		sel.X, sel.Y = xy[0], xy[1]
		e.Selected = &sel
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
	return nil
}
