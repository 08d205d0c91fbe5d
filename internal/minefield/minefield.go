// Package minefield implements the minesweeper board a Bout hands to each
// player: mine placement, probing, flagging and the opening foothold.
package minefield

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

const (
	DefaultWidth  = 12
	DefaultHeight = 12

	// DefaultMineDensity derives a mine count when none is given.
	DefaultMineDensity = 0.15
)

var (
	ErrInvalidDimensions = errors.New("minefield dimensions must be positive")
	ErrTooManyMines      = errors.New("minefield needs at least one cell without a mine")
)

// Point is a board coordinate.
type Point struct {
	X, Y int
}

type cell struct {
	mine    bool
	probed  bool
	flagged bool
}

// compass order matters only for snapshot stability
var directions = []struct {
	name   string
	dx, dy int
}{
	{"N", 0, -1},
	{"NE", 1, -1},
	{"E", 1, 0},
	{"SE", 1, 1},
	{"S", 0, 1},
	{"SW", -1, 1},
	{"W", -1, 0},
	{"NW", -1, -1},
}

// Minefield is a width x height grid. It is not safe for concurrent use;
// the owning Bout serializes access.
type Minefield struct {
	width     int
	height    int
	mineCount int
	cells     []cell // column-major, x*height+y
	selected  Point
	rng       *rand.Rand
}

// New builds a board with mineCount mines. A zero mineCount derives the
// count from the area.
func New(width, height, mineCount int, rng *rand.Rand) (*Minefield, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if mineCount == 0 {
		mineCount = DerivedMineCount(width, height)
	}
	if mineCount < 0 || mineCount >= width*height {
		return nil, fmt.Errorf("%w: %d mines on %d cells", ErrTooManyMines, mineCount, width*height)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	m := &Minefield{
		width:     width,
		height:    height,
		mineCount: mineCount,
		cells:     make([]cell, width*height),
		rng:       rng,
	}
	m.populate()
	return m, nil
}

// NewWithMines builds a board with mines at exactly the given points.
func NewWithMines(width, height int, mines []Point, rng *rand.Rand) (*Minefield, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m := &Minefield{
		width:  width,
		height: height,
		cells:  make([]cell, width*height),
		rng:    rng,
	}
	for _, p := range mines {
		if !m.inBounds(p.X, p.Y) {
			return nil, fmt.Errorf("mine at %d,%d is off the board", p.X, p.Y)
		}
		c := m.at(p.X, p.Y)
		if !c.mine {
			c.mine = true
			m.mineCount++
		}
	}
	if m.mineCount >= width*height {
		return nil, fmt.Errorf("%w: %d mines on %d cells", ErrTooManyMines, m.mineCount, width*height)
	}
	return m, nil
}

// DerivedMineCount is the mine count used when none is configured.
func DerivedMineCount(width, height int) int {
	n := int(DefaultMineDensity * float64(width*height))
	if n >= width*height {
		n = width*height - 1
	}
	return n
}

// populate places mineCount mines. About half of them must also satisfy a
// randomly chosen row and column parity rule, which gives boards some
// structure instead of pure noise.
func (m *Minefield) populate() {
	rules := []func(int) bool{
		func(v int) bool { return v%2 == 0 },
		func(v int) bool { return v%2 == 1 },
		func(v int) bool { return v%3 == 0 },
	}
	rowRule := rules[m.rng.IntN(len(rules))]
	colRule := rules[m.rng.IntN(len(rules))]

	for placed := 0; placed < m.mineCount; {
		x, y := m.rng.IntN(m.width), m.rng.IntN(m.height)
		if m.rng.IntN(2) == 1 && (rowRule(y) || colRule(x)) {
			continue
		}
		c := m.at(x, y)
		if !c.mine {
			c.mine = true
			placed++
		}
	}
}

func (m *Minefield) Width() int     { return m.width }
func (m *Minefield) Height() int    { return m.height }
func (m *Minefield) MineCount() int { return m.mineCount }

// Selected is the player's cursor.
func (m *Minefield) Selected() Point { return m.selected }

// MoveSelected shifts the cursor by dx, dy, clamping to the board edges.
func (m *Minefield) MoveSelected(dx, dy int) Point {
	nx, ny := m.selected.X+dx, m.selected.Y+dy
	if nx < 0 || nx >= m.width {
		nx = m.selected.X
	}
	if ny < 0 || ny >= m.height {
		ny = m.selected.Y
	}
	m.selected = Point{X: nx, Y: ny}
	return m.selected
}

// SetSelected moves the cursor; out of bounds positions are ignored.
func (m *Minefield) SetSelected(p Point) {
	if m.inBounds(p.X, p.Y) {
		m.selected = p
	}
}

func (m *Minefield) IsMine(x, y int) bool    { return m.inBounds(x, y) && m.at(x, y).mine }
func (m *Minefield) IsProbed(x, y int) bool  { return m.inBounds(x, y) && m.at(x, y).probed }
func (m *Minefield) IsFlagged(x, y int) bool { return m.inBounds(x, y) && m.at(x, y).flagged }

// AnyProbed reports whether any cell has been probed yet.
func (m *Minefield) AnyProbed() bool {
	for i := range m.cells {
		if m.cells[i].probed {
			return true
		}
	}
	return false
}

// MineContacts counts mines in the up to eight cells around x, y.
func (m *Minefield) MineContacts(x, y int) int {
	n := 0
	for _, p := range m.neighbors(x, y) {
		if m.at(p.X, p.Y).mine {
			n++
		}
	}
	return n
}

// Probe reveals x, y. When the cell touches no mines the reveal spreads to
// its neighbors, using an explicit stack so board size never limits depth.
// It reports whether x, y holds a mine.
func (m *Minefield) Probe(x, y int) (mine bool) {
	if !m.inBounds(x, y) {
		return false
	}

	stack := []Point{{x, y}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c := m.at(p.X, p.Y)
		if c.probed {
			continue
		}
		c.probed = true
		if c.mine || m.MineContacts(p.X, p.Y) != 0 {
			continue
		}
		for _, n := range m.neighbors(p.X, p.Y) {
			if !m.at(n.X, n.Y).probed {
				stack = append(stack, n)
			}
		}
	}
	return m.at(x, y).mine
}

// ToggleFlag flips the flag on x, y.
func (m *Minefield) ToggleFlag(x, y int) {
	if m.inBounds(x, y) {
		c := m.at(x, y)
		c.flagged = !c.flagged
	}
}

// Flags returns the total number of flags and how many sit on mines.
func (m *Minefield) Flags() (total, correct int) {
	for i := range m.cells {
		if m.cells[i].flagged {
			total++
			if m.cells[i].mine {
				correct++
			}
		}
	}
	return total, correct
}

// CreateFoothold clears mines from x, y and its neighbors, relocating each
// to a random unmined cell outside that area so the mine count is
// unchanged. If the board is too crowded to move them all, only the mine
// on x, y itself is relocated.
func (m *Minefield) CreateFoothold(x, y int) {
	if !m.inBounds(x, y) {
		return
	}

	safe := append(m.neighbors(x, y), Point{x, y})
	if !m.relocate(safe) {
		m.relocate([]Point{{x, y}})
	}
}

// relocate moves every mine inside area to a random free cell outside it.
// It changes nothing and returns false when there are not enough free cells.
func (m *Minefield) relocate(area []Point) bool {
	inArea := make(map[Point]bool, len(area))
	displaced := 0
	for _, p := range area {
		inArea[p] = true
		if m.at(p.X, p.Y).mine {
			displaced++
		}
	}
	if displaced == 0 {
		return true
	}

	var free []Point
	for x := range m.width {
		for y := range m.height {
			p := Point{x, y}
			if !inArea[p] && !m.at(x, y).mine {
				free = append(free, p)
			}
		}
	}
	if len(free) < displaced {
		return false
	}

	for _, p := range area {
		m.at(p.X, p.Y).mine = false
	}
	m.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	for _, p := range free[:displaced] {
		m.at(p.X, p.Y).mine = true
	}
	return true
}

// Snapshot returns the serializable view of the board.
func (m *Minefield) Snapshot() protocol.MinefieldSnapshot {
	cells := make([]protocol.CellSnapshot, 0, len(m.cells))
	for x := range m.width {
		for y := range m.height {
			c := m.at(x, y)
			contents := protocol.ContentsEmpty
			if c.mine {
				contents = protocol.ContentsMine
			}
			neighbors := make(map[string]*bool, len(directions))
			for _, d := range directions {
				nx, ny := x+d.dx, y+d.dy
				if !m.inBounds(nx, ny) {
					neighbors[d.name] = nil
					continue
				}
				mine := m.at(nx, ny).mine
				neighbors[d.name] = &mine
			}
			cells = append(cells, protocol.CellSnapshot{
				X:         x,
				Y:         y,
				Contents:  contents,
				Probed:    c.probed,
				Flagged:   c.flagged,
				Neighbors: neighbors,
			})
		}
	}

	return protocol.MinefieldSnapshot{
		Selected:  [2]int{m.selected.X, m.selected.Y},
		Height:    m.height,
		Width:     m.width,
		MineCount: m.mineCount,
		Cells:     cells,
	}
}

func (m *Minefield) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.width && y < m.height
}

func (m *Minefield) at(x, y int) *cell {
	return &m.cells[x*m.height+y]
}

func (m *Minefield) neighbors(x, y int) []Point {
	out := make([]Point, 0, len(directions))
	for _, d := range directions {
		nx, ny := x+d.dx, y+d.dy
		if m.inBounds(nx, ny) {
			out = append(out, Point{nx, ny})
		}
	}
	return out
}
