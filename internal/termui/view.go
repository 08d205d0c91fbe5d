package termui

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/nsf/termbox-go"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

// Canvas is the drawing surface the view renders into. termbox satisfies it
// through termboxCanvas; tests use an in-memory grid.
type Canvas interface {
	Size() (width, height int)
	SetCell(x, y int, ch rune, fg, bg termbox.Attribute)
	Clear() error
	Flush() error
}

const (
	cellWidth = 2
	boardGap  = 4
	// header rows above each board: name, then status
	headerRows = 2
)

// View is the client's copy of the bout, patched by incoming events.
type View struct {
	Self  string
	state protocol.BoutSnapshot
	seen  bool
}

func NewView(self string) *View {
	return &View{Self: self}
}

// Apply folds ev into the view.
func (v *View) Apply(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventNewState:
		if ev.State != nil {
			v.state = *ev.State
			v.seen = true
		}
	case protocol.EventUpdateSelected:
		if ev.Selected == nil {
			return
		}
		p, ok := v.state.Players[ev.Selected.Player]
		if !ok {
			return
		}
		p.Minefield.Selected = [2]int{ev.Selected.X, ev.Selected.Y}
		v.state.Players[ev.Selected.Player] = p
	}
}

// State returns the current snapshot.
func (v *View) State() protocol.BoutSnapshot { return v.state }

// order puts the local player first, then everyone else by name.
func (v *View) order() []string {
	names := make([]string, 0, len(v.state.Players))
	for name := range v.state.Players {
		if name != v.Self {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	if _, ok := v.state.Players[v.Self]; ok {
		names = append([]string{v.Self}, names...)
	}
	return names
}

// Status is the line shown under the boards.
func (v *View) Status() string {
	if !v.seen {
		return "connecting..."
	}
	if !v.state.Ready {
		return fmt.Sprintf("waiting for players (%d joined)  esc: quit", len(v.state.Players))
	}
	if v.state.Concluded() {
		for _, name := range v.order() {
			if v.state.Players[name].Victory {
				if name == v.Self {
					return "you cleared the field!  esc: quit"
				}
				return name + " wins  esc: quit"
			}
		}
		return "everyone is dead  esc: quit"
	}
	if self, ok := v.state.Players[v.Self]; ok && !self.Living {
		return "you hit a mine  esc: quit"
	}
	return "arrows: move  enter/space: probe  f: flag  esc: quit"
}

// Render draws every board side by side with the status line below.
func (v *View) Render(c Canvas) error {
	if err := c.Clear(); err != nil {
		return err
	}

	x := 0
	bottom := 0
	for _, name := range v.order() {
		p := v.state.Players[name]
		w := max(p.Minefield.Width*cellWidth, 12)
		drawBoard(c, x, 0, p, name == v.Self)
		x += w + boardGap
		bottom = max(bottom, headerRows+p.Minefield.Height)
	}

	drawString(c, 0, bottom+1, v.Status(), termbox.ColorDefault, termbox.ColorDefault)
	return c.Flush()
}

func drawBoard(c Canvas, left, top int, p protocol.PlayerSnapshot, self bool) {
	m := p.Minefield
	width := max(m.Width*cellWidth, 12)

	nameFg := termbox.ColorDefault
	if self {
		nameFg = termbox.ColorCyan | termbox.AttrBold
	}
	drawString(c, left, top, runewidth.Truncate(p.Name, width, "…"), nameFg, termbox.ColorDefault)

	status, statusFg := "alive", termbox.ColorGreen
	switch {
	case p.Victory:
		status, statusFg = "victory", termbox.ColorYellow|termbox.AttrBold
	case !p.Living:
		status, statusFg = "dead", termbox.ColorRed
	}
	flags := 0
	for _, cell := range m.Cells {
		if cell.Flagged {
			flags++
		}
	}
	drawString(c, left, top+1, fmt.Sprintf("%s %d/%d", status, flags, m.MineCount), statusFg, termbox.ColorDefault)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			cell, ok := m.Cell(x, y)
			if !ok {
				continue
			}
			ch, fg := cellGlyph(cell, p.Living)
			bg := termbox.ColorDefault
			if m.Selected == [2]int{x, y} {
				fg |= termbox.AttrReverse
			}
			c.SetCell(left+x*cellWidth, top+headerRows+y, ch, fg, bg)
		}
	}
}

var contactColors = []termbox.Attribute{
	termbox.ColorDefault,
	termbox.ColorBlue,
	termbox.ColorGreen,
	termbox.ColorRed,
	termbox.ColorMagenta,
	termbox.ColorYellow,
	termbox.ColorCyan,
	termbox.ColorWhite,
	termbox.ColorWhite,
}

// cellGlyph picks what a cell looks like. Mines are only revealed once
// probed or once the board's owner is dead.
func cellGlyph(cell protocol.CellSnapshot, living bool) (rune, termbox.Attribute) {
	mine := cell.Contents == protocol.ContentsMine
	switch {
	case cell.Flagged:
		return 'F', termbox.ColorRed | termbox.AttrBold
	case mine && (cell.Probed || !living):
		return '*', termbox.ColorRed | termbox.AttrBold
	case !cell.Probed:
		return '·', termbox.ColorDefault
	}

	n := cell.MineContacts()
	if n == 0 {
		return ' ', termbox.ColorDefault
	}
	return rune(strconv.Itoa(n)[0]), contactColors[n]
}

func drawString(c Canvas, x, y int, s string, fg, bg termbox.Attribute) {
	for _, r := range s {
		c.SetCell(x, y, r, fg, bg)
		x += runewidth.RuneWidth(r)
	}
}

// termboxCanvas draws to the real terminal.
type termboxCanvas struct{}

func (termboxCanvas) Size() (int, int) { return termbox.Size() }

func (termboxCanvas) SetCell(x, y int, ch rune, fg, bg termbox.Attribute) {
	termbox.SetCell(x, y, ch, fg, bg)
}

func (termboxCanvas) Clear() error { return termbox.Clear(termbox.ColorDefault, termbox.ColorDefault) }

func (termboxCanvas) Flush() error { return termbox.Flush() }
