package game

import (
	"github.com/KDT2006/defusedivision/internal/minefield"
	"github.com/KDT2006/defusedivision/internal/protocol"
)

func moveSelected(k protocol.Key, field *minefield.Minefield) minefield.Point {
	var dx, dy int
	switch k {
	case protocol.KeyUp:
		dy = -1
	case protocol.KeyDown:
		dy = 1
	case protocol.KeyRight:
		dx = 1
	case protocol.KeyLeft:
		dx = -1
	}
	return field.MoveSelected(dx, dy)
}

// probeSelected probes the cursor cell and reports whether the player
// survived. Flagged cells ignore probes. The first probe of a board clears
// a foothold around the cursor first.
func probeSelected(field *minefield.Minefield) bool {
	sel := field.Selected()
	if field.IsFlagged(sel.X, sel.Y) {
		return true
	}
	if !field.AnyProbed() {
		field.CreateFoothold(sel.X, sel.Y)
	}
	return !field.Probe(sel.X, sel.Y)
}

func flagSelected(field *minefield.Minefield) {
	sel := field.Selected()
	field.ToggleFlag(sel.X, sel.Y)
}

// checkWin holds when exactly the mined cells are flagged.
func checkWin(field *minefield.Minefield) bool {
	total, correct := field.Flags()
	return correct == field.MineCount() && total == correct
}
