package termui

import (
	"github.com/nsf/termbox-go"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

// Action is what a key press asks the UI to do.
type Action int

const (
	ActionNone Action = iota
	ActionInput
	ActionQuit
)

// KeyToInput maps a terminal key event to a game input. With vim set, hjkl
// move the cursor as well as the arrows.
func KeyToInput(ev termbox.Event, vim bool) (protocol.Input, Action) {
	if ev.Type != termbox.EventKey {
		return protocol.Input{}, ActionNone
	}

	switch ev.Key {
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return protocol.Input{}, ActionQuit
	case termbox.KeyArrowUp:
		return protocol.KeyInput(protocol.KeyUp), ActionInput
	case termbox.KeyArrowDown:
		return protocol.KeyInput(protocol.KeyDown), ActionInput
	case termbox.KeyArrowLeft:
		return protocol.KeyInput(protocol.KeyLeft), ActionInput
	case termbox.KeyArrowRight:
		return protocol.KeyInput(protocol.KeyRight), ActionInput
	case termbox.KeyEnter, termbox.KeySpace:
		return protocol.KeyInput(protocol.KeyProbe), ActionInput
	}

	switch ev.Ch {
	case 'f', 'F':
		return protocol.KeyInput(protocol.KeyFlag), ActionInput
	case 'q':
		return protocol.Input{}, ActionQuit
	}

	if vim {
		switch ev.Ch {
		case 'k':
			return protocol.KeyInput(protocol.KeyUp), ActionInput
		case 'j':
			return protocol.KeyInput(protocol.KeyDown), ActionInput
		case 'h':
			return protocol.KeyInput(protocol.KeyLeft), ActionInput
		case 'l':
			return protocol.KeyInput(protocol.KeyRight), ActionInput
		}
	}

	return protocol.Input{}, ActionNone
}
