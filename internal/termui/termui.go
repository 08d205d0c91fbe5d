// Package termui is the terminal front end. It drives any game.Conveyor, so
// the same screen plays a local bout or a remote one.
package termui

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nsf/termbox-go"

	"github.com/KDT2006/defusedivision/internal/game"
	"github.com/KDT2006/defusedivision/internal/protocol"
)

// Player is a Conveyor that knows its own name.
type Player interface {
	game.Conveyor
	Name() string
}

type Options struct {
	VimKeys bool
	Logger  *slog.Logger
}

// Run takes over the terminal until the player quits or the conveyor closes.
func Run(p Player, opts Options) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	keys := make(chan termbox.Event)
	go func() {
		for {
			ev := termbox.PollEvent()
			if ev.Type == termbox.EventInterrupt {
				return
			}
			keys <- ev
		}
	}()
	// unblocks the poller on the way out
	defer termbox.Interrupt()

	return loop(p, termboxCanvas{}, keys, opts)
}

// loop is Run without the terminal setup.
func loop(p Player, c Canvas, keys <-chan termbox.Event, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	type result struct {
		ev  protocol.Event
		err error
	}
	states := make(chan result)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			ev, err := p.GetState()
			select {
			case states <- result{ev, err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	view := NewView(p.Name())
	if err := view.Render(c); err != nil {
		return err
	}

	for {
		select {
		case ev := <-keys:
			if ev.Type == termbox.EventError {
				return fmt.Errorf("terminal input: %w", ev.Err)
			}
			in, action := KeyToInput(ev, opts.VimKeys)
			switch action {
			case ActionQuit:
				return nil
			case ActionInput:
				if err := p.SendInput(in); err != nil {
					if errors.Is(err, protocol.ErrClosed) || errors.Is(err, game.ErrQueueClosed) {
						return nil
					}
					logger.Warn("input rejected", "player", p.Name(), "error", err)
				}
			}

		case r := <-states:
			if r.err != nil {
				if errors.Is(r.err, protocol.ErrClosed) || errors.Is(r.err, game.ErrQueueClosed) {
					logger.Info("game connection closed", "player", p.Name())
					return nil
				}
				return r.err
			}
			// the name may have been suffixed by the server on rename
			view.Self = p.Name()
			view.Apply(r.ev)
		}

		if err := view.Render(c); err != nil {
			return err
		}
	}
}
