package server

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// FanIn merges several listeners into one. Accept returns whichever
// connection arrives first; Close closes all of them. Addr reports the
// first listener's address.
type FanIn struct {
	lns    []net.Listener
	conns  chan net.Conn
	closed chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

func NewFanIn(logger *slog.Logger, lns ...net.Listener) *FanIn {
	f := &FanIn{
		lns:    lns,
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
		logger: logger,
	}
	for _, ln := range lns {
		go f.acceptLoop(ln)
	}
	return f
}

func (f *FanIn) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			f.logger.Error("failed to accept connection", "address", ln.Addr().String(), "error", err)
			select {
			case <-f.closed:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		select {
		case f.conns <- conn:
		case <-f.closed:
			conn.Close()
			return
		}
	}
}

func (f *FanIn) Accept() (net.Conn, error) {
	select {
	case c := <-f.conns:
		return c, nil
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *FanIn) Close() error {
	var errs []error
	f.closeOnce.Do(func() {
		close(f.closed)
		for _, ln := range f.lns {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (f *FanIn) Addr() net.Addr { return f.lns[0].Addr() }
