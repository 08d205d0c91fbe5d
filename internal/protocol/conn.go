package protocol

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// ErrClosed is returned once the peer or the local side closed the connection.
var ErrClosed = errors.New("connection closed")

// Conn is a net.Conn whose frame writes never interleave.
type Conn struct {
	net.Conn
	wmu sync.Mutex
}

func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// Send encodes msg and writes the whole frame in one call.
func (c *Conn) Send(msg any) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.Conn.Write(frame); err != nil {
		if IsClosed(err) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// IsClosed reports whether err means the connection is gone rather than
// something unexpected went wrong.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, ErrClosed)
}

// Go runs fn on a new goroutine, logging instead of crashing if it panics.
func Go(logger *slog.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}
