package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/KDT2006/defusedivision/internal/game"
)

// DefaultFillInterval is how long Serve waits before retrying admission
// once the bout is full.
const DefaultFillInterval = 300 * time.Millisecond

// Server accepts player connections. Its CreatePlayer method is the
// PlayerConstructor of a networked Bout, so the bout's admission loop
// drives how many connections get accepted.
type Server struct {
	ListenAddr string
	ln         net.Listener
	logger     *slog.Logger
}

// Listen opens a TCP listener on addr.
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	return New(ln, logger), nil
}

// New wraps an existing listener, for example a WebSocketListener or a
// FanIn of several.
func New(ln net.Listener, logger *slog.Logger) *Server {
	return &Server{
		ListenAddr: ln.Addr().String(),
		ln:         ln,
		logger:     logger,
	}
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) Close() error { return s.ln.Close() }

// CreatePlayer blocks until one connection arrives and binds it to p.
func (s *Server) CreatePlayer(b *game.Bout, p *game.Player) (game.Conveyor, error) {
	conn, err := s.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("failed to accept connection: %w", err)
	}
	s.logger.Info("accepted connection", "address", s.ListenAddr, "remote", conn.RemoteAddr().String())

	sess, err := NewSession(conn, p, b, s.logger)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Serve keeps admitting players into b until ctx is cancelled. When the bout
// is full it pauses fillInterval before trying again, so a slot freed by a
// disconnect is refilled. Cancelling ctx closes the listener.
func (s *Server) Serve(ctx context.Context, b *game.Bout, fillInterval time.Duration) error {
	if fillInterval <= 0 {
		fillInterval = DefaultFillInterval
	}
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	s.logger.Info("server is listening", "address", s.ListenAddr, "max_players", b.MaxPlayers())

	for {
		conv, err := b.AddPlayer()
		if ctx.Err() != nil {
			s.logger.Info("server shutting down", "address", s.ListenAddr)
			return nil
		}

		switch {
		case errors.Is(err, net.ErrClosed):
			s.logger.Info("listener closed", "address", s.ListenAddr)
			return nil
		case errors.Is(err, game.ErrPlayerGone):
			continue
		case err != nil:
			s.logger.Error("failed to admit player", "address", s.ListenAddr, "error", err)
		case conv != nil:
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("server shutting down", "address", s.ListenAddr)
			return nil
		case <-time.After(fillInterval):
		}
	}
}
