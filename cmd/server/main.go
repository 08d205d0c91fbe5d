package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/KDT2006/defusedivision/internal/config"
	"github.com/KDT2006/defusedivision/internal/game"
	"github.com/KDT2006/defusedivision/internal/server"
)

func main() {
	configPath := flag.String("config", "", "directory containing defusedivision.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	var ln net.Listener
	tcp, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	ln = tcp

	if cfg.Server.WebSocketAddr != "" {
		ws, err := server.ListenWebSocket(cfg.Server.WebSocketAddr, logger)
		if err != nil {
			tcp.Close()
			return fmt.Errorf("failed to start websocket listener: %w", err)
		}
		logger.Info("websocket listener started", "address", ws.Addr().String(), "path", server.WebSocketPath)
		ln = server.NewFanIn(logger, tcp, ws)
	}

	srv := server.New(ln, logger)
	defer srv.Close()

	if cfg.Server.AdvertiseQR {
		addr := server.AdvertiseAddr(tcp.Addr().String())
		fmt.Printf("players can join at %s\n", addr)
		if err := server.AdvertiseQR(os.Stdout, addr); err != nil {
			logger.Warn("failed to print QR code", "error", err)
		}
	}

	opts := cfg.BoutOptions()
	opts.Construct = srv.CreatePlayer
	opts.Logger = logger
	opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	bout := game.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx, bout, cfg.Server.FillInterval)
}
