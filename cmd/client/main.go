package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/KDT2006/defusedivision/internal/client"
	"github.com/KDT2006/defusedivision/internal/config"
	"github.com/KDT2006/defusedivision/internal/game"
	"github.com/KDT2006/defusedivision/internal/protocol"
	"github.com/KDT2006/defusedivision/internal/termui"
)

// defaultLogFile keeps log output off the terminal the game draws on.
const defaultLogFile = "/tmp/defusedivision.log"

func main() {
	configPath := flag.String("config", "", "directory containing defusedivision.yaml")
	local := flag.Bool("local", false, "play a single-player game without a server")
	flag.Parse()

	if err := run(*configPath, *local); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, local bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if local {
		cfg.Client.Mode = config.ModeLocal
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile
	}

	logger, closeLog, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	uiOpts := termui.Options{VimKeys: cfg.Client.VimKeys, Logger: logger}

	if cfg.Client.Mode == config.ModeLocal {
		return playLocal(cfg, logger, uiOpts)
	}
	return playRemote(cfg, logger, uiOpts)
}

func playLocal(cfg *config.Config, logger *slog.Logger, uiOpts termui.Options) error {
	opts := cfg.BoutOptions()
	opts.MaxPlayers = 1
	opts.Logger = logger
	bout := game.New(opts)

	conv, err := bout.AddPlayer()
	if err != nil {
		return err
	}
	player := conv.(*game.LocalPlayer)
	defer player.Leave()

	if cfg.Client.Name != "" {
		if err := player.SendInput(protocol.RenameInput(cfg.Client.Name)); err != nil {
			logger.Warn("failed to change name", "player", player.Name(), "error", err)
		}
	}
	return termui.Run(player, uiOpts)
}

func playRemote(cfg *config.Config, logger *slog.Logger, uiOpts termui.Options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.DialTimeout)
	defer cancel()

	var (
		sess *client.Session
		err  error
	)
	if cfg.Client.WebSocketURL != "" {
		sess, err = client.DialWebSocket(ctx, cfg.Client.WebSocketURL, logger)
	} else {
		sess, err = client.Dial(ctx, cfg.ServerAddr(), logger)
	}
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.Client.Name != "" {
		if err := sess.SendInput(protocol.RenameInput(cfg.Client.Name)); err != nil {
			return fmt.Errorf("failed to change name: %w", err)
		}
	}
	return termui.Run(sess, uiOpts)
}
