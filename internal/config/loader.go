package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/KDT2006/defusedivision/internal/game"
)

// EnvPrefix namespaces environment overrides, e.g. DEFUSE_SERVER_PORT.
const EnvPrefix = "DEFUSE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 44444)
	v.SetDefault("server.websocket_addr", "")
	v.SetDefault("server.advertise_qr", false)
	v.SetDefault("server.fill_interval", 300*time.Millisecond)

	v.SetDefault("bout.max_players", 3)
	v.SetDefault("bout.width", 12)
	v.SetDefault("bout.height", 12)
	v.SetDefault("bout.mine_count", 0)

	v.SetDefault("session.queue_size", game.DefaultQueueSize)
	v.SetDefault("session.overflow", string(game.DropOldest))

	v.SetDefault("client.mode", ModeRemote)
	v.SetDefault("client.host", "127.0.0.1")
	v.SetDefault("client.port", 44444)
	v.SetDefault("client.websocket_url", "")
	v.SetDefault("client.name", "")
	v.SetDefault("client.vimkeys", false)
	v.SetDefault("client.dial_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// LoadConfig reads defusedivision.yaml from configPath, the working
// directory or config/, then applies DEFUSE_* environment overrides. A .env
// file in the working directory is loaded into the environment first. A
// missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("defusedivision")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	// default config path
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}
	if config.Client.Port <= 0 || config.Client.Port > 65535 {
		return fmt.Errorf("client port %d is out of range", config.Client.Port)
	}

	if err := validateBout(config.Bout); err != nil {
		return fmt.Errorf("invalid bout: %w", err)
	}

	if config.Session.QueueSize <= 0 {
		return fmt.Errorf("session queue size must be positive, got %d", config.Session.QueueSize)
	}
	if _, err := game.ParseOverflowPolicy(config.Session.Overflow); err != nil {
		return err
	}

	switch config.Client.Mode {
	case ModeRemote, ModeLocal:
	default:
		return fmt.Errorf("unknown client mode %q", config.Client.Mode)
	}

	if _, err := parseLevel(config.Log.Level); err != nil {
		return err
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Log.Format)
	}

	return nil
}

func validateBout(b BoutConfig) error {
	if b.MaxPlayers <= 0 {
		return fmt.Errorf("max players must be positive, got %d", b.MaxPlayers)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("board %dx%d must have positive dimensions", b.Width, b.Height)
	}
	if b.MineCount < 0 {
		return fmt.Errorf("mine count must not be negative, got %d", b.MineCount)
	}
	if b.MineCount >= b.Width*b.Height {
		return fmt.Errorf("%d mines leave no safe cell on a %dx%d board", b.MineCount, b.Width, b.Height)
	}
	return nil
}

// ListenAddr is the TCP address the server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ServerAddr is the TCP address the client dials.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Client.Host, strconv.Itoa(c.Client.Port))
}

// BoutOptions converts the bout and session sections into game.Options.
// Construct, Logger and Rand are left for the caller.
func (c *Config) BoutOptions() game.Options {
	policy, _ := game.ParseOverflowPolicy(c.Session.Overflow)
	return game.Options{
		MaxPlayers: c.Bout.MaxPlayers,
		Width:      c.Bout.Width,
		Height:     c.Bout.Height,
		MineCount:  c.Bout.MineCount,
		QueueSize:  c.Session.QueueSize,
		Overflow:   policy,
	}
}
