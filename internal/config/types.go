package config

import "time"

// ServerConfig controls where the server listens.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	WebSocketAddr string        `mapstructure:"websocket_addr"` // empty disables the WebSocket listener
	AdvertiseQR   bool          `mapstructure:"advertise_qr"`
	FillInterval  time.Duration `mapstructure:"fill_interval"`
}

// BoutConfig sizes a match. MineCount 0 means derived from the board area.
type BoutConfig struct {
	MaxPlayers int `mapstructure:"max_players"`
	Width      int `mapstructure:"width"`
	Height     int `mapstructure:"height"`
	MineCount  int `mapstructure:"mine_count"`
}

// SessionConfig bounds each player's outbound queue.
type SessionConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Overflow  string `mapstructure:"overflow"` // drop-oldest or disconnect
}

// ClientConfig describes how the terminal client reaches a game.
type ClientConfig struct {
	Mode         string        `mapstructure:"mode"` // remote or local
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	WebSocketURL string        `mapstructure:"websocket_url"`
	Name         string        `mapstructure:"name"`
	VimKeys      bool          `mapstructure:"vimkeys"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	File   string `mapstructure:"file"`
}

// Config is everything both binaries read from defusedivision.yaml and the
// environment.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Bout    BoutConfig    `mapstructure:"bout"`
	Session SessionConfig `mapstructure:"session"`
	Client  ClientConfig  `mapstructure:"client"`
	Log     LogConfig     `mapstructure:"log"`
}

const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)
