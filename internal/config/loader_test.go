package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KDT2006/defusedivision/internal/game"
)

// inTempDir keeps LoadConfig from picking up a stray .env or config file.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := cfg.ListenAddr(); got != "0.0.0.0:44444" {
		t.Errorf("ListenAddr = %q", got)
	}
	if got := cfg.ServerAddr(); got != "127.0.0.1:44444" {
		t.Errorf("ServerAddr = %q", got)
	}
	if cfg.Server.FillInterval != 300*time.Millisecond {
		t.Errorf("FillInterval = %v", cfg.Server.FillInterval)
	}
	if cfg.Client.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v", cfg.Client.DialTimeout)
	}
	if cfg.Bout.MaxPlayers != 3 || cfg.Bout.Width != 12 || cfg.Bout.Height != 12 || cfg.Bout.MineCount != 0 {
		t.Errorf("Bout = %+v", cfg.Bout)
	}
	if cfg.Client.Mode != ModeRemote {
		t.Errorf("Mode = %q", cfg.Client.Mode)
	}

	opts := cfg.BoutOptions()
	if opts.Overflow != game.DropOldest || opts.QueueSize != game.DefaultQueueSize {
		t.Errorf("BoutOptions = %+v", opts)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := inTempDir(t)
	confDir := filepath.Join(dir, "conf")
	if err := os.Mkdir(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
server:
  port: 5000
  websocket_addr: ":8080"
bout:
  max_players: 2
  width: 5
  height: 4
  mine_count: 3
session:
  overflow: disconnect
client:
  mode: local
  vimkeys: true
`
	if err := os.WriteFile(filepath.Join(confDir, "defusedivision.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(confDir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.Server.WebSocketAddr != ":8080" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Bout != (BoutConfig{MaxPlayers: 2, Width: 5, Height: 4, MineCount: 3}) {
		t.Errorf("Bout = %+v", cfg.Bout)
	}
	if cfg.BoutOptions().Overflow != game.Disconnect {
		t.Errorf("Overflow = %q", cfg.BoutOptions().Overflow)
	}
	if cfg.Client.Mode != ModeLocal || !cfg.Client.VimKeys {
		t.Errorf("Client = %+v", cfg.Client)
	}
	// unset keys keep their defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q", cfg.Server.Host)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("DEFUSE_SERVER_PORT", "6000")
	t.Setenv("DEFUSE_CLIENT_NAME", "alice")
	t.Setenv("DEFUSE_SERVER_FILL_INTERVAL", "1s")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Client.Name != "alice" {
		t.Errorf("Name = %q", cfg.Client.Name)
	}
	if cfg.Server.FillInterval != time.Second {
		t.Errorf("FillInterval = %v", cfg.Server.FillInterval)
	}
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := inTempDir(t)
	// registered before the .env load so the variable is unset afterwards
	t.Setenv("DEFUSE_BOUT_WIDTH", "")
	os.Unsetenv("DEFUSE_BOUT_WIDTH")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DEFUSE_BOUT_WIDTH=20\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Bout.Width != 20 {
		t.Errorf("Width = %d, want 20 from .env", cfg.Bout.Width)
	}
}

func TestValidateConfig(t *testing.T) {
	inTempDir(t)
	base, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero players", func(c *Config) { c.Bout.MaxPlayers = 0 }, "max players"},
		{"zero width", func(c *Config) { c.Bout.Width = 0 }, "positive dimensions"},
		{"negative mines", func(c *Config) { c.Bout.MineCount = -1 }, "negative"},
		{"no safe cell", func(c *Config) { c.Bout.Width, c.Bout.Height, c.Bout.MineCount = 2, 2, 4 }, "no safe cell"},
		{"queue size", func(c *Config) { c.Session.QueueSize = 0 }, "queue size"},
		{"overflow", func(c *Config) { c.Session.Overflow = "block" }, "overflow policy"},
		{"mode", func(c *Config) { c.Client.Mode = "lan" }, "client mode"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if err := validateConfig(base); err != nil {
		t.Errorf("defaults rejected: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closeLog()

	logger.Info("hidden")
	logger.Warn("shown", "player", "Player1-7")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"player":"Player1-7"`) {
		t.Errorf("json record missing attr: %s", out)
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	logger, closeLog, err := LogConfig{Level: "debug", Format: "text", File: path}.NewLogger(os.Stderr)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("to file")
	if err := closeLog(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}
