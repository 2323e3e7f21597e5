package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/HMasataka/huddle/internal/signaling"
	"github.com/HMasataka/huddle/pkg/call"
	"github.com/HMasataka/huddle/pkg/mediaserver"
	"github.com/HMasataka/huddle/pkg/retry"
	"github.com/HMasataka/huddle/pkg/room"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server      ServerConfig      `toml:"server"`
	MediaServer MediaServerConfig `toml:"mediaserver"`
	Room        RoomConfig        `toml:"room"`
	Retry       RetryConfig       `toml:"retry"`
	Log         LogConfig         `toml:"log"`
}

type ServerConfig struct {
	Addr           string `toml:"addr"`
	ReadLimit      int64  `toml:"read_limit"`
	PingIntervalMs int    `toml:"ping_interval_ms"`
	// OutboxSize is the backlog at which a connection's outbox is logged as slow.
	OutboxSize int `toml:"outbox_size"`
}

type MediaServerConfig struct {
	URL       string `toml:"url"`
	TimeoutMs int    `toml:"timeout_ms"`
}

type RoomConfig struct {
	GracePeriodMs  int `toml:"grace_period_ms"`
	CleanupWorkers int `toml:"cleanup_workers"`
}

type RetryConfig struct {
	Attempts       int `toml:"attempts"`
	BaseIntervalMs int `toml:"base_interval_ms"`
	MaxBackoffMs   int `toml:"max_backoff_ms"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" | "text"
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadLimit:      512 * 1024,
			PingIntervalMs: 15000,
			OutboxSize:     1024,
		},
		MediaServer: MediaServerConfig{
			URL:       "http://localhost:3000/rpc",
			TimeoutMs: 10000,
		},
		Room: RoomConfig{
			GracePeriodMs:  0,
			CleanupWorkers: 4,
		},
		Retry: RetryConfig{
			Attempts:       3,
			BaseIntervalMs: 50,
			MaxBackoffMs:   500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MediaServer.URL == "" {
		return fmt.Errorf("mediaserver.url is required")
	}
	if c.MediaServer.TimeoutMs <= 0 {
		return fmt.Errorf("mediaserver.timeout_ms must be positive")
	}
	if c.Room.GracePeriodMs < 0 {
		return fmt.Errorf("room.grace_period_ms must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text: %q", c.Log.Format)
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c Config) ServerOptions() signaling.ServerOptions {
	opts := signaling.DefaultServerOptions()
	opts.ReadLimit = c.Server.ReadLimit
	opts.PingInterval = ms(c.Server.PingIntervalMs)
	opts.OutboxWarnSize = c.Server.OutboxSize
	return opts
}

func (c Config) ClientOptions() mediaserver.ClientOptions {
	opts := mediaserver.DefaultClientOptions()
	opts.URL = c.MediaServer.URL
	opts.Timeout = ms(c.MediaServer.TimeoutMs)
	return opts
}

func (c Config) RoomOptions() room.Options {
	return room.Options{GracePeriod: ms(c.Room.GracePeriodMs)}
}

func (c Config) CallOptions() call.Options {
	return call.Options{
		Retry: retry.Config{
			Attempts:     c.Retry.Attempts,
			BaseInterval: ms(c.Retry.BaseIntervalMs),
			MaxBackoff:   ms(c.Retry.MaxBackoffMs),
		},
		CleanupWorkers: c.Room.CleanupWorkers,
	}
}
