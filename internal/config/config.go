// Package config provides Viper-based configuration loading for the game
// server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TCPConfig holds the TCP listener settings.
type TCPConfig struct {
	// Host is the bind address for the TCP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for client connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for client connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxFrameBytes caps the length of a single inbound line.
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TCPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// WebSocketConfig holds the optional WebSocket listener settings.
type WebSocketConfig struct {
	// Enabled turns the WebSocket listener on.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address for the HTTP server.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP server.
	Port int `mapstructure:"port"`
	// Path is the URL path clients connect to.
	Path string `mapstructure:"path"`
	// ReadTimeout bounds how long a client may stay silent.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// GameConfig holds gameplay defaults applied to every room.
type GameConfig struct {
	// MaxPlayers caps room membership.
	MaxPlayers int `mapstructure:"max_players"`
	// MaxRounds is the number of rotation blocks per game.
	MaxRounds int `mapstructure:"max_rounds"`
	// GuessPoints is awarded for a first correct guess.
	GuessPoints int `mapstructure:"guess_points"`
	// DrawerBonus is awarded to the drawer per solved guess.
	DrawerBonus int `mapstructure:"drawer_bonus"`
	// RoundSeconds is the advisory round length sent to clients.
	RoundSeconds int `mapstructure:"round_seconds"`
	// WordsFile is an optional YAML word list; empty uses the built-in list.
	WordsFile string `mapstructure:"words_file"`
}

// SessionConfig tunes per-connection behavior.
type SessionConfig struct {
	// QueueSize is the outbound queue depth before a slow consumer is dropped.
	QueueSize int `mapstructure:"queue_size"`
	// MessagesPerSecond is the sustained inbound rate limit.
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	// Burst is the inbound rate limiter burst.
	Burst int `mapstructure:"burst"`
	// MaxDecodeFailures is the consecutive bad-frame threshold before disconnect.
	MaxDecodeFailures int `mapstructure:"max_decode_failures"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File is an optional log file path; empty logs to stderr only.
	File string `mapstructure:"file"`
	// MaxSizeMB rotates the log file after it reaches this size.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays prunes rotated files older than this.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Config is the top-level application configuration.
type Config struct {
	TCP       TCPConfig       `mapstructure:"tcp"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateTCP(c.TCP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTCP(t TCPConfig) error {
	var errs []string
	if t.Port < 1 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("tcp.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "tcp.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "tcp.write_timeout must not be negative")
	}
	if t.MaxFrameBytes < 1024 {
		errs = append(errs, fmt.Sprintf("tcp.max_frame_bytes must be >= 1024, got %d", t.MaxFrameBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	if !w.Enabled {
		return nil
	}
	var errs []string
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with /, got %q", w.Path))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.MaxPlayers < 2 {
		errs = append(errs, fmt.Sprintf("game.max_players must be >= 2, got %d", g.MaxPlayers))
	}
	if g.MaxRounds < 1 {
		errs = append(errs, fmt.Sprintf("game.max_rounds must be >= 1, got %d", g.MaxRounds))
	}
	if g.GuessPoints < 1 {
		errs = append(errs, fmt.Sprintf("game.guess_points must be >= 1, got %d", g.GuessPoints))
	}
	if g.DrawerBonus < 0 {
		errs = append(errs, fmt.Sprintf("game.drawer_bonus must be >= 0, got %d", g.DrawerBonus))
	}
	if g.RoundSeconds < 5 {
		errs = append(errs, fmt.Sprintf("game.round_seconds must be >= 5, got %d", g.RoundSeconds))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("session.queue_size must be >= 1, got %d", s.QueueSize))
	}
	if s.MessagesPerSecond <= 0 {
		errs = append(errs, fmt.Sprintf("session.messages_per_second must be > 0, got %g", s.MessagesPerSecond))
	}
	if s.Burst < 1 {
		errs = append(errs, fmt.Sprintf("session.burst must be >= 1, got %d", s.Burst))
	}
	if s.MaxDecodeFailures < 1 {
		errs = append(errs, fmt.Sprintf("session.max_decode_failures must be >= 1, got %d", s.MaxDecodeFailures))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" {
		if l.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
		}
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with SKETCH_ prefix
	v.SetEnvPrefix("SKETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration used when no file is given.
//
// Postcondition: The returned Config passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcp.host", "0.0.0.0")
	v.SetDefault("tcp.port", 8765)
	v.SetDefault("tcp.read_timeout", "5m")
	v.SetDefault("tcp.write_timeout", "10s")
	v.SetDefault("tcp.max_frame_bytes", 262144)

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8766)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_timeout", "5m")
	v.SetDefault("websocket.write_timeout", "10s")

	v.SetDefault("game.max_players", 8)
	v.SetDefault("game.max_rounds", 3)
	v.SetDefault("game.guess_points", 10)
	v.SetDefault("game.drawer_bonus", 5)
	v.SetDefault("game.round_seconds", 60)
	v.SetDefault("game.words_file", "")

	v.SetDefault("session.queue_size", 64)
	v.SetDefault("session.messages_per_second", 30)
	v.SetDefault("session.burst", 60)
	v.SetDefault("session.max_decode_failures", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}
