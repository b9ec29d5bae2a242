// Package config loads gateway configuration: YAML file plus NOWGATE_* env overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"dev.c0redev.nowgate/internal/ident"
)

// Config is the root gateway configuration.
type Config struct {
	// DataDir holds the own-identity file, the store and the QUIC cert.
	DataDir string `mapstructure:"data_dir"`
	// MAC overrides the own identity ("" -> loaded/generated in DataDir).
	MAC string `mapstructure:"mac"`
	// PMK pre-shared key, >= 16 chars; link keys are derived from it.
	PMK string `mapstructure:"pmk"`

	Store  StoreConfig `mapstructure:"store"`
	Peers  PeersConfig `mapstructure:"peers"`
	Queues QueueConfig `mapstructure:"queues"`
	Host   HostConfig  `mapstructure:"host"`
	Radio  RadioConfig `mapstructure:"radio"`
	Log    LogConfig   `mapstructure:"log"`
	Stats  StatsConfig `mapstructure:"stats"`
}

type StoreConfig struct {
	// Path to the sqlite file ("" -> DataDir/nowgate.db).
	Path string `mapstructure:"path"`
}

type PeersConfig struct {
	Max int `mapstructure:"max"`
}

type QueueConfig struct {
	RadioEvents int `mapstructure:"radio_events"`
	HostLines   int `mapstructure:"host_lines"`
}

// HostConfig selects the host link.
type HostConfig struct {
	// Kind: stdio, tcp, quic, websocket
	Kind          string `mapstructure:"kind"`
	Listen        string `mapstructure:"listen"`
	LineMax       int    `mapstructure:"line_max"`
	ReadTimeoutMS int    `mapstructure:"read_timeout_ms"`
	PollMS        int    `mapstructure:"poll_ms"`
	// Token / TokenHash (bcrypt) gate websocket controllers.
	Token     string `mapstructure:"token"`
	TokenHash string `mapstructure:"token_hash"`
}

// RadioConfig for the UDP air stand-in.
type RadioConfig struct {
	Listen  string   `mapstructure:"listen"`
	Air     []string `mapstructure:"air"`
	Encrypt bool     `mapstructure:"encrypt"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StatsConfig: periodic counters log (0 disables).
type StatsConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
}

// Default config. Logs go to stderr so the stdio host link owns stdout.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		PMK:     "pmk1234567890123",
		Peers:   PeersConfig{Max: 5},
		Queues:  QueueConfig{RadioEvents: 6, HostLines: 8},
		Host: HostConfig{
			Kind:          "stdio",
			Listen:        "127.0.0.1:7070",
			LineMax:       1024,
			ReadTimeoutMS: 500,
			PollMS:        200,
		},
		Radio: RadioConfig{
			Listen:  "239.77.0.1:4747",
			Encrypt: true,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/nowgate.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Stats: StatsConfig{IntervalSec: 60},
	}
}

// Load reads path (or nowgate.yaml from ., ./configs, ~/.nowgate) and applies
// env overrides: prefix NOWGATE, `.` -> `_` (NOWGATE_HOST_KIND=tcp).
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NOWGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("mac", cfg.MAC)
	v.SetDefault("pmk", cfg.PMK)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("peers.max", cfg.Peers.Max)
	v.SetDefault("queues.radio_events", cfg.Queues.RadioEvents)
	v.SetDefault("queues.host_lines", cfg.Queues.HostLines)
	v.SetDefault("host.kind", cfg.Host.Kind)
	v.SetDefault("host.listen", cfg.Host.Listen)
	v.SetDefault("host.line_max", cfg.Host.LineMax)
	v.SetDefault("host.read_timeout_ms", cfg.Host.ReadTimeoutMS)
	v.SetDefault("host.poll_ms", cfg.Host.PollMS)
	v.SetDefault("host.token", cfg.Host.Token)
	v.SetDefault("host.token_hash", cfg.Host.TokenHash)
	v.SetDefault("radio.listen", cfg.Radio.Listen)
	v.SetDefault("radio.air", cfg.Radio.Air)
	v.SetDefault("radio.encrypt", cfg.Radio.Encrypt)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("stats.interval_sec", cfg.Stats.IntervalSec)

	if path == "" {
		path = os.Getenv("NOWGATE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nowgate")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".nowgate"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	if len(c.PMK) < 16 {
		return fmt.Errorf("pmk must be at least 16 bytes, got %d", len(c.PMK))
	}
	if c.MAC != "" {
		m := ident.Parse(c.MAC)
		if m.IsZero() || m.IsBroadcast() {
			return fmt.Errorf("invalid mac: %q", c.MAC)
		}
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "nowgate.db")
	}
	if c.Peers.Max <= 0 {
		c.Peers.Max = 5
	}
	if c.Queues.RadioEvents <= 0 {
		c.Queues.RadioEvents = 6
	}
	if c.Queues.HostLines <= 0 {
		c.Queues.HostLines = 8
	}

	c.Host.Kind = strings.ToLower(strings.TrimSpace(c.Host.Kind))
	switch c.Host.Kind {
	case "stdio", "tcp", "quic", "websocket":
	default:
		return fmt.Errorf("invalid host.kind: %q", c.Host.Kind)
	}
	if c.Host.Kind != "stdio" && c.Host.Listen == "" {
		return fmt.Errorf("host.listen required for host.kind %s", c.Host.Kind)
	}
	if c.Host.LineMax <= 1 {
		c.Host.LineMax = 1024
	}
	if c.Host.ReadTimeoutMS <= 0 {
		c.Host.ReadTimeoutMS = 500
	}
	if c.Host.PollMS <= 0 {
		c.Host.PollMS = 200
	}
	if c.Radio.Listen == "" {
		return errors.New("radio.listen required")
	}
	return nil
}
