// Package config provides configuration management for thinkt-live.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Block id strategies.
const (
	BlockIDsRandom     = "random"
	BlockIDsPositional = "positional"
)

// Config holds the thinkt-live configuration.
type Config struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	WatchDirs      []string `toml:"watch_dirs"`
	StateDir       string   `toml:"state_dir"`
	BufferCapacity int      `toml:"buffer_capacity"`
	Keepalive      Duration `toml:"keepalive"`
	Debounce       Duration `toml:"debounce"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	BlockIDs       string   `toml:"block_ids"` // "random" or "positional"
	Token          string   `toml:"token"`     // bearer token for the HTTP API; empty disables auth
	LogPath        string   `toml:"log_path"`
	LogLevel       string   `toml:"log_level"`
	Quiet          bool     `toml:"quiet"`
}

// Duration is a time.Duration that decodes from strings like "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Dir returns the path to the ~/.thinkt-live directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".thinkt-live"), nil
}

// Path returns the path to the main config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Default returns a configuration with all defaults set.
func Default() Config {
	cfg := Config{
		Host:           "localhost",
		Port:           7434,
		BufferCapacity: 20,
		Keepalive:      Duration{15 * time.Second},
		Debounce:       Duration{250 * time.Millisecond},
		IdleTimeout:    Duration{5 * time.Minute},
		BlockIDs:       BlockIDsRandom,
		LogLevel:       "info",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.WatchDirs = []string{filepath.Join(home, ".claude", "projects")}
	}
	if dir, err := Dir(); err == nil {
		cfg.StateDir = filepath.Join(dir, "state")
	}
	return cfg
}

// Load reads ~/.thinkt-live/config.toml and applies environment overrides.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields the defaults.
// Keys absent from the file keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.expandPaths()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("THINKT_LIVE_HOST"); ok && v != "" {
		c.Host = v
	}
	if v, ok := lookup("THINKT_LIVE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: THINKT_LIVE_PORT=%q", ErrInvalidConfig, v)
		}
		c.Port = port
	}
	if v, ok := lookup("THINKT_LIVE_WATCH_DIRS"); ok && v != "" {
		c.WatchDirs = filepath.SplitList(v)
	}
	if v, ok := lookup("THINKT_LIVE_STATE_DIR"); ok && v != "" {
		c.StateDir = v
	}
	if v, ok := lookup("THINKT_LIVE_BLOCK_IDS"); ok && v != "" {
		c.BlockIDs = v
	}
	if v, ok := lookup("THINKT_LIVE_TOKEN"); ok && v != "" {
		c.Token = v
	}
	return nil
}

func (c *Config) expandPaths() {
	for i, d := range c.WatchDirs {
		c.WatchDirs[i] = expandHome(d)
	}
	c.StateDir = expandHome(c.StateDir)
	c.LogPath = expandHome(c.LogPath)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	case c.BufferCapacity <= 0:
		return fmt.Errorf("%w: buffer_capacity must be positive", ErrInvalidConfig)
	case c.Keepalive.Duration <= 0:
		return fmt.Errorf("%w: keepalive must be positive", ErrInvalidConfig)
	case c.Debounce.Duration < 0:
		return fmt.Errorf("%w: debounce must not be negative", ErrInvalidConfig)
	case c.IdleTimeout.Duration <= 0:
		return fmt.Errorf("%w: idle_timeout must be positive", ErrInvalidConfig)
	case c.StateDir == "":
		return fmt.Errorf("%w: state_dir is required", ErrInvalidConfig)
	}
	if c.BlockIDs != BlockIDsRandom && c.BlockIDs != BlockIDsPositional {
		return fmt.Errorf("%w: block_ids must be %q or %q", ErrInvalidConfig, BlockIDsRandom, BlockIDsPositional)
	}
	return nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
