package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Store       StoreConfig       `toml:"store"`
	Redis       RedisConfig       `toml:"redis"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// StoreConfig selects the credential & display store backend.
//
// Driver is one of "file", "redis" or "sqlite". Path is only used by the file driver.
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// RedisConfig contains Redis connection settings for the redis store driver.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// DatabaseConfig contains database connection settings for the sqlite store driver.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SyncConfig contains settings for the leader/follower sync loop.
type SyncConfig struct {
	LeaderID    string   `toml:"leader_id"`
	DeviceName  string   `toml:"device_name"`
	Interval    Duration `toml:"interval"`
	CallTimeout Duration `toml:"call_timeout"`
	RateLimit   float64  `toml:"rate_limit"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so it can be written as a string ("2s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string such as "1500ms" or "2s".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Map returns the Spotify credentials as a string map.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values from SECTION_KEY style environment variables (e.g. REDIS_ADDR, SYNC_INTERVAL).
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	dur := func(dst *Duration) func(string) error {
		return func(v string) error { return dst.UnmarshalText([]byte(v)) }
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"SPOTIFY_CLIENT_ID", str(&c.Credentials.Spotify.ClientID)},
		{"SPOTIFY_CLIENT_SECRET", str(&c.Credentials.Spotify.ClientSecret)},
		{"SPOTIFY_REDIRECT_URI", str(&c.Credentials.Spotify.RedirectURI)},
		{"STORE_DRIVER", str(&c.Store.Driver)},
		{"STORE_PATH", str(&c.Store.Path)},
		{"REDIS_ADDR", str(&c.Redis.Addr)},
		{"REDIS_PASSWORD", str(&c.Redis.Password)},
		{"REDIS_DB", num(&c.Redis.DB)},
		{"DATABASE_PATH", str(&c.Database.Path)},
		{"SERVER_HOST", str(&c.Server.Host)},
		{"SERVER_PORT", num(&c.Server.Port)},
		{"SYNC_LEADER_ID", str(&c.Sync.LeaderID)},
		{"SYNC_DEVICE_NAME", str(&c.Sync.DeviceName)},
		{"SYNC_INTERVAL", dur(&c.Sync.Interval)},
		{"SYNC_CALL_TIMEOUT", dur(&c.Sync.CallTimeout)},
		{"LOG_LEVEL", str(&c.Log.Level)},
	}

	for _, o := range overrides {
		v, ok := lookup(o.name)
		if !ok {
			continue
		}
		if err := o.apply(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, o.name, err)
		}
	}

	return nil
}

// Validate reports configuration values the sync loop and web server cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Sync.LeaderID == "":
		return fmt.Errorf("%w: sync.leader_id is empty", ErrInvalidConfig)
	case c.Sync.DeviceName == "":
		return fmt.Errorf("%w: sync.device_name is empty", ErrInvalidConfig)
	case c.Sync.Interval.Duration <= 0:
		return fmt.Errorf("%w: sync.interval must be positive", ErrInvalidConfig)
	case c.Sync.CallTimeout.Duration < 0:
		return fmt.Errorf("%w: sync.call_timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is empty", ErrInvalidConfig)
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is empty", ErrInvalidConfig)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	return nil
}

// ValidateSpotify reports missing Spotify application credentials.
func (c *Config) ValidateSpotify() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	return nil
}
