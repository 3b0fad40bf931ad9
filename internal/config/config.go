// Package config loads service configuration from an optional file, a .env file
// and TOW_ prefixed environment variables, in that order of precedence (last wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TOW_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Cache    CacheConfig    `koanf:"cache"`
	MQTT     MQTTConfig     `koanf:"mqtt"`
}

type ServerConfig struct {
	Port              string        `koanf:"port"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// DatabaseConfig selects the persistence backend.
// Driver "postgres" requires URL; driver "memory" optionally loads Fixture at startup.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Fixture         string        `koanf:"fixture"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = os.Getenv("DATABASE_URL")
	}
	if c.Driver == "" {
		if c.URL != "" {
			c.Driver = "postgres"
		} else {
			c.Driver = "memory"
		}
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}

func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres":
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("database: url is required for driver postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Driver)
	}
	return nil
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LogConfig) Validate() error {
	switch c.Format {
	case "", "json", "console":
		return nil
	}
	return fmt.Errorf("log: unknown format %q", c.Format)
}

// CacheConfig sizes the shortest-path result cache. Zero disables it.
type CacheConfig struct {
	DistanceEntries int `koanf:"distance_entries"`
}

func (c CacheConfig) Validate() error {
	if c.DistanceEntries < 0 {
		return fmt.Errorf("cache: distance_entries must be >= 0")
	}
	return nil
}

// MQTTConfig configures dispatch notifications and location ingestion.
// DispatchTopic may contain "{vehicle_id}", replaced per event.
type MQTTConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Broker        string        `koanf:"broker"`
	ClientID      string        `koanf:"client_id"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	DispatchTopic string        `koanf:"dispatch_topic"`
	LocationTopic string        `koanf:"location_topic"`
	QoS           byte          `koanf:"qos"`
	Timeout       time.Duration `koanf:"timeout"`
}

func (c *MQTTConfig) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "tow-dispatch"
	}
	if c.DispatchTopic == "" {
		c.DispatchTopic = "tow/trucks/{vehicle_id}/dispatch"
	}
	if c.LocationTopic == "" {
		c.LocationTopic = "tow/trucks/+/location"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}

// Load reads configuration. An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("load config: unsupported config format %q", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config: read %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load config: environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: decode: %w", err)
	}

	cfg.Server.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.Log.SetDefaults()
	cfg.MQTT.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &cfg, nil
}

func (c Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return c.MQTT.Validate()
}
