// Package config loads server settings from an optional TOML file, the
// environment (including a .env file) and command line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

type Config struct {
	Server  Server  `toml:"server"`
	Log     Log     `toml:"log"`
	Store   Store   `toml:"store"`
	Line    Line    `toml:"line"`
	Limiter Limiter `toml:"rate_limit"`
}

type Server struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

type Store struct {
	Backend             string `toml:"backend"`
	SQLitePath          string `toml:"sqlite_path"`
	RedisAddr           string `toml:"redis_addr"`
	RedisPassword       string `toml:"redis_password"`
	RedisDB             int    `toml:"redis_db"`
	RedisPrefix         string `toml:"redis_prefix"`
	ProjectID           string `toml:"project_id"`
	FirestoreCollection string `toml:"firestore_collection"`
}

type Line struct {
	ChannelSecret string `toml:"channel_secret"`
	ChannelToken  string `toml:"channel_token"`
}

func (l Line) Enabled() bool {
	return l.ChannelSecret != "" && l.ChannelToken != ""
}

type Limiter struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

func (l Limiter) Enabled() bool {
	return l.RPS > 0
}

func Default() Config {
	return Config{
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Store: Store{
			Backend:             BackendMemory,
			SQLitePath:          "data/todos.db",
			RedisAddr:           "localhost:6379",
			RedisPrefix:         "todos",
			FirestoreCollection: "todos",
		},
		Limiter: Limiter{
			Burst: 20,
		},
	}
}

// Addr is the listen address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Load reads .env (if present), then the TOML file at path (if non-empty),
// then environment overrides. Callers apply their own overrides and then
// call Validate.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "HOST")
	if err := setInt(&cfg.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.File, "LOG_FILE")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Store.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Store.RedisPassword, "REDIS_PASSWORD")
	if err := setInt(&cfg.Store.RedisDB, "REDIS_DB"); err != nil {
		return err
	}
	setString(&cfg.Store.RedisPrefix, "REDIS_PREFIX")
	setString(&cfg.Store.ProjectID, "GOOGLE_CLOUD_PROJECT")
	setString(&cfg.Store.FirestoreCollection, "FIRESTORE_COLLECTION")

	setString(&cfg.Line.ChannelSecret, "LINE_CHANNEL_SECRET")
	setString(&cfg.Line.ChannelToken, "LINE_CHANNEL_TOKEN")

	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		cfg.Limiter.RPS = f
	}
	return setInt(&cfg.Limiter.Burst, "RATE_BURST")
}

func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 0 and 65535, got %d", c.Server.Port)
	}
	if ip := c.Server.Host; ip != "" && net.ParseIP(ip) == nil && ip != "localhost" {
		return fmt.Errorf("HOST must be an IP address, got %q", ip)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
	case BackendFirestore:
		if c.Store.ProjectID == "" {
			return errors.New("GOOGLE_CLOUD_PROJECT is required when STORE_BACKEND=firestore")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if (c.Line.ChannelSecret == "") != (c.Line.ChannelToken == "") {
		return errors.New("LINE_CHANNEL_SECRET and LINE_CHANNEL_TOKEN must be set together")
	}
	if c.Limiter.Enabled() && c.Limiter.Burst <= 0 {
		return errors.New("RATE_BURST must be > 0 when RATE_RPS is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
