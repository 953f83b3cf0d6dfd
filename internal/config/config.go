// Package config loads the application configuration from an optional env
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/goliatone/go-repository-query/cache"
	"github.com/goliatone/go-repository-query/internal/logging"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Query    QueryConfig
	Log      logging.Config
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DatabaseConfig represents database configuration. Driver is a
// database/sql driver name: sqlite (pure Go), sqlite3 (cgo) or postgres.
type DatabaseConfig struct {
	Driver      string
	Path        string // sqlite file, ":memory:" for a private database
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

// IsSQLite reports whether Driver is one of the sqlite drivers.
func (c DatabaseConfig) IsSQLite() bool {
	return c.Driver == "sqlite" || c.Driver == "sqlite3"
}

// DSN returns the data source name for Driver. SQLite connections enforce
// foreign keys.
func (c DatabaseConfig) DSN() string {
	if c.IsSQLite() {
		return SQLiteDSN(c.Driver, c.Path)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// SQLiteDSN appends the foreign key switch of driver to path: modernc
// ("sqlite") takes a pragma, mattn ("sqlite3") its own parameter.
func SQLiteDSN(driver, path string) string {
	param := "_pragma=foreign_keys(1)"
	if driver == "sqlite3" {
		param = "_foreign_keys=1"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + param
}

// CacheConfig represents response cache configuration.
type CacheConfig struct {
	Enabled            bool
	TTL                time.Duration
	InvalidateOnWrite  bool
	HashKeys           bool
	Capacity           int
	NumShards          int
	MaxTTL             time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// Layer converts c to the cache layer configuration.
func (c CacheConfig) Layer() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.DefaultTTL = c.TTL
	cfg.InvalidateOnWrite = c.InvalidateOnWrite
	cfg.HashKeys = c.HashKeys
	cfg.Store.Capacity = c.Capacity
	cfg.Store.NumShards = c.NumShards
	cfg.Store.TTL = c.MaxTTL
	cfg.Store.EvictionPercentage = c.EvictionPercentage
	cfg.Store.EvictionInterval = c.EvictionInterval
	return cfg
}

// QueryConfig holds query policy.
type QueryConfig struct {
	// MaxTake caps page sizes; zero leaves them uncapped.
	MaxTake int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "querycache.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "querycache")
	v.SetDefault("DB_NAME", "querycache")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	defaults := cache.DefaultConfig()
	v.SetDefault("CACHE_ENABLED", defaults.Enabled)
	v.SetDefault("CACHE_TTL", defaults.DefaultTTL)
	v.SetDefault("CACHE_INVALIDATE_ON_WRITE", defaults.InvalidateOnWrite)
	v.SetDefault("CACHE_HASH_KEYS", defaults.HashKeys)
	v.SetDefault("CACHE_CAPACITY", defaults.Store.Capacity)
	v.SetDefault("CACHE_NUM_SHARDS", defaults.Store.NumShards)
	v.SetDefault("CACHE_MAX_TTL", defaults.Store.TTL)
	v.SetDefault("CACHE_EVICTION_PERCENTAGE", defaults.Store.EvictionPercentage)
	v.SetDefault("CACHE_EVICTION_INTERVAL", defaults.Store.EvictionInterval)

	v.SetDefault("QUERY_MAX_TAKE", 100)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// New returns a viper instance reading .env.<env> from the given paths, with
// environment variables taking precedence and defaults filled in. A missing
// env file is not an error.
func New(env string, paths ...string) (*viper.Viper, error) {
	if env == "" {
		env = "dev"
	}

	v := viper.New()
	v.SetConfigName(".env." + env)
	v.SetConfigType("env")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read %s: %w", ".env."+env, err)
			}
		}
	}
	v.AutomaticEnv()
	setDefaults(v)
	return v, nil
}

// Load builds and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:      v.GetString("DB_DRIVER"),
			Path:        v.GetString("DB_PATH"),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			Name:        v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			TTL:                v.GetDuration("CACHE_TTL"),
			InvalidateOnWrite:  v.GetBool("CACHE_INVALIDATE_ON_WRITE"),
			HashKeys:           v.GetBool("CACHE_HASH_KEYS"),
			Capacity:           v.GetInt("CACHE_CAPACITY"),
			NumShards:          v.GetInt("CACHE_NUM_SHARDS"),
			MaxTTL:             v.GetDuration("CACHE_MAX_TTL"),
			EvictionPercentage: v.GetInt("CACHE_EVICTION_PERCENTAGE"),
			EvictionInterval:   v.GetDuration("CACHE_EVICTION_INTERVAL"),
		},
		Query: QueryConfig{
			MaxTake: v.GetInt("QUERY_MAX_TAKE"),
		},
		Log: logging.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("config: server: %w", err)
	}

	db := &c.Database
	if err := validation.ValidateStruct(db,
		validation.Field(&db.Driver, validation.Required, validation.In("sqlite", "sqlite3", "postgres")),
		validation.Field(&db.Path, validation.When(db.IsSQLite(), validation.Required)),
		validation.Field(&db.Host, validation.When(!db.IsSQLite(), validation.Required)),
		validation.Field(&db.Name, validation.When(!db.IsSQLite(), validation.Required)),
		validation.Field(&db.Password, validation.When(db.Driver == "postgres", validation.Required)),
	); err != nil {
		return fmt.Errorf("config: database: %w", err)
	}

	if err := validation.ValidateStruct(&c.Query,
		validation.Field(&c.Query.MaxTake, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("config: query: %w", err)
	}

	if err := c.Cache.Layer().Validate(); err != nil {
		return fmt.Errorf("config: cache: %w", err)
	}
	return nil
}
