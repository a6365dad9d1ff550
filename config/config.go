// Package config loads runtime settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"prism-board/storage"
	"prism-board/timeframe"
)

const EnvPrefix = "PRISM_BOARD"

type Config struct {
	Board  BoardConfig  `mapstructure:"board"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Seed   SeedConfig   `mapstructure:"seed"`
	Legacy LegacyConfig `mapstructure:"legacy"`
	Log    LogConfig    `mapstructure:"log"`
}

type BoardConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// RemoteConfig selects the shared document store. An empty backend runs the
// board offline.
type RemoteConfig struct {
	Backend                string        `mapstructure:"backend"`
	RedisURL               string        `mapstructure:"redis_url"`
	TablesConnectionString string        `mapstructure:"tables_connection_string"`
	TablesTable            string        `mapstructure:"tables_table"`
	PostgresURL            string        `mapstructure:"postgres_url"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
}

type SyncConfig struct {
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	// FlushOnShutdown writes a pending board before closing instead of dropping it.
	FlushOnShutdown bool `mapstructure:"flush_on_shutdown"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type SeedConfig struct {
	File string `mapstructure:"file"`
}

// LegacyConfig maps old column names to "YYYY-MM-DD..YYYY-MM-DD" ranges. Keys
// arrive lowercased.
type LegacyConfig struct {
	Timeframes map[string]string `mapstructure:"timeframes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("board.id", "main")
	v.SetDefault("board.name", "Planning Board")
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", defaultDataDir())
	v.SetDefault("remote.backend", "")
	v.SetDefault("remote.redis_url", "")
	v.SetDefault("remote.tables_connection_string", "")
	v.SetDefault("remote.tables_table", "boards")
	v.SetDefault("remote.postgres_url", "")
	v.SetDefault("remote.poll_interval", 5*time.Second)
	v.SetDefault("sync.write_timeout", 10*time.Second)
	v.SetDefault("sync.startup_timeout", 10*time.Second)
	v.SetDefault("sync.flush_on_shutdown", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("seed.file", "")
	v.SetDefault("legacy.timeframes", map[string]string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)
}

// Load reads the configuration. path may be empty; PRISM_BOARD_CONFIG is then
// consulted, and without either only defaults and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names shared with the other prism services.
	_ = v.BindEnv("remote.redis_url", EnvPrefix+"_REMOTE_REDIS_URL", "REDIS_CONNECTION_STRING")
	_ = v.BindEnv("remote.tables_connection_string", EnvPrefix+"_REMOTE_TABLES_CONNECTION_STRING", "STORAGE_CONNECTION_STRING")
	_ = v.BindEnv("remote.postgres_url", EnvPrefix+"_REMOTE_POSTGRES_URL", "DATABASE_URL")
	_ = v.BindEnv("log.debug", EnvPrefix+"_LOG_DEBUG", "DEBUG")

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Board.ID) == "" {
		errs = append(errs, errors.New("board.id must not be empty"))
	}
	switch c.Cache.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not file or sqlite", c.Cache.Backend))
	}
	switch c.Remote.Backend {
	case "", "none", "redis", "tables", "postgres":
	default:
		errs = append(errs, fmt.Errorf("remote.backend %q is not redis, tables or postgres", c.Remote.Backend))
	}
	if c.Remote.PollInterval <= 0 {
		errs = append(errs, errors.New("remote.poll_interval must be positive"))
	}
	if c.Sync.WriteTimeout <= 0 || c.Sync.StartupTimeout <= 0 {
		errs = append(errs, errors.New("sync timeouts must be positive"))
	}
	if _, err := timeframe.ParseTable(c.Legacy.Timeframes); err != nil {
		errs = append(errs, fmt.Errorf("legacy.timeframes: %w", err))
	}
	return errors.Join(errs...)
}

// LegacyParser builds the column-name parser with the configured exact table.
func (c *Config) LegacyParser() (*timeframe.Parser, error) {
	table, err := timeframe.ParseTable(c.Legacy.Timeframes)
	if err != nil {
		return nil, err
	}
	return timeframe.NewParser(table), nil
}

func (c *Config) StorageCache() storage.CacheConfig {
	return storage.CacheConfig{Backend: c.Cache.Backend, Dir: c.Cache.Dir}
}

func (c *Config) StorageRemote() storage.RemoteConfig {
	return storage.RemoteConfig{
		Backend:                c.Remote.Backend,
		RedisURL:               c.Remote.RedisURL,
		TablesConnectionString: c.Remote.TablesConnectionString,
		TablesTable:            c.Remote.TablesTable,
		PostgresURL:            c.Remote.PostgresURL,
		PollInterval:           c.Remote.PollInterval,
	}
}

// NewLogger builds the process logger. DEBUG=true forces debug level.
func NewLogger(c LogConfig) (*log.Logger, error) {
	logger := log.New()
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	if c.Debug {
		level = log.DebugLevel
	}
	logger.SetLevel(level)
	switch c.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("log.format %q is not text or json", c.Format)
	}
	return logger, nil
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "prism-board")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "prism-board")
	}
	return "prism-board-data"
}
