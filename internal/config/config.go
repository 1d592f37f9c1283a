// Package config loads the transcache binary's settings: built-in defaults,
// then an optional TOML file, then a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/unkn0wn-root/transcache"
	"github.com/unkn0wn-root/transcache/codec"
)

const EnvConfigPath = "TRANSCACHE_CONFIG"

type Config struct {
	Store StoreConfig `toml:"store"`
	Cache CacheConfig `toml:"cache"`
	Redis RedisConfig `toml:"redis"`
	HTTP  HTTPConfig  `toml:"http"`
	Log   LogConfig   `toml:"log"`
}

type StoreConfig struct {
	Driver string `toml:"driver"` // postgres | sqlite
	DSN    string `toml:"dsn"`    // postgres connection string
	Path   string `toml:"path"`   // sqlite file, ":memory:" allowed
}

type CacheConfig struct {
	Driver      string   `toml:"driver"` // ristretto | bigcache | lru | redis | none
	Namespace   string   `toml:"namespace"`
	Codec       string   `toml:"codec"`
	MaxDecode   int      `toml:"max_decode"`
	MaxEntries  int      `toml:"max_entries"`
	ListTTL     Duration `toml:"list_ttl"`
	RecordTTL   Duration `toml:"record_ttl"`
	ExportTTL   Duration `toml:"export_ttl"`
	MaxListRows int      `toml:"max_list_rows"`
	ExportChunk int      `toml:"export_chunk"`
	// Shared keeps generations and key registries in Redis so several
	// processes invalidate each other. Always on for the redis driver.
	Shared bool `toml:"shared"`
}

type RedisConfig struct {
	URL     string   `toml:"url"`
	GenTTL  Duration `toml:"gen_ttl"`
	KeysTTL Duration `toml:"keys_ttl"`
}

type HTTPConfig struct {
	Addr            string   `toml:"addr"`
	Token           string   `toml:"token"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	Metrics         bool     `toml:"metrics"`
	RateLimit       int      `toml:"rate_limit"` // requests per minute per client; 0 disables
}

type LogConfig struct {
	Backend string `toml:"backend"` // zap | logrus | slog
	Level   string `toml:"level"`
}

// Duration reads TOML strings such as "5m" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() Config {
	return Config{
		Store: StoreConfig{Driver: "sqlite", Path: "transcache.db"},
		Cache: CacheConfig{
			Driver:      "ristretto",
			Namespace:   transcache.DefaultNamespace,
			Codec:       codec.NameJSON,
			MaxEntries:  100_000,
			ListTTL:     Duration{transcache.DefaultListTTL},
			RecordTTL:   Duration{transcache.DefaultRecordTTL},
			ExportTTL:   Duration{transcache.DefaultExportTTL},
			MaxListRows: transcache.DefaultMaxListRows,
			ExportChunk: transcache.DefaultExportChunk,
		},
		Redis: RedisConfig{GenTTL: Duration{30 * 24 * time.Hour}, KeysTTL: Duration{24 * time.Hour}},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{30 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
			Metrics:         true,
			RateLimit:       60,
		},
		Log: LogConfig{Backend: "zap", Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case
// TRANSCACHE_CONFIG is consulted; no file at all means defaults plus env.
func Load(path string) (*Config, error) {
	// .env is optional when variables come from the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *Duration) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		return nil
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*dst = n
		return nil
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*dst = b
		return nil
	}

	str("TRANSCACHE_STORE_DRIVER", &c.Store.Driver)
	str("DATABASE_URL", &c.Store.DSN)
	str("TRANSCACHE_SQLITE_PATH", &c.Store.Path)
	str("TRANSCACHE_CACHE_DRIVER", &c.Cache.Driver)
	str("TRANSCACHE_CACHE_NAMESPACE", &c.Cache.Namespace)
	str("TRANSCACHE_CACHE_CODEC", &c.Cache.Codec)
	str("REDIS_URL", &c.Redis.URL)
	str("TRANSCACHE_HTTP_ADDR", &c.HTTP.Addr)
	str("TRANSCACHE_API_TOKEN", &c.HTTP.Token)
	str("TRANSCACHE_LOG_BACKEND", &c.Log.Backend)
	str("TRANSCACHE_LOG_LEVEL", &c.Log.Level)

	return errors.Join(
		dur("TRANSCACHE_LIST_TTL", &c.Cache.ListTTL),
		dur("TRANSCACHE_RECORD_TTL", &c.Cache.RecordTTL),
		dur("TRANSCACHE_EXPORT_TTL", &c.Cache.ExportTTL),
		boolean("TRANSCACHE_CACHE_SHARED", &c.Cache.Shared),
		integer("TRANSCACHE_RATE_LIMIT", &c.HTTP.RateLimit),
	)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("config: store.dsn (DATABASE_URL) is required for postgres")
		}
		u, err := url.Parse(c.Store.DSN)
		if err != nil {
			return fmt.Errorf("config: invalid DATABASE_URL (%q): %w", c.Store.DSN, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid DATABASE_URL (%q): missing scheme or host", c.Store.DSN)
		}
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("config: store.path is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	switch c.Cache.Driver {
	case "ristretto", "bigcache", "lru", "redis", "none":
	default:
		return fmt.Errorf("config: unknown cache driver %q", c.Cache.Driver)
	}
	// entries in redis are seen by every instance, so their generations and
	// registries must be too
	if c.Cache.Driver == "redis" {
		c.Cache.Shared = true
	}
	if c.Cache.Shared && c.Redis.URL == "" {
		return fmt.Errorf("config: redis.url (REDIS_URL) is required for a redis cache or shared registries")
	}
	switch c.Cache.Codec {
	case codec.NameJSON, codec.NameCBOR, codec.NameMsgpack:
	default:
		return fmt.Errorf("config: unknown cache codec %q", c.Cache.Codec)
	}
	if c.Cache.Namespace == "" {
		return fmt.Errorf("config: cache.namespace must not be empty")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("config: http.rate_limit must not be negative")
	}
	if c.Cache.ListTTL.Duration <= 0 || c.Cache.RecordTTL.Duration <= 0 || c.Cache.ExportTTL.Duration <= 0 {
		return fmt.Errorf("config: cache TTLs must be positive")
	}
	if c.Cache.MaxListRows <= 0 || c.Cache.ExportChunk <= 0 || c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: cache.max_list_rows, export_chunk and max_entries must be positive")
	}

	switch c.Log.Backend {
	case "zap", "logrus", "slog":
	default:
		return fmt.Errorf("config: unknown log backend %q", c.Log.Backend)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
