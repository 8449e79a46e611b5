package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Server struct {
	Port              string   `toml:"port"`
	RequestTimeoutSec int      `toml:"request_timeout_sec"`
	Currencies        []string `toml:"currencies"`
	SparklineWidth    int      `toml:"sparkline_width"`
	SparklineHeight   int      `toml:"sparkline_height"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console | json
}

type Tracing struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

type CoinMarketCap struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url"`
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute"`
	Burst                int    `toml:"burst"`
	TimeoutSec           int    `toml:"timeout_sec"`
}

type Finnhub struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url"`
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute"`
	Burst                int    `toml:"burst"`
	MaxConcurrency       int    `toml:"max_concurrency"`
	TimeoutSec           int    `toml:"timeout_sec"`
}

type CoinGecko struct {
	BaseURL              string            `toml:"base_url"`
	MaxRequestsPerMinute int               `toml:"max_requests_per_minute"`
	Burst                int               `toml:"burst"`
	MinRequestIntervalMs int               `toml:"min_request_interval_ms"`
	TimeoutSec           int               `toml:"timeout_sec"`
	CatalogTTLSec        int               `toml:"catalog_ttl_sec"`
	Overrides            map[string]string `toml:"overrides"`
}

type History struct {
	Driver string `toml:"driver"` // memory | sqlite | postgres
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type Cache struct {
	Driver        string `toml:"driver"` // memory | redis | none
	TTLSec        int    `toml:"ttl_sec"`
	MaxItems      int    `toml:"max_items"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

type Sparkline struct {
	Up   string `toml:"up"`
	Down string `toml:"down"`
	Flat string `toml:"flat"`
}

type Config struct {
	Server        Server        `toml:"server"`
	Log           Log           `toml:"log"`
	Tracing       Tracing       `toml:"tracing"`
	CoinMarketCap CoinMarketCap `toml:"coinmarketcap"`
	Finnhub       Finnhub       `toml:"finnhub"`
	CoinGecko     CoinGecko     `toml:"coingecko"`
	History       History       `toml:"history"`
	Cache         Cache         `toml:"cache"`
	Sparkline     Sparkline     `toml:"sparkline"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			RequestTimeoutSec: 15,
			Currencies:        []string{"USD", "EUR", "RUB"},
			SparklineWidth:    140,
			SparklineHeight:   36,
		},
		Log:     Log{Level: "info", Format: "console"},
		Tracing: Tracing{Enabled: false, ServiceName: "pricewatch"},
		CoinMarketCap: CoinMarketCap{
			MaxRequestsPerMinute: 30,
			Burst:                2,
			TimeoutSec:           10,
		},
		Finnhub: Finnhub{
			MaxRequestsPerMinute: 60,
			Burst:                5,
			MaxConcurrency:       4,
			TimeoutSec:           10,
		},
		CoinGecko: CoinGecko{
			MaxRequestsPerMinute: 30,
			Burst:                3,
			TimeoutSec:           10,
			CatalogTTLSec:        3600,
		},
		History: History{Driver: "memory", Path: "data/history.db"},
		Cache: Cache{
			Driver:    "memory",
			TTLSec:    60,
			MaxItems:  10000,
			RedisAddr: "127.0.0.1:6379",
			Prefix:    "pricewatch",
		},
		Sparkline: Sparkline{Up: "#1ca01c", Down: "#e53935", Flat: "#888"},
	}
}

// Load reads TOML config from path. If path is empty and config.toml does not
// exist, defaults are used. A .env file in the working directory is loaded
// first; environment variables then override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read .env: %w", err)
	}
	if path == "" {
		if _, err := os.Stat("config.toml"); err == nil {
			path = "config.toml"
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	cfg.Server.Currencies = normalizeList(cfg.Server.Currencies)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.History.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("history.driver %q: want memory, sqlite or postgres", c.History.Driver)
	}
	if c.History.Driver == "sqlite" && strings.TrimSpace(c.History.Path) == "" {
		return errors.New("history.path empty but driver is sqlite")
	}
	if c.History.Driver == "postgres" && strings.TrimSpace(c.History.DSN) == "" {
		return errors.New("history.dsn empty but driver is postgres")
	}
	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.driver %q: want memory, redis or none", c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && strings.TrimSpace(c.Cache.RedisAddr) == "" {
		return errors.New("cache.redis_addr empty but driver is redis")
	}
	for name, v := range map[string]int{
		"server.request_timeout_sec":            c.Server.RequestTimeoutSec,
		"coinmarketcap.max_requests_per_minute": c.CoinMarketCap.MaxRequestsPerMinute,
		"finnhub.max_requests_per_minute":       c.Finnhub.MaxRequestsPerMinute,
		"finnhub.max_concurrency":               c.Finnhub.MaxConcurrency,
		"coingecko.max_requests_per_minute":     c.CoinGecko.MaxRequestsPerMinute,
		"coingecko.min_request_interval_ms":     c.CoinGecko.MinRequestIntervalMs,
		"coingecko.catalog_ttl_sec":             c.CoinGecko.CatalogTTLSec,
		"cache.ttl_sec":                         c.Cache.TTLSec,
		"cache.max_items":                       c.Cache.MaxItems,
		"server.sparkline_width":                c.Server.SparklineWidth,
		"server.sparkline_height":               c.Server.SparklineHeight,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", 1, &cfg.Server.RequestTimeoutSec)
	if v := os.Getenv("CURRENCIES"); v != "" {
		cfg.Server.Currencies = splitCSV(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	envBool("TRACING_ENABLED", &cfg.Tracing.Enabled)

	if v := os.Getenv("CMC_API_KEY"); v != "" {
		cfg.CoinMarketCap.APIKey = v
	}
	envInt("CMC_MAX_RPM", 0, &cfg.CoinMarketCap.MaxRequestsPerMinute)

	// FINNHUB_KEY is the older name; FINNHUB_API_KEY wins when both are set.
	if v := os.Getenv("FINNHUB_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	envInt("FINNHUB_MAX_RPM", 0, &cfg.Finnhub.MaxRequestsPerMinute)
	envInt("FINNHUB_MAX_CONCURRENCY", 1, &cfg.Finnhub.MaxConcurrency)

	envInt("COINGECKO_MAX_RPM", 0, &cfg.CoinGecko.MaxRequestsPerMinute)
	envInt("COINGECKO_MIN_INTERVAL_MS", 0, &cfg.CoinGecko.MinRequestIntervalMs)
	envInt("CATALOG_TTL_SEC", 1, &cfg.CoinGecko.CatalogTTLSec)

	if v := os.Getenv("HISTORY_DRIVER"); v != "" {
		cfg.History.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.History.DSN = v
	}

	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = strings.ToLower(v)
	}
	envInt("CACHE_TTL_SEC", 0, &cfg.Cache.TTLSec)
	envInt("CACHE_MAX_ITEMS", 1, &cfg.Cache.MaxItems)
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	envInt("REDIS_DB", 0, &cfg.Cache.RedisDB)
}

// envInt sets *dst from name when it parses as an int >= atLeast.
func envInt(name string, atLeast int, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err == nil && x >= atLeast {
		*dst = x
	}
}

func envBool(name string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
