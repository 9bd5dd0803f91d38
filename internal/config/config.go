package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Server struct {
	Port              string `json:"port" envconfig:"PORT"`
	RequestTimeoutSec int    `json:"request_timeout_sec" envconfig:"REQUEST_TIMEOUT_SEC"`
	LogLevel          string `json:"log_level" envconfig:"LOG_LEVEL"`
}

// Provider holds one vendor's settings. RequestsPerWindow of 0 means the
// provider is not rate-limited locally.
type Provider struct {
	Enabled           bool   `json:"enabled"`
	APIKey            string `json:"api_key"`
	Endpoint          string `json:"endpoint"`
	RequestsPerWindow int    `json:"requests_per_window"`
}

type Providers struct {
	Finnhub    Provider `json:"finnhub"`
	TwelveData Provider `json:"twelvedata"`
	FMP        Provider `json:"fmp"`

	TimeoutSec    int `json:"timeout_sec" envconfig:"PROVIDER_TIMEOUT_SEC"`
	RateWindowSec int `json:"rate_window_sec" envconfig:"PROVIDER_RATE_WINDOW_SEC"`
}

type Cache struct {
	MemoryTTLSec     int `json:"memory_ttl_sec" envconfig:"CACHE_MEMORY_TTL_SEC"`
	SharedTTLSec     int `json:"shared_ttl_sec" envconfig:"CACHE_SHARED_TTL_SEC"`
	MemoryMaxEntries int `json:"memory_max_entries" envconfig:"CACHE_MEMORY_MAX_ENTRIES"`
}

type Redis struct {
	Enabled  bool   `json:"enabled" envconfig:"REDIS_ENABLED"`
	Addr     string `json:"addr" envconfig:"REDIS_ADDR"`
	Password string `json:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `json:"db" envconfig:"REDIS_DB"`
}

type Fetch struct {
	OpenIntervalSec      int      `json:"open_interval_sec" envconfig:"FETCH_OPEN_INTERVAL_SEC"`
	ExtendedIntervalSec  int      `json:"extended_interval_sec" envconfig:"FETCH_EXTENDED_INTERVAL_SEC"`
	ClosedIntervalSec    int      `json:"closed_interval_sec" envconfig:"FETCH_CLOSED_INTERVAL_SEC"`
	MaxBatch             int      `json:"max_batch" envconfig:"FETCH_MAX_BATCH"`
	FanOut               int      `json:"fan_out" envconfig:"FETCH_FAN_OUT"`
	BatchPauseMs         int      `json:"batch_pause_ms" envconfig:"FETCH_BATCH_PAUSE_MS"`
	UniverseRefreshTicks int      `json:"universe_refresh_ticks" envconfig:"FETCH_UNIVERSE_REFRESH_TICKS"`
	RecommendationDays   int      `json:"recommendation_days" envconfig:"FETCH_RECOMMENDATION_DAYS"`
	PrioritySymbols      []string `json:"priority_symbols" envconfig:"FETCH_PRIORITY_SYMBOLS"`
}

type Session struct {
	Timezone       string   `json:"timezone" envconfig:"SESSION_TIMEZONE"`
	PremarketStart string   `json:"premarket_start" envconfig:"SESSION_PREMARKET_START"`
	MarketOpen     string   `json:"market_open" envconfig:"SESSION_MARKET_OPEN"`
	MarketClose    string   `json:"market_close" envconfig:"SESSION_MARKET_CLOSE"`
	AfterHoursEnd  string   `json:"after_hours_end" envconfig:"SESSION_AFTER_HOURS_END"`
	Holidays       []string `json:"holidays" envconfig:"SESSION_HOLIDAYS"`
}

type Config struct {
	Server    Server    `json:"server"`
	Providers Providers `json:"providers"`
	Cache     Cache     `json:"cache"`
	Redis     Redis     `json:"redis"`
	Fetch     Fetch     `json:"fetch"`
	Session   Session   `json:"session"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			RequestTimeoutSec: 15,
			LogLevel:          "info",
		},
		Providers: Providers{
			Finnhub:       Provider{Enabled: true, RequestsPerWindow: 60},
			TwelveData:    Provider{Enabled: true, RequestsPerWindow: 8},
			FMP:           Provider{Enabled: true, RequestsPerWindow: 10},
			TimeoutSec:    8,
			RateWindowSec: 60,
		},
		Cache: Cache{
			MemoryTTLSec:     30,
			SharedTTLSec:     60,
			MemoryMaxEntries: 500,
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Fetch: Fetch{
			OpenIntervalSec:      60,
			ExtendedIntervalSec:  300,
			ClosedIntervalSec:    1800,
			MaxBatch:             50,
			FanOut:               5,
			BatchPauseMs:         200,
			UniverseRefreshTicks: 10,
			RecommendationDays:   7,
			PrioritySymbols: []string{
				"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA",
				"META", "TSLA", "SPY", "QQQ",
			},
		},
		Session: Session{
			Timezone:       "America/New_York",
			PremarketStart: "04:00",
			MarketOpen:     "09:30",
			MarketClose:    "16:00",
			AfterHoursEnd:  "20:00",
			Holidays: []string{
				"2026-01-01", "2026-01-19", "2026-02-16",
				"2026-04-03", "2026-05-25", "2026-06-19",
				"2026-07-03", "2026-09-07", "2026-11-26",
				"2026-12-25",
			},
		},
	}
}

// Load returns the defaults overlaid with an optional JSON config file and
// then environment variables. A missing file at the explicit path is an
// error; an absent default path is not.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("apply env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return err
	}
	// Vendor keys come from the environment only, never the config file on
	// disk, so they are mapped by hand.
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Providers.Finnhub.APIKey = v
	}
	if v := os.Getenv("TWELVEDATA_API_KEY"); v != "" {
		cfg.Providers.TwelveData.APIKey = v
	}
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		cfg.Providers.FMP.APIKey = v
	}
	return nil
}

// Validate checks every tunable once at startup.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: server port is required")
	}
	if c.Providers.TimeoutSec <= 0 {
		return errors.New("config: provider timeout must be positive")
	}
	if c.Providers.RateWindowSec <= 0 {
		return errors.New("config: rate window must be positive")
	}
	if c.Cache.MemoryTTLSec <= 0 || c.Cache.SharedTTLSec <= 0 {
		return errors.New("config: cache TTLs must be positive")
	}
	if c.Cache.MemoryMaxEntries <= 0 {
		return errors.New("config: memory cache max entries must be positive")
	}
	if c.Fetch.OpenIntervalSec <= 0 || c.Fetch.ExtendedIntervalSec <= 0 || c.Fetch.ClosedIntervalSec <= 0 {
		return errors.New("config: fetch intervals must be positive")
	}
	if c.Fetch.MaxBatch <= 0 {
		return errors.New("config: max batch must be positive")
	}
	if c.Fetch.FanOut <= 0 {
		return errors.New("config: fan-out must be positive")
	}
	if c.Fetch.UniverseRefreshTicks <= 0 {
		return errors.New("config: universe refresh ticks must be positive")
	}
	return nil
}

// Durations derived from the integer fields.

func (c Config) MemoryTTL() time.Duration { return time.Duration(c.Cache.MemoryTTLSec) * time.Second }

func (c Config) SharedTTL() time.Duration { return time.Duration(c.Cache.SharedTTLSec) * time.Second }

func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Providers.TimeoutSec) * time.Second
}

func (c Config) RateWindow() time.Duration {
	return time.Duration(c.Providers.RateWindowSec) * time.Second
}

func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Fetch.BatchPauseMs) * time.Millisecond
}
