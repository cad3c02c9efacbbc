package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the synapse trading service.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Oracle     Oracle           `yaml:"oracle"`
	Market     Market           `yaml:"market"`
	Liquidator LiquidatorConfig `yaml:"liquidator"`
	Logging    Logging          `yaml:"logging"`
}

// Storage selects the ledger backend and holds its paths.
type Storage struct {
	// Backend is "memory" or "sqlite".
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	DataDir    string `yaml:"data_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Oracle selects the price feed and holds its credentials.
type Oracle struct {
	// Provider is "alpaca" or "static".
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Market holds the parameters used to initialise the market on startup.
type Market struct {
	Admin                string `yaml:"admin"`
	Treasury             string `yaml:"treasury"`
	MinCollateral        int64  `yaml:"min_collateral"`
	MaxLeverage          uint32 `yaml:"max_leverage"`
	MaintenanceMarginBPS int64  `yaml:"maintenance_margin_bps"`
	FundingIntervalSec   int64  `yaml:"funding_interval_sec"`
	StalenessWindowSec   int64  `yaml:"staleness_window_sec"`
	PriceDecimals        int    `yaml:"price_decimals"`
}

// LiquidatorConfig controls the background liquidation scanner.
type LiquidatorConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSec     int  `yaml:"interval_sec"`
	RateLimitPerMin int  `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies defaults
// for unset fields, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "alpaca"
	}
	if cfg.Liquidator.IntervalSec == 0 {
		cfg.Liquidator.IntervalSec = 30
	}
	if cfg.Liquidator.RateLimitPerMin == 0 {
		cfg.Liquidator.RateLimitPerMin = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Oracle.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Oracle.DataURL = v
	}

	if v := os.Getenv("MARKET_ADMIN"); v != "" {
		cfg.Market.Admin = v
	}
	if v := os.Getenv("MARKET_TREASURY"); v != "" {
		cfg.Market.Treasury = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Oracle.APISecret = v
	}
}
