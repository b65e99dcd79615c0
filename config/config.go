package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full simulation configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Risk       RiskConfig       `yaml:"risk"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Broker     BrokerConfig     `yaml:"broker"`
	Data       DataConfig       `yaml:"data"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// SimulationConfig controls the runner and the bar loop.
type SimulationConfig struct {
	RunnerID      string  `yaml:"runner_id"`
	StartDate     string  `yaml:"start_date"` // yyyy-mm-dd
	EndDate       string  `yaml:"end_date"`   // yyyy-mm-dd
	LiveFrequency string  `yaml:"live_frequency"`
	MarketOpen    string  `yaml:"market_open"`    // hh:mm, UTC
	MarketClose   string  `yaml:"market_close"`   // hh:mm, UTC
	BarsPerSecond float64 `yaml:"bars_per_second"` // 0 runs at full speed
}

// RiskConfig controls the order admission checks.
type RiskConfig struct {
	MaxOrderQuantity float64 `yaml:"max_order_quantity"`
}

// ExchangeConfig controls the paper exchange matching.
type ExchangeConfig struct {
	FillMultiplier float64 `yaml:"fill_multiplier"` // fraction of bar volume a fill may take
}

// BrokerConfig controls the paper broker.
type BrokerConfig struct {
	StockFeePerShare float64 `yaml:"stock_fee_per_share"` // signed, fees are negative
}

// DataConfig points at the market data.
type DataConfig struct {
	Dir string `yaml:"dir"` // csv data directory
}

// StorageConfig controls where results are persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// StrategyConfig declares one strategy instance to run.
type StrategyConfig struct {
	Name        string         `yaml:"name"` // registry name
	ID          string         `yaml:"id"`
	PortfolioID string         `yaml:"portfolio_id"`
	Symbols     []SymbolConfig `yaml:"symbols"`
	Parameters  map[string]any `yaml:"parameters"`
}

// SymbolConfig is one (productType, symbol, frequency) registration.
type SymbolConfig struct {
	ProductType string `yaml:"product_type"`
	Symbol      string `yaml:"symbol"`
	Frequency   string `yaml:"frequency"`
}

// Load reads the YAML config and the .env file if present. Environment
// values override the YAML for the keys they map to.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// StartTime parses the simulation start date.
func (c *Config) StartTime() (time.Time, error) {
	return parseDate(c.Simulation.StartDate)
}

// EndTime parses the simulation end date.
func (c *Config) EndTime() (time.Time, error) {
	return parseDate(c.Simulation.EndDate)
}

// MarketOpenOffset is the market open as an offset from midnight UTC.
func (c *Config) MarketOpenOffset() (time.Duration, error) {
	return parseClock(c.Simulation.MarketOpen)
}

// MarketCloseOffset is the market close as an offset from midnight UTC.
func (c *Config) MarketCloseOffset() (time.Duration, error) {
	return parseClock(c.Simulation.MarketClose)
}

// BarStep is the bar loop increment derived from the live frequency.
func (c *Config) BarStep() (time.Duration, error) {
	switch c.Simulation.LiveFrequency {
	case "1min":
		return time.Minute, nil
	case "5min":
		return 5 * time.Minute, nil
	case "1D":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("config.BarStep: unsupported frequency %q", c.Simulation.LiveFrequency)
	}
}

func parseDate(s string) (time.Time, error) {
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("config.parseDate: %q: %w", s, err)
	}
	return ts.UTC(), nil
}

func parseClock(s string) (time.Duration, error) {
	ts, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("config.parseClock: %q: %w", s, err)
	}
	return time.Duration(ts.Hour())*time.Hour + time.Duration(ts.Minute())*time.Minute, nil
}

// applyEnvOverrides overrides values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TRADESIM_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TRADESIM_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
}

// setDefaults ensures required values have sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Simulation.RunnerID == "" {
		cfg.Simulation.RunnerID = "simulation"
	}
	if cfg.Simulation.LiveFrequency == "" {
		cfg.Simulation.LiveFrequency = "1min"
	}
	if cfg.Simulation.MarketOpen == "" {
		cfg.Simulation.MarketOpen = "09:30"
	}
	if cfg.Simulation.MarketClose == "" {
		cfg.Simulation.MarketClose = "16:00"
	}
	if cfg.Risk.MaxOrderQuantity <= 0 {
		cfg.Risk.MaxOrderQuantity = 100
	}
	if cfg.Exchange.FillMultiplier <= 0 {
		cfg.Exchange.FillMultiplier = 0.5
	}
	if cfg.Broker.StockFeePerShare == 0 {
		cfg.Broker.StockFeePerShare = -0.01
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradesim.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
