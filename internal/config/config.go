package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
)

// Config is the complete configuration for the breakout bot.
type Config struct {
	Instrument InstrumentConfig `json:"instrument" yaml:"instrument"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Breakout   BreakoutConfig   `json:"breakout" yaml:"breakout"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Broker     BrokerConfig     `json:"broker" yaml:"broker"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Monitoring MonitoringConfig `json:"monitoring" yaml:"monitoring"`
}

// InstrumentConfig identifies what is traded.
type InstrumentConfig struct {
	Symbol string  `json:"symbol" yaml:"symbol"` // e.g. BTCUSDT
	Point  float64 `json:"point" yaml:"point"`   // smallest quoted price increment, used for range sanity bounds
}

// SessionConfig describes the exchange calendar and the trading windows.
type SessionConfig struct {
	ExchangeTimezone  string   `json:"exchange_timezone" yaml:"exchange_timezone"` // e.g. Europe/London
	HomeTimezone      string   `json:"home_timezone" yaml:"home_timezone"`         // reporting timezone, independent DST
	Open              string   `json:"open" yaml:"open"`                           // session open, HH:MM exchange-local
	RangeWindowMins   int      `json:"range_window_minutes" yaml:"range_window_minutes"`
	WatchWindowMins   int      `json:"watch_window_minutes" yaml:"watch_window_minutes"`
	TradingDays       []string `json:"trading_days" yaml:"trading_days"` // weekday names; default Mon-Fri
	Holidays          []string `json:"holidays" yaml:"holidays"`         // dates, YYYY-MM-DD exchange-local
	MaxSessionsPerDay int      `json:"max_sessions_per_day" yaml:"max_sessions_per_day"`
}

// MarginMode selects how the confirmation margin is interpreted.
type MarginMode string

const (
	MarginAbsolute    MarginMode = "absolute"
	MarginATRRelative MarginMode = "atr"
)

// BreakoutConfig holds the confirmation rule parameters.
type BreakoutConfig struct {
	ConfirmationMargin float64    `json:"confirmation_margin" yaml:"confirmation_margin"`
	MarginMode         MarginMode `json:"margin_mode" yaml:"margin_mode"`
	ATRPeriod          int        `json:"atr_period" yaml:"atr_period"` // only read in atr mode
	ConfirmationCount  int        `json:"confirmation_count" yaml:"confirmation_count"`
	MinRangePoints     float64    `json:"min_range_points" yaml:"min_range_points"` // 0 disables
	MaxRangePoints     float64    `json:"max_range_points" yaml:"max_range_points"` // 0 disables
}

// EntryPolicy selects which price becomes the order entry.
type EntryPolicy string

const (
	EntryConfirmation EntryPolicy = "confirmation"
	EntryNextTick     EntryPolicy = "next-tick"
)

// RiskConfig holds order construction parameters.
type RiskConfig struct {
	RMultiple         float64     `json:"risk_r_multiple" yaml:"risk_r_multiple"`
	AccountRiskAmount float64     `json:"account_risk_amount" yaml:"account_risk_amount"` // account currency
	StopBuffer        float64     `json:"stop_buffer" yaml:"stop_buffer"`                 // beyond the opposite range side
	EntryPricePolicy  EntryPolicy `json:"entry_price_policy" yaml:"entry_price_policy"`
	VolumePrecision   int         `json:"volume_precision" yaml:"volume_precision"` // decimals the raw volume is floored to
	WidenStops        bool        `json:"widen_stops" yaml:"widen_stops"`           // widen to broker minimum instead of failing
	RTolerance        float64     `json:"r_tolerance" yaml:"r_tolerance"`           // allowed R drift after broker rounding
}

// BrokerConfig selects and parameterizes the broker connection.
type BrokerConfig struct {
	Name     string `json:"name" yaml:"name"`         // bybit | paper
	Category string `json:"category" yaml:"category"` // linear, inverse, spot
	Demo     bool   `json:"demo" yaml:"demo"`
	// MinStopDistance backstops venues whose instrument API does not
	// publish a minimum stop distance. 0 leaves the constraint to the API.
	MinStopDistance float64 `json:"min_stop_distance" yaml:"min_stop_distance"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type MonitoringConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// Load reads a JSON or YAML config file. Bare filenames are resolved against
// the configs/ directory.
func Load(configFile string) (*Config, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfiguration, "config", "read")
	}

	cfg := &Config{}
	// -1 marks volume_precision as unset; an explicit 0 means whole units.
	cfg.Risk.VolumePrecision = -1
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfiguration, "config", "parse")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with safe defaults.
func (c *Config) ApplyDefaults() {
	if c.Session.Open == "" {
		c.Session.Open = "09:30"
	}
	if c.Session.RangeWindowMins == 0 {
		c.Session.RangeWindowMins = 15
	}
	if c.Session.WatchWindowMins == 0 {
		c.Session.WatchWindowMins = 120
	}
	if len(c.Session.TradingDays) == 0 {
		c.Session.TradingDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	}
	if c.Session.MaxSessionsPerDay == 0 {
		c.Session.MaxSessionsPerDay = 1
	}
	if c.Session.HomeTimezone == "" {
		c.Session.HomeTimezone = "UTC"
	}
	if c.Breakout.MarginMode == "" {
		c.Breakout.MarginMode = MarginAbsolute
	}
	if c.Breakout.ConfirmationCount == 0 {
		c.Breakout.ConfirmationCount = 1
	}
	if c.Breakout.ATRPeriod == 0 {
		c.Breakout.ATRPeriod = 14
	}
	if c.Risk.EntryPricePolicy == "" {
		c.Risk.EntryPricePolicy = EntryConfirmation
	}
	if c.Risk.VolumePrecision == -1 {
		c.Risk.VolumePrecision = 2
	}
	if c.Risk.RTolerance == 0 {
		c.Risk.RTolerance = 0.05
	}
	if c.Instrument.Point == 0 {
		c.Instrument.Point = 0.01
	}
	if c.Broker.Name == "" {
		c.Broker.Name = "bybit"
	}
	if c.Broker.Category == "" {
		c.Broker.Category = "linear"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "orb_journal.db"
	}
	if c.Monitoring.ListenAddr == "" {
		c.Monitoring.ListenAddr = ":9090"
	}
}

// Validate checks the configuration. Any failure here is fatal at startup.
func (c *Config) Validate() error {
	if c.Instrument.Symbol == "" {
		return apperrors.NewConfigurationError("config", "instrument.symbol is required")
	}
	if _, err := time.LoadLocation(c.Session.ExchangeTimezone); err != nil {
		return apperrors.NewConfigurationError("config",
			fmt.Sprintf("invalid exchange_timezone %q: %v", c.Session.ExchangeTimezone, err))
	}
	if _, err := time.LoadLocation(c.Session.HomeTimezone); err != nil {
		return apperrors.NewConfigurationError("config",
			fmt.Sprintf("invalid home_timezone %q: %v", c.Session.HomeTimezone, err))
	}
	if _, _, err := ParseOpenTime(c.Session.Open); err != nil {
		return apperrors.NewConfigurationError("config",
			fmt.Sprintf("invalid session open %q: %v", c.Session.Open, err))
	}
	if c.Session.RangeWindowMins <= 0 || c.Session.WatchWindowMins <= 0 {
		return apperrors.NewConfigurationError("config", "range and watch windows must be positive")
	}
	if c.Session.MaxSessionsPerDay != 1 {
		return apperrors.NewConfigurationError("config", "max_sessions_per_day must be 1")
	}
	for _, d := range c.Session.TradingDays {
		if _, err := ParseWeekday(d); err != nil {
			return apperrors.NewConfigurationError("config", err.Error())
		}
	}
	for _, h := range c.Session.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return apperrors.NewConfigurationError("config",
				fmt.Sprintf("invalid holiday date %q", h))
		}
	}
	switch c.Breakout.MarginMode {
	case MarginAbsolute, MarginATRRelative:
	default:
		return apperrors.NewConfigurationError("config",
			fmt.Sprintf("invalid margin_mode %q", c.Breakout.MarginMode))
	}
	if c.Breakout.ConfirmationMargin < 0 {
		return apperrors.NewConfigurationError("config", "confirmation_margin must be >= 0")
	}
	if c.Breakout.ConfirmationCount < 1 {
		return apperrors.NewConfigurationError("config", "confirmation_count must be >= 1")
	}
	if c.Breakout.MaxRangePoints > 0 && c.Breakout.MaxRangePoints < c.Breakout.MinRangePoints {
		return apperrors.NewConfigurationError("config", "max_range_points below min_range_points")
	}
	if c.Risk.RMultiple <= 0 {
		return apperrors.NewConfigurationError("config", "risk_r_multiple must be positive")
	}
	if c.Risk.AccountRiskAmount <= 0 {
		return apperrors.NewConfigurationError("config", "account_risk_amount must be positive")
	}
	if c.Risk.StopBuffer < 0 {
		return apperrors.NewConfigurationError("config", "stop_buffer must be >= 0")
	}
	switch c.Risk.EntryPricePolicy {
	case EntryConfirmation, EntryNextTick:
	default:
		return apperrors.NewConfigurationError("config",
			fmt.Sprintf("invalid entry_price_policy %q", c.Risk.EntryPricePolicy))
	}
	if c.Risk.VolumePrecision < 0 {
		return apperrors.NewConfigurationError("config", "volume_precision must be >= 0")
	}
	if c.Risk.RTolerance <= 0 {
		return apperrors.NewConfigurationError("config", "r_tolerance must be positive")
	}
	switch c.Broker.Name {
	case "bybit", "paper":
	default:
		return apperrors.NewConfigurationError("config",
			fmt.Sprintf("unknown broker %q", c.Broker.Name))
	}
	return nil
}

// ParseOpenTime parses an HH:MM session open string.
func ParseOpenTime(s string) (hour, minute int, err error) {
	if _, err := time.Parse("15:04", s); err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	fmt.Sscanf(s, "%d:%d", &hour, &minute)
	return hour, minute, nil
}

// ParseWeekday parses a full weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}
