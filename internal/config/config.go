package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aitrader/internal/decision"
	"aitrader/internal/market"
	"aitrader/internal/planner"
	"aitrader/internal/risk"
	"aitrader/pkg/types"
)

// Config is the complete engine configuration, loaded from a JSON file
// with secrets resolved from the environment.
type Config struct {
	Symbols []string `json:"symbols"`

	// Instrument overrides for contract parameters the venue API does
	// not expose (contract size, margin ratios), keyed by symbol.
	Instruments map[string]types.Instrument `json:"instruments"`

	Market  market.Config  `json:"market"`
	Planner planner.Config `json:"planner"`
	Risk    risk.Config    `json:"risk"`

	Decision DecisionConfig `json:"decision"`
	Exchange ExchangeConfig `json:"exchange"`
	Engine   EngineConfig   `json:"engine"`

	Monitoring    MonitoringConfig   `json:"monitoring"`
	Notifications NotificationConfig `json:"notifications"`
}

// DecisionConfig groups AI-service and cadence settings.
type DecisionConfig struct {
	Endpoint   string `json:"endpoint"`
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeout_sec"`
	MaxRetries int    `json:"max_retries"`

	MinAggregatedBars int `json:"min_aggregated_bars"`

	// Per-regime cadence, minutes.
	TrendIntervalMin    float64 `json:"trend_interval_min"`
	TrendCooldownMin    float64 `json:"trend_cooldown_min"`
	SidewaysIntervalMin float64 `json:"sideways_interval_min"`
	SidewaysCooldownMin float64 `json:"sideways_cooldown_min"`
}

// ExchangeConfig selects and configures the venue.
type ExchangeConfig struct {
	Category  string `json:"category"`
	Testnet   bool   `json:"testnet"`
	Demo      bool   `json:"demo"`
	StreamURL string `json:"stream_url"`

	// Resolved from the environment, never stored in the file.
	APIKey    string `json:"-"`
	APISecret string `json:"-"`
}

// EngineConfig holds event loop and lifecycle settings.
type EngineConfig struct {
	BackfillBars   int     `json:"backfill_bars"`
	FillPollSec    int     `json:"fill_poll_sec"`
	AccountPollSec int     `json:"account_poll_sec"`
	InitialEquity  float64 `json:"initial_equity"` // fallback for local account estimation
	DayRollHour    int     `json:"day_roll_hour"`  // local hour at which risk accumulators reset
	JournalDir     string  `json:"journal_dir"`
}

// MonitoringConfig holds the metrics endpoint settings.
type MonitoringConfig struct {
	Enabled        bool `json:"enabled"`
	PrometheusPort int  `json:"prometheus_port"`
}

// NotificationConfig holds alerting settings.
type NotificationConfig struct {
	Enabled        bool   `json:"enabled"`
	TelegramToken  string `json:"-"`
	TelegramChatID string `json:"telegram_chat_id"`
}

// Load reads a config file (bare names resolve under configs/, the
// .json extension is optional) and fills secrets from the environment.
func Load(configFile string) (*Config, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.resolveSecrets()
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) resolveSecrets() {
	c.Exchange.APIKey = os.Getenv("EXCHANGE_API_KEY")
	c.Exchange.APISecret = os.Getenv("EXCHANGE_API_SECRET")
	c.Notifications.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
}

// DecisionAPIKeys reads the AI service key pool from the environment:
// AI_API_KEY plus optional AI_API_KEY_2..9.
func DecisionAPIKeys() []string {
	keys := []string{os.Getenv("AI_API_KEY")}
	for i := 2; i <= 9; i++ {
		if k := os.Getenv(fmt.Sprintf("AI_API_KEY_%d", i)); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Config) setDefaults() {
	if c.Market.PrimaryCapacity == 0 {
		c.Market.PrimaryCapacity = 600
	}
	if c.Market.AggregationFactor == 0 {
		c.Market.AggregationFactor = 5
	}
	if c.Market.MinAggregatedBars == 0 {
		c.Market.MinAggregatedBars = 40
	}
	if c.Market.EMAFastPeriod == 0 {
		c.Market.EMAFastPeriod = 12
	}
	if c.Market.EMASlowPeriod == 0 {
		c.Market.EMASlowPeriod = 26
	}
	if c.Market.MACDFast == 0 {
		c.Market.MACDFast = 12
	}
	if c.Market.MACDSlow == 0 {
		c.Market.MACDSlow = 26
	}
	if c.Market.MACDSignal == 0 {
		c.Market.MACDSignal = 9
	}
	if c.Market.RSIPeriod == 0 {
		c.Market.RSIPeriod = 14
	}
	if c.Market.ATRPeriod == 0 {
		c.Market.ATRPeriod = 14
	}
	if c.Market.VolumePeriod == 0 {
		c.Market.VolumePeriod = 20
	}
	if c.Market.DepthWindow == 0 {
		c.Market.DepthWindow = 120
	}
	if c.Market.LiquidityThinScore == 0 {
		c.Market.LiquidityThinScore = 0.5
	}
	if c.Market.LiquidityThickScore == 0 {
		c.Market.LiquidityThickScore = 1.5
	}
	if c.Market.SpreadRatioThin == 0 {
		c.Market.SpreadRatioThin = 0.001
	}
	if c.Market.ImbalanceThin == 0 {
		c.Market.ImbalanceThin = 0.7
	}

	if c.Decision.MinAggregatedBars == 0 {
		c.Decision.MinAggregatedBars = c.Market.MinAggregatedBars
	}
	if c.Decision.TimeoutSec == 0 {
		c.Decision.TimeoutSec = 60
	}
	if c.Decision.TrendIntervalMin == 0 {
		c.Decision.TrendIntervalMin = 3
	}
	if c.Decision.TrendCooldownMin == 0 {
		c.Decision.TrendCooldownMin = 2
	}
	if c.Decision.SidewaysIntervalMin == 0 {
		c.Decision.SidewaysIntervalMin = 5
	}
	if c.Decision.SidewaysCooldownMin == 0 {
		c.Decision.SidewaysCooldownMin = 5
	}

	if c.Engine.BackfillBars == 0 {
		c.Engine.BackfillBars = c.Market.PrimaryCapacity
	}
	if c.Engine.FillPollSec == 0 {
		c.Engine.FillPollSec = 2
	}
	if c.Engine.AccountPollSec == 0 {
		c.Engine.AccountPollSec = 30
	}
	if c.Engine.InitialEquity == 0 {
		c.Engine.InitialEquity = 100_000
	}
	if c.Engine.JournalDir == "" {
		c.Engine.JournalDir = "journal"
	}

	if c.Exchange.Category == "" {
		c.Exchange.Category = "linear"
	}
	if c.Exchange.StreamURL == "" {
		if c.Exchange.Testnet {
			c.Exchange.StreamURL = "wss://stream-testnet.bybit.com/v5/public/linear"
		} else {
			c.Exchange.StreamURL = "wss://stream.bybit.com/v5/public/linear"
		}
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Risk.MaxSingleTradeLossPct == 0 {
		c.Risk.MaxSingleTradeLossPct = 0.02
	}
	if c.Risk.MaxDailyLossPct == 0 {
		c.Risk.MaxDailyLossPct = 0.05
	}
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if err := c.Market.Validate(); err != nil {
		return err
	}
	if c.Decision.Endpoint == "" {
		return fmt.Errorf("decision endpoint is required")
	}
	if c.Decision.MinAggregatedBars > c.Market.PrimaryCapacity/c.Market.AggregationFactor {
		return fmt.Errorf("decision min_aggregated_bars %d exceeds aggregated buffer capacity %d",
			c.Decision.MinAggregatedBars, c.Market.PrimaryCapacity/c.Market.AggregationFactor)
	}
	if c.Engine.DayRollHour < 0 || c.Engine.DayRollHour > 23 {
		return fmt.Errorf("day_roll_hour %d outside 0-23", c.Engine.DayRollHour)
	}
	return nil
}

// OrchestratorConfig translates the cadence settings into the decision
// orchestrator's regime table.
func (c *Config) OrchestratorConfig() decision.OrchestratorConfig {
	minutes := func(m float64) time.Duration {
		return time.Duration(m * float64(time.Minute))
	}
	trend := decision.RegimeParams{
		Interval: minutes(c.Decision.TrendIntervalMin),
		Cooldown: minutes(c.Decision.TrendCooldownMin),
	}
	return decision.OrchestratorConfig{
		MinAggregatedBars: c.Decision.MinAggregatedBars,
		RequestTimeout:    time.Duration(c.Decision.TimeoutSec) * time.Second,
		Regimes: map[types.Regime]decision.RegimeParams{
			types.RegimeTrendUp:   trend,
			types.RegimeTrendDown: trend,
			types.RegimeSideways: {
				Interval: minutes(c.Decision.SidewaysIntervalMin),
				Cooldown: minutes(c.Decision.SidewaysCooldownMin),
			},
		},
	}
}
