package market

import (
	"fmt"
	"time"

	"aitrader/internal/indicators"
	"aitrader/pkg/types"
)

// Config holds the aggregation and indicator parameters. Thresholds
// are configuration, never hardcoded per instrument.
type Config struct {
	PrimaryCapacity   int `json:"primary_capacity"`   // bounded primary-bar buffer
	AggregationFactor int `json:"aggregation_factor"` // primary bars per aggregated bar
	MinAggregatedBars int `json:"min_aggregated_bars"`

	EMAFastPeriod int `json:"ema_fast_period"`
	EMASlowPeriod int `json:"ema_slow_period"`
	MACDFast      int `json:"macd_fast"`
	MACDSlow      int `json:"macd_slow"`
	MACDSignal    int `json:"macd_signal"`
	RSIPeriod     int `json:"rsi_period"`
	ATRPeriod     int `json:"atr_period"`
	VolumePeriod  int `json:"volume_period"`

	// Liquidity classification thresholds
	DepthWindow         int     `json:"depth_window"`          // ticks in the rolling depth average
	LiquidityThinScore  float64 `json:"liquidity_thin_score"`  // below → THIN
	LiquidityThickScore float64 `json:"liquidity_thick_score"` // above → THICK
	SpreadRatioThin     float64 `json:"spread_ratio_thin"`     // spread/mid above → THIN
	ImbalanceThin       float64 `json:"imbalance_thin"`        // |L5 imbalance| above → THIN
}

// Validate checks the internal consistency of the aggregation config.
func (c Config) Validate() error {
	if c.AggregationFactor <= 0 {
		return fmt.Errorf("aggregation factor must be positive, got %d", c.AggregationFactor)
	}
	if c.PrimaryCapacity < c.AggregationFactor {
		return fmt.Errorf("primary capacity %d below aggregation factor %d", c.PrimaryCapacity, c.AggregationFactor)
	}
	if c.PrimaryCapacity%c.AggregationFactor != 0 {
		return fmt.Errorf("primary capacity %d must be a multiple of aggregation factor %d", c.PrimaryCapacity, c.AggregationFactor)
	}
	if c.MinAggregatedBars <= 0 {
		return fmt.Errorf("minimum aggregated bars must be positive, got %d", c.MinAggregatedBars)
	}
	return nil
}

// IndicatorSnapshot is the last computed indicator set for a symbol.
// A nil snapshot means "not ready", never an error.
type IndicatorSnapshot struct {
	EMAFast     float64
	EMASlow     float64
	MACD        float64
	MACDSignal  float64
	MACDHist    float64
	RSI         float64
	ATR         float64
	VolumeRatio float64
	Close       float64
	BarCount    int // aggregated bars backing this snapshot
	Timestamp   time.Time
}

// Microstructure is the last tick-derived order book summary.
type Microstructure struct {
	LastPrice      float64
	Spread         float64
	Mid            float64
	Microprice     float64
	ImbalanceL1    float64
	ImbalanceL5    float64
	DepthL5        float64
	LiquidityScore float64
	LiquidityState types.LiquidityState
	Timestamp      time.Time
}

// symbolBuffers holds the per-symbol rolling state. The primary buffer
// always starts on an aggregation-group boundary: eviction drops a
// whole group at once, so the aggregated series can be re-derived from
// the retained primary bars at any time.
type symbolBuffers struct {
	primary    []types.OHLCV
	aggregated []types.OHLCV
	appended   int // primary bars ever appended, for boundary detection

	snapshot *IndicatorSnapshot
	micro    *Microstructure

	depthWindow []float64 // recent L5 depth totals for the liquidity score
}

// Aggregator owns the per-symbol rolling bar buffers and derived
// indicator/microstructure snapshots. It is not safe for concurrent
// use; the engine serializes all access through its event loop.
type Aggregator struct {
	cfg     Config
	symbols map[string]*symbolBuffers

	emaFast *indicators.EMA
	emaSlow *indicators.EMA
	macd    *indicators.MACD
	rsi     *indicators.RSI
	atr     *indicators.ATR
	volume  *indicators.VolumeRatio
}

// NewAggregator creates a market data aggregator for the given config.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market config: %w", err)
	}
	return &Aggregator{
		cfg:     cfg,
		symbols: make(map[string]*symbolBuffers),
		emaFast: indicators.NewEMA(cfg.EMAFastPeriod),
		emaSlow: indicators.NewEMA(cfg.EMASlowPeriod),
		macd:    indicators.NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		rsi:     indicators.NewRSI(cfg.RSIPeriod),
		atr:     indicators.NewATR(cfg.ATRPeriod),
		volume:  indicators.NewVolumeRatio(cfg.VolumePeriod),
	}, nil
}

func (a *Aggregator) buffers(symbol string) *symbolBuffers {
	sb, ok := a.symbols[symbol]
	if !ok {
		sb = &symbolBuffers{
			primary:    make([]types.OHLCV, 0, a.cfg.PrimaryCapacity),
			aggregated: make([]types.OHLCV, 0, a.cfg.PrimaryCapacity/a.cfg.AggregationFactor),
		}
		a.symbols[symbol] = sb
	}
	return sb
}

// OnPrimaryBar appends a primary-resolution bar, maintains the
// aggregated series incrementally and recomputes the indicator
// snapshot once enough aggregated bars exist.
func (a *Aggregator) OnPrimaryBar(symbol string, bar types.OHLCV) {
	sb := a.buffers(symbol)
	factor := a.cfg.AggregationFactor

	if len(sb.primary) >= a.cfg.PrimaryCapacity {
		// Evict one whole aggregation group to keep the buffer
		// aligned on a group boundary.
		sb.primary = append(sb.primary[:0], sb.primary[factor:]...)
		if len(sb.aggregated) > 0 {
			sb.aggregated = append(sb.aggregated[:0], sb.aggregated[1:]...)
		}
	}
	sb.primary = append(sb.primary, bar)
	sb.appended++

	if sb.appended%factor == 0 {
		group := sb.primary[len(sb.primary)-factor:]
		sb.aggregated = append(sb.aggregated, aggregateGroup(group))
	}

	if len(sb.aggregated) >= a.cfg.MinAggregatedBars {
		if snap, err := a.computeSnapshot(sb.aggregated); err == nil {
			sb.snapshot = snap
		}
	}
}

// aggregateGroup folds one aggregation group into a coarse bar:
// first open, max high, min low, last close, summed volume.
func aggregateGroup(group []types.OHLCV) types.OHLCV {
	agg := types.OHLCV{
		Open:      group[0].Open,
		High:      group[0].High,
		Low:       group[0].Low,
		Close:     group[len(group)-1].Close,
		Timestamp: group[len(group)-1].Timestamp,
	}
	for _, b := range group {
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Volume += b.Volume
	}
	return agg
}

// RebuildAggregated re-derives the aggregated series from the retained
// primary bars. Used by tests to verify the incremental path and by
// the engine after a history backfill.
func (a *Aggregator) RebuildAggregated(symbol string) []types.OHLCV {
	sb := a.buffers(symbol)
	factor := a.cfg.AggregationFactor
	rebuilt := make([]types.OHLCV, 0, len(sb.primary)/factor)
	for i := 0; i+factor <= len(sb.primary); i += factor {
		rebuilt = append(rebuilt, aggregateGroup(sb.primary[i:i+factor]))
	}
	return rebuilt
}

func (a *Aggregator) computeSnapshot(bars []types.OHLCV) (*IndicatorSnapshot, error) {
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	emaFast, err := a.emaFast.Calculate(closes)
	if err != nil {
		return nil, err
	}
	emaSlow, err := a.emaSlow.Calculate(closes)
	if err != nil {
		return nil, err
	}
	macdLine, macdSignal, macdHist, err := a.macd.Calculate(closes)
	if err != nil {
		return nil, err
	}
	rsi, err := a.rsi.Calculate(closes)
	if err != nil {
		return nil, err
	}
	atr, err := a.atr.Calculate(bars)
	if err != nil {
		return nil, err
	}
	volRatio, err := a.volume.Calculate(volumes)
	if err != nil {
		return nil, err
	}

	last := bars[len(bars)-1]
	return &IndicatorSnapshot{
		EMAFast:     emaFast,
		EMASlow:     emaSlow,
		MACD:        macdLine,
		MACDSignal:  macdSignal,
		MACDHist:    macdHist,
		RSI:         rsi,
		ATR:         atr,
		VolumeRatio: volRatio,
		Close:       last.Close,
		BarCount:    len(bars),
		Timestamp:   last.Timestamp,
	}, nil
}

// Snapshot returns the last indicator snapshot for the symbol, or nil
// when not enough history has accumulated ("not ready").
func (a *Aggregator) Snapshot(symbol string) *IndicatorSnapshot {
	if sb, ok := a.symbols[symbol]; ok {
		return sb.snapshot
	}
	return nil
}

// Micro returns the last microstructure snapshot for the symbol, or
// nil before the first tick.
func (a *Aggregator) Micro(symbol string) *Microstructure {
	if sb, ok := a.symbols[symbol]; ok {
		return sb.micro
	}
	return nil
}

// AggregatedBarCount reports how many aggregated bars are available.
func (a *Aggregator) AggregatedBarCount(symbol string) int {
	if sb, ok := a.symbols[symbol]; ok {
		return len(sb.aggregated)
	}
	return 0
}

// PrimaryBarCount reports how many primary bars are retained.
func (a *Aggregator) PrimaryBarCount(symbol string) int {
	if sb, ok := a.symbols[symbol]; ok {
		return len(sb.primary)
	}
	return 0
}

// AggregatedBars returns the aggregated series (read-only view).
func (a *Aggregator) AggregatedBars(symbol string) []types.OHLCV {
	if sb, ok := a.symbols[symbol]; ok {
		return sb.aggregated
	}
	return nil
}
