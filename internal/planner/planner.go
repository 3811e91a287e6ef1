package planner

import (
	"fmt"
	"math"
	"time"

	"aitrader/internal/market"
	"aitrader/pkg/types"
)

// Config holds sizing and pricing policy. All tiers and caps are
// configuration, never per-instrument constants.
type Config struct {
	MaxPositionLots float64 `json:"max_position_lots"`

	// Sizing demotions. Each factor below its tier caps the sizing
	// base at the associated fraction of full size.
	ConfidenceFullTier      float64 `json:"confidence_full_tier"`      // below → capped
	ConfidenceCapFraction   float64 `json:"confidence_cap_fraction"`   // cap when confidence is low
	TradeabilityRejectTier  float64 `json:"tradeability_reject_tier"`  // below → no opening at all
	TradeabilityCapTier     float64 `json:"tradeability_cap_tier"`     // below → capped
	TradeabilityCapFraction float64 `json:"tradeability_cap_fraction"` // cap when tradeability is low
	ThinLiquidityFraction   float64 `json:"thin_liquidity_fraction"`   // cap when book is THIN
	SpreadRatioCap          float64 `json:"spread_ratio_cap"`          // spread/mid above → capped
	SpreadCapFraction       float64 `json:"spread_cap_fraction"`

	// Margin policy.
	MarginBufferMult  float64 `json:"margin_buffer_mult"`  // headroom multiplier on per-lot margin
	MinGuaranteeRatio float64 `json:"min_guarantee_ratio"` // equity/margin floor post-trade

	// Stop policy.
	MinStopTicks   int     `json:"min_stop_ticks"`
	MinStopATRMult float64 `json:"min_stop_atr_mult"`

	// Pricing.
	PriceStyle       types.PriceStyle `json:"price_style"`
	LimitOffsetTicks int              `json:"limit_offset_ticks"`
}

func (c *Config) setDefaults() {
	if c.MaxPositionLots == 0 {
		c.MaxPositionLots = 10
	}
	if c.ConfidenceFullTier == 0 {
		c.ConfidenceFullTier = 0.7
	}
	if c.ConfidenceCapFraction == 0 {
		c.ConfidenceCapFraction = 0.5
	}
	if c.TradeabilityRejectTier == 0 {
		c.TradeabilityRejectTier = 0.5
	}
	if c.TradeabilityCapTier == 0 {
		c.TradeabilityCapTier = 0.7
	}
	if c.TradeabilityCapFraction == 0 {
		c.TradeabilityCapFraction = 0.3
	}
	if c.ThinLiquidityFraction == 0 {
		c.ThinLiquidityFraction = 0.3
	}
	if c.SpreadRatioCap == 0 {
		c.SpreadRatioCap = 0.0008
	}
	if c.SpreadCapFraction == 0 {
		c.SpreadCapFraction = 0.3
	}
	if c.MarginBufferMult == 0 {
		c.MarginBufferMult = 1.1
	}
	if c.MinGuaranteeRatio == 0 {
		c.MinGuaranteeRatio = 1.5
	}
	if c.MinStopTicks == 0 {
		c.MinStopTicks = 10
	}
	if c.MinStopATRMult == 0 {
		c.MinStopATRMult = 0.5
	}
	if c.PriceStyle == "" {
		c.PriceStyle = types.PriceStyleBest
	}
	if c.LimitOffsetTicks == 0 {
		c.LimitOffsetTicks = 1
	}
}

// Planner turns a validated decision plus current state into at most
// one concrete order intent.
type Planner struct {
	cfg Config
}

// NewPlanner creates an execution planner.
func NewPlanner(cfg Config) *Planner {
	cfg.setDefaults()
	return &Planner{cfg: cfg}
}

// Plan computes the order intent for a decision, or nil with a reason
// when nothing should be sent. Closing always wins over opening: an
// opposite-direction signal on an open position emits a close-only
// intent, never a net reversal in one instruction.
func (p *Planner) Plan(symbol string, dec types.DecisionRecord,
	pos types.PositionSnapshot, account types.AccountSnapshot,
	micro *market.Microstructure, snap *market.IndicatorSnapshot,
	inst types.Instrument, now time.Time) (*types.OrderIntent, string) {

	if dec.Action == types.ActionHold {
		return nil, "hold"
	}
	if micro == nil {
		return nil, "no microstructure data"
	}

	qty := pos.Quantity
	switch dec.Action {
	case types.ActionSell:
		if qty <= 0 {
			return nil, "sell with no long position"
		}
		return p.closeIntent(symbol, types.DirectionShort, qty, micro, inst, dec, now), ""
	case types.ActionCover:
		if qty >= 0 {
			return nil, "cover with no short position"
		}
		return p.closeIntent(symbol, types.DirectionLong, -qty, micro, inst, dec, now), ""
	}

	// Opening action against an existing opposite position: close
	// only, the reversal needs a fresh decision once flat.
	if dec.Action == types.ActionBuy && qty < 0 {
		return p.closeIntent(symbol, types.DirectionLong, -qty, micro, inst, dec, now), ""
	}
	if dec.Action == types.ActionShort && qty > 0 {
		return p.closeIntent(symbol, types.DirectionShort, qty, micro, inst, dec, now), ""
	}

	return p.openIntent(symbol, dec, pos, account, micro, snap, inst, now)
}

func (p *Planner) closeIntent(symbol string, direction types.Direction, volume float64,
	micro *market.Microstructure, inst types.Instrument,
	dec types.DecisionRecord, now time.Time) *types.OrderIntent {

	price := p.selectPrice(direction, dec.PriceStyle, micro, inst)
	reason := fmt.Sprintf("close on %s", dec.Action)
	if dec.Forced {
		reason = fmt.Sprintf("forced close: %s", dec.Rationale)
	}
	return &types.OrderIntent{
		Symbol:    symbol,
		Direction: direction,
		Offset:    types.OffsetClose,
		Price:     price,
		Volume:    volume,
		Reason:    reason,
		CreatedAt: now,
	}
}

func (p *Planner) openIntent(symbol string, dec types.DecisionRecord,
	pos types.PositionSnapshot, account types.AccountSnapshot,
	micro *market.Microstructure, snap *market.IndicatorSnapshot,
	inst types.Instrument, now time.Time) (*types.OrderIntent, string) {

	if dec.TradeabilityScore < p.cfg.TradeabilityRejectTier {
		return nil, fmt.Sprintf("tradeability %.2f below reject tier", dec.TradeabilityScore)
	}

	direction := types.DirectionLong
	marginRatio := inst.LongMarginRatio
	if dec.Action == types.ActionShort {
		direction = types.DirectionShort
		marginRatio = inst.ShortMarginRatio
	}

	price := p.selectPrice(direction, dec.PriceStyle, micro, inst)
	if price <= 0 {
		return nil, "no usable price"
	}

	fraction := p.sizingFraction(dec, micro)
	notionalPerLot := price * inst.ContractSize
	marginPerLot := notionalPerLot * marginRatio
	if notionalPerLot <= 0 || marginPerLot <= 0 {
		return nil, "invalid instrument parameters"
	}

	targetLots := math.Floor(account.Equity * dec.TargetSizePct * fraction / notionalPerLot)
	if affordable := math.Floor(account.Available / (marginPerLot * p.cfg.MarginBufferMult)); affordable < targetLots {
		targetLots = affordable
	}
	if targetLots > p.cfg.MaxPositionLots {
		targetLots = p.cfg.MaxPositionLots
	}

	volume := targetLots - math.Abs(pos.Quantity)
	if volume <= 0 {
		return nil, "target size already reached"
	}

	// Reduce rather than reject when the guarantee ratio would dip
	// below the floor; drop only when even one lot does not fit.
	for volume > 0 {
		marginPost := account.MarginUsed + volume*marginPerLot
		if account.Equity/marginPost >= p.cfg.MinGuaranteeRatio {
			break
		}
		volume--
	}
	if volume <= 0 {
		return nil, "guarantee ratio floor leaves no room"
	}
	if inst.MinVolume > 0 && volume < inst.MinVolume {
		return nil, fmt.Sprintf("volume %.0f below instrument minimum %.0f", volume, inst.MinVolume)
	}

	atr := 0.0
	if snap != nil {
		atr = snap.ATR
	}
	stop := GuardAndRebaseStop(direction, price, dec.StopLoss, atr, inst.TickSize, p.cfg.MinStopTicks, p.cfg.MinStopATRMult)

	return &types.OrderIntent{
		Symbol:    symbol,
		Direction: direction,
		Offset:    types.OffsetOpen,
		Price:     price,
		Volume:    volume,
		StopLoss:  stop,
		Reason:    fmt.Sprintf("open on %s conf=%.2f", dec.Action, dec.Confidence),
		CreatedAt: now,
	}, ""
}

// sizingFraction derives the sizing base from confidence, liquidity
// and tradeability. The most conservative cap wins.
func (p *Planner) sizingFraction(dec types.DecisionRecord, micro *market.Microstructure) float64 {
	fraction := 1.0
	if dec.Confidence < p.cfg.ConfidenceFullTier && p.cfg.ConfidenceCapFraction < fraction {
		fraction = p.cfg.ConfidenceCapFraction
	}
	if dec.TradeabilityScore < p.cfg.TradeabilityCapTier && p.cfg.TradeabilityCapFraction < fraction {
		fraction = p.cfg.TradeabilityCapFraction
	}
	if micro.LiquidityState == types.LiquidityThin && p.cfg.ThinLiquidityFraction < fraction {
		fraction = p.cfg.ThinLiquidityFraction
	}
	if micro.Mid > 0 && micro.Spread/micro.Mid > p.cfg.SpreadRatioCap && p.cfg.SpreadCapFraction < fraction {
		fraction = p.cfg.SpreadCapFraction
	}
	return fraction
}

// selectPrice picks the order price per the configured style (the
// decision may override it) and quantizes to the tick grid. Long
// orders round down, short orders round up, never crossing further
// than intended.
func (p *Planner) selectPrice(direction types.Direction, style types.PriceStyle, micro *market.Microstructure, inst types.Instrument) float64 {
	if style == "" {
		style = p.cfg.PriceStyle
	}

	bid := micro.Mid - micro.Spread/2
	ask := micro.Mid + micro.Spread/2

	var price float64
	switch style {
	case types.PriceStyleMid:
		price = micro.Mid
	case types.PriceStyleMarket:
		price = micro.LastPrice
	case types.PriceStyleLimitOffset:
		// Join the passive side improved by the configured ticks.
		offset := float64(p.cfg.LimitOffsetTicks) * inst.TickSize
		if direction == types.DirectionLong {
			price = bid + offset
		} else {
			price = ask - offset
		}
	default: // best: cross the book
		if direction == types.DirectionLong {
			price = ask
		} else {
			price = bid
		}
	}

	if direction == types.DirectionLong {
		return QuantizeDown(price, inst.TickSize)
	}
	return QuantizeUp(price, inst.TickSize)
}
