package types

import "time"

// Action is the decision verb returned by the AI service.
type Action string

const (
	ActionBuy   Action = "buy"   // open or add long
	ActionSell  Action = "sell"  // close long
	ActionShort Action = "short" // open or add short
	ActionCover Action = "cover" // close short
	ActionHold  Action = "hold"
)

// Valid reports whether the action is one of the enumerated verbs.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionShort, ActionCover, ActionHold:
		return true
	}
	return false
}

// IsOpening reports whether the action opens or adds to a position.
func (a Action) IsOpening() bool { return a == ActionBuy || a == ActionShort }

// IsClosing reports whether the action reduces or closes a position.
func (a Action) IsClosing() bool { return a == ActionSell || a == ActionCover }

// Regime is a coarse market-state classification that drives decision
// cadence and cooldowns.
type Regime string

const (
	RegimeTrendUp   Regime = "TREND_UP"
	RegimeTrendDown Regime = "TREND_DOWN"
	RegimeSideways  Regime = "SIDEWAYS"
)

// Valid reports whether the regime is one of the enumerated states.
func (r Regime) Valid() bool {
	switch r {
	case RegimeTrendUp, RegimeTrendDown, RegimeSideways:
		return true
	}
	return false
}

// LiquidityState classifies order-book depth relative to its recent
// average.
type LiquidityState string

const (
	LiquidityThin   LiquidityState = "THIN"
	LiquidityNormal LiquidityState = "NORMAL"
	LiquidityThick  LiquidityState = "THICK"
)

// TrailingType selects the trailing-stop flavor carried by a decision.
type TrailingType string

const (
	TrailingNone    TrailingType = "none"
	TrailingATR     TrailingType = "atr"
	TrailingPercent TrailingType = "percent"
)

// PriceStyle selects how the planner prices an order.
type PriceStyle string

const (
	PriceStyleBest        PriceStyle = "best"   // cross the L1 book
	PriceStyleMid         PriceStyle = "mid"    // mid price
	PriceStyleMarket      PriceStyle = "market" // last traded price
	PriceStyleLimitOffset PriceStyle = "limit_offset"
)

// ScaleOutPlan is an optional take-profit ladder expressed in
// R-multiples of the initial stop distance.
type ScaleOutPlan struct {
	LevelsR []float64 `json:"levels_r"` // ascending R multiples
	Pcts    []float64 `json:"pcts"`     // fraction of position per level
}

// DecisionRecord is a validated, immutable AI decision. The zero value
// is not meaningful; use HoldDecision for the safe fallback.
type DecisionRecord struct {
	Action            Action        `json:"action"`
	TargetSizePct     float64       `json:"target_position_size_pct"`
	Confidence        float64       `json:"confidence"`
	StopLoss          float64       `json:"stop_loss"`
	TakeProfit        *ScaleOutPlan `json:"take_profit_plan,omitempty"`
	Regime            Regime        `json:"regime"`
	Rationale         string        `json:"rationale"`
	TradeabilityScore float64       `json:"tradeability_score"`
	PriceStyle        PriceStyle    `json:"order_price_style"`
	TrailingType      TrailingType  `json:"trailing_type"`
	TrailingATRMult   float64       `json:"trailing_atr_mult"`
	TrailingPercent   float64       `json:"trailing_percent"`
	TimeStopMinutes   float64       `json:"time_stop_minutes"`
	CooldownMinutes   float64       `json:"cooldown_minutes"`

	// Seq is the orchestrator request sequence this decision answers.
	Seq uint64 `json:"-"`
	// Forced marks synthetic close decisions from the risk controller.
	Forced bool `json:"-"`
}

// HoldDecision is the safe fallback used whenever a response is
// missing, malformed or rejected.
func HoldDecision(seq uint64) DecisionRecord {
	return DecisionRecord{Action: ActionHold, Regime: RegimeSideways, Seq: seq}
}

// Direction is the side of an order.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Offset distinguishes opening from closing orders.
type Offset string

const (
	OffsetOpen  Offset = "open"
	OffsetClose Offset = "close"
)

// OrderIntent is the concrete order action produced by the planner and
// handed to the venue adapter.
type OrderIntent struct {
	Symbol    string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	StopLoss  float64 // zero for closing intents
	Reason    string  // short free-form tag for logs/journal
	CreatedAt time.Time
}
