package decision

import (
	"time"

	"aitrader/internal/market"
	"aitrader/pkg/types"
)

// TradeDigest is one recently closed trade summarized for the model.
type TradeDigest struct {
	Direction   types.Direction `json:"direction"`
	EntryPrice  float64         `json:"entry_price"`
	ExitPrice   float64         `json:"exit_price"`
	Volume      float64         `json:"volume"`
	RealizedPnL float64         `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// Context is the JSON payload sent to the AI decision service. Every
// number the model needs to reason about the symbol goes here; the
// model must not be expected to remember prior calls.
type Context struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	Indicators struct {
		EMAFast     float64 `json:"ema_fast"`
		EMASlow     float64 `json:"ema_slow"`
		MACD        float64 `json:"macd"`
		MACDSignal  float64 `json:"macd_signal"`
		MACDHist    float64 `json:"macd_hist"`
		RSI         float64 `json:"rsi"`
		ATR         float64 `json:"atr"`
		VolumeRatio float64 `json:"volume_ratio"`
		Close       float64 `json:"close"`
		BarCount    int     `json:"bar_count"`
	} `json:"indicators"`

	Microstructure struct {
		LastPrice      float64              `json:"last_price"`
		Spread         float64              `json:"spread"`
		Mid            float64              `json:"mid"`
		Microprice     float64              `json:"microprice"`
		ImbalanceL1    float64              `json:"imbalance_l1"`
		ImbalanceL5    float64              `json:"imbalance_l5"`
		LiquidityScore float64              `json:"liquidity_score"`
		LiquidityState types.LiquidityState `json:"liquidity_state"`
	} `json:"microstructure"`

	Position struct {
		Quantity      float64 `json:"quantity"`
		AvgEntryPrice float64 `json:"avg_entry_price"`
		UnrealizedPnL float64 `json:"unrealized_pnl"`
		RealizedPnL   float64 `json:"realized_pnl"`
		HoldMinutes   float64 `json:"hold_minutes"`
	} `json:"position"`

	Account struct {
		Equity         float64 `json:"equity"`
		Available      float64 `json:"available"`
		MarginUsed     float64 `json:"margin_used"`
		GuaranteeRatio float64 `json:"guarantee_ratio"`
		DayRealizedPnL float64 `json:"day_realized_pnl"`
	} `json:"account"`

	RecentTrades []TradeDigest `json:"recent_trades,omitempty"`
}

// BuildContext assembles the decision context from the latest market
// and ledger snapshots.
func BuildContext(symbol string, now time.Time,
	snap *market.IndicatorSnapshot, micro *market.Microstructure,
	pos types.PositionSnapshot, unrealized float64,
	account types.AccountSnapshot, dayRealized float64,
	recent []TradeDigest) Context {

	var ctx Context
	ctx.Symbol = symbol
	ctx.Timestamp = now

	if snap != nil {
		ctx.Indicators.EMAFast = snap.EMAFast
		ctx.Indicators.EMASlow = snap.EMASlow
		ctx.Indicators.MACD = snap.MACD
		ctx.Indicators.MACDSignal = snap.MACDSignal
		ctx.Indicators.MACDHist = snap.MACDHist
		ctx.Indicators.RSI = snap.RSI
		ctx.Indicators.ATR = snap.ATR
		ctx.Indicators.VolumeRatio = snap.VolumeRatio
		ctx.Indicators.Close = snap.Close
		ctx.Indicators.BarCount = snap.BarCount
	}
	if micro != nil {
		ctx.Microstructure.LastPrice = micro.LastPrice
		ctx.Microstructure.Spread = micro.Spread
		ctx.Microstructure.Mid = micro.Mid
		ctx.Microstructure.Microprice = micro.Microprice
		ctx.Microstructure.ImbalanceL1 = micro.ImbalanceL1
		ctx.Microstructure.ImbalanceL5 = micro.ImbalanceL5
		ctx.Microstructure.LiquidityScore = micro.LiquidityScore
		ctx.Microstructure.LiquidityState = micro.LiquidityState
	}

	ctx.Position.Quantity = pos.Quantity
	ctx.Position.AvgEntryPrice = pos.AvgEntryPrice
	ctx.Position.UnrealizedPnL = unrealized
	ctx.Position.RealizedPnL = pos.RealizedPnL
	if !pos.IsFlat() && !pos.EntryTime.IsZero() {
		ctx.Position.HoldMinutes = now.Sub(pos.EntryTime).Minutes()
	}

	ctx.Account.Equity = account.Equity
	ctx.Account.Available = account.Available
	ctx.Account.MarginUsed = account.MarginUsed
	ctx.Account.GuaranteeRatio = account.GuaranteeRatio()
	ctx.Account.DayRealizedPnL = dayRealized

	ctx.RecentTrades = recent
	return ctx
}
