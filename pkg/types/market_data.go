package types

import "time"

// OHLCV is a single fixed-interval bar.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// DepthLevel is one price level of the order book.
type DepthLevel struct {
	Price  float64
	Volume float64
}

// Tick is a single quote/trade update. Depth levels beyond L1 are
// optional; consumers must fall back to L1 when Bids/Asks are short.
type Tick struct {
	Symbol    string
	LastPrice float64
	LastVol   float64
	Bids      []DepthLevel // best bid first, up to 5 levels
	Asks      []DepthLevel // best ask first, up to 5 levels
	Timestamp time.Time
}

// BestBid returns the L1 bid price, or the last price when the book
// side is empty.
func (t *Tick) BestBid() float64 {
	if len(t.Bids) > 0 && t.Bids[0].Price > 0 {
		return t.Bids[0].Price
	}
	return t.LastPrice
}

// BestAsk returns the L1 ask price, or the last price when the book
// side is empty.
func (t *Tick) BestAsk() float64 {
	if len(t.Asks) > 0 && t.Asks[0].Price > 0 {
		return t.Asks[0].Price
	}
	return t.LastPrice
}

// Instrument describes the static contract parameters the planner and
// risk controller need for sizing and price normalization.
type Instrument struct {
	Symbol           string  `json:"symbol"`
	TickSize         float64 `json:"tick_size"`
	ContractSize     float64 `json:"contract_size"` // units per lot
	MinVolume        float64 `json:"min_volume"`    // minimum order size in lots
	LongMarginRatio  float64 `json:"long_margin_ratio"`
	ShortMarginRatio float64 `json:"short_margin_ratio"`
}

// AccountSnapshot is a point-in-time view of account funds. Source
// records whether it came from the venue or a local estimate.
type AccountSnapshot struct {
	Equity     float64
	Available  float64
	MarginUsed float64
	Source     string
}

// GuaranteeRatio returns equity over margin used, the solvency buffer
// checked before every opening order. Returns a large value when no
// margin is in use.
func (a AccountSnapshot) GuaranteeRatio() float64 {
	if a.MarginUsed <= 0 {
		return 999
	}
	return a.Equity / a.MarginUsed
}

// PositionSnapshot is the read-only view of a symbol's position handed
// to the orchestrator, planner and risk controller. Quantity is signed:
// positive long, negative short, zero flat.
type PositionSnapshot struct {
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
	RealizedPnL   float64
	EntryTime     time.Time
	PeakPrice     float64 // highest price seen since entry (long trailing)
	TroughPrice   float64 // lowest price seen since entry (short trailing)
}

// IsFlat reports whether there is no open position.
func (p PositionSnapshot) IsFlat() bool { return p.Quantity == 0 }

// UnrealizedPnL computes the floating PnL of the position at the given
// price for a contract multiplier.
func (p PositionSnapshot) UnrealizedPnL(price, contractSize float64) float64 {
	if p.Quantity == 0 || p.AvgEntryPrice == 0 {
		return 0
	}
	if p.Quantity > 0 {
		return (price - p.AvgEntryPrice) * p.Quantity * contractSize
	}
	return (p.AvgEntryPrice - price) * -p.Quantity * contractSize
}
