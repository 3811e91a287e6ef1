package ledger

import (
	"math"
	"time"

	"aitrader/pkg/types"
)

// FillResult reports what a reconciliation event did to the position.
// Anomaly is non-empty for events that were deliberately ignored.
type FillResult struct {
	Applied     bool
	Delta       float64 // lots applied this call
	RealizedPnL float64 // realized on this delta (closing fills only)
	Closed      bool    // position went flat on this fill
	Anomaly     string
}

// symbolLedger is the per-symbol position state. Mutated only through
// ApplyFill and the explicit resync/day-roll entry points.
type symbolLedger struct {
	pos                types.PositionSnapshot
	pendingOrderTraded map[string]float64

	reentryCooldownUntil time.Time
	lastExitPrice        float64
	dayStartEquity       float64
	dayRealizedPnL       float64
}

// Ledger is the single source of truth for positions. All fill
// callbacks, whatever channel delivered them, funnel through ApplyFill
// keyed by order identifier so duplicates cannot double-count.
type Ledger struct {
	contractSize float64
	symbols      map[string]*symbolLedger
}

// NewLedger creates an empty position ledger. contractSize is the
// units-per-lot multiplier used for PnL.
func NewLedger(contractSize float64) *Ledger {
	if contractSize <= 0 {
		contractSize = 1
	}
	return &Ledger{
		contractSize: contractSize,
		symbols:      make(map[string]*symbolLedger),
	}
}

func (l *Ledger) state(symbol string) *symbolLedger {
	sl, ok := l.symbols[symbol]
	if !ok {
		sl = &symbolLedger{
			pos:                types.PositionSnapshot{Symbol: symbol},
			pendingOrderTraded: make(map[string]float64),
		}
		l.symbols[symbol] = sl
	}
	return sl
}

// ApplyFill reconciles a cumulative-traded callback into the position.
// tradedCumulative is the order's total traded quantity so far; only
// the positive delta since the last recorded value is applied, which
// makes the call idempotent under duplicate or out-of-order delivery.
func (l *Ledger) ApplyFill(symbol, orderID string, direction types.Direction, offset types.Offset, tradedCumulative, price float64, at time.Time) FillResult {
	sl := l.state(symbol)

	prev := sl.pendingOrderTraded[orderID]
	delta := tradedCumulative - prev
	if delta <= 0 {
		return FillResult{Anomaly: "stale or duplicate fill callback"}
	}
	sl.pendingOrderTraded[orderID] = tradedCumulative

	if offset == types.OffsetOpen {
		l.applyOpen(sl, direction, delta, price, at)
		return FillResult{Applied: true, Delta: delta}
	}
	return l.applyClose(sl, direction, delta, price)
}

func (l *Ledger) applyOpen(sl *symbolLedger, direction types.Direction, delta, price float64, at time.Time) {
	sign := 1.0
	if direction == types.DirectionShort {
		sign = -1.0
	}

	oldQty := math.Abs(sl.pos.Quantity)
	if oldQty == 0 {
		sl.pos.AvgEntryPrice = price
		sl.pos.EntryTime = at
		sl.pos.PeakPrice = price
		sl.pos.TroughPrice = price
	} else {
		// Volume-weighted average entry across adds.
		sl.pos.AvgEntryPrice = (sl.pos.AvgEntryPrice*oldQty + price*delta) / (oldQty + delta)
	}
	sl.pos.Quantity += sign * delta
	l.markExtremes(sl, price)
}

func (l *Ledger) applyClose(sl *symbolLedger, direction types.Direction, delta, price float64) FillResult {
	qty := sl.pos.Quantity
	if qty == 0 {
		return FillResult{Anomaly: "closing fill on flat position"}
	}
	// A "long" close reduces a short; direction is the order's side,
	// the position being reduced is the opposite one.
	if (direction == types.DirectionLong && qty > 0) || (direction == types.DirectionShort && qty < 0) {
		return FillResult{Anomaly: "closing fill direction matches position side"}
	}

	held := math.Abs(qty)
	if delta > held {
		delta = held
	}

	sign := 1.0
	if qty < 0 {
		sign = -1.0
	}
	realized := delta * (price - sl.pos.AvgEntryPrice) * sign * l.contractSize

	sl.pos.RealizedPnL += realized
	sl.dayRealizedPnL += realized
	if qty > 0 {
		sl.pos.Quantity -= delta
	} else {
		sl.pos.Quantity += delta
	}

	closed := sl.pos.Quantity == 0
	if closed {
		sl.lastExitPrice = price
		sl.pos.AvgEntryPrice = 0
		sl.pos.EntryTime = time.Time{}
		sl.pos.PeakPrice = 0
		sl.pos.TroughPrice = 0
	}
	return FillResult{Applied: true, Delta: delta, RealizedPnL: realized, Closed: closed}
}

// MarkPrice records a traded price against the open position, updating
// the peak/trough extremes the trailing stops key off.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	sl := l.state(symbol)
	if sl.pos.Quantity == 0 {
		return
	}
	l.markExtremes(sl, price)
}

func (l *Ledger) markExtremes(sl *symbolLedger, price float64) {
	if price > sl.pos.PeakPrice {
		sl.pos.PeakPrice = price
	}
	if sl.pos.TroughPrice == 0 || price < sl.pos.TroughPrice {
		sl.pos.TroughPrice = price
	}
}

// AlignToVenuePosition overwrites the signed quantity from a venue
// snapshot at startup. Average entry price is preserved; the venue's
// cost basis may use a different convention.
func (l *Ledger) AlignToVenuePosition(symbol string, quantitySigned float64) {
	sl := l.state(symbol)
	sl.pos.Quantity = quantitySigned
	if quantitySigned == 0 {
		sl.pos.AvgEntryPrice = 0
		sl.pos.EntryTime = time.Time{}
		sl.pos.PeakPrice = 0
		sl.pos.TroughPrice = 0
	}
}

// Position returns a copy of the symbol's position snapshot.
func (l *Ledger) Position(symbol string) types.PositionSnapshot {
	return l.state(symbol).pos
}

// UnrealizedPnL computes the floating PnL at the given mark price.
func (l *Ledger) UnrealizedPnL(symbol string, price float64) float64 {
	return l.state(symbol).pos.UnrealizedPnL(price, l.contractSize)
}

// SetReentryCooldown blocks new openings for the symbol until the
// given time. Called after every completed close.
func (l *Ledger) SetReentryCooldown(symbol string, until time.Time) {
	l.state(symbol).reentryCooldownUntil = until
}

// ReentryCooldownUntil returns the opening-veto deadline.
func (l *Ledger) ReentryCooldownUntil(symbol string) time.Time {
	return l.state(symbol).reentryCooldownUntil
}

// LastExitPrice returns the price of the fill that last flattened the
// symbol, zero when it has never closed.
func (l *Ledger) LastExitPrice(symbol string) float64 {
	return l.state(symbol).lastExitPrice
}

// RollDay resets the per-day risk accumulators and the fill dedup map,
// anchoring the daily loss cap to the new day's starting equity.
func (l *Ledger) RollDay(symbol string, dayStartEquity float64) {
	sl := l.state(symbol)
	sl.dayStartEquity = dayStartEquity
	sl.dayRealizedPnL = 0
	sl.pendingOrderTraded = make(map[string]float64)
}

// DayStartEquity returns the equity anchor for the daily loss cap.
func (l *Ledger) DayStartEquity(symbol string) float64 {
	return l.state(symbol).dayStartEquity
}

// DayRealizedPnL returns the realized PnL accumulated since day-roll.
// Negative values are losses.
func (l *Ledger) DayRealizedPnL(symbol string) float64 {
	return l.state(symbol).dayRealizedPnL
}

// ContractSize returns the units-per-lot multiplier.
func (l *Ledger) ContractSize() float64 { return l.contractSize }

// EstimateAccount derives an account snapshot locally when the venue
// query is unavailable: equity is the initial balance plus realized and
// unrealized PnL, margin is re-derived from the open position.
func (l *Ledger) EstimateAccount(symbol string, initialEquity, price float64, inst types.Instrument) types.AccountSnapshot {
	sl := l.state(symbol)

	equity := initialEquity + sl.pos.RealizedPnL + sl.pos.UnrealizedPnL(price, l.contractSize)

	marginRatio := inst.LongMarginRatio
	if sl.pos.Quantity < 0 {
		marginRatio = inst.ShortMarginRatio
	}
	margin := math.Abs(sl.pos.Quantity) * price * inst.ContractSize * marginRatio

	available := equity - margin
	if available < 0 {
		available = 0
	}
	return types.AccountSnapshot{
		Equity:     equity,
		Available:  available,
		MarginUsed: margin,
		Source:     "estimated",
	}
}
