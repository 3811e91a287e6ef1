package exchange

import (
	"context"
	"time"

	"aitrader/pkg/types"
)

// Event is a market or execution event delivered to the engine's
// serial queue. Events are at-least-once: the ledger dedups fills, the
// aggregator tolerates replayed bars.
type Event interface{ event() }

// BarEvent is a closed primary-resolution bar.
type BarEvent struct {
	Symbol string
	Bar    types.OHLCV
}

// TickEvent is a quote/book update.
type TickEvent struct {
	Symbol string
	Tick   types.Tick
}

// FillEvent is an order execution update carrying the order's
// cumulative traded quantity, not a per-fill delta.
type FillEvent struct {
	Symbol           string
	OrderID          string
	Direction        types.Direction
	Offset           types.Offset
	TradedCumulative float64
	Price            float64
	At               time.Time
}

func (BarEvent) event()  {}
func (TickEvent) event() {}
func (FillEvent) event() {}

// Adapter is the venue interface the engine trades through. All calls
// take a context; implementations wrap transport retries and rate
// limits internally.
type Adapter interface {
	// Instrument returns static contract parameters for a symbol.
	Instrument(ctx context.Context, symbol string) (types.Instrument, error)

	// RecentBars fetches up to limit closed primary-resolution bars,
	// oldest first, for indicator backfill at startup.
	RecentBars(ctx context.Context, symbol string, limit int) ([]types.OHLCV, error)

	// NetPosition returns the venue's signed position in lots.
	NetPosition(ctx context.Context, symbol string) (float64, error)

	// Account returns the venue account snapshot.
	Account(ctx context.Context) (types.AccountSnapshot, error)

	// SubmitOrder places an order and returns the venue order id.
	SubmitOrder(ctx context.Context, intent types.OrderIntent) (string, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// OrderFill queries an order's cumulative executed quantity and
	// average fill price, for fill polling between stream updates.
	OrderFill(ctx context.Context, symbol, orderID string) (cumQty, avgPrice float64, err error)
}

// Stream delivers market data events.
type Stream interface {
	Events() <-chan Event
	Subscribe(symbols []string) error
	Close() error
}
