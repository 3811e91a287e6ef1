package bybit

import (
	"context"
	"fmt"
	"time"

	"aitrader/internal/errors"
	"aitrader/internal/safety"
	"aitrader/pkg/types"
)

// Adapter implements the venue interface over the HTTP client, with a
// token-bucket rate limit and a circuit breaker around every call so a
// flapping venue degrades to "do nothing this cycle" instead of
// cascading errors through the engine.
type Adapter struct {
	client  *Client
	limiter *safety.RateLimiter
	breaker *safety.CircuitBreaker

	// Contract parameters the venue API does not carry for this
	// account setup (contract size, margin ratios) come from config
	// and are merged over the venue's instrument data.
	overrides map[string]types.Instrument
}

// NewAdapter creates a venue adapter.
func NewAdapter(cfg Config, overrides map[string]types.Instrument) *Adapter {
	return &Adapter{
		client:  NewClient(cfg),
		limiter: safety.NewRateLimiter("venue_rest", 20, 10),
		breaker: safety.NewCircuitBreaker("venue_rest", safety.CircuitBreakerConfig{
			FailureThreshold: 5,
			Timeout:          15 * time.Second,
		}),
		overrides: overrides,
	}
}

// Environment reports which venue endpoint is in use.
func (a *Adapter) Environment() string { return a.client.Environment() }

// guard runs a venue call behind the rate limiter and circuit breaker
// and categorizes whatever comes back so callers can tell a transient
// network blip from a rejected order.
func (a *Adapter) guard(ctx context.Context, operation string, fn func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorCategoryRateLimit, "venue", operation)
	}
	if err := a.breaker.Call(fn); err != nil {
		return errors.Categorize(err, "venue", operation)
	}
	return nil
}

// Instrument returns contract parameters, config overrides merged over
// the venue's price and lot filters.
func (a *Adapter) Instrument(ctx context.Context, symbol string) (types.Instrument, error) {
	var inst types.Instrument
	err := a.guard(ctx, "instrument_info", func() error {
		var innerErr error
		inst, innerErr = a.client.GetInstrument(ctx, symbol)
		return innerErr
	})
	if err != nil {
		return types.Instrument{}, err
	}

	if ov, ok := a.overrides[symbol]; ok {
		if ov.ContractSize > 0 {
			inst.ContractSize = ov.ContractSize
		}
		if ov.LongMarginRatio > 0 {
			inst.LongMarginRatio = ov.LongMarginRatio
		}
		if ov.ShortMarginRatio > 0 {
			inst.ShortMarginRatio = ov.ShortMarginRatio
		}
		if ov.TickSize > 0 {
			inst.TickSize = ov.TickSize
		}
		if ov.MinVolume > 0 {
			inst.MinVolume = ov.MinVolume
		}
	}
	if inst.ContractSize == 0 {
		inst.ContractSize = 1
	}
	if inst.LongMarginRatio == 0 {
		inst.LongMarginRatio = 0.1
	}
	if inst.ShortMarginRatio == 0 {
		inst.ShortMarginRatio = inst.LongMarginRatio
	}
	return inst, nil
}

// RecentBars fetches closed primary bars for startup backfill.
func (a *Adapter) RecentBars(ctx context.Context, symbol string, limit int) ([]types.OHLCV, error) {
	var bars []types.OHLCV
	err := a.guard(ctx, "recent_bars", func() error {
		var innerErr error
		bars, innerErr = a.client.GetKlines(ctx, symbol, limit)
		return innerErr
	})
	return bars, err
}

// NetPosition returns the venue's signed position in lots.
func (a *Adapter) NetPosition(ctx context.Context, symbol string) (float64, error) {
	var net float64
	err := a.guard(ctx, "net_position", func() error {
		var innerErr error
		net, innerErr = a.client.GetNetPosition(ctx, symbol)
		return innerErr
	})
	return net, err
}

// Account returns the venue account snapshot.
func (a *Adapter) Account(ctx context.Context) (types.AccountSnapshot, error) {
	var snap types.AccountSnapshot
	err := a.guard(ctx, "account", func() error {
		var innerErr error
		snap, innerErr = a.client.GetAccount(ctx)
		return innerErr
	})
	return snap, err
}

// SubmitOrder places an order for the intent.
func (a *Adapter) SubmitOrder(ctx context.Context, intent types.OrderIntent) (string, error) {
	if intent.Volume <= 0 {
		return "", fmt.Errorf("refusing to submit order with volume %.4f", intent.Volume)
	}
	var orderID string
	err := a.guard(ctx, "place_order", func() error {
		var innerErr error
		orderID, innerErr = a.client.PlaceOrder(ctx, intent)
		return innerErr
	})
	return orderID, err
}

// CancelOrder cancels an open order.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return a.guard(ctx, "cancel_order", func() error {
		return a.client.CancelOrder(ctx, symbol, orderID)
	})
}

// OrderFill returns an order's cumulative executed quantity and
// average price.
func (a *Adapter) OrderFill(ctx context.Context, symbol, orderID string) (float64, float64, error) {
	var cum, avg float64
	err := a.guard(ctx, "order_fill", func() error {
		var innerErr error
		cum, avg, innerErr = a.client.GetOrderFill(ctx, symbol, orderID)
		return innerErr
	})
	return cum, avg, err
}
