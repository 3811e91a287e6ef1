package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/config"
	"aitrader/internal/decision"
	"aitrader/internal/exchange"
	"aitrader/internal/logger"
	"aitrader/internal/market"
	"aitrader/internal/risk"
	"aitrader/pkg/types"
)

type fakeAdapter struct {
	bars      []types.OHLCV
	netPos    float64
	account   types.AccountSnapshot
	submitted []types.OrderIntent
	cancelled []string
	fills     map[string][2]float64 // orderID -> cum, avg
	nextID    int
}

func (f *fakeAdapter) Instrument(ctx context.Context, symbol string) (types.Instrument, error) {
	return types.Instrument{
		Symbol:           symbol,
		TickSize:         0.02,
		ContractSize:     1000,
		MinVolume:        1,
		LongMarginRatio:  0.10,
		ShortMarginRatio: 0.10,
	}, nil
}

func (f *fakeAdapter) RecentBars(ctx context.Context, symbol string, limit int) ([]types.OHLCV, error) {
	return f.bars, nil
}

func (f *fakeAdapter) NetPosition(ctx context.Context, symbol string) (float64, error) {
	return f.netPos, nil
}

func (f *fakeAdapter) Account(ctx context.Context) (types.AccountSnapshot, error) {
	return f.account, nil
}

func (f *fakeAdapter) SubmitOrder(ctx context.Context, intent types.OrderIntent) (string, error) {
	f.submitted = append(f.submitted, intent)
	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID), nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeAdapter) OrderFill(ctx context.Context, symbol, orderID string) (float64, float64, error) {
	fill := f.fills[orderID]
	return fill[0], fill[1], nil
}

type fakeStream struct {
	events chan exchange.Event
}

func (f *fakeStream) Events() <-chan exchange.Event    { return f.events }
func (f *fakeStream) Subscribe(symbols []string) error { return nil }
func (f *fakeStream) Close() error                     { return nil }

type fakeAI struct {
	rec types.DecisionRecord
	err error
}

func (f *fakeAI) RequestDecision(ctx context.Context, dctx decision.Context) (types.DecisionRecord, error) {
	return f.rec, f.err
}

func testBars(n int, base float64) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := range bars {
		c := base + float64(i%7)*0.1
		bars[i] = types.OHLCV{
			Open: c - 0.05, High: c + 0.2, Low: c - 0.2, Close: c,
			Volume: 100, Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}
	}
	return bars
}

func testTick(symbol string) types.Tick {
	levels := func(price, step float64) []types.DepthLevel {
		out := make([]types.DepthLevel, 5)
		for i := range out {
			out[i] = types.DepthLevel{Price: price + step*float64(i), Volume: 20}
		}
		return out
	}
	return types.Tick{
		Symbol:    symbol,
		LastPrice: 500.01,
		Bids:      levels(500.00, -0.02),
		Asks:      levels(500.02, 0.02),
		Timestamp: time.Now(),
	}
}

func testEngineConfig() *config.Config {
	return &config.Config{
		Symbols: []string{"XAUUSDT"},
		Market: market.Config{
			PrimaryCapacity:     100,
			AggregationFactor:   5,
			MinAggregatedBars:   10,
			EMAFastPeriod:       5,
			EMASlowPeriod:       8,
			MACDFast:            3,
			MACDSlow:            6,
			MACDSignal:          3,
			RSIPeriod:           5,
			ATRPeriod:           5,
			VolumePeriod:        5,
			DepthWindow:         20,
			LiquidityThinScore:  0.5,
			LiquidityThickScore: 1.5,
			SpreadRatioThin:     0.001,
			ImbalanceThin:       0.6,
		},
		Risk: risk.Config{
			// Windows collapsed to zero width so wall-clock time cannot
			// flip test outcomes.
			DayCloseStart: "00:00",
			DayCloseEnd:   "00:00",
		},
		Decision: config.DecisionConfig{
			Endpoint:          "http://localhost:0",
			MinAggregatedBars: 10,
			TimeoutSec:        5,
		},
		Engine: config.EngineConfig{
			BackfillBars:   100,
			FillPollSec:    2,
			AccountPollSec: 30,
			InitialEquity:  100_000,
			JournalDir:     "journal",
		},
	}
}

func buyDecision() types.DecisionRecord {
	return types.DecisionRecord{
		Action:            types.ActionBuy,
		TargetSizePct:     0.2,
		Confidence:        0.9,
		Regime:            types.RegimeTrendUp,
		TradeabilityScore: 0.9,
		Rationale:         "trend continuation",
	}
}

func newTestEngine(t *testing.T, adapter *fakeAdapter, ai *fakeAI) *Engine {
	t.Helper()
	log, err := logger.NewLogger("test_engine")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	stream := &fakeStream{events: make(chan exchange.Event, 16)}
	eng, err := New(testEngineConfig(), adapter, stream, ai, log, nil, nil)
	require.NoError(t, err)
	return eng
}

func richAdapter() *fakeAdapter {
	return &fakeAdapter{
		bars:    testBars(100, 500),
		account: types.AccountSnapshot{Equity: 5_000_000, Available: 4_500_000, Source: "venue"},
		fills:   make(map[string][2]float64),
	}
}

func TestStartupBackfillsAndAligns(t *testing.T) {
	adapter := richAdapter()
	adapter.netPos = 2
	eng := newTestEngine(t, adapter, &fakeAI{rec: types.HoldDecision(0)})

	require.NoError(t, eng.startup(context.Background()))

	assert.Equal(t, 100, eng.agg.PrimaryBarCount("XAUUSDT"))
	assert.Equal(t, 20, eng.agg.AggregatedBarCount("XAUUSDT"))
	assert.Equal(t, 2.0, eng.book.Position("XAUUSDT").Quantity)
	assert.Equal(t, 5_000_000.0, eng.account.Equity)
}

func TestBarDrivesDecisionToOrder(t *testing.T) {
	adapter := richAdapter()
	eng := newTestEngine(t, adapter, &fakeAI{rec: buyDecision()})
	require.NoError(t, eng.startup(context.Background()))

	ctx := context.Background()
	eng.onTick(exchange.TickEvent{Symbol: "XAUUSDT", Tick: testTick("XAUUSDT")})
	eng.onBar(ctx, exchange.BarEvent{Symbol: "XAUUSDT", Bar: testBars(1, 500)[0]})

	select {
	case resp := <-eng.decisions:
		eng.onDecision(ctx, resp)
	case <-time.After(2 * time.Second):
		t.Fatal("no decision response dispatched")
	}

	require.Len(t, adapter.submitted, 1)
	intent := adapter.submitted[0]
	assert.Equal(t, types.DirectionLong, intent.Direction)
	assert.Equal(t, types.OffsetOpen, intent.Offset)
	assert.Greater(t, intent.Volume, 0.0)
	assert.Greater(t, intent.StopLoss, 0.0)
	assert.Less(t, intent.StopLoss, intent.Price)
	assert.Len(t, eng.pending, 1)
}

func TestStaleDecisionDiscarded(t *testing.T) {
	adapter := richAdapter()
	eng := newTestEngine(t, adapter, &fakeAI{rec: buyDecision()})
	require.NoError(t, eng.startup(context.Background()))

	ctx := context.Background()
	eng.onTick(exchange.TickEvent{Symbol: "XAUUSDT", Tick: testTick("XAUUSDT")})
	eng.onBar(ctx, exchange.BarEvent{Symbol: "XAUUSDT", Bar: testBars(1, 500)[0]})

	var resp decisionResponse
	select {
	case resp = <-eng.decisions:
	case <-time.After(2 * time.Second):
		t.Fatal("no decision response dispatched")
	}

	// A forced action invalidates the request before the reply lands.
	eng.orch.BumpSeq("XAUUSDT")
	eng.onDecision(ctx, resp)

	assert.Empty(t, adapter.submitted)
}

func TestFillPollingIsIdempotent(t *testing.T) {
	adapter := richAdapter()
	eng := newTestEngine(t, adapter, &fakeAI{rec: types.HoldDecision(0)})
	require.NoError(t, eng.startup(context.Background()))

	ctx := context.Background()
	eng.submitIntent(ctx, &types.OrderIntent{
		Symbol:    "XAUUSDT",
		Direction: types.DirectionLong,
		Offset:    types.OffsetOpen,
		Price:     500.02,
		Volume:    3,
		StopLoss:  499.0,
	}, buyDecision())
	require.Len(t, adapter.submitted, 1)

	adapter.fills["ord-1"] = [2]float64{2, 500.02}
	eng.pollFills(ctx)
	eng.pollFills(ctx)
	assert.Equal(t, 2.0, eng.book.Position("XAUUSDT").Quantity)

	adapter.fills["ord-1"] = [2]float64{3, 500.02}
	eng.pollFills(ctx)
	assert.Equal(t, 3.0, eng.book.Position("XAUUSDT").Quantity)
	assert.Empty(t, eng.pending, "fully filled order should be dropped from polling")
}

func TestStaleOrderCancelled(t *testing.T) {
	adapter := richAdapter()
	eng := newTestEngine(t, adapter, &fakeAI{rec: types.HoldDecision(0)})
	require.NoError(t, eng.startup(context.Background()))
	eng.staleOrderAfter = 0

	ctx := context.Background()
	eng.submitIntent(ctx, &types.OrderIntent{
		Symbol:    "XAUUSDT",
		Direction: types.DirectionLong,
		Offset:    types.OffsetOpen,
		Price:     500.02,
		Volume:    3,
		StopLoss:  499.0,
	}, buyDecision())

	adapter.fills["ord-1"] = [2]float64{1, 500.02}
	eng.pollFills(ctx)

	assert.Equal(t, []string{"ord-1"}, adapter.cancelled)
	assert.Empty(t, eng.pending)
	assert.Equal(t, 1.0, eng.book.Position("XAUUSDT").Quantity,
		"partial fill before the cancel must stay applied")
}

func TestHardStopForcesClose(t *testing.T) {
	adapter := richAdapter()
	eng := newTestEngine(t, adapter, &fakeAI{rec: types.HoldDecision(0)})
	require.NoError(t, eng.startup(context.Background()))

	ctx := context.Background()
	eng.onTick(exchange.TickEvent{Symbol: "XAUUSDT", Tick: testTick("XAUUSDT")})

	// Open a long through the normal fill path, then arm its stop.
	eng.submitIntent(ctx, &types.OrderIntent{
		Symbol:    "XAUUSDT",
		Direction: types.DirectionLong,
		Offset:    types.OffsetOpen,
		Price:     500.02,
		Volume:    2,
		StopLoss:  499.0,
	}, buyDecision())
	adapter.fills["ord-1"] = [2]float64{2, 500.02}
	eng.pollFills(ctx)
	require.Equal(t, 2.0, eng.book.Position("XAUUSDT").Quantity)

	eng.runRiskCheck(ctx, "XAUUSDT", 498.5, time.Now())

	require.Len(t, adapter.submitted, 2)
	forced := adapter.submitted[1]
	assert.Equal(t, types.OffsetClose, forced.Offset)
	assert.Equal(t, types.DirectionShort, forced.Direction)
	assert.Equal(t, 2.0, forced.Volume)
}

func TestForcedCloseRoundTripJournaled(t *testing.T) {
	adapter := richAdapter()
	eng := newTestEngine(t, adapter, &fakeAI{rec: types.HoldDecision(0)})
	require.NoError(t, eng.startup(context.Background()))

	ctx := context.Background()
	eng.onTick(exchange.TickEvent{Symbol: "XAUUSDT", Tick: testTick("XAUUSDT")})

	eng.submitIntent(ctx, &types.OrderIntent{
		Symbol:    "XAUUSDT",
		Direction: types.DirectionLong,
		Offset:    types.OffsetOpen,
		Price:     500.02,
		Volume:    2,
		StopLoss:  499.0,
	}, buyDecision())
	adapter.fills["ord-1"] = [2]float64{2, 500.02}
	eng.pollFills(ctx)

	eng.runRiskCheck(ctx, "XAUUSDT", 498.5, time.Now())
	require.Len(t, adapter.submitted, 2)

	adapter.fills["ord-2"] = [2]float64{2, 498.5}
	eng.pollFills(ctx)

	assert.True(t, eng.book.Position("XAUUSDT").IsFlat())
	assert.Equal(t, 1, eng.trail.TradeCount())
	assert.True(t, time.Now().Before(eng.book.ReentryCooldownUntil("XAUUSDT")),
		"reentry cooldown should start when the position closes")
}
