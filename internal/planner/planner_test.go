package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/market"
	"aitrader/pkg/types"
)

var now = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

func testInstrument() types.Instrument {
	return types.Instrument{
		Symbol:           "AU2512",
		TickSize:         0.02,
		ContractSize:     1000,
		MinVolume:        1,
		LongMarginRatio:  0.10,
		ShortMarginRatio: 0.10,
	}
}

func normalMicro() *market.Microstructure {
	return &market.Microstructure{
		LastPrice:      500.01,
		Spread:         0.02,
		Mid:            500.01,
		LiquidityState: types.LiquidityNormal,
	}
}

func testSnapshot() *market.IndicatorSnapshot {
	return &market.IndicatorSnapshot{ATR: 1.0, Close: 500.0}
}

func richAccount() types.AccountSnapshot {
	return types.AccountSnapshot{Equity: 5_000_000, Available: 4_500_000, MarginUsed: 0}
}

func buyDecision(sizePct, confidence float64) types.DecisionRecord {
	return types.DecisionRecord{
		Action:            types.ActionBuy,
		TargetSizePct:     sizePct,
		Confidence:        confidence,
		TradeabilityScore: 0.9,
		Regime:            types.RegimeTrendUp,
	}
}

func TestPlan_FlatBuyEmitsOpenIntent(t *testing.T) {
	p := NewPlanner(Config{})
	inst := testInstrument()

	intent, reason := p.Plan("AU2512", buyDecision(0.5, 0.8),
		types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), inst, now)
	require.NotNil(t, intent, "reason: %s", reason)

	assert.Equal(t, types.DirectionLong, intent.Direction)
	assert.Equal(t, types.OffsetOpen, intent.Offset)
	assert.Greater(t, intent.Volume, 0.0)

	// Stop must be on the long side, below the order price, on the
	// tick grid.
	assert.Less(t, intent.StopLoss, intent.Price)
	ticks := intent.StopLoss / inst.TickSize
	assert.InDelta(t, ticks, float64(int64(ticks+0.5)), 1e-6, "stop not tick-quantized")
}

func TestPlan_HoldIsNoop(t *testing.T) {
	p := NewPlanner(Config{})

	intent, reason := p.Plan("AU2512", types.DecisionRecord{Action: types.ActionHold},
		types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	assert.Nil(t, intent)
	assert.Equal(t, "hold", reason)
}

func TestPlan_SingleDirectionCloseOnly(t *testing.T) {
	p := NewPlanner(Config{})
	pos := types.PositionSnapshot{Symbol: "AU2512", Quantity: 3, AvgEntryPrice: 498}

	dec := types.DecisionRecord{Action: types.ActionSell, Confidence: 0.9, TradeabilityScore: 0.9}
	intent, _ := p.Plan("AU2512", dec, pos, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, intent)

	assert.Equal(t, types.OffsetClose, intent.Offset)
	assert.Equal(t, types.DirectionShort, intent.Direction)
	assert.LessOrEqual(t, intent.Volume, 3.0, "never a net-short reversal in one instruction")
	assert.Equal(t, 3.0, intent.Volume)
}

func TestPlan_OppositeOpenBecomesClose(t *testing.T) {
	p := NewPlanner(Config{})
	pos := types.PositionSnapshot{Symbol: "AU2512", Quantity: -2, AvgEntryPrice: 501}

	// A buy while short closes the short; opening the long needs a
	// later decision once flat.
	intent, _ := p.Plan("AU2512", buyDecision(0.5, 0.9), pos, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, intent)
	assert.Equal(t, types.OffsetClose, intent.Offset)
	assert.Equal(t, types.DirectionLong, intent.Direction)
	assert.Equal(t, 2.0, intent.Volume)
}

func TestPlan_SellWithNoLongIsNoop(t *testing.T) {
	p := NewPlanner(Config{})

	dec := types.DecisionRecord{Action: types.ActionSell, Confidence: 0.9, TradeabilityScore: 0.9}
	intent, reason := p.Plan("AU2512", dec, types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	assert.Nil(t, intent)
	assert.NotEmpty(t, reason)
}

func TestPlan_PyramidingEmitsOnlyTheDelta(t *testing.T) {
	p := NewPlanner(Config{MaxPositionLots: 10})

	flat, _ := p.Plan("AU2512", buyDecision(0.8, 0.9), types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, flat)
	require.Greater(t, flat.Volume, 1.0)

	held := types.PositionSnapshot{Symbol: "AU2512", Quantity: flat.Volume - 1, AvgEntryPrice: 500}
	add, _ := p.Plan("AU2512", buyDecision(0.8, 0.9), held, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, add)
	assert.Equal(t, 1.0, add.Volume)
}

func TestPlan_TargetReachedIsNoop(t *testing.T) {
	p := NewPlanner(Config{MaxPositionLots: 10})

	held := types.PositionSnapshot{Symbol: "AU2512", Quantity: 10, AvgEntryPrice: 500}
	intent, reason := p.Plan("AU2512", buyDecision(0.8, 0.9), held, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	assert.Nil(t, intent)
	assert.Equal(t, "target size already reached", reason)
}

func TestPlan_TradeabilityReject(t *testing.T) {
	p := NewPlanner(Config{})

	dec := buyDecision(0.5, 0.9)
	dec.TradeabilityScore = 0.4
	intent, reason := p.Plan("AU2512", dec, types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	assert.Nil(t, intent)
	assert.Contains(t, reason, "tradeability")
}

func TestPlan_ThinLiquidityCapsSize(t *testing.T) {
	p := NewPlanner(Config{MaxPositionLots: 100})

	normal, _ := p.Plan("AU2512", buyDecision(0.8, 0.9), types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, normal)

	thin := normalMicro()
	thin.LiquidityState = types.LiquidityThin
	capped, _ := p.Plan("AU2512", buyDecision(0.8, 0.9), types.PositionSnapshot{}, richAccount(), thin, testSnapshot(), testInstrument(), now)
	require.NotNil(t, capped)
	assert.Less(t, capped.Volume, normal.Volume)
}

func TestPlan_LowConfidenceCapsSize(t *testing.T) {
	p := NewPlanner(Config{MaxPositionLots: 100})

	full, _ := p.Plan("AU2512", buyDecision(0.8, 0.9), types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, full)

	capped, _ := p.Plan("AU2512", buyDecision(0.8, 0.6), types.PositionSnapshot{}, richAccount(), normalMicro(), testSnapshot(), testInstrument(), now)
	require.NotNil(t, capped)
	assert.Less(t, capped.Volume, full.Volume)
}

func TestPlan_GuaranteeRatioReducesNotRejects(t *testing.T) {
	p := NewPlanner(Config{MaxPositionLots: 100, MinGuaranteeRatio: 2.0})

	// Heavy margin ratio plus existing margin usage: the notional
	// target of 3 lots would push equity/margin below 2.0, so the
	// planner trims to the largest size that still fits.
	inst := testInstrument()
	inst.LongMarginRatio = 0.5
	account := types.AccountSnapshot{Equity: 2_000_000, Available: 1_600_000, MarginUsed: 400_000}
	intent, reason := p.Plan("AU2512", buyDecision(1.0, 0.9), types.PositionSnapshot{}, account, normalMicro(), testSnapshot(), inst, now)
	require.NotNil(t, intent, "reason: %s", reason)
	assert.LessOrEqual(t, intent.Volume, 2.0)
	assert.Greater(t, intent.Volume, 0.0)
}

func TestPlan_NoMarginDropsIntent(t *testing.T) {
	p := NewPlanner(Config{MinGuaranteeRatio: 1.5})

	account := types.AccountSnapshot{Equity: 200_000, Available: 0, MarginUsed: 150_000}
	intent, reason := p.Plan("AU2512", buyDecision(0.8, 0.9), types.PositionSnapshot{}, account, normalMicro(), testSnapshot(), testInstrument(), now)
	assert.Nil(t, intent)
	assert.NotEmpty(t, reason)
}

func TestSelectPriceStyles(t *testing.T) {
	inst := testInstrument()
	micro := normalMicro() // bid 500.00, ask 500.02

	best := NewPlanner(Config{PriceStyle: types.PriceStyleBest})
	intent, _ := best.Plan("AU2512", buyDecision(0.5, 0.9), types.PositionSnapshot{}, richAccount(), micro, testSnapshot(), inst, now)
	require.NotNil(t, intent)
	assert.InDelta(t, 500.02, intent.Price, 1e-9)

	mkt := NewPlanner(Config{PriceStyle: types.PriceStyleMarket})
	intent, _ = mkt.Plan("AU2512", buyDecision(0.5, 0.9), types.PositionSnapshot{}, richAccount(), micro, testSnapshot(), inst, now)
	require.NotNil(t, intent)
	assert.InDelta(t, 500.00, intent.Price, 1e-9) // 500.01 quantized down

	off := NewPlanner(Config{PriceStyle: types.PriceStyleLimitOffset, LimitOffsetTicks: 1})
	intent, _ = off.Plan("AU2512", buyDecision(0.5, 0.9), types.PositionSnapshot{}, richAccount(), micro, testSnapshot(), inst, now)
	require.NotNil(t, intent)
	assert.InDelta(t, 500.02, intent.Price, 1e-9) // bid improved one tick
}

func TestGuardAndRebaseStop_WrongSideness(t *testing.T) {
	// Proposed stop above entry on a long: rebased, never used as-is.
	stop := GuardAndRebaseStop(types.DirectionLong, 500.0, 505.0, 1.0, 0.02, 10, 0.5)
	assert.Less(t, stop, 500.0)
	assert.LessOrEqual(t, stop, 500.0-0.5) // at least ATR*0.5 away

	stop = GuardAndRebaseStop(types.DirectionShort, 500.0, 495.0, 1.0, 0.02, 10, 0.5)
	assert.Greater(t, stop, 500.0)
	assert.GreaterOrEqual(t, stop, 500.0+0.5)
}

func TestGuardAndRebaseStop_MinDistanceFloor(t *testing.T) {
	// AI stop is too tight: 0.04 distance vs min 10 ticks = 0.2.
	stop := GuardAndRebaseStop(types.DirectionLong, 500.0, 499.96, 0.0, 0.02, 10, 0.5)
	assert.InDelta(t, 499.80, stop, 1e-9)
}

func TestGuardAndRebaseStop_HonorsWiderAIStop(t *testing.T) {
	stop := GuardAndRebaseStop(types.DirectionLong, 500.0, 498.0, 1.0, 0.02, 10, 0.5)
	assert.InDelta(t, 498.0, stop, 1e-9)
}

func TestGuardAndRebaseStop_QuantizesAwayFromEntry(t *testing.T) {
	// Distance 0.25 on a 0.02 grid: long stop rounds down, short up.
	long := GuardAndRebaseStop(types.DirectionLong, 500.0, 499.75, 0.0, 0.02, 1, 0.0)
	assert.InDelta(t, 499.74, long, 1e-9)

	short := GuardAndRebaseStop(types.DirectionShort, 500.0, 500.25, 0.0, 0.02, 1, 0.0)
	assert.InDelta(t, 500.26, short, 1e-9)
}
