package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/pkg/types"
)

func depth5(bid, ask, perLevel float64) ([]types.DepthLevel, []types.DepthLevel) {
	bids := make([]types.DepthLevel, 5)
	asks := make([]types.DepthLevel, 5)
	for i := range bids {
		bids[i] = types.DepthLevel{Price: bid - float64(i)*0.02, Volume: perLevel}
		asks[i] = types.DepthLevel{Price: ask + float64(i)*0.02, Volume: perLevel}
	}
	return bids, asks
}

func balancedTick(perLevel float64) types.Tick {
	bids, asks := depth5(2000.00, 2000.02, perLevel)
	return types.Tick{
		Symbol:    "AU2512",
		LastPrice: 2000.01,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Unix(1000, 0),
	}
}

func TestOnTickBasicFields(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	agg.OnTick("AU2512", balancedTick(10))
	m := agg.Micro("AU2512")
	require.NotNil(t, m)

	assert.InDelta(t, 0.02, m.Spread, 1e-9)
	assert.InDelta(t, 2000.01, m.Mid, 1e-9)
	// Balanced book: microprice collapses to mid, imbalance to zero.
	assert.InDelta(t, m.Mid, m.Microprice, 1e-9)
	assert.InDelta(t, 0.0, m.ImbalanceL1, 1e-9)
	assert.InDelta(t, 0.0, m.ImbalanceL5, 1e-9)
	assert.InDelta(t, 100.0, m.DepthL5, 1e-9)
}

func TestOnTickImbalance(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	tick := balancedTick(10)
	tick.Bids[0].Volume = 30 // bid-heavy top of book
	agg.OnTick("AU2512", tick)

	m := agg.Micro("AU2512")
	require.NotNil(t, m)
	assert.InDelta(t, 0.5, m.ImbalanceL1, 1e-9) // (30-10)/40
	assert.Greater(t, m.ImbalanceL5, 0.0)
	// Microprice leans toward the ask when bids dominate.
	assert.Greater(t, m.Microprice, m.Mid)
}

func TestLiquidityClassification(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	// Establish the rolling depth baseline at 100 per side pair.
	for i := 0; i < 20; i++ {
		agg.OnTick("AU2512", balancedTick(10))
	}
	assert.Equal(t, types.LiquidityNormal, agg.Micro("AU2512").LiquidityState)

	// Depth collapses well below the baseline.
	agg.OnTick("AU2512", balancedTick(2))
	m := agg.Micro("AU2512")
	assert.Less(t, m.LiquidityScore, 0.5)
	assert.Equal(t, types.LiquidityThin, m.LiquidityState)
}

func TestThickLiquidity(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		agg.OnTick("AU2512", balancedTick(10))
	}
	// Depth surges above the rolling average.
	agg.OnTick("AU2512", balancedTick(40))
	m := agg.Micro("AU2512")
	assert.Greater(t, m.LiquidityScore, 1.5)
	assert.Equal(t, types.LiquidityThick, m.LiquidityState)
}

func TestWideSpreadForcesThin(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		agg.OnTick("AU2512", balancedTick(10))
	}

	bids, asks := depth5(1995.0, 2005.0, 10) // 10 wide on a ~2000 mid
	tick := types.Tick{Symbol: "AU2512", LastPrice: 2000, Bids: bids, Asks: asks, Timestamp: time.Unix(2000, 0)}
	agg.OnTick("AU2512", tick)
	assert.Equal(t, types.LiquidityThin, agg.Micro("AU2512").LiquidityState)
}

func TestOnTickL1OnlyFeed(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	tick := types.Tick{
		Symbol:    "AU2512",
		LastPrice: 2000.01,
		Bids:      []types.DepthLevel{{Price: 2000.00, Volume: 8}},
		Asks:      []types.DepthLevel{{Price: 2000.02, Volume: 8}},
		Timestamp: time.Unix(3000, 0),
	}
	agg.OnTick("AU2512", tick)

	m := agg.Micro("AU2512")
	require.NotNil(t, m)
	assert.InDelta(t, 16.0, m.DepthL5, 1e-9)
	assert.InDelta(t, 0.0, m.ImbalanceL5, 1e-9)
}

func TestOnTickEmptyBook(t *testing.T) {
	agg, err := NewAggregator(testConfig())
	require.NoError(t, err)

	tick := types.Tick{Symbol: "AU2512", LastPrice: 2000, Timestamp: time.Unix(4000, 0)}
	agg.OnTick("AU2512", tick)

	m := agg.Micro("AU2512")
	require.NotNil(t, m)
	assert.Equal(t, 2000.0, m.LastPrice)
	assert.InDelta(t, 0.0, m.Spread, 1e-9)
	assert.Equal(t, 1.0, m.LiquidityScore)
}
