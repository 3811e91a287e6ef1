package market

import (
	"aitrader/pkg/types"
)

// OnTick updates the symbol's microstructure snapshot. Runs at tick
// cadence, independent of bar aggregation.
func (a *Aggregator) OnTick(symbol string, tick types.Tick) {
	sb := a.buffers(symbol)

	bid := tick.BestBid()
	ask := tick.BestAsk()
	var bidVol, askVol float64
	if len(tick.Bids) > 0 {
		bidVol = tick.Bids[0].Volume
	}
	if len(tick.Asks) > 0 {
		askVol = tick.Asks[0].Volume
	}

	// Cumulative L1-L5 depth, falling back to L1 when the feed only
	// carries the top of book.
	var sumBid5, sumAsk5 float64
	for _, lv := range tick.Bids {
		sumBid5 += lv.Volume
	}
	for _, lv := range tick.Asks {
		sumAsk5 += lv.Volume
	}
	if sumBid5 == 0 && sumAsk5 == 0 {
		sumBid5, sumAsk5 = bidVol, askVol
	}

	spread := ask - bid
	mid := tick.LastPrice
	if ask > 0 && bid > 0 {
		mid = (ask + bid) / 2
	}

	denom := bidVol + askVol
	micro := mid
	imbL1 := 0.0
	if denom > 0 {
		// Microprice weights each side by the opposite volume.
		micro = (ask*bidVol + bid*askVol) / denom
		imbL1 = (bidVol - askVol) / denom
	}
	denom5 := sumBid5 + sumAsk5
	imbL5 := 0.0
	if denom5 > 0 {
		imbL5 = (sumBid5 - sumAsk5) / denom5
	}

	score := a.liquidityScore(sb, denom5)
	state := a.classifyLiquidity(score, spread, mid, imbL5)

	sb.micro = &Microstructure{
		LastPrice:      tick.LastPrice,
		Spread:         spread,
		Mid:            mid,
		Microprice:     micro,
		ImbalanceL1:    imbL1,
		ImbalanceL5:    imbL5,
		DepthL5:        denom5,
		LiquidityScore: score,
		LiquidityState: state,
		Timestamp:      tick.Timestamp,
	}
}

// liquidityScore relates the current L5 depth to its rolling average.
// 1.0 means "as deep as usual".
func (a *Aggregator) liquidityScore(sb *symbolBuffers, depth5 float64) float64 {
	if depth5 > 0 {
		sb.depthWindow = append(sb.depthWindow, depth5)
		if window := a.cfg.DepthWindow; window > 0 && len(sb.depthWindow) > window {
			sb.depthWindow = append(sb.depthWindow[:0], sb.depthWindow[len(sb.depthWindow)-window:]...)
		}
	}
	if len(sb.depthWindow) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, d := range sb.depthWindow {
		sum += d
	}
	avg := sum / float64(len(sb.depthWindow))
	if avg <= 0 {
		return 1.0
	}
	return depth5 / avg
}

// classifyLiquidity maps the liquidity score, spread-to-mid ratio and
// L5 imbalance magnitude onto the three fixed bands. All thresholds
// come from configuration.
func (a *Aggregator) classifyLiquidity(score, spread, mid, imbL5 float64) types.LiquidityState {
	spreadRatio := 0.0
	if mid > 0 {
		spreadRatio = spread / mid
	}
	abs := imbL5
	if abs < 0 {
		abs = -abs
	}

	switch {
	case score < a.cfg.LiquidityThinScore,
		spreadRatio > a.cfg.SpreadRatioThin,
		abs > a.cfg.ImbalanceThin:
		return types.LiquidityThin
	case score > a.cfg.LiquidityThickScore:
		return types.LiquidityThick
	default:
		return types.LiquidityNormal
	}
}
