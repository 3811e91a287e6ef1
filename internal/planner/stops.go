package planner

import (
	"math"

	"aitrader/pkg/types"
)

// QuantizeDown rounds a price down to the instrument tick grid.
func QuantizeDown(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Floor(price/tick+1e-9) * tick
}

// QuantizeUp rounds a price up to the instrument tick grid.
func QuantizeUp(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Ceil(price/tick-1e-9) * tick
}

// GuardAndRebaseStop validates and rebases a proposed stop-loss against
// the actual planned order price. A stop on the wrong side of the entry
// (or missing) contributes zero distance and the minimum-distance floor
// takes over: max(minTicks*tickSize, minAtrMult*ATR). The result is
// always on the correct side, at least the minimum distance away, and
// quantized away from the entry so rounding can never tighten it.
func GuardAndRebaseStop(direction types.Direction, plannedPrice, proposedStop, atr, tickSize float64, minTicks int, minAtrMult float64) float64 {
	minDistance := math.Max(float64(minTicks)*tickSize, minAtrMult*atr)

	var aiDistance float64
	if proposedStop > 0 {
		if direction == types.DirectionLong && proposedStop < plannedPrice {
			aiDistance = plannedPrice - proposedStop
		} else if direction == types.DirectionShort && proposedStop > plannedPrice {
			aiDistance = proposedStop - plannedPrice
		}
		// Wrong sideness leaves aiDistance at zero: rebase, never
		// use the proposed value as-is.
	}

	distance := math.Max(aiDistance, minDistance)
	if direction == types.DirectionLong {
		return QuantizeDown(plannedPrice-distance, tickSize)
	}
	return QuantizeUp(plannedPrice+distance, tickSize)
}
