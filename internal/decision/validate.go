package decision

import (
	"fmt"

	"aitrader/pkg/types"
)

// Sanitize validates a parsed decision and normalizes its soft fields.
// Hard violations (unknown action, confidence out of range) return an
// error and the caller must fall back to hold. Soft fields are
// corrected in place rather than rejected.
func Sanitize(rec *types.DecisionRecord) error {
	if !rec.Action.Valid() {
		return fmt.Errorf("unknown action %q", rec.Action)
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", rec.Confidence)
	}

	if rec.TargetSizePct < 0 {
		rec.TargetSizePct = 0
	}
	if rec.TargetSizePct > 1 {
		rec.TargetSizePct = 1
	}
	if rec.TradeabilityScore < 0 {
		rec.TradeabilityScore = 0
	}
	if rec.TradeabilityScore > 1 {
		rec.TradeabilityScore = 1
	}
	if !rec.Regime.Valid() {
		rec.Regime = types.RegimeSideways
	}
	if rec.StopLoss < 0 {
		rec.StopLoss = 0
	}

	switch rec.PriceStyle {
	case types.PriceStyleBest, types.PriceStyleMid, types.PriceStyleMarket, types.PriceStyleLimitOffset:
	default:
		rec.PriceStyle = "" // planner falls back to the configured style
	}
	switch rec.TrailingType {
	case types.TrailingATR, types.TrailingPercent:
	default:
		rec.TrailingType = types.TrailingNone
	}

	if rec.TakeProfit != nil {
		if len(rec.TakeProfit.LevelsR) == 0 || len(rec.TakeProfit.LevelsR) != len(rec.TakeProfit.Pcts) {
			rec.TakeProfit = nil
		}
	}
	return nil
}
