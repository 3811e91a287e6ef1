package engine

import (
	"context"
	"math"
	"time"

	"aitrader/internal/decision"
	"aitrader/internal/exchange"
	"aitrader/internal/journal"
	"aitrader/internal/monitoring"
	"aitrader/internal/planner"
	"aitrader/internal/risk"
	"aitrader/pkg/types"
)

func (e *Engine) onBar(ctx context.Context, ev exchange.BarEvent) {
	e.agg.OnPrimaryBar(ev.Symbol, ev.Bar)
	e.book.MarkPrice(ev.Symbol, ev.Bar.Close)
	monitoring.UpdatePrice(ev.Symbol, ev.Bar.Close)
	if e.health != nil {
		e.health.RecordBar(ev.Bar.Close)
	}

	now := time.Now()
	e.runRiskCheck(ctx, ev.Symbol, ev.Bar.Close, now)
	e.maybeRequestDecision(ctx, ev.Symbol, now)
}

func (e *Engine) onTick(ev exchange.TickEvent) {
	e.agg.OnTick(ev.Symbol, ev.Tick)
	if ev.Tick.LastPrice > 0 {
		e.book.MarkPrice(ev.Symbol, ev.Tick.LastPrice)
	}
}

// maybeRequestDecision asks the orchestrator for a request slot and,
// when granted, dispatches the AI round trip on its own goroutine. The
// reply re-enters the serial loop through the decisions channel.
func (e *Engine) maybeRequestDecision(ctx context.Context, symbol string, now time.Time) {
	snap := e.agg.Snapshot(symbol)
	seq, ok := e.orch.MaybeRequestDecision(symbol, now, snap != nil, e.agg.AggregatedBarCount(symbol))
	if !ok {
		return
	}

	pos := e.book.Position(symbol)
	price := snap.Close
	dctx := decision.BuildContext(symbol, now,
		snap, e.agg.Micro(symbol),
		pos, e.book.UnrealizedPnL(symbol, price),
		e.account, e.book.DayRealizedPnL(symbol),
		e.trail.Recent(symbol, 5))

	e.log.Decision("Requesting decision #%d for %s (bars=%d)", seq, symbol, snap.BarCount)

	go func() {
		start := time.Now()
		rec, err := e.ai.RequestDecision(ctx, dctx)
		e.decisions <- decisionResponse{
			symbol:  symbol,
			seq:     seq,
			rec:     rec,
			err:     err,
			latency: time.Since(start),
		}
	}()
}

func (e *Engine) onDecision(ctx context.Context, resp decisionResponse) {
	now := time.Now()
	monitoring.RecordDecisionLatency(resp.symbol, resp.latency.Seconds())

	rec, ok := e.orch.AcceptResponse(resp.symbol, resp.seq, resp.rec, resp.err, now)
	if !ok {
		monitoring.RecordDecisionDiscarded(resp.symbol, "superseded")
		e.log.Decision("Discarded stale decision #%d for %s", resp.seq, resp.symbol)
		return
	}
	if resp.err != nil {
		monitoring.RecordError("decision_request")
		e.log.Error("Decision request #%d for %s failed, holding: %v", resp.seq, resp.symbol, resp.err)
	}

	monitoring.RecordDecision(resp.symbol, string(rec.Action))
	e.log.LogDecision(rec.Seq, string(rec.Action), rec.Confidence, rec.TargetSizePct,
		string(rec.Regime), rec.Rationale)

	rec = e.guard.FilterDecision(rec)
	if rec.Action == types.ActionHold {
		return
	}

	if rec.Action.IsOpening() {
		if ok, reason := e.guard.CanOpen(resp.symbol, now, e.book.ReentryCooldownUntil(resp.symbol)); !ok {
			monitoring.RecordDecisionDiscarded(resp.symbol, "opening_vetoed")
			e.log.Risk("Opening vetoed for %s: %s", resp.symbol, reason)
			return
		}
		if micro := e.agg.Micro(resp.symbol); micro != nil {
			ok, reason := e.guard.ReentryGapOK(micro.LastPrice,
				e.book.LastExitPrice(resp.symbol), e.instruments[resp.symbol].TickSize)
			if !ok {
				monitoring.RecordDecisionDiscarded(resp.symbol, "reentry_gap")
				e.log.Risk("Opening vetoed for %s: %s", resp.symbol, reason)
				return
			}
		}
	}

	intent, reason := e.plan.Plan(resp.symbol, rec,
		e.book.Position(resp.symbol), e.account,
		e.agg.Micro(resp.symbol), e.agg.Snapshot(resp.symbol),
		e.instruments[resp.symbol], now)
	if intent == nil {
		if reason != "" && reason != "hold" {
			e.log.Info("No order for %s decision #%d: %s", resp.symbol, rec.Seq, reason)
		}
		return
	}

	e.submitIntent(ctx, intent, rec)
}

func (e *Engine) submitIntent(ctx context.Context, intent *types.OrderIntent, rec types.DecisionRecord) {
	orderID, err := e.adapter.SubmitOrder(ctx, *intent)
	if err != nil {
		monitoring.RecordError("order_submit")
		if e.health != nil {
			e.health.RecordErrorMsg(err.Error())
		}
		e.log.Error("Order submit failed for %s: %v", intent.Symbol, err)
		return
	}

	e.pending[orderID] = &pendingOrder{
		symbol:    intent.Symbol,
		orderID:   orderID,
		direction: intent.Direction,
		offset:    intent.Offset,
		volume:    intent.Volume,
		price:     intent.Price,
		stopLoss:  intent.StopLoss,
		reason:    intent.Reason,
		createdAt: time.Now(),
	}

	monitoring.RecordOrder(intent.Symbol, string(intent.Offset))
	e.log.LogOrderSubmitted(orderID, string(intent.Direction), string(intent.Offset),
		intent.Volume, intent.Price, intent.StopLoss, intent.Reason)

	if intent.Offset == types.OffsetOpen {
		e.guard.Arm(intent.Symbol, intent.Direction, intent.Price, intent.StopLoss, rec)
	}
}

// pollFills reconciles every pending order against the venue's
// cumulative executed quantity. Stale unfilled orders are cancelled and
// settled with whatever filled.
func (e *Engine) pollFills(ctx context.Context) {
	now := time.Now()
	for id, po := range e.pending {
		cum, avg, err := e.adapter.OrderFill(ctx, po.symbol, id)
		if err != nil {
			monitoring.RecordError("fill_poll")
			e.log.Warning("Fill poll failed for order %s: %v", id, err)
			continue
		}

		if cum > 0 {
			e.applyFill(po.symbol, id, po.direction, po.offset, cum, avg, now)
		}

		if cum >= po.volume {
			delete(e.pending, id)
			continue
		}
		if now.Sub(po.createdAt) > e.staleOrderAfter {
			if err := e.adapter.CancelOrder(ctx, po.symbol, id); err != nil {
				e.log.Warning("Failed to cancel stale order %s: %v", id, err)
			} else {
				e.log.Trade("Cancelled stale order %s (%.0f/%.0f filled)", id, cum, po.volume)
			}
			delete(e.pending, id)
		}
	}
}

// applyFill runs a cumulative fill through the ledger and reacts to a
// completed round trip: journal the trade, disarm protections and
// start the reentry cooldown.
func (e *Engine) applyFill(symbol, orderID string, direction types.Direction,
	offset types.Offset, tradedCumulative, price float64, at time.Time) {

	before := e.book.Position(symbol)
	res := e.book.ApplyFill(symbol, orderID, direction, offset, tradedCumulative, price, at)
	if !res.Applied {
		// Unchanged cumulative quantity between polls is routine, the
		// rest of the anomalies point at reconciliation bugs.
		if res.Anomaly != "stale or duplicate fill callback" {
			monitoring.RecordFillAnomaly(symbol)
			e.log.Warning("Fill anomaly for order %s: %s", orderID, res.Anomaly)
		}
		return
	}

	monitoring.RecordFillApplied(symbol)
	pos := e.book.Position(symbol)
	monitoring.UpdatePosition(symbol, pos.Quantity)
	e.log.Trade("Fill applied: %s %s %s %.0f @ %.2f (position now %.0f)",
		symbol, direction, offset, res.Delta, price, pos.Quantity)

	if po, ok := e.pending[orderID]; ok && po.price > 0 {
		slip := price - po.price
		if direction == types.DirectionShort {
			slip = po.price - price
		}
		if slip != 0 {
			e.log.Trade("Slippage on order %s: %.4f (ordered %.2f, filled %.2f)",
				orderID, slip, po.price, price)
		}
	}

	if offset != types.OffsetClose {
		return
	}

	monitoring.UpdateDayRealizedPnL(symbol, e.book.DayRealizedPnL(symbol))

	if res.Closed {
		tradeDir := types.DirectionLong
		if before.Quantity < 0 {
			tradeDir = types.DirectionShort
		}
		reason := ""
		if po, ok := e.pending[orderID]; ok {
			reason = po.reason
		}
		e.trail.Record(journal.Trade{
			Symbol:      symbol,
			Direction:   tradeDir,
			EntryPrice:  before.AvgEntryPrice,
			ExitPrice:   price,
			Volume:      math.Abs(before.Quantity),
			RealizedPnL: res.RealizedPnL,
			Reason:      reason,
			OpenedAt:    before.EntryTime,
			ClosedAt:    at,
		})

		e.log.LogTradeClosed(before.AvgEntryPrice, price, math.Abs(before.Quantity), res.RealizedPnL)
		e.guard.Disarm(symbol)
		e.book.SetReentryCooldown(symbol, at.Add(e.guard.ReentryCooldown()))

		if res.RealizedPnL < 0 {
			e.notify("warning", "%s closed at %.2f for %.2f", symbol, price, res.RealizedPnL)
		} else {
			e.notify("success", "%s closed at %.2f for %+.2f", symbol, price, res.RealizedPnL)
		}
	}
}

// runRiskCheck runs one hard-limit enforcement pass and executes any
// forced action immediately, outside the decision cadence.
func (e *Engine) runRiskCheck(ctx context.Context, symbol string, price float64, now time.Time) {
	pos := e.book.Position(symbol)
	atr := 0.0
	if snap := e.agg.Snapshot(symbol); snap != nil {
		atr = snap.ATR
	}

	enf := e.guard.CheckAndEnforce(symbol, risk.CheckInput{
		Position:       pos,
		Account:        e.account,
		DayStartEquity: e.book.DayStartEquity(symbol),
		DayRealizedPnL: e.book.DayRealizedPnL(symbol),
		UnrealizedPnL:  e.book.UnrealizedPnL(symbol, price),
		Price:          price,
		ATR:            atr,
		Now:            now,
	})
	if enf == nil {
		return
	}

	monitoring.RecordRiskEnforcement(symbol, enf.Reason)
	e.log.Risk("Enforcement for %s: %s %s (volume %.0f)", symbol, enf.Action, enf.Reason, enf.Volume)

	if enf.Suspend {
		// Invalidate any in-flight decision and back the cadence off;
		// CanOpen keeps vetoing openings until the block lifts.
		e.orch.BumpSeq(symbol)
		e.orch.SuspendUntil(symbol, now.Add(5*time.Minute))
	}

	if pos.IsFlat() || !enf.Action.IsClosing() {
		return
	}
	e.forcedClose(ctx, symbol, pos, enf, now)
	e.notify("warning", "Forced %s on %s: %s", enf.Action, symbol, enf.Reason)
}

// forcedClose submits an aggressive close for a risk enforcement. The
// sequence bump discards any decision already in flight so it cannot
// act on the position state it was computed from.
func (e *Engine) forcedClose(ctx context.Context, symbol string, pos types.PositionSnapshot,
	enf *risk.Enforcement, now time.Time) {

	seq := e.orch.BumpSeq(symbol)
	inst := e.instruments[symbol]
	micro := e.agg.Micro(symbol)
	if micro == nil {
		e.log.Error("Cannot force-close %s: no microstructure data", symbol)
		return
	}

	volume := math.Abs(pos.Quantity)
	if enf.Volume > 0 && enf.Volume < volume {
		volume = enf.Volume
	}

	direction := types.DirectionShort
	price := micro.Mid - micro.Spread/2
	if pos.Quantity < 0 {
		direction = types.DirectionLong
		price = micro.Mid + micro.Spread/2
	}
	if price <= 0 {
		price = micro.LastPrice
	}
	if direction == types.DirectionLong {
		price = planner.QuantizeUp(price, inst.TickSize)
	} else {
		price = planner.QuantizeDown(price, inst.TickSize)
	}

	intent := &types.OrderIntent{
		Symbol:    symbol,
		Direction: direction,
		Offset:    types.OffsetClose,
		Price:     price,
		Volume:    volume,
		Reason:    enf.Reason,
		CreatedAt: now,
	}
	e.submitIntent(ctx, intent, types.HoldDecision(seq))
}
