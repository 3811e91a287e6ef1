package risk

import (
	"fmt"
	"math"
	"time"

	"aitrader/pkg/types"
)

// Config holds the hard risk limits. These fire independent of the
// decision cadence and always win over AI output.
type Config struct {
	MaxSingleTradeLossPct float64 `json:"max_single_trade_loss_pct"`
	MaxDailyLossPct       float64 `json:"max_daily_loss_pct"`
	MinConfidence         float64 `json:"min_confidence"`
	ReentryCooldownMin    float64 `json:"reentry_cooldown_min"`
	MinReentryGapTicks    int     `json:"min_reentry_gap_ticks"`

	// Force-close windows, "HH:MM" local exchange time. The night
	// window may wrap midnight.
	DayCloseStart   string `json:"day_close_start"`
	DayCloseEnd     string `json:"day_close_end"`
	NightCloseStart string `json:"night_close_start"`
	NightCloseEnd   string `json:"night_close_end"`
}

func (c *Config) setDefaults() {
	if c.MaxSingleTradeLossPct == 0 {
		c.MaxSingleTradeLossPct = 0.02
	}
	if c.MaxDailyLossPct == 0 {
		c.MaxDailyLossPct = 0.05
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.55
	}
	if c.ReentryCooldownMin == 0 {
		c.ReentryCooldownMin = 5
	}
	if c.DayCloseStart == "" {
		c.DayCloseStart = "14:55"
	}
	if c.DayCloseEnd == "" {
		c.DayCloseEnd = "15:30"
	}
}

// protection is the per-symbol armed stop state, refreshed on every
// opening intent.
type protection struct {
	direction   types.Direction
	entryPrice  float64
	stopPrice   float64
	rDistance   float64
	trailType   types.TrailingType
	trailATR    float64
	trailPct    float64
	timeStopMin float64
	plan        *types.ScaleOutPlan
	planDone    []bool
}

// CheckInput is everything one enforcement pass needs. Snapshots only;
// the controller never mutates ledger state.
type CheckInput struct {
	Position       types.PositionSnapshot
	Account        types.AccountSnapshot
	DayStartEquity float64
	DayRealizedPnL float64
	UnrealizedPnL  float64
	Price          float64
	ATR            float64
	Now            time.Time
}

// Enforcement is a forced action. Volume zero means the full position.
type Enforcement struct {
	Action  types.Action
	Volume  float64
	Reason  string
	Suspend bool // block new openings until day-roll
}

// Controller enforces the hard limits in a fixed order: per-trade loss
// cap, daily loss cap, force-close window, then the armed protections
// (hard stop, trailing, time stop, scale-out). Forced actions are
// emitted as synthetic close decisions that bypass the orchestrator.
type Controller struct {
	cfg       Config
	armed     map[string]*protection
	suspended map[string]bool
}

// NewController creates a risk controller.
func NewController(cfg Config) *Controller {
	cfg.setDefaults()
	return &Controller{
		cfg:       cfg,
		armed:     make(map[string]*protection),
		suspended: make(map[string]bool),
	}
}

// FilterDecision applies the confidence floor: opening decisions below
// the minimum are downgraded to hold before they reach the planner.
func (c *Controller) FilterDecision(dec types.DecisionRecord) types.DecisionRecord {
	if dec.Action.IsOpening() && dec.Confidence < c.cfg.MinConfidence {
		hold := types.HoldDecision(dec.Seq)
		hold.Rationale = fmt.Sprintf("confidence %.2f below floor %.2f", dec.Confidence, c.cfg.MinConfidence)
		return hold
	}
	return dec
}

// CanOpen reports whether a new opening is currently allowed, checking
// the daily-cap suspension and the reentry cooldown.
func (c *Controller) CanOpen(symbol string, now, reentryCooldownUntil time.Time) (bool, string) {
	if c.suspended[symbol] {
		return false, "openings suspended until day-roll"
	}
	if now.Before(reentryCooldownUntil) {
		return false, fmt.Sprintf("reentry cooldown until %s", reentryCooldownUntil.Format("15:04:05"))
	}
	if c.inForceCloseWindow(now) {
		return false, "inside force-close window"
	}
	return true, ""
}

// ReentryGapOK vetoes an opening priced too close to the last exit.
// A zero lastExit (never closed) or an unconfigured gap always passes.
func (c *Controller) ReentryGapOK(price, lastExit, tickSize float64) (bool, string) {
	if c.cfg.MinReentryGapTicks <= 0 || lastExit <= 0 || tickSize <= 0 {
		return true, ""
	}
	gap := float64(c.cfg.MinReentryGapTicks) * tickSize
	if math.Abs(price-lastExit) < gap {
		return false, fmt.Sprintf("price %.2f within %d ticks of last exit %.2f",
			price, c.cfg.MinReentryGapTicks, lastExit)
	}
	return true, ""
}

// ReentryCooldown returns the configured opening block after a close.
func (c *Controller) ReentryCooldown() time.Duration {
	return time.Duration(c.cfg.ReentryCooldownMin * float64(time.Minute))
}

// Arm installs the protections for a freshly planned opening. The R
// distance anchoring the scale-out ladder is entry minus stop.
func (c *Controller) Arm(symbol string, direction types.Direction, entryPrice, stopPrice float64, dec types.DecisionRecord) {
	p := &protection{
		direction:   direction,
		entryPrice:  entryPrice,
		stopPrice:   stopPrice,
		rDistance:   math.Abs(entryPrice - stopPrice),
		trailType:   dec.TrailingType,
		trailATR:    dec.TrailingATRMult,
		trailPct:    dec.TrailingPercent,
		timeStopMin: dec.TimeStopMinutes,
		plan:        dec.TakeProfit,
	}
	if p.plan != nil {
		p.planDone = make([]bool, len(p.plan.LevelsR))
	}
	c.armed[symbol] = p
}

// Disarm clears the protections once the position is flat.
func (c *Controller) Disarm(symbol string) {
	delete(c.armed, symbol)
}

// RollDay lifts the daily-cap suspension.
func (c *Controller) RollDay(symbol string) {
	delete(c.suspended, symbol)
}

// Suspended reports whether openings are blocked by the daily cap.
func (c *Controller) Suspended(symbol string) bool {
	return c.suspended[symbol]
}

// CheckAndEnforce runs one enforcement pass. Returns nil when nothing
// must be done. Runs every cycle, independent of decision cadence.
func (c *Controller) CheckAndEnforce(symbol string, in CheckInput) *Enforcement {
	qty := in.Position.Quantity

	// Daily loss cap is checked even when flat so the suspension
	// latches as soon as realized losses alone reach the cap.
	if in.DayStartEquity > 0 {
		dayLoss := -(in.DayRealizedPnL + in.UnrealizedPnL)
		if dayLoss >= c.cfg.MaxDailyLossPct*in.DayStartEquity {
			c.suspended[symbol] = true
			if qty != 0 {
				return &Enforcement{
					Action:  closeAction(qty),
					Reason:  fmt.Sprintf("daily loss cap: %.0f >= %.2f%% of %.0f", dayLoss, c.cfg.MaxDailyLossPct*100, in.DayStartEquity),
					Suspend: true,
				}
			}
			return nil
		}
	}

	if qty == 0 {
		return nil
	}

	if in.UnrealizedPnL < 0 && -in.UnrealizedPnL >= c.cfg.MaxSingleTradeLossPct*in.Account.Equity && in.Account.Equity > 0 {
		return &Enforcement{
			Action: closeAction(qty),
			Reason: fmt.Sprintf("per-trade loss cap: %.0f >= %.2f%% of equity", -in.UnrealizedPnL, c.cfg.MaxSingleTradeLossPct*100),
		}
	}

	if c.inForceCloseWindow(in.Now) {
		return &Enforcement{
			Action:  closeAction(qty),
			Reason:  "force-close window",
			Suspend: true,
		}
	}

	p := c.armed[symbol]
	if p == nil {
		return nil
	}

	if hit, reason := c.hardStopHit(p, in.Price); hit {
		return &Enforcement{Action: closeAction(qty), Reason: reason}
	}
	if hit, reason := c.trailingHit(p, in); hit {
		return &Enforcement{Action: closeAction(qty), Reason: reason}
	}
	if p.timeStopMin > 0 && !in.Position.EntryTime.IsZero() {
		held := in.Now.Sub(in.Position.EntryTime).Minutes()
		if held >= p.timeStopMin {
			return &Enforcement{Action: closeAction(qty), Reason: fmt.Sprintf("time stop after %.0f min", held)}
		}
	}
	return c.scaleOut(p, qty, in.Price)
}

func closeAction(qty float64) types.Action {
	if qty > 0 {
		return types.ActionSell
	}
	return types.ActionCover
}

func (c *Controller) hardStopHit(p *protection, price float64) (bool, string) {
	if p.stopPrice <= 0 || price <= 0 {
		return false, ""
	}
	if p.direction == types.DirectionLong && price <= p.stopPrice {
		return true, fmt.Sprintf("hard stop %.2f hit at %.2f", p.stopPrice, price)
	}
	if p.direction == types.DirectionShort && price >= p.stopPrice {
		return true, fmt.Sprintf("hard stop %.2f hit at %.2f", p.stopPrice, price)
	}
	return false, ""
}

func (c *Controller) trailingHit(p *protection, in CheckInput) (bool, string) {
	price := in.Price
	if price <= 0 {
		return false, ""
	}

	switch p.trailType {
	case types.TrailingATR:
		if p.trailATR <= 0 || in.ATR <= 0 {
			return false, ""
		}
		gap := p.trailATR * in.ATR
		if p.direction == types.DirectionLong && in.Position.PeakPrice-price >= gap {
			return true, fmt.Sprintf("ATR trail: %.2f off peak %.2f", in.Position.PeakPrice-price, in.Position.PeakPrice)
		}
		if p.direction == types.DirectionShort && price-in.Position.TroughPrice >= gap {
			return true, fmt.Sprintf("ATR trail: %.2f off trough %.2f", price-in.Position.TroughPrice, in.Position.TroughPrice)
		}
	case types.TrailingPercent:
		if p.trailPct <= 0 {
			return false, ""
		}
		if p.direction == types.DirectionLong && in.Position.PeakPrice > 0 {
			if (in.Position.PeakPrice-price)/in.Position.PeakPrice >= p.trailPct {
				return true, fmt.Sprintf("percent trail: %.2f%% off peak", (in.Position.PeakPrice-price)/in.Position.PeakPrice*100)
			}
		}
		if p.direction == types.DirectionShort && in.Position.TroughPrice > 0 {
			if (price-in.Position.TroughPrice)/in.Position.TroughPrice >= p.trailPct {
				return true, fmt.Sprintf("percent trail: %.2f%% off trough", (price-in.Position.TroughPrice)/in.Position.TroughPrice*100)
			}
		}
	}
	return false, ""
}

// scaleOut walks the take-profit ladder: each R-multiple level closes
// its configured fraction of the current position, once.
func (c *Controller) scaleOut(p *protection, qty, price float64) *Enforcement {
	if p.plan == nil || p.rDistance <= 0 || price <= 0 {
		return nil
	}
	for i, levelR := range p.plan.LevelsR {
		if p.planDone[i] {
			continue
		}
		target := p.entryPrice + levelR*p.rDistance
		if p.direction == types.DirectionShort {
			target = p.entryPrice - levelR*p.rDistance
		}
		reached := (p.direction == types.DirectionLong && price >= target) ||
			(p.direction == types.DirectionShort && price <= target)
		if !reached {
			continue
		}
		p.planDone[i] = true
		volume := math.Floor(math.Abs(qty) * p.plan.Pcts[i])
		if volume < 1 {
			volume = 1
		}
		if volume > math.Abs(qty) {
			volume = math.Abs(qty)
		}
		return &Enforcement{
			Action: closeAction(qty),
			Volume: volume,
			Reason: fmt.Sprintf("scale-out at %.1fR", levelR),
		}
	}
	return nil
}

// inForceCloseWindow checks the day and night cutoff windows.
func (c *Controller) inForceCloseWindow(now time.Time) bool {
	minutes := now.Hour()*60 + now.Minute()
	if within(minutes, c.cfg.DayCloseStart, c.cfg.DayCloseEnd) {
		return true
	}
	if c.cfg.NightCloseStart != "" && within(minutes, c.cfg.NightCloseStart, c.cfg.NightCloseEnd) {
		return true
	}
	return false
}

func within(minutes int, start, end string) bool {
	s, okS := parseHHMM(start)
	e, okE := parseHHMM(end)
	if !okS || !okE {
		return false
	}
	if s <= e {
		return minutes >= s && minutes < e
	}
	// Window wraps midnight.
	return minutes >= s || minutes < e
}

func parseHHMM(v string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
