package decision

import (
	"time"

	"aitrader/pkg/types"
)

// RegimeParams is the cadence tuning for one market regime. Sideways
// markets use longer intervals and cooldowns to cut churn.
type RegimeParams struct {
	Interval time.Duration
	Cooldown time.Duration
}

// OrchestratorConfig controls decision gating.
type OrchestratorConfig struct {
	MinAggregatedBars int
	RequestTimeout    time.Duration
	Regimes           map[types.Regime]RegimeParams
}

func (c *OrchestratorConfig) setDefaults() {
	if c.MinAggregatedBars == 0 {
		c.MinAggregatedBars = 20
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.Regimes == nil {
		c.Regimes = map[types.Regime]RegimeParams{
			types.RegimeTrendUp:   {Interval: 3 * time.Minute, Cooldown: 2 * time.Minute},
			types.RegimeTrendDown: {Interval: 3 * time.Minute, Cooldown: 2 * time.Minute},
			types.RegimeSideways:  {Interval: 5 * time.Minute, Cooldown: 5 * time.Minute},
		}
	}
}

// symbolCadence is the per-symbol request bookkeeping.
type symbolCadence struct {
	lastSeq       uint64
	inflight      bool
	issuedAt      time.Time
	nextAllowedAt time.Time
	lastRegime    types.Regime
}

// Orchestrator decides when a new AI decision request may be issued
// and filters responses through the supersession rule: only the most
// recent in-flight request's result is honored, everything else is
// discarded on arrival.
type Orchestrator struct {
	cfg     OrchestratorConfig
	symbols map[string]*symbolCadence
}

// NewOrchestrator creates a decision orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:     cfg,
		symbols: make(map[string]*symbolCadence),
	}
}

func (o *Orchestrator) cadence(symbol string) *symbolCadence {
	sc, ok := o.symbols[symbol]
	if !ok {
		sc = &symbolCadence{lastRegime: types.RegimeSideways}
		o.symbols[symbol] = sc
	}
	return sc
}

// MaybeRequestDecision reports whether a new decision request should
// be issued now, and if so allocates its sequence number. An in-flight
// request blocks new ones until it resolves or times out.
func (o *Orchestrator) MaybeRequestDecision(symbol string, now time.Time, snapshotReady bool, aggregatedBars int) (uint64, bool) {
	sc := o.cadence(symbol)

	if !snapshotReady || aggregatedBars < o.cfg.MinAggregatedBars {
		return 0, false
	}
	if now.Before(sc.nextAllowedAt) {
		return 0, false
	}
	if sc.inflight && now.Sub(sc.issuedAt) < o.cfg.RequestTimeout {
		return 0, false
	}

	sc.lastSeq++
	sc.inflight = true
	sc.issuedAt = now
	sc.nextAllowedAt = now.Add(o.regimeParams(sc.lastRegime).Interval)
	return sc.lastSeq, true
}

// AcceptResponse applies the supersession rule and validation to an
// arriving response. The returned record is safe to forward to the
// planner; ok=false means the response was stale and nothing should be
// forwarded. Request errors and malformed payloads degrade to hold.
func (o *Orchestrator) AcceptResponse(symbol string, seq uint64, rec types.DecisionRecord, reqErr error, now time.Time) (types.DecisionRecord, bool) {
	sc := o.cadence(symbol)

	if seq != sc.lastSeq {
		// A newer request was issued (or a forced action bumped the
		// sequence) while this one was in flight.
		return types.DecisionRecord{}, false
	}
	sc.inflight = false

	if reqErr != nil {
		return types.HoldDecision(seq), true
	}
	if err := Sanitize(&rec); err != nil {
		return types.HoldDecision(seq), true
	}
	rec.Seq = seq

	sc.lastRegime = rec.Regime
	params := o.regimeParams(rec.Regime)
	cooldown := params.Cooldown
	if rec.CooldownMinutes > 0 {
		cooldown = time.Duration(rec.CooldownMinutes * float64(time.Minute))
	}
	if next := now.Add(cooldown); next.After(sc.nextAllowedAt) {
		sc.nextAllowedAt = next
	}
	return rec, true
}

// BumpSeq invalidates any in-flight request for the symbol. Forced
// risk actions call this so a decision arriving after the flatten is
// discarded instead of reopening exposure.
func (o *Orchestrator) BumpSeq(symbol string) uint64 {
	sc := o.cadence(symbol)
	sc.lastSeq++
	sc.inflight = false
	return sc.lastSeq
}

// SuspendUntil blocks new requests for the symbol until the given
// time. Used around forced flattens and day-roll.
func (o *Orchestrator) SuspendUntil(symbol string, until time.Time) {
	sc := o.cadence(symbol)
	if until.After(sc.nextAllowedAt) {
		sc.nextAllowedAt = until
	}
}

// LastRegime returns the regime of the last accepted decision.
func (o *Orchestrator) LastRegime(symbol string) types.Regime {
	return o.cadence(symbol).lastRegime
}

func (o *Orchestrator) regimeParams(r types.Regime) RegimeParams {
	if p, ok := o.cfg.Regimes[r]; ok {
		return p
	}
	return o.cfg.Regimes[types.RegimeSideways]
}
