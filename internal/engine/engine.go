package engine

import (
	"context"
	"fmt"
	"time"

	"aitrader/internal/config"
	"aitrader/internal/decision"
	"aitrader/internal/exchange"
	"aitrader/internal/journal"
	"aitrader/internal/ledger"
	"aitrader/internal/logger"
	"aitrader/internal/market"
	"aitrader/internal/monitoring"
	"aitrader/internal/notifications"
	"aitrader/internal/planner"
	"aitrader/internal/risk"
	"aitrader/pkg/types"
)

// decisionClient is the slice of the AI client the engine needs.
// Narrowed to an interface so tests can stub the service.
type decisionClient interface {
	RequestDecision(ctx context.Context, dctx decision.Context) (types.DecisionRecord, error)
}

// decisionResponse carries an AI reply back into the serial event loop.
type decisionResponse struct {
	symbol  string
	seq     uint64
	rec     types.DecisionRecord
	err     error
	latency time.Duration
}

// pendingOrder tracks a submitted order until its fills are fully
// reconciled or it goes stale.
type pendingOrder struct {
	symbol    string
	orderID   string
	direction types.Direction
	offset    types.Offset
	volume    float64
	price     float64
	stopLoss  float64
	reason    string
	createdAt time.Time
}

// Engine is the serial core of the trader. Every market event, fill
// and decision response funnels through one goroutine, so no handler
// ever observes partially updated state. Slow work (the AI round trip)
// runs in its own goroutine and re-enters through the response channel.
type Engine struct {
	cfg      *config.Config
	adapter  exchange.Adapter
	stream   exchange.Stream
	log      *logger.Logger
	health   *monitoring.HealthChecker
	notifier notifications.Notifier

	agg   *market.Aggregator
	book  *ledger.Ledger
	orch  *decision.Orchestrator
	ai    decisionClient
	plan  *planner.Planner
	guard *risk.Controller
	trail *journal.Journal

	decisions chan decisionResponse

	instruments map[string]types.Instrument
	account     types.AccountSnapshot
	pending     map[string]*pendingOrder
	lastRollDay int

	// staleOrderAfter is how long an unfilled order lives before the
	// engine cancels it and settles with whatever filled.
	staleOrderAfter time.Duration
}

// New assembles an engine from its collaborators. The ledger is built
// during startup once instrument parameters are known.
func New(cfg *config.Config, adapter exchange.Adapter, stream exchange.Stream,
	ai decisionClient, log *logger.Logger, health *monitoring.HealthChecker,
	notifier notifications.Notifier) (*Engine, error) {

	agg, err := market.NewAggregator(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("failed to build aggregator: %w", err)
	}

	return &Engine{
		cfg:             cfg,
		adapter:         adapter,
		stream:          stream,
		log:             log,
		health:          health,
		notifier:        notifier,
		agg:             agg,
		orch:            decision.NewOrchestrator(cfg.OrchestratorConfig()),
		ai:              ai,
		plan:            planner.NewPlanner(cfg.Planner),
		guard:           risk.NewController(cfg.Risk),
		trail:           journal.New(cfg.Engine.JournalDir),
		decisions:       make(chan decisionResponse, 16),
		instruments:     make(map[string]types.Instrument),
		pending:         make(map[string]*pendingOrder),
		lastRollDay:     -1,
		staleOrderAfter: 2 * time.Minute,
	}, nil
}

// Run starts the engine and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		return err
	}

	if err := e.stream.Subscribe(e.cfg.Symbols); err != nil {
		return fmt.Errorf("failed to subscribe to market stream: %w", err)
	}
	if e.health != nil {
		e.health.SetConnected(true)
	}

	fillTicker := time.NewTicker(time.Duration(e.cfg.Engine.FillPollSec) * time.Second)
	accountTicker := time.NewTicker(time.Duration(e.cfg.Engine.AccountPollSec) * time.Second)
	rollTicker := time.NewTicker(time.Minute)
	defer fillTicker.Stop()
	defer accountTicker.Stop()
	defer rollTicker.Stop()

	e.log.Info("Engine running: symbols=%v fill_poll=%ds account_poll=%ds",
		e.cfg.Symbols, e.cfg.Engine.FillPollSec, e.cfg.Engine.AccountPollSec)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()

		case ev, ok := <-e.stream.Events():
			if !ok {
				e.shutdown()
				return fmt.Errorf("market stream closed")
			}
			e.handleEvent(ctx, ev)

		case resp := <-e.decisions:
			e.onDecision(ctx, resp)

		case <-fillTicker.C:
			e.pollFills(ctx)

		case <-accountTicker.C:
			e.refreshAccount(ctx)

		case now := <-rollTicker.C:
			e.maybeRollDay(now)
		}
	}
}

// startup fetches instrument parameters, backfills indicator history
// and aligns the local ledger with the venue position.
func (e *Engine) startup(ctx context.Context) error {
	primary := e.cfg.Symbols[0]

	for _, symbol := range e.cfg.Symbols {
		inst, err := e.adapter.Instrument(ctx, symbol)
		if err != nil {
			return fmt.Errorf("failed to load instrument %s: %w", symbol, err)
		}
		inst.Symbol = symbol
		e.instruments[symbol] = inst
		e.log.Info("Instrument %s: tick=%.6f contract=%.2f min_vol=%.2f margin=%.2f",
			symbol, inst.TickSize, inst.ContractSize, inst.MinVolume, inst.LongMarginRatio)
	}

	e.book = ledger.NewLedger(e.instruments[primary].ContractSize)

	for _, symbol := range e.cfg.Symbols {
		bars, err := e.adapter.RecentBars(ctx, symbol, e.cfg.Engine.BackfillBars)
		if err != nil {
			return fmt.Errorf("failed to backfill %s: %w", symbol, err)
		}
		for _, bar := range bars {
			e.agg.OnPrimaryBar(symbol, bar)
		}
		e.log.Info("Backfilled %s: %d primary bars, %d aggregated",
			symbol, len(bars), e.agg.AggregatedBarCount(symbol))

		venueQty, err := e.adapter.NetPosition(ctx, symbol)
		if err != nil {
			return fmt.Errorf("failed to read venue position %s: %w", symbol, err)
		}
		local := e.book.Position(symbol).Quantity
		if local != venueQty {
			e.book.AlignToVenuePosition(symbol, venueQty)
			e.log.LogPositionSync(local, venueQty)
		}
		monitoring.UpdatePosition(symbol, venueQty)
	}

	e.refreshAccount(ctx)
	for _, symbol := range e.cfg.Symbols {
		e.book.RollDay(symbol, e.account.Equity)
	}
	e.lastRollDay = time.Now().YearDay()
	return nil
}

func (e *Engine) shutdown() {
	e.stream.Close()
	if e.health != nil {
		e.health.SetConnected(false)
	}

	if e.trail.TradeCount() > 0 {
		e.trail.PrintSummary()
		if path, err := e.trail.ExportXLSX(); err != nil {
			e.log.Error("Failed to export trade journal: %v", err)
		} else if path != "" {
			e.log.Info("Trade journal exported to %s", path)
		}
	}
	e.log.Info("Engine stopped")
}

func (e *Engine) handleEvent(ctx context.Context, ev exchange.Event) {
	switch v := ev.(type) {
	case exchange.BarEvent:
		e.onBar(ctx, v)
	case exchange.TickEvent:
		e.onTick(v)
	case exchange.FillEvent:
		e.applyFill(v.Symbol, v.OrderID, v.Direction, v.Offset, v.TradedCumulative, v.Price, v.At)
	}
}

// maybeRollDay resets the daily risk accumulators once per calendar
// day at the configured hour.
func (e *Engine) maybeRollDay(now time.Time) {
	if now.Hour() != e.cfg.Engine.DayRollHour || now.YearDay() == e.lastRollDay {
		return
	}
	e.lastRollDay = now.YearDay()
	for _, symbol := range e.cfg.Symbols {
		e.book.RollDay(symbol, e.account.Equity)
		e.guard.RollDay(symbol)
		monitoring.UpdateDayRealizedPnL(symbol, 0)
	}
	e.log.Info("Day rolled: start equity %.2f, daily loss cap re-armed", e.account.Equity)
}

// refreshAccount pulls the venue account snapshot, falling back to a
// local estimate when the venue is unreachable.
func (e *Engine) refreshAccount(ctx context.Context) {
	snap, err := e.adapter.Account(ctx)
	if err != nil {
		primary := e.cfg.Symbols[0]
		micro := e.agg.Micro(primary)
		price := 0.0
		if micro != nil {
			price = micro.LastPrice
		}
		if e.book != nil && price > 0 {
			snap = e.book.EstimateAccount(primary, e.cfg.Engine.InitialEquity, price, e.instruments[primary])
			e.log.Warning("Account poll failed, using local estimate: %v", err)
		} else {
			e.log.Warning("Account poll failed, keeping last snapshot: %v", err)
			monitoring.RecordError("account_poll")
			return
		}
		monitoring.RecordError("account_poll")
	}
	e.account = snap
	monitoring.UpdateEquity(snap.Equity)
}

func (e *Engine) notify(level, format string, args ...interface{}) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendAlert(level, fmt.Sprintf(format, args...)); err != nil {
		e.log.Warning("Failed to send alert: %v", err)
	}
}
