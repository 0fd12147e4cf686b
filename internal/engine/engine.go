// Package engine drives the polling loop: refresh the watch universe,
// classify the market regime, refresh the supply cache, score every
// instrument, run exits, check the kill switch, admit entries. Every
// failure short of the kill switch degrades the cycle instead of
// aborting it.
package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SpiceChicken/kiwoom-stock/internal/collector"
	"github.com/SpiceChicken/kiwoom-stock/internal/indicator"
	"github.com/SpiceChicken/kiwoom-stock/internal/market"
	"github.com/SpiceChicken/kiwoom-stock/internal/metrics"
	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/internal/notifier"
	"github.com/SpiceChicken/kiwoom-stock/internal/position"
	"github.com/SpiceChicken/kiwoom-stock/internal/store"
	"github.com/SpiceChicken/kiwoom-stock/internal/strategy"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

// Supply categories older than this are escalated from degraded to
// critical in the logs. The loop still continues.
const freshnessBudget = 10 * time.Minute

const (
	investorForeign     = "6"
	investorInstitution = "7"
)

// Options carries the engine's static configuration.
type Options struct {
	ProxyCode       string // index proxy for the regime classifier
	MarketTp        string
	ETFKeywords     []string
	MaxStocks       int
	PollInterval    time.Duration
	UniverseRefresh time.Duration
	WeightMode      strategy.WeightMode
	ScoringParams   strategy.ScoringParams
}

// Engine owns one trading session's run loop.
type Engine struct {
	fetch    collector.Fetcher
	analyzer *market.Analyzer
	supply   *market.Cache
	scorer   *strategy.Scorer
	profiles *strategy.ProfileSet
	manager  *position.Manager
	store    store.TradeStore
	notify   notifier.Notifier
	log      *logger.Logger
	opts     Options

	cron     *cron.Cron
	now      func() time.Time
	stopOnce sync.Once
	done     chan struct{}

	// Mutated only from cron callbacks, which SkipIfStillRunning keeps
	// serialized per entry; the cycle/universe entries share this state
	// so a mutex still guards it.
	mu         sync.Mutex
	universe   []string
	names      map[string]string
	prevScores map[string]float64
	basicDone  map[string]bool
	sawSession bool
}

func New(fetch collector.Fetcher, st store.TradeStore, mgr *position.Manager,
	profiles *strategy.ProfileSet, nt notifier.Notifier, log *logger.Logger, opts Options) *Engine {
	return &Engine{
		fetch:      fetch,
		analyzer:   market.NewAnalyzer(log),
		supply:     market.NewCache(),
		scorer:     strategy.NewScorer(opts.ScoringParams, opts.WeightMode),
		profiles:   profiles,
		manager:    mgr,
		store:      st,
		notify:     nt,
		log:        log.Named("engine"),
		opts:       opts,
		now:        time.Now,
		done:       make(chan struct{}),
		names:      make(map[string]string),
		prevScores: make(map[string]float64),
		basicDone:  make(map[string]bool),
	}
}

// Start restores open positions, primes the watch universe and begins
// the cron-driven loop. Cycles that overrun their interval are skipped,
// never overlapped.
func (e *Engine) Start() error {
	if err := e.manager.Load(); err != nil {
		return err
	}
	e.refreshUniverse()

	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if _, err := e.cron.AddFunc(fmt.Sprintf("@every %s", e.opts.PollInterval), e.Cycle); err != nil {
		return fmt.Errorf("register cycle: %w", err)
	}
	if _, err := e.cron.AddFunc(fmt.Sprintf("@every %s", e.opts.UniverseRefresh), e.refreshUniverse); err != nil {
		return fmt.Errorf("register universe refresh: %w", err)
	}
	e.cron.Start()
	e.log.Info("engine started",
		logger.Pair("poll_interval", e.opts.PollInterval.String()),
		logger.Pair("universe_refresh", e.opts.UniverseRefresh.String()),
		logger.Pair("fetcher", e.fetch.Name()))
	return nil
}

// Stop halts the loop. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cron != nil {
			ctx := e.cron.Stop()
			<-ctx.Done()
		}
		close(e.done)
		e.log.Info("engine stopped")
	})
}

// Done closes when the engine has terminated on its own: kill-switch
// trip or end of the trading session.
func (e *Engine) Done() <-chan struct{} { return e.done }

// refreshUniverse rebuilds the watch list from the turnover ranking.
// Held instruments always lead the list so they are monitored even
// after falling out of the ranking. A fetch failure keeps the previous
// universe.
func (e *Engine) refreshUniverse() {
	insts, err := e.fetch.TopTurnover(e.opts.MarketTp)
	if err != nil {
		metrics.IncCycleError("universe")
		e.log.Warn("universe refresh failed, keeping previous list", logger.Pair("error", err.Error()))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	held := e.manager.Codes()
	codes := make([]string, 0, e.opts.MaxStocks)
	seen := make(map[string]bool, e.opts.MaxStocks)
	for _, code := range held {
		codes = append(codes, code)
		seen[code] = true
	}
	for _, inst := range insts {
		if len(codes) >= e.opts.MaxStocks {
			break
		}
		if e.isExcludedName(inst.Name) {
			continue
		}
		e.names[inst.Code] = inst.Name
		if seen[inst.Code] {
			continue
		}
		codes = append(codes, inst.Code)
		seen[inst.Code] = true
	}
	e.universe = codes
	e.log.Info("watch universe refreshed",
		logger.Pair("total", len(codes)), logger.Pair("held", len(held)))
}

func (e *Engine) isExcludedName(name string) bool {
	for _, kw := range e.opts.ETFKeywords {
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Cycle runs one full evaluation pass. Exported so tests and a future
// run-once mode can invoke it directly.
func (e *Engine) Cycle() {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("cycle panicked", logger.Pair("panic", fmt.Sprint(r)))
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	prof := e.profiles.For(e.analyzer.Regime())
	eval, err := strategy.NewExitEvaluator(prof)
	if err != nil {
		e.log.Error("exit evaluator", logger.Pair("error", err.Error()))
		return
	}

	if !eval.InSession(now) {
		if e.sawSession {
			e.log.Info("trading session ended")
			go e.Stop()
			return
		}
		e.log.Debug("outside trading session, skipping cycle")
		return
	}
	e.sawSession = true

	start := time.Now()
	defer func() {
		metrics.ObserveCycle(time.Since(start))
		metrics.IncCycles()
		metrics.SetOpenPositions(e.manager.Count())
	}()

	// Regime first: the rest of the cycle keys off the active profile.
	e.updateRegime()
	regime := e.analyzer.Regime()
	prof = e.profiles.For(regime)
	if eval2, err := strategy.NewExitEvaluator(prof); err == nil {
		eval = eval2
	}

	e.refreshSupplyBulk(now)
	e.checkFreshness(now)

	// Score everything up front; exits and entries both read from the
	// same per-cycle snapshot.
	scores := make(map[string]scoredInstrument, len(e.universe))
	for _, code := range e.universe {
		si, err := e.evaluate(code, prof, now)
		if err != nil {
			metrics.IncCycleError("instrument")
			e.log.Warn("instrument skipped",
				logger.Pair("code", code), logger.Pair("error", err.Error()))
			continue
		}
		scores[code] = si
	}

	e.runExits(scores, eval, now)
	if e.checkKillSwitch(prof, now) {
		return
	}
	e.runEntries(scores, prof, eval, now)
	e.emitMomentum(scores, prof)
}

type scoredInstrument struct {
	price  float64
	detail model.ScoreDetail
}

// updateRegime feeds the index proxy's hourly bars to the classifier.
// On failure the previous regime stays active (degrade to stale).
func (e *Engine) updateRegime() {
	bars, err := e.fetch.MinuteChart(e.opts.ProxyCode, "60")
	if err != nil {
		metrics.IncCycleError("regime")
		e.log.Warn("regime update failed, keeping previous regime",
			logger.Pair("regime", string(e.analyzer.Regime())), logger.Pair("error", err.Error()))
		return
	}
	e.analyzer.Update(bars)
	metrics.SetRegime(string(e.analyzer.Regime()))
}

// refreshSupplyBulk pulls the market-wide supply categories. Each
// category fails independently; stale values stay in the cache.
func (e *Engine) refreshSupplyBulk(now time.Time) {
	for _, cls := range []string{investorForeign, investorInstitution} {
		flows, err := e.fetch.InvestorFlows(e.opts.MarketTp, cls)
		if err != nil {
			metrics.IncCycleError("supply")
			e.log.Warn("investor flows degraded", logger.Pair("class", cls), logger.Pair("error", err.Error()))
			continue
		}
		net := make(map[string]float64, len(flows))
		for _, f := range flows {
			net[f.Code] += f.NetQty
		}
		e.supply.SetInvestorFlows(cls, net, now)
	}

	if pgm, err := e.fetch.ProgramTrade(); err != nil {
		metrics.IncCycleError("supply")
		e.log.Warn("program trades degraded", logger.Pair("error", err.Error()))
	} else {
		stats := make(map[string]market.ProgramStat, len(pgm))
		for _, p := range pgm {
			stats[p.Code] = market.ProgramStat{NetAmount: p.NetAmount, Ratio: p.Ratio}
		}
		e.supply.SetProgramTrades(stats, now)
	}

	if frgn, err := e.fetch.ForeignWindow(); err != nil {
		metrics.IncCycleError("supply")
		e.log.Warn("foreign window degraded", logger.Pair("error", err.Error()))
	} else {
		stats := make(map[string]market.ForeignStat, len(frgn))
		for _, f := range frgn {
			stats[f.Code] = market.ForeignStat{NetAmount: f.NetAmount, Turnover: f.Turnover}
		}
		e.supply.SetForeignWindow(stats, now)
	}
}

func (e *Engine) checkFreshness(now time.Time) {
	for _, cat := range []market.Category{market.CatInvestor, market.CatProgram, market.CatForeign} {
		age, ok := e.supply.Age(cat, now)
		if ok && age > freshnessBudget {
			e.log.Error("supply category exceeded freshness budget",
				logger.Pair("category", string(cat)), logger.Pair("age", age.Round(time.Second).String()))
		}
	}
}

// evaluate refreshes one instrument's chart-derived state and scores
// it. Any failure is isolated to this instrument.
func (e *Engine) evaluate(code string, prof strategy.Profile, now time.Time) (scoredInstrument, error) {
	bars, err := e.fetch.MinuteChart(code, "1")
	if err != nil {
		return scoredInstrument{}, fmt.Errorf("minute chart: %w", err)
	}
	if len(bars) == 0 {
		return scoredInstrument{}, fmt.Errorf("minute chart: empty series")
	}
	e.supply.SetChart(code, bars, now)

	if strength, err := e.fetch.TickStrength(code); err != nil {
		e.log.Debug("tick strength degraded", logger.Pair("code", code), logger.Pair("error", err.Error()))
	} else {
		e.supply.SetStrength(code, strength, now)
	}

	// Basic info is slow-moving; one successful fetch per session.
	if !e.basicDone[code] {
		if info, err := e.fetch.BasicInfo(code); err != nil {
			e.log.Debug("basic info degraded", logger.Pair("code", code), logger.Pair("error", err.Error()))
		} else {
			e.supply.SetBasic(code, info.VolRatio, info.TradedQty, now)
			if info.Name != "" && e.names[code] == "" {
				e.names[code] = info.Name
			}
			e.basicDone[code] = true
			e.log.Info("instrument profile",
				logger.Pair("code", code),
				logger.Pair("name", info.Name),
				logger.Pair("vol_ratio", info.VolRatio),
				logger.Pair("band_pos", bandPosition(bars)))
		}
	}

	m := e.supply.Metrics(code)
	d := e.scorer.Score(&m, prof.Weights)
	e.log.Debug("scored",
		logger.Pair("code", code),
		logger.Pair("total", d.Total),
		logger.Pair("alpha", d.Alpha),
		logger.Pair("supply", d.Supply),
		logger.Pair("vwap", d.Vwap),
		logger.Pair("trend", d.Trend),
		logger.Pair("investor_net", e.supply.InvestorNet(code)))

	return scoredInstrument{price: m.Price, detail: d}, nil
}

// bandPosition places the latest close inside the 20-bar Bollinger
// channel: 0 on the lower band, 1 on the upper, 0.5 when the channel
// has no width.
func bandPosition(bars []model.OHLCV) float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	upper, _, lower := indicator.Bollinger(closes, 20, 2.0)
	if upper <= lower {
		return 0.5
	}
	return (closes[len(closes)-1] - lower) / (upper - lower)
}

func (e *Engine) runExits(scores map[string]scoredInstrument, eval *strategy.ExitEvaluator, now time.Time) {
	for _, code := range e.manager.Codes() {
		si, ok := scores[code]
		if !ok {
			continue // evaluation failed this cycle; retry next
		}
		closed, err := e.manager.CheckExit(code, si.price, si.detail.Total, eval, now)
		if err != nil {
			metrics.IncCycleError("store")
			continue
		}
		if closed {
			metrics.IncSignal("sell", "exit")
		}
	}
}

// checkKillSwitch trips when today's realized losses plus the open
// book's unrealized losses breach the total loss limit. Returns true
// when the engine is terminating.
func (e *Engine) checkKillSwitch(prof strategy.Profile, now time.Time) bool {
	realized, err := e.store.SumClosedProfitToday(now)
	if err != nil {
		metrics.IncCycleError("store")
		e.log.Warn("realized pnl unavailable, kill switch skipped", logger.Pair("error", err.Error()))
		return false
	}
	unrealized := e.manager.UnrealizedPnL()
	if !strategy.KillSwitchActivated(realized, unrealized, prof.TotalLossLimit) {
		return false
	}

	metrics.IncKillSwitchTrips()
	msg := fmt.Sprintf("KILL-SWITCH ACTIVATED: realized %.2f%% + unrealized %.2f%% breached limit %.2f%%",
		realized, unrealized, prof.TotalLossLimit)
	e.log.Error(msg)
	e.notify.Critical(msg)

	n, err := e.manager.LiquidateAll("KILL-SWITCH ACTIVATED", now)
	if err != nil {
		e.log.Error("liquidation incomplete", logger.Pair("closed", n), logger.Pair("error", err.Error()))
	} else {
		e.log.Info("all positions liquidated", logger.Pair("closed", n))
	}
	metrics.SetOpenPositions(e.manager.Count())
	go e.Stop()
	return true
}

func (e *Engine) runEntries(scores map[string]scoredInstrument, prof strategy.Profile, eval *strategy.ExitEvaluator, now time.Time) {
	beforeDeadline := eval.BeforeEntryDeadline(now)
	for code, si := range scores {
		if si.price <= 0 {
			continue
		}
		pos, err := e.manager.TryEnter(position.Entry{
			Code:   code,
			Name:   e.names[code],
			Price:  si.price,
			Detail: si.detail,
			Regime: string(e.analyzer.Regime()),
			Time:   now,
		}, prof, beforeDeadline)
		if err != nil {
			metrics.IncCycleError("store")
			e.log.Error("entry not persisted", logger.Pair("code", code), logger.Pair("error", err.Error()))
			continue
		}
		if pos != nil {
			metrics.IncSignal("buy", "entry")
		}
	}
}

// emitMomentum alerts on score surges between consecutive cycles.
func (e *Engine) emitMomentum(scores map[string]scoredInstrument, prof strategy.Profile) {
	for code, si := range scores {
		prev, seen := e.prevScores[code]
		if seen {
			if delta := si.detail.Total - prev; delta >= prof.MomentumThreshold {
				e.notify.NotifyMomentum(code, e.names[code], si.detail.Total, delta)
			}
		}
		e.prevScores[code] = si.detail.Total
	}
}
