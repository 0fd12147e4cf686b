// Package position owns the open-position inventory: entry admission,
// exit execution and the invariant that the database, not memory, is
// the record of truth. A close that cannot be persisted keeps the
// position open.
package position

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/internal/notifier"
	"github.com/SpiceChicken/kiwoom-stock/internal/store"
	"github.com/SpiceChicken/kiwoom-stock/internal/strategy"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

// Entry is an admission candidate produced by the scoring pass.
type Entry struct {
	Code   string
	Name   string
	Price  float64
	Detail model.ScoreDetail
	Regime string
	Time   time.Time
}

// Manager tracks open positions and mediates every transition through
// the trade store.
type Manager struct {
	store  store.TradeStore
	notify notifier.Notifier
	log    *logger.Logger

	mu   sync.Mutex
	open map[string]*model.Position
}

func NewManager(st store.TradeStore, nt notifier.Notifier, log *logger.Logger) *Manager {
	return &Manager{
		store:  st,
		notify: nt,
		log:    log.Named("position"),
		open:   make(map[string]*model.Position),
	}
}

// Load restores open positions from the store so a restart resumes
// monitoring instead of orphaning them.
func (m *Manager) Load() error {
	open, err := m.store.LoadOpen()
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	m.mu.Lock()
	m.open = open
	m.mu.Unlock()
	if len(open) > 0 {
		m.log.Info("open positions restored", logger.Pair("count", len(open)))
	}
	return nil
}

// TryEnter admits a candidate when every entry condition holds: the
// deadline has not passed, the instrument is not already held, the
// total clears the strong threshold and each sub-score clears its
// floor. Returns nil with no error when the candidate is rejected.
func (m *Manager) TryEnter(e Entry, prof strategy.Profile, beforeDeadline bool) (*model.Position, error) {
	if !beforeDeadline {
		return nil, nil
	}
	d := e.Detail
	if d.Total < prof.Entry.Strong {
		return nil, nil
	}
	if d.Alpha < prof.MinScores.Alpha || d.Supply < prof.MinScores.Supply ||
		d.Vwap < prof.MinScores.Vwap || d.Trend < prof.MinScores.Trend {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.open[e.Code]; held {
		return nil, nil
	}

	pos := &model.Position{
		Code:         e.Code,
		Name:         e.Name,
		BuyPrice:     e.Price,
		BuyScore:     d.Total,
		AlphaScore:   d.Alpha,
		SupplyScore:  d.Supply,
		VwapScore:    d.Vwap,
		TrendScore:   d.Trend,
		BuyTime:      e.Time,
		BuyRegime:    e.Regime,
		Status:       model.StatusOpen,
		LastPrice:    e.Price,
		CurrentScore: d.Total,
	}

	id, err := m.store.InsertOpen(pos)
	if err != nil {
		return nil, fmt.Errorf("persist entry %s: %w", e.Code, err)
	}
	pos.ID = id
	m.open[e.Code] = pos
	m.notify.NotifyBuy(pos)
	return pos, nil
}

// CheckExit refreshes the position's runtime state and closes it when
// an exit rule fires. The store write happens before the in-memory
// removal; if it fails the position stays open and is retried next
// cycle.
func (m *Manager) CheckExit(code string, price, score float64, eval *strategy.ExitEvaluator, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[code]
	if !ok {
		return false, nil
	}
	pos.LastPrice = price
	pos.CurrentScore = score

	reason := eval.ExitReason(pos, now)
	if reason == "" {
		return false, nil
	}
	return true, m.closeLocked(pos, price, reason, now)
}

// LiquidateAll closes every open position at its last seen price.
// Used when the kill switch trips. Returns how many positions closed.
func (m *Manager) LiquidateAll(reason string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	var firstErr error
	for _, code := range sortedCodesLocked(m.open) {
		pos := m.open[code]
		if err := m.closeLocked(pos, pos.LastPrice, reason, now); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		closed++
	}
	return closed, firstErr
}

func (m *Manager) closeLocked(pos *model.Position, price float64, reason string, now time.Time) error {
	profitRate := pos.ProfitRateAt(price)
	if err := m.store.UpdateClose(pos.ID, price, now, profitRate, reason); err != nil {
		m.log.Error("close not persisted, position stays open",
			logger.Pair("code", pos.Code), logger.Pair("error", err.Error()))
		return fmt.Errorf("persist close %s: %w", pos.Code, err)
	}
	pos.Status = model.StatusClosed
	pos.SellPrice = price
	pos.SellTime = now
	pos.ProfitRate = profitRate
	pos.SellReason = reason
	delete(m.open, pos.Code)
	m.notify.NotifySell(pos)
	return nil
}

// UnrealizedPnL sums the percent profit of every open position at its
// last seen price.
func (m *Manager) UnrealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, pos := range m.open {
		total += pos.ProfitRateAt(pos.LastPrice)
	}
	return total
}

// Codes returns the held instrument codes, sorted for stable iteration.
func (m *Manager) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedCodesLocked(m.open)
}

// Get returns the open position for code, if any.
func (m *Manager) Get(code string) (*model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.open[code]
	return p, ok
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func sortedCodesLocked(open map[string]*model.Position) []string {
	codes := make([]string, 0, len(open))
	for code := range open {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
