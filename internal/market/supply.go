package market

import (
	"math"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/indicator"
	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

// Category names one independently-fetched slice of supply data. Each
// category updates atomically: a failed fetch simply never calls the
// setter, so the previous values (and their timestamp) stay in place.
type Category string

const (
	CatInvestor Category = "investor"
	CatProgram  Category = "program"
	CatForeign  Category = "foreign"
	CatStrength Category = "strength"
	CatChart    Category = "chart"
	CatBasic    Category = "basic"
)

// ProgramStat is one instrument's program-trade snapshot.
type ProgramStat struct {
	NetAmount float64 // millions
	Ratio     float64
}

// ForeignStat is one instrument's foreign-window snapshot.
type ForeignStat struct {
	NetAmount float64
	Turnover  float64
}

// Entry is the per-instrument supply bundle. Fields default to safe
// neutral values so scoring a never-updated instrument yields a valid
// (if uninteresting) result instead of a division by zero.
type Entry struct {
	InvestorNet map[string]float64 // net quantity by capital source

	ProgramNet   float64
	ProgramRatio float64

	ForeignNet      float64
	ForeignTurnover float64

	Strength  float64
	VolRatio  float64
	DayVolume float64 // cumulative day volume from basic info

	Price      float64
	VWAP       float64
	PrevVWAP   float64
	EMA5       float64
	EMA20      float64
	EMA60      float64
	PrevEMA60  float64
	ATRPercent float64
	TradedQty  float64
	Prices     []float64
	Volumes    []float64
}

func newEntry() *Entry {
	return &Entry{
		InvestorNet:     make(map[string]float64),
		Strength:        100.0,
		VolRatio:        100.0,
		VWAP:            1.0,
		PrevVWAP:        1.0,
		ForeignTurnover: 1.0,
		ATRPercent:      3.0,
	}
}

// Cache owns the per-instrument supply state. It is written only by the
// orchestrator goroutine; snapshots handed out via Metrics are copies.
type Cache struct {
	entries map[string]*Entry
	updated map[Category]time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		updated: make(map[Category]time.Time),
	}
}

func (c *Cache) entry(code string) *Entry {
	e, ok := c.entries[code]
	if !ok {
		e = newEntry()
		c.entries[code] = e
	}
	return e
}

// SetInvestorFlows replaces the net quantities for one capital source
// across all listed instruments.
func (c *Cache) SetInvestorFlows(source string, net map[string]float64, now time.Time) {
	for code, qty := range net {
		c.entry(code).InvestorNet[source] = qty
	}
	c.updated[CatInvestor] = now
}

// SetProgramTrades replaces the program-trade snapshot.
func (c *Cache) SetProgramTrades(stats map[string]ProgramStat, now time.Time) {
	for code, s := range stats {
		e := c.entry(code)
		e.ProgramNet = s.NetAmount
		e.ProgramRatio = s.Ratio
	}
	c.updated[CatProgram] = now
}

// SetForeignWindow replaces the foreign-window snapshot.
func (c *Cache) SetForeignWindow(stats map[string]ForeignStat, now time.Time) {
	for code, s := range stats {
		e := c.entry(code)
		e.ForeignNet = s.NetAmount
		if s.Turnover >= 1 {
			e.ForeignTurnover = s.Turnover
		}
	}
	c.updated[CatForeign] = now
}

// SetStrength stores the latest tick-strength reading for one instrument.
func (c *Cache) SetStrength(code string, strength float64, now time.Time) {
	c.entry(code).Strength = strength
	c.updated[CatStrength] = now
}

// SetBasic stores the volume-vs-prior-day percentage and the day's
// cumulative traded quantity from basic info.
func (c *Cache) SetBasic(code string, ratio, dayVolume float64, now time.Time) {
	e := c.entry(code)
	e.VolRatio = ratio
	e.DayVolume = dayVolume
	c.updated[CatBasic] = now
}

// SetChart ingests a minute-bar window (oldest-first) and refreshes every
// chart-derived field for the instrument.
func (c *Cache) SetChart(code string, bars []model.OHLCV, now time.Time) {
	if len(bars) == 0 {
		return
	}
	e := c.entry(code)
	closes := model.Closes(bars)
	vols := model.Volumes(bars)

	e.Price = closes[len(closes)-1]
	e.PrevVWAP = e.VWAP
	e.VWAP = indicator.VWAP(bars)
	e.EMA5 = indicator.EMA(closes, 5)
	e.EMA20 = indicator.EMA(closes, 20)
	e.PrevEMA60 = indicator.PrevEMA(closes, 60)
	e.EMA60 = indicator.EMA(closes, 60)
	if atrP := indicator.ATRPercent(bars, 14); atrP > 0 {
		e.ATRPercent = atrP
	}
	e.Prices = closes
	e.Volumes = vols
	var qty float64
	for _, v := range vols {
		qty += v
	}
	e.TradedQty = qty
	c.updated[CatChart] = now
}

// InvestorNet sums all capital-source net quantities for an instrument.
func (c *Cache) InvestorNet(code string) float64 {
	e, ok := c.entries[code]
	if !ok {
		return 0
	}
	var sum float64
	for _, v := range e.InvestorNet {
		sum += v
	}
	return sum
}

// Age reports how stale a category is. Categories that never updated
// report a zero time, which the caller treats as infinitely stale.
func (c *Cache) Age(cat Category, now time.Time) (time.Duration, bool) {
	ts, ok := c.updated[cat]
	if !ok {
		return 0, false
	}
	return now.Sub(ts), true
}

// Metrics assembles the scoring input bundle for one instrument. Missing
// entries produce the neutral defaults.
func (c *Cache) Metrics(code string) model.StockMetrics {
	e, ok := c.entries[code]
	if !ok {
		e = newEntry()
	}
	return model.StockMetrics{
		Code:       code,
		Price:      e.Price,
		Prices:     e.Prices,
		Volumes:    e.Volumes,
		VWAP:       e.VWAP,
		PrevVWAP:   e.PrevVWAP,
		EMA5:       e.EMA5,
		EMA20:      e.EMA20,
		EMA60:      e.EMA60,
		PrevEMA60:  e.PrevEMA60,
		ATRPercent: e.ATRPercent,
		Strength:   e.Strength,
		VolRatio:   e.VolRatio,
		VolFactor:  volFactor(e.Volumes),
		ProgramNet: e.ProgramNet,
		ForeignNet: e.ForeignNet,
		// The bar window understates the day's turnover early in the
		// session; the cumulative figure from basic info is the floor.
		TradedQty: math.Max(e.TradedQty, e.DayVolume),
	}
}

// volFactor compares the last minute's volume against the prior 4-minute
// average, capped at 2.0. The denominator is floored at 1.
func volFactor(vols []float64) float64 {
	if len(vols) < 5 {
		return 1.0
	}
	var prev float64
	for _, v := range vols[len(vols)-5 : len(vols)-1] {
		prev += v
	}
	avg := prev / 4
	if avg < 1 {
		avg = 1
	}
	f := vols[len(vols)-1] / avg
	if f > 2.0 {
		f = 2.0
	}
	return f
}
