package market

import (
	"math"

	"github.com/SpiceChicken/kiwoom-stock/internal/indicator"
	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

const (
	historyCap    = 20
	minSamples    = 5
	defaultHighTh = 60.0
	defaultLowTh  = 40.0
	volThreshold  = 1.1
	rsiPeriod     = 14
	atrPeriod     = 14
)

// Analyzer classifies the market regime from the index proxy's hourly bars.
// It is the single writer of regime state; a failed update leaves the
// previous classification in place.
type Analyzer struct {
	log *logger.Logger

	regime     Regime
	marketRSI  float64
	atr        float64
	isVolatile bool

	rsiHistory []float64 // ring, capacity historyCap
	atrHistory []float64

	highTh float64
	lowTh  float64
}

func NewAnalyzer(log *logger.Logger) *Analyzer {
	return &Analyzer{
		log:    log.Named("regime"),
		regime: Unknown,
		highTh: defaultHighTh,
		lowTh:  defaultLowTh,
	}
}

// Update recomputes RSI/ATR from the proxy bars and reclassifies the
// regime. Bars are oldest-first.
func (a *Analyzer) Update(bars []model.OHLCV) {
	if len(bars) < 2 {
		return
	}
	closes := model.Closes(bars)
	a.marketRSI = indicator.RSI(closes, rsiPeriod)

	// Average of the most recent true ranges, tolerant of short warm-up
	// windows (the proxy chart can be shallow right after the open).
	trs := indicator.TrueRanges(bars)
	if len(trs) > atrPeriod {
		trs = trs[len(trs)-atrPeriod:]
	}
	a.atr = mean(trs)

	a.rsiHistory = pushBounded(a.rsiHistory, a.marketRSI, historyCap)
	a.atrHistory = pushBounded(a.atrHistory, a.atr, historyCap)
	a.recomputeThresholds()

	avgATR := a.atr // volatility unknown defaults to "not volatile"
	if len(a.atrHistory) >= minSamples {
		avgATR = mean(a.atrHistory)
	}
	a.isVolatile = a.atr > avgATR*volThreshold

	prev := a.regime
	a.regime = a.classify()
	if prev != a.regime {
		a.log.Info("market regime changed",
			logger.Pair("from", string(prev)),
			logger.Pair("to", string(a.regime)),
			logger.Pair("rsi", a.marketRSI),
			logger.Pair("volatile", a.isVolatile))
	}
}

func (a *Analyzer) classify() Regime {
	switch {
	case a.marketRSI >= a.highTh:
		if a.isVolatile {
			return VolatileBull
		}
		return StableBull
	case a.marketRSI <= a.lowTh:
		if a.isVolatile {
			return PanicBear
		}
		return QuietBear
	default:
		return Neutral
	}
}

// recomputeThresholds derives the RSI entry bands from recent history,
// clamped so a trending sample set cannot degenerate them.
func (a *Analyzer) recomputeThresholds() {
	if len(a.rsiHistory) < minSamples {
		a.highTh, a.lowTh = defaultHighTh, defaultLowTh
		return
	}
	m := mean(a.rsiHistory)
	sd := stdev(a.rsiHistory, m)
	a.highTh = clamp(m+0.5*sd, 55, 70)
	a.lowTh = clamp(m-0.5*sd, 30, 45)
}

// Snapshot returns the current regime view.
func (a *Analyzer) Snapshot() RegimeState {
	return RegimeState{
		Regime:        a.regime,
		MarketRSI:     a.marketRSI,
		ATR:           a.atr,
		IsVolatile:    a.isVolatile,
		HighThreshold: a.highTh,
		LowThreshold:  a.lowTh,
		VolThreshold:  volThreshold,
	}
}

// Regime returns the current classification without copying history.
func (a *Analyzer) Regime() Regime { return a.regime }

func pushBounded(s []float64, v float64, capacity int) []float64 {
	s = append(s, v)
	if len(s) > capacity {
		s = s[1:]
	}
	return s
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stdev is the sample standard deviation.
func stdev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
