// Package indicator holds the pure technical-indicator math. All series
// arguments are oldest-first. RSI and ATR are hand-rolled because the
// strategy depends on their exact warm-up and smoothing behavior; EMA and
// Bollinger delegate to talib.
package indicator

import (
	"github.com/markcheno/go-talib"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

// RSI computes the Wilder-smoothed relative strength index over closes.
// The initial averages are seeded from the first `period` changes and then
// smoothed across the remainder of the series. Returns the neutral 50.0
// when fewer than period+1 samples exist.
func RSI(closes []float64, period int) float64 {
	if period < 2 || len(closes) < period+1 {
		return 50.0
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// TrueRanges returns the true-range series for a bar sequence. The first
// bar has no previous close and contributes nothing.
func TrueRanges(bars []model.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		h, l, pc := bars[i].High, bars[i].Low, bars[i-1].Close
		tr := h - l
		if d := abs(h - pc); d > tr {
			tr = d
		}
		if d := abs(l - pc); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}
	return trs
}

// ATR is the mean of the most recent `period` true ranges. Returns 0 when
// fewer than period+1 bars exist.
func ATR(bars []model.OHLCV, period int) float64 {
	if len(bars) < period+1 {
		return 0.0
	}
	trs := TrueRanges(bars)
	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

// ATRPercent expresses ATR relative to the latest close, in percent.
func ATRPercent(bars []model.OHLCV, period int) float64 {
	if len(bars) == 0 {
		return 0.0
	}
	last := bars[len(bars)-1].Close
	if last <= 0 {
		return 0.0
	}
	return ATR(bars, period) / last * 100
}

// EMA returns the latest exponential moving average value, or 0 when the
// series is shorter than the period.
func EMA(values []float64, period int) float64 {
	if len(values) < period {
		return 0.0
	}
	out := talib.Ema(values, period)
	return out[len(out)-1]
}

// PrevEMA returns the EMA as of one sample ago.
func PrevEMA(values []float64, period int) float64 {
	if len(values) < period+1 {
		return 0.0
	}
	return EMA(values[:len(values)-1], period)
}

// Bollinger returns the (upper, mid, lower) bands over the trailing window.
func Bollinger(closes []float64, period int, stdDev float64) (upper, mid, lower float64) {
	if len(closes) < period {
		return 0, 0, 0
	}
	up, md, lo := talib.BBands(closes, period, stdDev, stdDev, talib.SMA)
	n := len(closes) - 1
	return up[n], md[n], lo[n]
}

// VWAP is the volume-weighted average price of the bar window. The volume
// denominator is floored at 1 so a zero-volume window cannot divide by zero.
func VWAP(bars []model.OHLCV) float64 {
	var pv, v float64
	for _, b := range bars {
		pv += b.Close * b.Volume
		v += b.Volume
	}
	if v < 1 {
		v = 1
	}
	return pv / v
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
