package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

func bars(hlc ...[3]float64) []model.OHLCV {
	out := make([]model.OHLCV, len(hlc))
	for i, v := range hlc {
		out[i] = model.OHLCV{
			Time:   time.Date(2026, 3, 2, 9, i, 0, 0, time.UTC),
			High:   v[0],
			Low:    v[1],
			Close:  v[2],
			Volume: 1000,
		}
	}
	return out
}

func TestRSI_InsufficientData(t *testing.T) {
	if got := RSI([]float64{100, 101, 102}, 14); got != 50.0 {
		t.Errorf("expected neutral 50 for short series, got %.2f", got)
	}
}

func TestRSI_AllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if got := RSI(closes, 14); got != 100.0 {
		t.Errorf("expected RSI 100 for monotonic rise, got %.2f", got)
	}
}

func TestRSI_AllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	got := RSI(closes, 14)
	if got > 1e-9 {
		t.Errorf("expected RSI ~0 for monotonic fall, got %.4f", got)
	}
}

func TestRSI_Bounds(t *testing.T) {
	closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.0, 45.9, 46.2, 45.6, 46.3, 46.3, 46.0}
	got := RSI(closes, 14)
	if got < 0 || got > 100 {
		t.Fatalf("RSI out of range: %.2f", got)
	}
	if got < 50 {
		t.Errorf("mostly-rising series should score above 50, got %.2f", got)
	}
}

func TestATR_Exact(t *testing.T) {
	bs := bars(
		[3]float64{10, 9, 9.5},
		[3]float64{10.5, 8.5, 10},
		[3]float64{12, 10, 11},
		[3]float64{11.5, 10.5, 11},
	)
	trs := TrueRanges(bs)
	if len(trs) != 3 {
		t.Fatalf("expected 3 true ranges, got %d", len(trs))
	}
	if trs[0] != 2.0 || trs[1] != 2.0 || trs[2] != 1.0 {
		t.Fatalf("true ranges = %v, want [2 2 1]", trs)
	}
	want := (trs[0] + trs[1] + trs[2]) / 3
	if got := ATR(bs, 3); math.Abs(got-want) > 1e-12 {
		t.Errorf("ATR(3) = %.6f, want %.6f", got, want)
	}
}

func TestATR_InsufficientData(t *testing.T) {
	bs := bars([3]float64{10, 9, 9.5}, [3]float64{10.5, 8.5, 10})
	if got := ATR(bs, 14); got != 0 {
		t.Errorf("expected 0 for short series, got %.2f", got)
	}
}

func TestATRPercent(t *testing.T) {
	bs := bars(
		[3]float64{102, 98, 100},
		[3]float64{103, 99, 100},
		[3]float64{103, 99, 100},
		[3]float64{103, 99, 100},
	)
	// every TR = 4 on a price of 100 → 4%
	if got := ATRPercent(bs, 3); math.Abs(got-4.0) > 1e-9 {
		t.Errorf("ATRPercent = %.4f, want 4.0", got)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	vals := make([]float64, 80)
	for i := range vals {
		vals[i] = 5500
	}
	if got := EMA(vals, 60); math.Abs(got-5500) > 1e-6 {
		t.Errorf("EMA of constant series = %.4f, want 5500", got)
	}
	if got := PrevEMA(vals, 60); math.Abs(got-5500) > 1e-6 {
		t.Errorf("PrevEMA of constant series = %.4f, want 5500", got)
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	if got := EMA([]float64{1, 2, 3}, 20); got != 0 {
		t.Errorf("expected 0 for short series, got %.4f", got)
	}
}

func TestBollinger(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 100
	}
	up, mid, lo := Bollinger(vals, 20, 2.0)
	if mid != 100 || up != 100 || lo != 100 {
		t.Errorf("flat series bands = (%.2f, %.2f, %.2f), want all 100", up, mid, lo)
	}
}

func TestVWAP(t *testing.T) {
	bs := []model.OHLCV{
		{Close: 100, Volume: 100},
		{Close: 110, Volume: 300},
	}
	want := (100*100.0 + 110*300.0) / 400.0
	if got := VWAP(bs); math.Abs(got-want) > 1e-9 {
		t.Errorf("VWAP = %.4f, want %.4f", got, want)
	}
}

func TestVWAP_ZeroVolume(t *testing.T) {
	bs := []model.OHLCV{{Close: 100, Volume: 0}}
	if got := VWAP(bs); math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("VWAP must stay finite on zero volume, got %v", got)
	}
}
