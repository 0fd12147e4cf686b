package market

import (
	"testing"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

// trendBars builds an hourly series whose RSI lands clearly above or below
// the default thresholds, with controllable bar ranges for the ATR side.
func trendBars(start, step, barRange float64, n int) []model.OHLCV {
	out := make([]model.OHLCV, n)
	p := start
	for i := 0; i < n; i++ {
		p += step
		out[i] = model.OHLCV{
			Time:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
			High:   p + barRange/2,
			Low:    p - barRange/2,
			Close:  p,
		}
	}
	return out
}

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		name     string
		rsi      float64
		volatile bool
		want     Regime
	}{
		{"stable bull", 65, false, StableBull},
		{"volatile bull", 65, true, VolatileBull},
		{"quiet bear", 35, false, QuietBear},
		{"panic bear", 35, true, PanicBear},
		{"neutral", 50, false, Neutral},
		{"neutral volatile", 50, true, Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(logger.NewNop())
			a.marketRSI = tt.rsi
			a.isVolatile = tt.volatile
			if got := a.classify(); got != tt.want {
				t.Errorf("classify(rsi=%.0f, volatile=%v) = %s, want %s", tt.rsi, tt.volatile, got, tt.want)
			}
		})
	}
}

func TestUpdate_BullRegimeFromRisingSeries(t *testing.T) {
	a := NewAnalyzer(logger.NewNop())
	a.Update(trendBars(5000, 10, 8, 40))
	st := a.Snapshot()
	if st.MarketRSI < st.HighThreshold {
		t.Fatalf("rising series should push RSI (%.1f) above the high threshold (%.1f)", st.MarketRSI, st.HighThreshold)
	}
	if st.Regime != StableBull && st.Regime != VolatileBull {
		t.Errorf("expected a bull regime, got %s", st.Regime)
	}
}

func TestUpdate_BearRegimeFromFallingSeries(t *testing.T) {
	a := NewAnalyzer(logger.NewNop())
	a.Update(trendBars(5000, -10, 8, 40))
	st := a.Snapshot()
	if st.Regime != QuietBear && st.Regime != PanicBear {
		t.Errorf("expected a bear regime, got %s", st.Regime)
	}
}

func TestUpdate_VolatilitySpike(t *testing.T) {
	a := NewAnalyzer(logger.NewNop())
	// Warm the ATR history with calm bars.
	for i := 0; i < 6; i++ {
		a.Update(trendBars(5000, 10, 4, 40))
	}
	if a.Snapshot().IsVolatile {
		t.Fatal("steady series must not read as volatile")
	}
	// Same trend, triple the bar range: current ATR > 1.1x history mean.
	a.Update(trendBars(5000, 10, 12, 40))
	if !a.Snapshot().IsVolatile {
		t.Error("ATR spike above 1.1x average should flag volatility")
	}
}

func TestThresholds_DefaultsBeforeWarmup(t *testing.T) {
	a := NewAnalyzer(logger.NewNop())
	a.Update(trendBars(5000, 2, 8, 40))
	st := a.Snapshot()
	if st.HighThreshold != defaultHighTh || st.LowThreshold != defaultLowTh {
		t.Errorf("before %d samples thresholds must stay at %0.f/%0.f, got %.1f/%.1f",
			minSamples, defaultHighTh, defaultLowTh, st.HighThreshold, st.LowThreshold)
	}
}

func TestThresholds_ClampedAfterWarmup(t *testing.T) {
	a := NewAnalyzer(logger.NewNop())
	for i := 0; i < 10; i++ {
		a.Update(trendBars(5000, 10, 8, 40)) // RSI pinned near 100
	}
	st := a.Snapshot()
	if st.HighThreshold < 55 || st.HighThreshold > 70 {
		t.Errorf("high threshold %.1f escaped [55,70]", st.HighThreshold)
	}
	if st.LowThreshold < 30 || st.LowThreshold > 45 {
		t.Errorf("low threshold %.1f escaped [30,45]", st.LowThreshold)
	}
}

func TestHistory_Bounded(t *testing.T) {
	a := NewAnalyzer(logger.NewNop())
	for i := 0; i < historyCap+15; i++ {
		a.Update(trendBars(5000, 2, 8, 40))
	}
	if len(a.rsiHistory) != historyCap || len(a.atrHistory) != historyCap {
		t.Errorf("histories must cap at %d, got rsi=%d atr=%d", historyCap, len(a.rsiHistory), len(a.atrHistory))
	}
}
