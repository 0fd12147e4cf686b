package market

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestCache_LazyDefaults(t *testing.T) {
	c := NewCache()
	m := c.Metrics("005930")
	if m.Strength != 100.0 {
		t.Errorf("default strength = %.1f, want 100", m.Strength)
	}
	if m.VWAP != 1.0 || m.PrevVWAP != 1.0 {
		t.Errorf("default VWAP denominators must be 1, got %.1f/%.1f", m.VWAP, m.PrevVWAP)
	}
	if m.VolFactor != 1.0 {
		t.Errorf("default volume factor = %.2f, want 1", m.VolFactor)
	}
	if m.ATRPercent <= 0 {
		t.Errorf("default ATR%% must be positive, got %.2f", m.ATRPercent)
	}
}

func TestCache_PartialFailureIsolation(t *testing.T) {
	c := NewCache()
	c.SetProgramTrades(map[string]ProgramStat{"005930": {NetAmount: 120, Ratio: 3.4}}, t0)
	c.SetForeignWindow(map[string]ForeignStat{"005930": {NetAmount: 80, Turnover: 900}}, t0)

	// Next cycle: the foreign-window fetch fails, so only program trade
	// updates. The foreign values must survive untouched.
	c.SetProgramTrades(map[string]ProgramStat{"005930": {NetAmount: -40, Ratio: 1.1}}, t0.Add(time.Minute))

	m := c.Metrics("005930")
	if m.ProgramNet != -40 {
		t.Errorf("program net = %.0f, want -40", m.ProgramNet)
	}
	if m.ForeignNet != 80 {
		t.Errorf("foreign net was zeroed: got %.0f, want 80", m.ForeignNet)
	}

	age, ok := c.Age(CatForeign, t0.Add(time.Minute))
	if !ok || age != time.Minute {
		t.Errorf("foreign category age = %v (ok=%v), want 1m", age, ok)
	}
	age, ok = c.Age(CatProgram, t0.Add(time.Minute))
	if !ok || age != 0 {
		t.Errorf("program category age = %v (ok=%v), want 0", age, ok)
	}
}

func TestCache_NeverFetchedCategoryReportsUnknownAge(t *testing.T) {
	c := NewCache()
	if _, ok := c.Age(CatStrength, t0); ok {
		t.Error("never-updated category must report no timestamp")
	}
}

func TestCache_InvestorFlowsPerSource(t *testing.T) {
	c := NewCache()
	c.SetInvestorFlows("foreign", map[string]float64{"005930": 1500}, t0)
	c.SetInvestorFlows("institution", map[string]float64{"005930": -400}, t0)
	if got := c.InvestorNet("005930"); got != 1100 {
		t.Errorf("summed investor net = %.0f, want 1100", got)
	}
	// A refresh of one source must not clobber the other.
	c.SetInvestorFlows("foreign", map[string]float64{"005930": 2000}, t0.Add(time.Minute))
	if got := c.InvestorNet("005930"); got != 1600 {
		t.Errorf("after foreign refresh net = %.0f, want 1600", got)
	}
}

func TestVolFactor(t *testing.T) {
	tests := []struct {
		name string
		vols []float64
		want float64
	}{
		{"short series", []float64{10, 20}, 1.0},
		{"surge capped", []float64{100, 100, 100, 100, 1000}, 2.0},
		{"normal", []float64{100, 100, 100, 100, 150}, 1.5},
		{"zero prior volume", []float64{0, 0, 0, 0, 3}, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := volFactor(tt.vols); got != tt.want {
				t.Errorf("volFactor(%v) = %.2f, want %.2f", tt.vols, got, tt.want)
			}
		})
	}
}

func TestCache_SetChartDerivesFields(t *testing.T) {
	c := NewCache()
	bars := trendBars(70000, 100, 200, 80)
	for i := range bars {
		bars[i].Volume = 1000
	}
	c.SetChart("005930", bars, t0)
	m := c.Metrics("005930")
	if m.Price != bars[len(bars)-1].Close {
		t.Errorf("price = %.0f, want last close %.0f", m.Price, bars[len(bars)-1].Close)
	}
	if m.EMA5 <= m.EMA60 {
		t.Errorf("rising series should order EMAs: ema5=%.1f ema60=%.1f", m.EMA5, m.EMA60)
	}
	if m.VWAP <= 1.0 {
		t.Errorf("VWAP not computed: %.2f", m.VWAP)
	}
	if m.TradedQty != 80*1000 {
		t.Errorf("traded qty = %.0f, want 80000", m.TradedQty)
	}
}

func TestCache_DayVolumeFloorsTradedQty(t *testing.T) {
	c := NewCache()
	bars := trendBars(70000, 100, 200, 10)
	for i := range bars {
		bars[i].Volume = 1000
	}
	c.SetChart("005930", bars, t0)
	c.SetBasic("005930", 150, 5000000, t0)

	// Ten minute bars cover 10k shares; the day has already traded 5M.
	if m := c.Metrics("005930"); m.TradedQty != 5000000 {
		t.Errorf("traded qty = %.0f, want day cumulative 5000000", m.TradedQty)
	}

	// Once the window sum overtakes a stale cumulative figure it wins.
	c.SetBasic("005930", 150, 2000, t0)
	if m := c.Metrics("005930"); m.TradedQty != 10*1000 {
		t.Errorf("traded qty = %.0f, want window sum 10000", m.TradedQty)
	}
}
