package strategy

import (
	"testing"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

func testProfile() Profile {
	return Profile{
		Weights:           Weights{Alpha: 0.3, Supply: 0.2, Vwap: 0.2, Trend: 0.3},
		Entry:             Thresholds{Strong: 85, Interest: 75, Alert: 70},
		MinScores:         MinScores{Alpha: 10, Supply: 10, Vwap: 10, Trend: 10},
		MomentumThreshold: 10,
		DecayRate:         0.15,
		TargetProfitRate:  0.025,
		StopLossRate:      -0.015,
		TotalLossLimit:    -5,
		DayTradeExitTime:  "15:30",
		EntryDeadline:     "14:30",
	}
}

func at(hour, min int) time.Time {
	// 2026-03-03 is a Tuesday.
	return time.Date(2026, 3, 3, hour, min, 0, 0, time.UTC)
}

func openPos(buyPrice, lastPrice, buyScore, currentScore float64) *model.Position {
	return &model.Position{
		Code:         "005930",
		Status:       model.StatusOpen,
		BuyPrice:     buyPrice,
		BuyScore:     buyScore,
		LastPrice:    lastPrice,
		CurrentScore: currentScore,
	}
}

func mustEvaluator(t *testing.T, p Profile) *ExitEvaluator {
	t.Helper()
	e, err := NewExitEvaluator(p)
	if err != nil {
		t.Fatalf("NewExitEvaluator: %v", err)
	}
	return e
}

func TestExitReason_TimeBeatsStopLoss(t *testing.T) {
	e := mustEvaluator(t, testProfile())
	// -2% against a -1.5% stop, but already inside the forced-exit window:
	// the time rule must win.
	pos := openPos(10000, 9800, 90, 90)
	got := e.ExitReason(pos, at(15, 28))
	if got != "Day Trade Close (3m Early)" {
		t.Errorf("reason = %q, want forced time close", got)
	}
}

func TestExitReason_StopLoss(t *testing.T) {
	e := mustEvaluator(t, testProfile())
	pos := openPos(10000, 9800, 90, 90)
	got := e.ExitReason(pos, at(13, 0))
	if got != "Stop Loss (-2.0%)" {
		t.Errorf("reason = %q, want stop loss", got)
	}
}

func TestExitReason_TakeProfitMomentumOverride(t *testing.T) {
	e := mustEvaluator(t, testProfile())

	// +3% over a +2.5% target with score 90 ≥ strong 85: hold the winner.
	strong := openPos(10000, 10300, 88, 90)
	if got := e.ExitReason(strong, at(13, 0)); got != "" {
		t.Errorf("strong winner should be held, got %q", got)
	}

	// Same profit but the score has faded: take the profit.
	faded := openPos(10000, 10300, 88, 70)
	if got := e.ExitReason(faded, at(13, 0)); got != "Take Profit (+3.0%)" {
		t.Errorf("reason = %q, want take profit", got)
	}
}

func TestExitReason_ScoreDecay(t *testing.T) {
	e := mustEvaluator(t, testProfile())
	// Flat price; score fell from 80 below the 80×0.85=68 floor.
	pos := openPos(10000, 10000, 80, 67)
	if got := e.ExitReason(pos, at(13, 0)); got != "Score Decay (-15%)" {
		t.Errorf("reason = %q, want score decay", got)
	}
	holding := openPos(10000, 10000, 80, 69)
	if got := e.ExitReason(holding, at(13, 0)); got != "" {
		t.Errorf("score above decay floor should hold, got %q", got)
	}
}

func TestExitReason_NoConditionHolds(t *testing.T) {
	e := mustEvaluator(t, testProfile())
	pos := openPos(10000, 10100, 88, 88)
	if got := e.ExitReason(pos, at(13, 0)); got != "" {
		t.Errorf("expected hold, got %q", got)
	}
}

func TestBeforeEntryDeadline(t *testing.T) {
	e := mustEvaluator(t, testProfile())
	if !e.BeforeEntryDeadline(at(14, 29)) {
		t.Error("14:29 should be before the 14:30 deadline")
	}
	if e.BeforeEntryDeadline(at(14, 30)) {
		t.Error("14:30 is not before the deadline")
	}
}

func TestInSession(t *testing.T) {
	e := mustEvaluator(t, testProfile())
	tests := []struct {
		now  time.Time
		want bool
	}{
		{at(8, 29), false},
		{at(8, 30), true},
		{at(12, 0), true},
		{at(15, 30), true},
		{at(15, 31), false},
		{time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), false}, // Saturday
	}
	for _, tt := range tests {
		if got := e.InSession(tt.now); got != tt.want {
			t.Errorf("InSession(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestKillSwitchActivated(t *testing.T) {
	tests := []struct {
		realized, unrealized, limit float64
		want                        bool
	}{
		{-3.0, -2.1, -5.0, true},
		{-3.0, -1.9, -5.0, false},
		{-5.0, 0, -5.0, true},
		{2.0, -4.0, -5.0, false},
	}
	for _, tt := range tests {
		if got := KillSwitchActivated(tt.realized, tt.unrealized, tt.limit); got != tt.want {
			t.Errorf("KillSwitchActivated(%.1f, %.1f, %.1f) = %v, want %v",
				tt.realized, tt.unrealized, tt.limit, got, tt.want)
		}
	}
}

func TestProfileSet_FallbackToDefault(t *testing.T) {
	set, err := NewProfileSet(map[string]Profile{"default": testProfile()})
	if err != nil {
		t.Fatalf("NewProfileSet: %v", err)
	}
	p := set.For("PANIC_BEAR")
	if p.Entry.Strong != 85 {
		t.Errorf("fallback profile strong = %.0f, want 85", p.Entry.Strong)
	}
}

func TestProfileSet_RegimeOverride(t *testing.T) {
	bear := testProfile()
	bear.Entry.Strong = 92
	set, err := NewProfileSet(map[string]Profile{
		"default":    testProfile(),
		"PANIC_BEAR": bear,
	})
	if err != nil {
		t.Fatalf("NewProfileSet: %v", err)
	}
	if got := set.For("PANIC_BEAR").Entry.Strong; got != 92 {
		t.Errorf("PANIC_BEAR strong = %.0f, want 92", got)
	}
	if got := set.For("NEUTRAL").Entry.Strong; got != 85 {
		t.Errorf("NEUTRAL should fall back to default, got %.0f", got)
	}
}

func TestProfileSet_RejectsBadWeights(t *testing.T) {
	bad := testProfile()
	bad.Weights.Alpha = 0.5 // sum now 1.2
	if _, err := NewProfileSet(map[string]Profile{"default": bad}); err == nil {
		t.Fatal("expected error for weights not summing to 1.0")
	}
}

func TestProfileSet_RequiresDefault(t *testing.T) {
	if _, err := NewProfileSet(map[string]Profile{"NEUTRAL": testProfile()}); err == nil {
		t.Fatal("expected error when default profile is missing")
	}
}
