// Package strategy holds the regime-keyed trading parameters, the
// conviction scoring engine, and the exit/kill-switch rules. Everything in
// here is a pure function of its inputs; side effects live with the
// position manager and the engine.
package strategy

import (
	"fmt"
	"math"

	"github.com/SpiceChicken/kiwoom-stock/internal/market"
)

// Weights blends the four sub-scores into the composite. A profile's
// weights must sum to 1.0; the scorer never renormalizes them.
type Weights struct {
	Alpha  float64 `yaml:"alpha"`
	Supply float64 `yaml:"supply"`
	Vwap   float64 `yaml:"vwap"`
	Trend  float64 `yaml:"trend"`
}

func (w Weights) Sum() float64 {
	return w.Alpha + w.Supply + w.Vwap + w.Trend
}

// Thresholds are the composite-score entry bands.
type Thresholds struct {
	Strong   float64 `yaml:"strong"`
	Interest float64 `yaml:"interest"`
	Alert    float64 `yaml:"alert"`
}

// MinScores are per-factor floors an entry candidate must clear. A zero
// floor is disabled; a profile that omits min_thresholds entirely runs
// with no floors.
type MinScores struct {
	Alpha  float64 `yaml:"alpha"`
	Supply float64 `yaml:"supply"`
	Vwap   float64 `yaml:"vwap"`
	Trend  float64 `yaml:"trend"`
}

// Profile is the full parameter set for one market regime.
type Profile struct {
	Weights   Weights    `yaml:"weights"`
	Entry     Thresholds `yaml:"thresholds"`
	MinScores MinScores  `yaml:"min_thresholds"`

	MomentumThreshold float64 `yaml:"momentum_threshold"`
	DecayRate         float64 `yaml:"score_decay_rate"`
	TargetProfitRate  float64 `yaml:"target_profit_rate"` // fraction, positive
	StopLossRate      float64 `yaml:"stop_loss_rate"`     // fraction, negative
	TotalLossLimit    float64 `yaml:"total_loss_limit"`   // percent, negative

	DayTradeExitTime string `yaml:"day_trade_exit_time"` // "15:30"
	EntryDeadline    string `yaml:"entry_deadline"`      // "14:30"
}

func (p Profile) validate(key string) error {
	if math.Abs(p.Weights.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("profile %q: weights sum to %.4f, want 1.0", key, p.Weights.Sum())
	}
	if p.Entry.Strong <= 0 {
		return fmt.Errorf("profile %q: strong threshold must be positive", key)
	}
	if p.StopLossRate >= 0 {
		return fmt.Errorf("profile %q: stop_loss_rate must be negative", key)
	}
	if p.TargetProfitRate <= 0 {
		return fmt.Errorf("profile %q: target_profit_rate must be positive", key)
	}
	if p.DecayRate <= 0 || p.DecayRate >= 1 {
		return fmt.Errorf("profile %q: score_decay_rate must be in (0,1)", key)
	}
	if p.TotalLossLimit >= 0 {
		return fmt.Errorf("profile %q: total_loss_limit must be negative", key)
	}
	if _, err := parseClock(p.DayTradeExitTime); err != nil {
		return fmt.Errorf("profile %q: day_trade_exit_time: %w", key, err)
	}
	if _, err := parseClock(p.EntryDeadline); err != nil {
		return fmt.Errorf("profile %q: entry_deadline: %w", key, err)
	}
	return nil
}

// ProfileSet maps regimes to profiles with the mandatory default fallback
// resolved once at construction, not on every lookup.
type ProfileSet struct {
	byRegime map[market.Regime]Profile
	fallback Profile
}

// NewProfileSet validates every profile and requires a "default" entry.
func NewProfileSet(profiles map[string]Profile) (*ProfileSet, error) {
	def, ok := profiles["default"]
	if !ok {
		return nil, fmt.Errorf("strategy config requires a %q profile", "default")
	}
	set := &ProfileSet{byRegime: make(map[market.Regime]Profile), fallback: def}
	for key, p := range profiles {
		if err := p.validate(key); err != nil {
			return nil, err
		}
		if key == "default" {
			continue
		}
		set.byRegime[market.Regime(key)] = p
	}
	return set, nil
}

// For returns the active regime's profile, or the default when the regime
// has no explicit entry (including UNKNOWN at startup).
func (s *ProfileSet) For(r market.Regime) Profile {
	if p, ok := s.byRegime[r]; ok {
		return p
	}
	return s.fallback
}
