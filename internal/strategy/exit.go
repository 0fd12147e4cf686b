package strategy

import (
	"fmt"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

const forcedExitLeadMinutes = 3

// ExitEvaluator applies one regime profile's exit rules. Clock strings are
// parsed once at construction; evaluation happens every cycle for every
// open position.
type ExitEvaluator struct {
	profile       Profile
	forcedExitMin int // minutes since midnight, exit time minus the lead
	deadlineMin   int
	sessionEndMin int
}

func NewExitEvaluator(p Profile) (*ExitEvaluator, error) {
	exitMin, err := parseClock(p.DayTradeExitTime)
	if err != nil {
		return nil, fmt.Errorf("day_trade_exit_time: %w", err)
	}
	deadlineMin, err := parseClock(p.EntryDeadline)
	if err != nil {
		return nil, fmt.Errorf("entry_deadline: %w", err)
	}
	return &ExitEvaluator{
		profile:       p,
		forcedExitMin: exitMin - forcedExitLeadMinutes,
		deadlineMin:   deadlineMin,
		sessionEndMin: exitMin,
	}, nil
}

// ExitReason checks the exit conditions in strict priority order and
// returns the matched reason, or "" to keep holding. The time-based close
// always wins; a winner with a still-strong score skips take-profit.
func (e *ExitEvaluator) ExitReason(pos *model.Position, now time.Time) string {
	profitRate := pos.LastPrice/pos.BuyPrice - 1

	if minutesOfDay(now) >= e.forcedExitMin {
		return "Day Trade Close (3m Early)"
	}

	if profitRate <= e.profile.StopLossRate {
		return fmt.Sprintf("Stop Loss (%.1f%%)", profitRate*100)
	}

	if profitRate >= e.profile.TargetProfitRate {
		if pos.CurrentScore >= e.profile.Entry.Strong {
			return "" // let the winner run
		}
		return fmt.Sprintf("Take Profit (+%.1f%%)", profitRate*100)
	}

	if pos.CurrentScore < pos.BuyScore*(1-e.profile.DecayRate) {
		return fmt.Sprintf("Score Decay (-%.0f%%)", e.profile.DecayRate*100)
	}

	return ""
}

// BeforeEntryDeadline reports whether new entries are still allowed.
func (e *ExitEvaluator) BeforeEntryDeadline(now time.Time) bool {
	return minutesOfDay(now) < e.deadlineMin
}

// InSession reports whether the clock is inside trading hours on a
// weekday. The session opens at 08:30 and ends at the day-trade exit time.
func (e *ExitEvaluator) InSession(now time.Time) bool {
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	m := minutesOfDay(now)
	return m >= 8*60+30 && m <= e.sessionEndMin
}

// KillSwitchActivated reports whether the combined realized and unrealized
// percentage P&L has breached the account loss limit (a negative percent).
func KillSwitchActivated(realizedPnL, unrealizedPnL, limit float64) bool {
	return realizedPnL+unrealizedPnL <= limit
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// parseClock converts an "HH:MM" string to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}
