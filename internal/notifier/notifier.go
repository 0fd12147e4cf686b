// Package notifier fans trade events out to the configured sinks.
// Delivery is best-effort: a failed sink is logged and never aborts
// the trading cycle.
package notifier

import (
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

// Notifier receives trade lifecycle events.
type Notifier interface {
	NotifyBuy(p *model.Position)
	NotifySell(p *model.Position)
	// NotifyMomentum fires when a watched instrument's score jumps by
	// more than the profile's momentum threshold in one cycle. score is
	// the current total, momentum the one-cycle delta.
	NotifyMomentum(code, name string, score, momentum float64)
	// Critical is reserved for events an operator must see: kill-switch
	// trips, storage failures, session aborts.
	Critical(msg string)
}

// Multi forwards every event to each child notifier in order.
type Multi struct {
	sinks []Notifier
}

func NewMulti(sinks ...Notifier) *Multi { return &Multi{sinks: sinks} }

func (m *Multi) NotifyBuy(p *model.Position) {
	for _, s := range m.sinks {
		s.NotifyBuy(p)
	}
}

func (m *Multi) NotifySell(p *model.Position) {
	for _, s := range m.sinks {
		s.NotifySell(p)
	}
}

func (m *Multi) NotifyMomentum(code, name string, score, momentum float64) {
	for _, s := range m.sinks {
		s.NotifyMomentum(code, name, score, momentum)
	}
}

func (m *Multi) Critical(msg string) {
	for _, s := range m.sinks {
		s.Critical(msg)
	}
}

// LogNotifier writes events to the structured log. Always installed so
// every signal lands in trading.log even with no webhook configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("signal")}
}

func (n *LogNotifier) NotifyBuy(p *model.Position) {
	n.log.Info(FormatBuy(p),
		logger.Pair("code", p.Code),
		logger.Pair("score", p.BuyScore),
		logger.Pair("price", p.BuyPrice),
		logger.Pair("regime", p.BuyRegime))
}

func (n *LogNotifier) NotifySell(p *model.Position) {
	n.log.Info(FormatSell(p),
		logger.Pair("code", p.Code),
		logger.Pair("profit_rate", p.ProfitRate),
		logger.Pair("reason", p.SellReason),
		logger.Pair("held", p.SellTime.Sub(p.BuyTime).Round(time.Second).String()))
}

func (n *LogNotifier) NotifyMomentum(code, name string, score, momentum float64) {
	n.log.Info(FormatMomentum(code, name, score, momentum),
		logger.Pair("code", code),
		logger.Pair("score", score),
		logger.Pair("momentum", momentum))
}

func (n *LogNotifier) Critical(msg string) {
	n.log.Error(msg)
}
