package notifier

import (
	"fmt"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

// FormatBuy renders a buy execution as a single human-readable line.
func FormatBuy(p *model.Position) string {
	return fmt.Sprintf("🔥 [매수 실행] %s(%s) | 점수: %.1f | 가격: %.0f원",
		p.Name, p.Code, p.BuyScore, p.BuyPrice)
}

// FormatSell renders a sell execution with signed profit and reason.
func FormatSell(p *model.Position) string {
	return fmt.Sprintf("📉 [매도 실행] %s | 수익률: %+.2f%% | 사유: %s",
		p.Name, p.ProfitRate, p.SellReason)
}

// FormatMomentum renders a score-surge alert with the current total and
// the one-cycle delta.
func FormatMomentum(code, name string, score, momentum float64) string {
	return fmt.Sprintf("🚀 [수급 폭발] %s(%s) 점수 %.1f 급상승! (%+.1f)", name, code, score, momentum)
}
