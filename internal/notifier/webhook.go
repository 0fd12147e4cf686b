package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

// WebhookNotifier posts events as JSON to a configured URL
// (Slack-compatible payload: {"text": ...} plus event metadata).
type WebhookNotifier struct {
	url       string
	client    *http.Client
	log       *logger.Logger
	retryWait time.Duration
}

func NewWebhookNotifier(url string, log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.Named("webhook"),
		retryWait: time.Second,
	}
}

func (w *WebhookNotifier) NotifyBuy(p *model.Position) {
	w.post("buy", FormatBuy(p), map[string]interface{}{
		"code": p.Code, "name": p.Name, "price": p.BuyPrice,
		"score": p.BuyScore, "regime": p.BuyRegime,
		"alpha": p.AlphaScore, "supply": p.SupplyScore,
		"vwap": p.VwapScore, "trend": p.TrendScore,
		"timestamp": p.BuyTime.Format(time.RFC3339),
	})
}

func (w *WebhookNotifier) NotifySell(p *model.Position) {
	w.post("sell", FormatSell(p), map[string]interface{}{
		"code": p.Code, "name": p.Name, "price": p.SellPrice,
		"profit_rate": p.ProfitRate, "reason": p.SellReason,
		"timestamp": p.SellTime.Format(time.RFC3339),
	})
}

func (w *WebhookNotifier) NotifyMomentum(code, name string, score, momentum float64) {
	w.post("momentum", FormatMomentum(code, name, score, momentum), map[string]interface{}{
		"code": code, "score": score, "momentum": momentum,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (w *WebhookNotifier) Critical(msg string) {
	w.post("critical", msg, map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// post delivers one event with bounded retry. Failures are logged and
// swallowed; notification must never stall a cycle.
func (w *WebhookNotifier) post(event, text string, extra map[string]interface{}) {
	payload := map[string]interface{}{"event": event, "text": text}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.log.Error("marshal webhook payload", logger.Pair("error", err.Error()))
		return
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retryWait << (attempt - 1))
		}
		if lastErr = w.send(body); lastErr == nil {
			return
		}
		w.log.Warn("webhook delivery failed",
			logger.Pair("event", event),
			logger.Pair("attempt", attempt+1),
			logger.Pair("error", lastErr.Error()))
	}
	w.log.Error("webhook delivery abandoned",
		logger.Pair("event", event), logger.Pair("error", lastErr.Error()))
}

func (w *WebhookNotifier) send(body []byte) error {
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
