package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

func TestWebhook_PostsBuyEvent(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, logger.NewNop())
	n.NotifyBuy(&model.Position{
		Code: "005930", Name: "삼성전자", BuyPrice: 71000,
		BuyScore: 88.5, AlphaScore: 92, SupplyScore: 85, VwapScore: 90, TrendScore: 87,
		BuyRegime: "STABLE_BULL", BuyTime: time.Date(2026, 3, 3, 10, 15, 0, 0, time.UTC),
	})

	if got["event"] != "buy" {
		t.Errorf("event = %v, want buy", got["event"])
	}
	if got["code"] != "005930" {
		t.Errorf("code = %v", got["code"])
	}
	if text, _ := got["text"].(string); !strings.Contains(text, "삼성전자") {
		t.Errorf("text missing name: %q", text)
	}
	// The buy event carries the full score breakdown and the entry time.
	for key, want := range map[string]float64{"alpha": 92, "supply": 85, "vwap": 90, "trend": 87} {
		if got[key] != want {
			t.Errorf("%s = %v, want %v", key, got[key], want)
		}
	}
	if got["timestamp"] != "2026-03-03T10:15:00Z" {
		t.Errorf("timestamp = %v", got["timestamp"])
	}
}

func TestWebhook_SellAndMomentumCarryTimestamps(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, logger.NewNop())

	n.NotifySell(&model.Position{
		Code: "005930", Name: "삼성전자", SellPrice: 72500, ProfitRate: 2.11,
		SellReason: "Target Profit (2.5%)", SellTime: time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC),
	})
	if got["timestamp"] != "2026-03-03T11:00:00Z" {
		t.Errorf("sell timestamp = %v", got["timestamp"])
	}

	n.NotifyMomentum("005930", "삼성전자", 91.2, 12.5)
	if got["score"] != 91.2 || got["momentum"] != 12.5 {
		t.Errorf("momentum payload = %v", got)
	}
	if ts, _ := got["timestamp"].(string); ts == "" {
		t.Error("momentum event missing timestamp")
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, logger.NewNop())
	n.retryWait = time.Millisecond
	n.Critical("KILL-SWITCH ACTIVATED")

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhook_GivesUpSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, logger.NewNop())
	n.retryWait = time.Millisecond
	// Must return, not panic or block, after exhausting retries.
	n.NotifyMomentum("005930", "삼성전자", 91.2, 12.5)
}

func TestFormatSell(t *testing.T) {
	p := &model.Position{Name: "삼성전자", ProfitRate: -1.52, SellReason: "Stop Loss (-1.5%)"}
	got := FormatSell(p)
	if !strings.Contains(got, "-1.52%") || !strings.Contains(got, "Stop Loss (-1.5%)") {
		t.Errorf("FormatSell = %q", got)
	}
}

func TestFormatMomentum_SignedDelta(t *testing.T) {
	got := FormatMomentum("005930", "삼성전자", 91.2, 12.5)
	if !strings.Contains(got, "+12.5") {
		t.Errorf("FormatMomentum = %q, want signed delta", got)
	}
	if !strings.Contains(got, "91.2") {
		t.Errorf("FormatMomentum = %q, want current score", got)
	}
}
