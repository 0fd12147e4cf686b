package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

const (
	maxAttempts   = 3
	tokenHeadroom = 60 * time.Second
	chartTimeFmt  = "20060102150405"
)

// KiwoomFetcher implements Fetcher against the Kiwoom REST API.
type KiwoomFetcher struct {
	baseURL   string
	appKey    string
	secretKey string
	client    *http.Client
	log       *logger.Logger
	retryWait time.Duration

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewKiwoomFetcher(baseURL, appKey, secretKey string, log *logger.Logger) *KiwoomFetcher {
	return &KiwoomFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appKey:    appKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.Named("kiwoom"),
		retryWait: time.Second,
	}
}

func (f *KiwoomFetcher) Name() string { return "kiwoom" }

// token returns a cached access token, refreshing it when within the
// headroom of expiry so a token never dies mid-cycle.
func (f *KiwoomFetcher) token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.accessToken != "" && time.Now().Before(f.tokenExpiry.Add(-tokenHeadroom)) {
		return f.accessToken, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     f.appKey,
		"secretkey":  f.secretKey,
	})

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(f.retryWait << (attempt - 1))
		}
		req, err := http.NewRequest(http.MethodPost, f.baseURL+"/oauth2/token", bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			f.log.Warn("token request failed", logger.Pair("attempt", attempt+1), logger.Pair("error", err.Error()))
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("token: status %d: %s", resp.StatusCode, string(body))
			f.log.Warn("token request rejected", logger.Pair("status", resp.StatusCode))
			continue
		}

		var out struct {
			Token     string `json:"token"`
			ExpiresIn int64  `json:"expires_in"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode token: %w", err)
		}
		if out.Token == "" {
			return "", fmt.Errorf("token: empty token in response")
		}
		if out.ExpiresIn <= 0 {
			out.ExpiresIn = 82800
		}
		f.accessToken = out.Token
		f.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
		f.log.Info("access token issued", logger.Pair("expires_in", out.ExpiresIn))
		return f.accessToken, nil
	}
	return "", fmt.Errorf("token: %w: %v", ErrExhausted, lastErr)
}

// call posts one API request and decodes the body into out. Transport
// failures and 5xx responses retry with exponential backoff; a non-zero
// return_code becomes an *APIError and is never retried.
func (f *KiwoomFetcher) call(endpoint, apiID string, payload map[string]string, out interface{}) error {
	tok, err := f.token()
	if err != nil {
		return err
	}
	body, _ := json.Marshal(payload)
	reqID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(f.retryWait << (attempt - 1))
		}
		req, err := http.NewRequest(http.MethodPost, f.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
		req.Header.Set("authorization", "Bearer "+tok)
		req.Header.Set("api-id", apiID)
		req.Header.Set("x-request-id", reqID)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			f.log.Warn("request failed",
				logger.Pair("api_id", apiID), logger.Pair("req_id", reqID),
				logger.Pair("attempt", attempt+1), logger.Pair("error", err.Error()))
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s: status %d", apiID, resp.StatusCode)
			f.log.Warn("server error", logger.Pair("api_id", apiID), logger.Pair("status", resp.StatusCode))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: status %d: %s", apiID, resp.StatusCode, string(raw))
		}

		var envelope struct {
			ReturnCode *int   `json:"return_code"`
			ReturnMsg  string `json:"return_msg"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("%s: decode envelope: %w", apiID, err)
		}
		if envelope.ReturnCode != nil && *envelope.ReturnCode != 0 {
			return &APIError{Code: *envelope.ReturnCode, Message: envelope.ReturnMsg}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode body: %w", apiID, err)
		}
		return nil
	}
	return fmt.Errorf("%s: %w: %v", apiID, ErrExhausted, lastErr)
}

func (f *KiwoomFetcher) TopTurnover(marketTp string) ([]Instrument, error) {
	var resp struct {
		Items []struct {
			Code     string `json:"stk_cd"`
			Name     string `json:"stk_nm"`
			Price    string `json:"cur_prc"`
			Turnover string `json:"trde_prica"`
		} `json:"trde_prica_upper"`
	}
	payload := map[string]string{
		"mrkt_tp":        marketTp,
		"mang_stk_incls": "0",
		"stex_tp":        "1",
	}
	if err := f.call("/api/dostk/rkinfo", "ka10032", payload, &resp); err != nil {
		return nil, err
	}
	out := make([]Instrument, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Code == "" {
			continue
		}
		out = append(out, Instrument{
			Code:     bareCode(it.Code),
			Name:     it.Name,
			Turnover: CleanNumeric(it.Turnover),
			Price:    math.Abs(CleanNumeric(it.Price)),
		})
	}
	return out, nil
}

// MinuteChart returns bars oldest-first; the API replies newest-first.
// Prices arrive with sign prefixes meaning direction, not value.
func (f *KiwoomFetcher) MinuteChart(code, tic string) ([]model.OHLCV, error) {
	var resp struct {
		Items []struct {
			Close  string `json:"cur_prc"`
			Open   string `json:"open_pric"`
			High   string `json:"high_pric"`
			Low    string `json:"low_pric"`
			Volume string `json:"trde_qty"`
			Time   string `json:"cntr_tm"`
		} `json:"stk_min_pole_chart_qry"`
	}
	payload := map[string]string{
		"stk_cd":       code,
		"tic_scope":    tic,
		"upd_stkpc_tp": "1",
	}
	if err := f.call("/api/dostk/chart", "ka10080", payload, &resp); err != nil {
		return nil, err
	}
	bars := make([]model.OHLCV, 0, len(resp.Items))
	for i := len(resp.Items) - 1; i >= 0; i-- {
		it := resp.Items[i]
		ts, _ := time.ParseInLocation(chartTimeFmt, it.Time, time.Local)
		bars = append(bars, model.OHLCV{
			Time:   ts,
			Open:   math.Abs(CleanNumeric(it.Open)),
			High:   math.Abs(CleanNumeric(it.High)),
			Low:    math.Abs(CleanNumeric(it.Low)),
			Close:  math.Abs(CleanNumeric(it.Close)),
			Volume: CleanNumeric(it.Volume),
		})
	}
	return bars, nil
}

func (f *KiwoomFetcher) InvestorFlows(marketTp, investorTp string) ([]InvestorFlow, error) {
	var resp struct {
		Items []struct {
			Code   string `json:"stk_cd"`
			NetQty string `json:"netprps_qty"`
		} `json:"stk_invsr_smtm_netprps_qry"`
	}
	frgnAll := "0"
	if investorTp == "6" {
		frgnAll = "1"
	}
	payload := map[string]string{
		"mrkt_tp":         marketTp,
		"amt_qty_tp":      "1",
		"invsr":           investorTp,
		"frgn_all":        frgnAll,
		"smtm_netprps_tp": "0",
		"stex_tp":         "3",
	}
	if err := f.call("/api/dostk/mrkcond", "ka10063", payload, &resp); err != nil {
		return nil, err
	}
	out := make([]InvestorFlow, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Code == "" {
			continue
		}
		out = append(out, InvestorFlow{Code: bareCode(it.Code), NetQty: CleanNumeric(it.NetQty)})
	}
	return out, nil
}

func (f *KiwoomFetcher) ProgramTrade() ([]ProgramTrade, error) {
	var resp struct {
		Items []struct {
			Code      string `json:"stk_cd"`
			NetAmount string `json:"netprps_prica"`
			Ratio     string `json:"all_trde_rt"`
		} `json:"prm_netprps_upper_50"`
	}
	payload := map[string]string{
		"trde_upper_tp": "2",
		"amt_qty_tp":    "1",
		"mrkt_tp":       "P00101",
		"stex_tp":       "1",
	}
	if err := f.call("/api/dostk/rkinfo", "ka90003", payload, &resp); err != nil {
		return nil, err
	}
	out := make([]ProgramTrade, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Code == "" {
			continue
		}
		out = append(out, ProgramTrade{
			Code:      bareCode(it.Code),
			NetAmount: CleanNumeric(it.NetAmount),
			Ratio:     CleanNumeric(it.Ratio),
		})
	}
	return out, nil
}

func (f *KiwoomFetcher) ForeignWindow() ([]ForeignWindow, error) {
	var resp struct {
		Items []struct {
			Code      string `json:"stk_cd"`
			NetAmount string `json:"netprps_prica"`
			Turnover  string `json:"trde_prica"`
		} `json:"frgn_wicket_trde_upper"`
	}
	payload := map[string]string{
		"mrkt_tp": "000",
		"dt":      "0",
		"stex_tp": "1",
	}
	if err := f.call("/api/dostk/rkinfo", "ka10034", payload, &resp); err != nil {
		return nil, err
	}
	out := make([]ForeignWindow, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Code == "" {
			continue
		}
		turnover := CleanNumeric(it.Turnover)
		if turnover == 0 {
			turnover = 1 // denominator guard
		}
		out = append(out, ForeignWindow{
			Code:      bareCode(it.Code),
			NetAmount: CleanNumeric(it.NetAmount),
			Turnover:  turnover,
		})
	}
	return out, nil
}

// TickStrength returns the latest contract-strength reading, 100
// (neutral) when the series is empty.
func (f *KiwoomFetcher) TickStrength(code string) (float64, error) {
	var resp struct {
		Items []struct {
			Strength string `json:"cntr_str"`
		} `json:"cntr_str_tm"`
	}
	payload := map[string]string{"stk_cd": code}
	if err := f.call("/api/dostk/mrkcond", "ka10046", payload, &resp); err != nil {
		return 0, err
	}
	if len(resp.Items) == 0 {
		return 100.0, nil
	}
	return CleanNumeric(resp.Items[0].Strength), nil
}

func (f *KiwoomFetcher) BasicInfo(code string) (BasicInfo, error) {
	var resp struct {
		Name     string `json:"stk_nm"`
		TradeQty string `json:"trde_qty"`
		PrevQty  string `json:"pred_trde_qty"`
	}
	payload := map[string]string{"stk_cd": code}
	if err := f.call("/api/dostk/stkinfo", "ka10001", payload, &resp); err != nil {
		return BasicInfo{}, err
	}
	info := BasicInfo{
		Name:      resp.Name,
		VolRatio:  100.0,
		TradedQty: CleanNumeric(resp.TradeQty),
	}
	if prev := CleanNumeric(resp.PrevQty); prev > 0 {
		info.VolRatio = info.TradedQty / prev * 100.0
	}
	return info, nil
}

// bareCode strips exchange suffixes ("005930_AL" -> "005930").
func bareCode(code string) string {
	if i := strings.IndexByte(code, '_'); i >= 0 {
		return code[:i]
	}
	return code
}
