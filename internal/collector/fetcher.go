// Package collector talks to the Kiwoom REST API and hands the rest of
// the bot already-clean market data: parsed floats, oldest-first bar
// series, classified errors. Nothing outside this package sees raw
// payloads.
package collector

import "github.com/SpiceChicken/kiwoom-stock/internal/model"

// Instrument is one row of the top-turnover ranking.
type Instrument struct {
	Code     string
	Name     string
	Turnover float64
	Price    float64
}

// InvestorFlow is one instrument's net traded quantity for a single
// capital source (foreign or institution).
type InvestorFlow struct {
	Code   string
	NetQty float64
}

// ProgramTrade is one instrument's program-trading snapshot.
type ProgramTrade struct {
	Code      string
	NetAmount float64
	Ratio     float64
}

// ForeignWindow is one instrument's foreign-broker-window snapshot.
type ForeignWindow struct {
	Code      string
	NetAmount float64
	Turnover  float64
}

// BasicInfo carries the slow-moving per-instrument facts a cycle needs.
type BasicInfo struct {
	Name      string
	VolRatio  float64 // today's volume vs the prior day, percent
	TradedQty float64 // today's cumulative traded quantity
}

// Fetcher defines the interface for fetching market data.
// Implementations retry transient transport failures internally and
// surface *APIError for provider-reported business failures.
type Fetcher interface {
	TopTurnover(marketTp string) ([]Instrument, error)
	MinuteChart(code, tic string) ([]model.OHLCV, error)
	InvestorFlows(marketTp, investorTp string) ([]InvestorFlow, error)
	ProgramTrade() ([]ProgramTrade, error)
	ForeignWindow() ([]ForeignWindow, error)
	TickStrength(code string) (float64, error)
	BasicInfo(code string) (BasicInfo, error)
	Name() string
}
