package collector

import (
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

// MockFetcher returns controllable fixed data for development and
// testing. Errs injects a failure per method name so callers can test
// partial-failure isolation.
type MockFetcher struct {
	Instruments []Instrument
	Charts      map[string][]model.OHLCV
	Flows       map[string][]InvestorFlow // keyed by investor type
	Programs    []ProgramTrade
	Foreigns    []ForeignWindow
	Strengths   map[string]float64
	Basics      map[string]BasicInfo
	Errs        map[string]error

	ChartCalls []string
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) fail(op string) error {
	if m.Errs == nil {
		return nil
	}
	return m.Errs[op]
}

func (m *MockFetcher) TopTurnover(string) ([]Instrument, error) {
	if err := m.fail("TopTurnover"); err != nil {
		return nil, err
	}
	return m.Instruments, nil
}

func (m *MockFetcher) MinuteChart(code, tic string) ([]model.OHLCV, error) {
	m.ChartCalls = append(m.ChartCalls, code+":"+tic)
	if err := m.fail("MinuteChart"); err != nil {
		return nil, err
	}
	if bars, ok := m.Charts[code+":"+tic]; ok {
		return bars, nil
	}
	if bars, ok := m.Charts[code]; ok {
		return bars, nil
	}
	return GenerateBars(10000, 30), nil
}

func (m *MockFetcher) InvestorFlows(_, investorTp string) ([]InvestorFlow, error) {
	if err := m.fail("InvestorFlows"); err != nil {
		return nil, err
	}
	return m.Flows[investorTp], nil
}

func (m *MockFetcher) ProgramTrade() ([]ProgramTrade, error) {
	if err := m.fail("ProgramTrade"); err != nil {
		return nil, err
	}
	return m.Programs, nil
}

func (m *MockFetcher) ForeignWindow() ([]ForeignWindow, error) {
	if err := m.fail("ForeignWindow"); err != nil {
		return nil, err
	}
	return m.Foreigns, nil
}

func (m *MockFetcher) TickStrength(code string) (float64, error) {
	if err := m.fail("TickStrength"); err != nil {
		return 0, err
	}
	if s, ok := m.Strengths[code]; ok {
		return s, nil
	}
	return 100.0, nil
}

func (m *MockFetcher) BasicInfo(code string) (BasicInfo, error) {
	if err := m.fail("BasicInfo"); err != nil {
		return BasicInfo{}, err
	}
	if b, ok := m.Basics[code]; ok {
		return b, nil
	}
	return BasicInfo{Name: code, VolRatio: 100}, nil
}

// GenerateBars builds a mildly trending oldest-first series around a
// base price.
func GenerateBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	now := time.Now()
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   now.Add(-time.Duration(count-i) * time.Minute),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 10000,
		}
	}
	return bars
}
