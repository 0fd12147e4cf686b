package model

import "time"

// PositionStatus is the lifecycle state of a trade record.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// Position is one held instrument. The Buy* fields are fixed at entry and
// never rewritten; only the runtime fields below them change while the
// position is open. A closed position is terminal — re-entering the same
// instrument creates a new record.
type Position struct {
	ID   int64
	Code string
	Name string

	// Entry attributes, immutable after creation.
	BuyPrice    float64
	BuyScore    float64
	AlphaScore  float64
	SupplyScore float64
	VwapScore   float64
	TrendScore  float64
	BuyTime     time.Time
	BuyRegime   string

	Status PositionStatus

	// Runtime attributes, updated every cycle while open.
	LastPrice    float64
	CurrentScore float64
	SellPrice    float64
	ProfitRate   float64 // percent, set at close
	SellTime     time.Time
	SellReason   string
}

// ProfitRateAt returns the percent return against the entry price.
func (p *Position) ProfitRateAt(price float64) float64 {
	if p.BuyPrice <= 0 || price <= 0 {
		return 0
	}
	return (price/p.BuyPrice - 1) * 100
}
