package model

// StockMetrics is the full input bundle for scoring one instrument on one
// cycle. The supply cache assembles it from whatever categories are fresh;
// absent categories carry the documented safe defaults so scoring never
// divides by zero.
type StockMetrics struct {
	Code  string
	Price float64

	// Minute-chart windows, oldest-first.
	Prices  []float64
	Volumes []float64

	VWAP     float64
	PrevVWAP float64

	EMA5      float64
	EMA20     float64
	EMA60     float64
	PrevEMA60 float64

	ATRPercent float64 // ATR as percent of price

	Strength  float64 // tick strength, 100 = buy/sell balance
	VolRatio  float64 // today's volume vs prior day, percent
	VolFactor float64 // last-minute volume vs prior 4-minute average, capped

	ProgramNet float64 // program-trade net amount, millions
	ForeignNet float64 // foreign-window net amount, millions
	TradedQty  float64 // cumulative traded quantity today
}

// ScoreDetail carries the composite conviction score and the raw sub-scores
// it was blended from. All five values live in [0,100].
type ScoreDetail struct {
	Total  float64
	Alpha  float64
	Supply float64
	Vwap   float64
	Trend  float64
}
