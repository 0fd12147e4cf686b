package market

// Regime is the discrete market-environment label derived from the index
// proxy's RSI and volatility.
type Regime string

const (
	StableBull   Regime = "STABLE_BULL"
	VolatileBull Regime = "VOLATILE_BULL"
	QuietBear    Regime = "QUIET_BEAR"
	PanicBear    Regime = "PANIC_BEAR"
	Neutral      Regime = "NEUTRAL"
	Unknown      Regime = "UNKNOWN"
)

// RegimeState is a read-only snapshot of the classifier's current view,
// handed to the orchestrator once per cycle.
type RegimeState struct {
	Regime        Regime
	MarketRSI     float64
	ATR           float64
	IsVolatile    bool
	HighThreshold float64
	LowThreshold  float64
	VolThreshold  float64 // ATR multiple above which the market counts as volatile
}
