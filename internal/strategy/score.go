package strategy

import (
	"math"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

// WeightMode selects how sub-scores are blended. The modes are exclusive;
// the engine picks one at startup and never mixes them within a cycle.
type WeightMode string

const (
	WeightModeProfile WeightMode = "profile" // regime profile weights
	WeightModeDynamic WeightMode = "dynamic" // per-instrument importance weights
)

// ScoringParams exposes the sensitivity constants of the scoring formulas.
// The formula versions in production history disagreed on several of these,
// so they are configuration rather than hardcoded values.
type ScoringParams struct {
	OverheatFloor       float64 `yaml:"overheat_floor"`        // minimum overheat distance, percent
	OverheatATRMult     float64 `yaml:"overheat_atr_mult"`     // overheat distance as ATR% multiple
	BreakoutATRFrac     float64 `yaml:"breakout_atr_frac"`     // breakout band as ATR% fraction
	SlopeScale          float64 `yaml:"slope_scale"`           // normalizer for VWAP/EMA slopes
	SlopeWeight         float64 `yaml:"slope_weight"`          // slope factor range: 1 ± weight
	TrendPenaltyDivisor float64 `yaml:"trend_penalty_divisor"` // dispersal overshoot to full penalty
	MinTurnover         float64 `yaml:"min_turnover"`          // millions; below it flow ratios are ignored
	TrustVolRatio       float64 `yaml:"trust_vol_ratio"`       // vol-ratio % under which flow trust halves
}

// DefaultScoringParams returns the most recent observed constants.
func DefaultScoringParams() ScoringParams {
	return ScoringParams{
		OverheatFloor:       3.0,
		OverheatATRMult:     1.5,
		BreakoutATRFrac:     0.2,
		SlopeScale:          1000,
		SlopeWeight:         0.2,
		TrendPenaltyDivisor: 2.0,
		MinTurnover:         10.0,
		TrustVolRatio:       5.0,
	}
}

// Scorer computes conviction scores. It carries no per-instrument state.
type Scorer struct {
	params ScoringParams
	mode   WeightMode
}

func NewScorer(params ScoringParams, mode WeightMode) *Scorer {
	return &Scorer{params: params, mode: mode}
}

// Score evaluates one instrument. The returned sub-scores are the raw
// factor values in [0,100]; Total blends them with either the profile
// weights or, in dynamic mode, the importance-derived weights.
func (s *Scorer) Score(m *model.StockMetrics, w Weights) model.ScoreDetail {
	a := s.alphaScore(m)
	sp := s.supplyScore(m)
	v := s.vwapScore(m)
	tr := s.trendScore(m)

	if s.mode == WeightModeDynamic {
		w = s.dynamicWeights(m)
	}
	return model.ScoreDetail{
		Total:  Compose(a, sp, v, tr, w),
		Alpha:  a,
		Supply: sp,
		Vwap:   v,
		Trend:  tr,
	}
}

// Compose blends raw sub-scores with the given weights.
func Compose(alpha, supply, vwap, trend float64, w Weights) float64 {
	total := alpha*w.Alpha + supply*w.Supply + vwap*w.Vwap + trend*w.Trend
	return math.Round(total*10) / 10
}

// alphaScore measures price acceleration backed by a volume surge: the
// 1-minute return against the trailing 5-minute pace, amplified by how much
// the last minute's volume exceeds the prior 4-minute average.
func (s *Scorer) alphaScore(m *model.StockMetrics) float64 {
	prices, vols := m.Prices, m.Volumes
	if len(prices) < 6 || len(vols) < 6 {
		return 0.0
	}
	curr := prices[len(prices)-1]
	p1 := prices[len(prices)-2]
	p5 := prices[len(prices)-6]
	if p1 <= 0 || p5 <= 0 {
		return 0.0
	}

	roc1 := (curr - p1) / p1 * 100
	roc5 := (curr - p5) / p5 * 100
	acceleration := roc1 - roc5/5

	var prevVol float64
	for _, v := range vols[len(vols)-5 : len(vols)-1] {
		prevVol += v
	}
	avgPrevVol := math.Max(1.0, prevVol/4)
	volFactor := math.Min(2.0, vols[len(vols)-1]/avgPrevVol)

	raw := acceleration * 100 * volFactor
	return round2(clamp01x100(raw))
}

// supplyScore starts from tick strength (100% balance maps to 50 points)
// and multiplies in the program/foreign net-flow share of total turnover.
// Early-session flow data is distrusted: below TrustVolRatio of yesterday's
// volume the flow contribution is halved, and below MinTurnover it is
// ignored entirely.
func (s *Scorer) supplyScore(m *model.StockMetrics) float64 {
	marketTotal := math.Max(1, m.TradedQty*m.Price) / 1e6

	base := clamp01x100(50 + (m.Strength-100)*0.5)

	var pgmAdj, frgnAdj float64
	if marketTotal >= s.params.MinTurnover {
		pgmAdj = clampRange(m.ProgramNet/marketTotal, -0.5, 0.5)
		frgnAdj = clampRange(m.ForeignNet/marketTotal, -0.5, 0.5)
	}

	trust := 1.0
	if m.VolRatio < s.params.TrustVolRatio {
		trust = 0.5
	}

	multiplier := 1.0 + (pgmAdj+frgnAdj)*trust
	return round2(clamp01x100(base * multiplier))
}

// vwapScore rates the price's position against the volume-weighted average:
// sitting on the VWAP is ideal, running past the ATR-scaled overheat limit
// decays to zero, and approaching from below scores by breakout proximity
// weighted by volume. The VWAP slope tilts the result by ±SlopeWeight.
func (s *Scorer) vwapScore(m *model.StockMetrics) float64 {
	if m.VWAP <= 0 {
		return 0.0
	}
	atrP := m.ATRPercent
	if atrP <= 0 {
		atrP = 3.0
	}

	deviation := (m.Price - m.VWAP) / m.VWAP * 100
	overheatLimit := math.Max(s.params.OverheatFloor, atrP*s.params.OverheatATRMult)

	var posScore float64
	if deviation >= 0 {
		ratio := math.Min(1.0, deviation/overheatLimit)
		posScore = 100 * (1 - ratio)
	} else {
		breakoutRange := atrP * s.params.BreakoutATRFrac
		if breakoutRange <= 0 {
			return 0.0
		}
		ratio := math.Max(-1.0, deviation/breakoutRange)
		posScore = 100 * (1 + ratio) * m.VolFactor
	}

	slopeFactor := 1.0
	if m.PrevVWAP > 0 && m.VWAP != m.PrevVWAP {
		rawSlope := (m.VWAP - m.PrevVWAP) / m.VWAP * s.params.SlopeScale
		intensity := clampRange(rawSlope, -1.0, 1.0)
		slopeFactor = 1.0 + intensity*s.params.SlopeWeight
	}

	return round2(clamp01x100(posScore * slopeFactor))
}

// trendScore normalizes the EMA ladder's spacing by the instrument's own
// volatility: healthy separation relative to ATR% scores high, excessive
// dispersal is penalized back down, and the EMA60 slope tilts the result.
func (s *Scorer) trendScore(m *model.StockMetrics) float64 {
	e5, e20, e60 := m.EMA5, m.EMA20, m.EMA60
	if e60 <= 0 || e20 <= 0 {
		return 0.0
	}
	prevE60 := m.PrevEMA60
	if prevE60 <= 0 {
		prevE60 = e60
	}
	atrP := m.ATRPercent
	if atrP <= 0 {
		atrP = 3.0
	}

	gapShort := (e5 - e20) / e20 * 100
	gapLong := (e20 - e60) / e60 * 100
	energyDensity := (gapShort + gapLong) / atrP

	trendRatio := clampRange(energyDensity, -1.0, 1.0)
	base := 50 + trendRatio*50

	totalDispersal := (e5 - e60) / e60 * 100
	dispersalRatio := totalDispersal / atrP
	overheat := math.Max(0.0, dispersalRatio-1.0)
	penalty := math.Min(1.0, overheat/s.params.TrendPenaltyDivisor)
	alignment := base * (1 - penalty)

	slope60 := (e60 - prevE60) / e60 * s.params.SlopeScale
	intensity := clampRange(slope60, -1.0, 1.0)
	slopeFactor := 1.0 + intensity*s.params.SlopeWeight

	return round2(clamp01x100(alignment * slopeFactor))
}

// dynamicWeights derives per-instrument blend weights from indicator
// trustworthiness: volume surges raise the attack factors, VWAP proximity
// raises the defensive factor, and a clean EMA ordering raises trend.
// The result always sums to 1.
func (s *Scorer) dynamicWeights(m *model.StockMetrics) Weights {
	atrP := m.ATRPercent
	if atrP <= 0 {
		atrP = 3.0
	}

	impAlpha := 1.0 * m.VolFactor
	impSupply := 1.0 * m.VolFactor

	var deviation float64
	if m.VWAP > 0 {
		deviation = math.Abs(m.Price-m.VWAP) / m.VWAP * 100
	}
	impVwap := 1.5 / (1 + deviation/math.Max(0.1, atrP))

	ordered := 0.7
	if (m.EMA5 > m.EMA20 && m.EMA20 > m.EMA60) || (m.EMA5 < m.EMA20 && m.EMA20 < m.EMA60) {
		ordered = 1.2
	}
	var totalGap float64
	if m.EMA60 > 0 {
		totalGap = math.Abs(m.EMA5-m.EMA60) / m.EMA60 * 100
	}
	expansion := math.Min(0.5, totalGap/atrP)
	impTrend := 1.0 * ordered * (1 + expansion)

	total := impAlpha + impSupply + impVwap + impTrend
	if total <= 0 {
		return Weights{Alpha: 0.25, Supply: 0.25, Vwap: 0.25, Trend: 0.25}
	}
	return Weights{
		Alpha:  impAlpha / total,
		Supply: impSupply / total,
		Vwap:   impVwap / total,
		Trend:  impTrend / total,
	}
}

func clamp01x100(v float64) float64 {
	return clampRange(v, 0, 100)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
