// Package series reconstructs a trailing 24-hour price series for one symbol
// through an ordered cascade of sources, degrading to synthetic points and
// finally to an empty series when every source is exhausted.
package series

import (
	"math"
	"strings"
)

// Stage names the cascade step that produced a series.
type Stage string

const (
	StageCandles          Stage = "candles"
	StageHistory          Stage = "history"
	StageInterpolated     Stage = "interpolated"
	StageFlat             Stage = "flat"
	StageMarketChart      Stage = "market_chart"
	StageMarketChartRetry Stage = "market_chart_retry"
	StageQuoteChange      Stage = "quote_change"
	StageNone             Stage = "none"
)

// Approximate reports whether the points were synthesized from a quote rather
// than observed.
func (s Stage) Approximate() bool {
	switch s {
	case StageInterpolated, StageFlat, StageQuoteChange:
		return true
	}
	return false
}

// Series is an ordered price list, oldest first.
type Series struct {
	Symbol string    `json:"symbol"`
	Points []float64 `json:"points"`
	Stage  Stage     `json:"stage"`
}

func (s Series) Empty() bool { return len(s.Points) == 0 }

// Empty returns the exhausted-cascade result for symbol.
func Empty(symbol string) Series {
	return Series{Symbol: normalize(symbol), Points: []float64{}, Stage: StageNone}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// clean drops non-finite and negative values.
func clean(points []float64) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}
