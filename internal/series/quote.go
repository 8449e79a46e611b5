package series

import (
	"pricewatch/internal/provider"
)

// QuotePoints is the number of synthetic points derived from a quote.
const QuotePoints = 24

// Interpolate synthesizes n points from a quote. With a non-zero previous
// close the points run linearly from it to the current price by index; with a
// price alone they are n copies of it. An unpriced quote yields nothing.
func Interpolate(q provider.Quote, n int) ([]float64, Stage) {
	if !q.Priced() || n <= 0 {
		return nil, StageNone
	}
	price := q.Price.Decimal.InexactFloat64()

	out := make([]float64, n)
	if !q.PreviousClose.Valid || q.PreviousClose.Decimal.IsZero() || n == 1 {
		for i := range out {
			out[i] = price
		}
		return out, StageFlat
	}

	prev := q.PreviousClose.Decimal.InexactFloat64()
	step := (price - prev) / float64(n-1)
	for i := range out {
		out[i] = prev + step*float64(i)
	}
	out[n-1] = price
	return out, StageInterpolated
}

// FromQuoteChange derives a two-point series from a price and its 24h percent
// change: the implied previous price, then the current one. Without a change
// both points are the price. An unpriced quote, or a change of -100%, yields
// nothing.
func FromQuoteChange(q provider.Quote) []float64 {
	if !q.Priced() {
		return nil
	}
	price := q.Price.Decimal.InexactFloat64()
	if q.PercentChange == nil {
		return []float64{price, price}
	}
	factor := 1 + *q.PercentChange/100
	if factor == 0 {
		return nil
	}
	return clean([]float64{price / factor, price})
}
