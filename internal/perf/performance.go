// Package perf rolls effective monthly generation and forecast up into
// performance ratios, revenue figures and system-size buckets.
package perf

// Period selects the tail of a site's monthly series.
type Period int

const (
	Annual Period = iota
	Quarter
	Month
	PreviousMonth
)

// Periods lists every period in report column order.
var Periods = [...]Period{Annual, Quarter, Month, PreviousMonth}

func (p Period) String() string {
	switch p {
	case Annual:
		return "Annual"
	case Quarter:
		return "Quarter"
	case Month:
		return "Month"
	case PreviousMonth:
		return "Prev"
	}
	return "unknown"
}

// Triple is forecast, generation and generation/forecast over one period.
type Triple struct {
	Forecast   float64
	Generation float64
	Ratio      float64
}

// Compute sums the period's tail of both series and returns the triple. The
// series are ordered by (year, month). A zero forecast gives a zero ratio.
func Compute(forecast, generation []float64, period Period) Triple {
	t := Triple{
		Forecast:   window(forecast, period),
		Generation: window(generation, period),
	}
	if t.Forecast != 0 {
		t.Ratio = t.Generation / t.Forecast
	}
	return t
}

// ComputeAll returns the triple for every period, indexed by Period.
func ComputeAll(forecast, generation []float64) [len(Periods)]Triple {
	var out [len(Periods)]Triple
	for _, p := range Periods {
		out[p] = Compute(forecast, generation, p)
	}
	return out
}

func window(values []float64, period Period) float64 {
	if period == PreviousMonth {
		if len(values) < 2 {
			return 0
		}
		return values[len(values)-2]
	}

	n := 1
	switch period {
	case Annual:
		n = 12
	case Quarter:
		n = 3
	}
	if n > len(values) {
		n = len(values)
	}

	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum
}

// Highlight marks a ratio that needs attention in the report.
type Highlight int

const (
	HighlightNone Highlight = iota
	HighlightUnder
	HighlightOver
)

const (
	UnderperformanceRatio = 0.9
	OverperformanceRatio  = 1.2
)

func Classify(ratio float64) Highlight {
	switch {
	case ratio < UnderperformanceRatio:
		return HighlightUnder
	case ratio > OverperformanceRatio:
		return HighlightOver
	}
	return HighlightNone
}
