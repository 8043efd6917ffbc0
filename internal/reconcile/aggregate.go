package reconcile

import (
	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/store"
)

// Aggregator sums daily readings into monthly totals. A month with no
// readings sums to zero.
type Aggregator struct {
	store *store.Store
}

func NewAggregator(s *store.Store) *Aggregator {
	return &Aggregator{store: s}
}

func (a *Aggregator) MonthlySum(smi string, p models.MonthYear) (float64, error) {
	sum, err := a.store.SumReadings(smi, p)
	if err != nil {
		return 0, err
	}
	return sum.Float64, nil
}

// MonthlySumFrom sums only readings on or after fromDay.
func (a *Aggregator) MonthlySumFrom(smi string, p models.MonthYear, fromDay int) (float64, error) {
	sum, err := a.store.SumReadingsFrom(smi, p, fromDay)
	if err != nil {
		return 0, err
	}
	return sum.Float64, nil
}
