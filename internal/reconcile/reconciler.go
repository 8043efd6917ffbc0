package reconcile

import (
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lox/solarperf/internal/metrics"
	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/overrides"
	"github.com/lox/solarperf/internal/store"
)

type Options struct {
	Calendar  Calendar
	Overrides overrides.Table
	// Workers bounds how many sites are reconciled at once. Values below 1
	// mean one.
	Workers int
}

// Summary describes a completed reconcile pass.
type Summary struct {
	Sites          int
	Periods        int
	Rows           int
	Uncommissioned int
}

// Reconciler recomputes month_gen and adj_forecast from the daily readings,
// the forecast profile and each site's supply date.
type Reconciler struct {
	store *store.Store
	agg   *Aggregator
	opts  Options
}

func New(s *store.Store, opts Options) *Reconciler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if !opts.Calendar.Gregorian && opts.Calendar.LeapYears == nil {
		opts.Calendar = LegacyCalendar()
	}
	return &Reconciler{store: s, agg: NewAggregator(s), opts: opts}
}

type siteResult struct {
	rows           []models.MonthlyResult
	uncommissioned bool
}

// Run purges the derived tables and rebuilds them for every site with
// readings. A malformed supply date aborts the run before the derived tables
// are touched.
func (r *Reconciler) Run() (Summary, error) {
	smis, err := r.store.ReadingSMIs()
	if err != nil {
		return Summary{}, fmt.Errorf("list sites: %w", err)
	}
	periods, err := r.store.ReadingPeriods()
	if err != nil {
		return Summary{}, fmt.Errorf("list periods: %w", err)
	}

	results := make([]siteResult, len(smis))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, smi := range smis {
		i, smi := i, smi
		g.Go(func() error {
			res, err := r.reconcileSite(smi, periods)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Sites: len(smis), Periods: len(periods)}
	var all []models.MonthlyResult
	for _, res := range results {
		all = append(all, res.rows...)
		if res.uncommissioned {
			summary.Uncommissioned++
		}
	}

	if err := r.store.ClearDerived(); err != nil {
		return Summary{}, fmt.Errorf("clear derived tables: %w", err)
	}
	stored, err := r.store.SaveMonthlyResults(all)
	if err != nil {
		return Summary{}, fmt.Errorf("save monthly results: %w", err)
	}
	summary.Rows = stored

	log.Printf("reconcile: %d sites over %d months, %d rows written, %d without supply date",
		summary.Sites, summary.Periods, summary.Rows, summary.Uncommissioned)
	return summary, nil
}

// reconcileSite computes the effective generation and forecast of one site
// for each period without writing them.
func (r *Reconciler) reconcileSite(smi string, periods []models.MonthYear) (siteResult, error) {
	log.Printf("reconcile: collating monthly data and adjusting forecast for SMI %s", smi)

	site, err := r.store.GetSite(smi)
	if err != nil {
		return siteResult{}, fmt.Errorf("get site %s: %w", smi, err)
	}

	var supplyText string
	if site != nil {
		supplyText = strings.TrimSpace(site.SupplyDate)
	}
	if supplyText == "" {
		log.Printf("reconcile: %s has no supply date, forecast left unadjusted", smi)
		rows, err := r.unadjusted(smi, periods)
		if err != nil {
			return siteResult{}, err
		}
		metrics.SitesReconciled.WithLabelValues("missing").Inc()
		return siteResult{rows: rows, uncommissioned: true}, nil
	}

	supply, err := ParseSupplyDate(supplyText)
	if err != nil {
		return siteResult{}, fmt.Errorf("site %s: %w", smi, err)
	}
	if err := supply.Check(r.opts.Calendar); err != nil {
		return siteResult{}, fmt.Errorf("site %s: %w", smi, err)
	}

	rows := make([]models.MonthlyResult, 0, len(periods))
	for _, p := range periods {
		row, err := r.reconcileMonth(smi, supply, p)
		if err != nil {
			return siteResult{}, err
		}
		rows = append(rows, row)
	}
	metrics.SitesReconciled.WithLabelValues("present").Inc()
	return siteResult{rows: rows}, nil
}

func (r *Reconciler) reconcileMonth(smi string, supply SupplyDate, p models.MonthYear) (models.MonthlyResult, error) {
	row := models.MonthlyResult{SMI: smi, Period: p}

	raw, err := r.rawForecast(smi, p.Month)
	if err != nil {
		return row, err
	}

	switch Classify(supply, p) {
	case RuleExcluded:
		// both stay zero
	case RuleProrated:
		gen, err := r.agg.MonthlySumFrom(smi, p, supply.Day)
		if err != nil {
			return row, fmt.Errorf("sum readings %s %s: %w", smi, p, err)
		}
		row.Generation = gen
		row.Forecast = ProratedForecast(raw, supply.Day, r.opts.Calendar.DaysInMonth(p.Month, p.Year))
	case RuleFull:
		gen, err := r.agg.MonthlySum(smi, p)
		if err != nil {
			return row, fmt.Errorf("sum readings %s %s: %w", smi, p, err)
		}
		row.Generation = gen
		row.Forecast = raw
	}

	if factor, ok := r.opts.Overrides.Derate(smi, p.Year); ok {
		row.Forecast *= factor
	}
	return row, nil
}

func (r *Reconciler) unadjusted(smi string, periods []models.MonthYear) ([]models.MonthlyResult, error) {
	rows := make([]models.MonthlyResult, 0, len(periods))
	for _, p := range periods {
		raw, err := r.rawForecast(smi, p.Month)
		if err != nil {
			return nil, err
		}
		gen, err := r.agg.MonthlySum(smi, p)
		if err != nil {
			return nil, fmt.Errorf("sum readings %s %s: %w", smi, p, err)
		}
		rows = append(rows, models.MonthlyResult{SMI: smi, Period: p, Generation: gen, Forecast: raw})
	}
	return rows, nil
}

// rawForecast returns zero when the site has no forecast for month.
func (r *Reconciler) rawForecast(smi string, month int) (float64, error) {
	fc, err := r.store.Forecast(smi, month)
	if err != nil {
		return 0, fmt.Errorf("get forecast %s/%d: %w", smi, month, err)
	}
	return fc.Float64, nil
}
