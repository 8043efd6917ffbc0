package report

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/perf"
	"github.com/lox/solarperf/internal/store"
)

// SiteRow is one site's line in the performance report.
type SiteRow struct {
	SMI string
	// Site is nil when the site export had no row for the SMI.
	Site        *models.Site
	RawForecast []float64

	// Commissioned is false when the site has no supply date. Such rows stop
	// after the raw forecast columns.
	Commissioned     bool
	AdjustedForecast []float64
	Generation       []float64
	Performance      [len(perf.Periods)]perf.Triple
	OutageDays       int

	// Revenue is nil when the site has no tariff.
	Revenue *[len(perf.Periods)]perf.Revenue
}

// MatrixRow is one site's line in the All_sites generation matrix. Months
// without a derived row are invalid.
type MatrixRow struct {
	SMI        string
	Generation []sql.NullFloat64
	OutageDays int
}

type Report struct {
	// Periods are the observed months, oldest first.
	Periods  []models.MonthYear
	LastDate models.Date
	Sites    []SiteRow
	Matrix   []MatrixRow
	Buckets  perf.Accumulator

	Uncommissioned int
	Untariffed     int
}

// Current is the most recent observed month.
func (r *Report) Current() models.MonthYear {
	if len(r.Periods) == 0 {
		return models.MonthYear{}
	}
	return r.Periods[len(r.Periods)-1]
}

type Options struct {
	OutageThreshold float64
}

// Assembler reads the reconciled tables and lays them out as report rows.
type Assembler struct {
	store *store.Store
	opts  Options
}

func NewAssembler(s *store.Store, opts Options) *Assembler {
	if opts.OutageThreshold <= 0 {
		opts.OutageThreshold = perf.DefaultOutageThreshold
	}
	return &Assembler{store: s, opts: opts}
}

// Build assembles a report over every SMI with daily readings. It expects the
// derived tables to be current.
func (a *Assembler) Build() (*Report, error) {
	last, err := a.store.LastReadingDate()
	if err != nil {
		return nil, err
	}
	smis, err := a.store.ReadingSMIs()
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	periods, err := a.store.ReadingPeriods()
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}

	r := &Report{Periods: periods, LastDate: last}
	for _, smi := range smis {
		log.Printf("report: formatting SMI %s", smi)

		outage, err := a.outageDays(smi, r.Current())
		if err != nil {
			return nil, err
		}
		matrix, err := a.matrixRow(smi, periods)
		if err != nil {
			return nil, err
		}
		matrix.OutageDays = outage
		r.Matrix = append(r.Matrix, matrix)

		row, err := a.siteRow(smi)
		if err != nil {
			return nil, err
		}
		if !row.Commissioned {
			log.Printf("report: no supply date for %s, skipping performance", smi)
			r.Uncommissioned++
			r.Sites = append(r.Sites, row)
			continue
		}
		row.OutageDays = outage
		if row.Revenue == nil {
			r.Untariffed++
		}
		r.Buckets.Add(row.Site.PVSize, row.Performance)
		r.Sites = append(r.Sites, row)
	}

	log.Printf("report: %d sites over %d months, %d without supply date, %d bucketed",
		len(r.Sites), len(periods), r.Uncommissioned, r.Buckets.Sites())
	return r, nil
}

func (a *Assembler) siteRow(smi string) (SiteRow, error) {
	row := SiteRow{SMI: smi}

	site, err := a.store.GetSite(smi)
	if err != nil {
		return row, fmt.Errorf("get site %s: %w", smi, err)
	}
	row.Site = site

	forecasts, err := a.store.Forecasts(smi)
	if err != nil {
		return row, fmt.Errorf("get forecasts %s: %w", smi, err)
	}
	for _, fc := range forecasts {
		row.RawForecast = append(row.RawForecast, fc.Value)
	}

	if site == nil || !site.HasSupplyDate() {
		return row, nil
	}
	row.Commissioned = true

	if row.AdjustedForecast, err = a.store.AdjustedForecastSeries(smi); err != nil {
		return row, fmt.Errorf("adjusted forecast %s: %w", smi, err)
	}
	if row.Generation, err = a.store.GenerationSeries(smi); err != nil {
		return row, fmt.Errorf("monthly generation %s: %w", smi, err)
	}
	row.Performance = perf.ComputeAll(row.AdjustedForecast, row.Generation)

	// A zero tariff is treated as no tariff.
	if site.Tariff.Valid && !site.Tariff.Decimal.IsZero() {
		var rev [len(perf.Periods)]perf.Revenue
		for _, p := range perf.Periods {
			rev[p] = perf.ComputeRevenue(row.Performance[p], site.Tariff.Decimal)
		}
		row.Revenue = &rev
	}
	return row, nil
}

func (a *Assembler) matrixRow(smi string, periods []models.MonthYear) (MatrixRow, error) {
	row := MatrixRow{SMI: smi, Generation: make([]sql.NullFloat64, len(periods))}
	for i, p := range periods {
		gen, err := a.store.MonthlyGeneration(smi, p)
		if err != nil {
			return row, fmt.Errorf("monthly generation %s %s: %w", smi, p, err)
		}
		row.Generation[i] = gen
	}
	return row, nil
}

func (a *Assembler) outageDays(smi string, current models.MonthYear) (int, error) {
	values, err := a.store.DailyValues(smi, current)
	if err != nil {
		return 0, fmt.Errorf("daily values %s %s: %w", smi, current, err)
	}
	return perf.OutageDays(values, a.opts.OutageThreshold), nil
}
