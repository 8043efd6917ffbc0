package reconcile

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/overrides"
	"github.com/lox/solarperf/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s
}

func reading(smi string, day, month, year int, value float64) models.DailyReading {
	return models.DailyReading{
		SMI:      smi,
		Datatype: "kWh Generation",
		Date:     models.Date{Day: day, Month: month, Year: year},
		Value:    sql.NullFloat64{Float64: value, Valid: true},
	}
}

// monthOf returns one reading per day of the month, all with the same value.
func monthOf(smi string, month, year, days int, value float64) []models.DailyReading {
	var out []models.DailyReading
	for d := 1; d <= days; d++ {
		out = append(out, reading(smi, d, month, year, value))
	}
	return out
}

func flatForecast(smi string, value float64) []models.Forecast {
	var out []models.Forecast
	for m := 1; m <= 12; m++ {
		out = append(out, models.Forecast{SMI: smi, Month: m, Value: value})
	}
	return out
}

func seed(t *testing.T, s *store.Store, readings []models.DailyReading, sites []models.Site, forecasts []models.Forecast) {
	t.Helper()
	_, err := s.InsertDailyReadings(readings)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceSites(sites, forecasts))
}

func TestClassify(t *testing.T) {
	supply := SupplyDate{Year: 18, Month: 3, Day: 15}

	tests := []struct {
		name   string
		period models.MonthYear
		want   Rule
	}{
		{"earlier year", models.MonthYear{Month: 12, Year: 17}, RuleExcluded},
		{"same year earlier month", models.MonthYear{Month: 2, Year: 18}, RuleExcluded},
		{"supply month", models.MonthYear{Month: 3, Year: 18}, RuleProrated},
		{"same year later month", models.MonthYear{Month: 4, Year: 18}, RuleFull},
		{"later year earlier month", models.MonthYear{Month: 1, Year: 19}, RuleFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(supply, tt.period))
		})
	}
}

func TestDaysInMonth(t *testing.T) {
	legacy := LegacyCalendar()
	gregorian := GregorianCalendar()

	tests := []struct {
		name      string
		month     int
		year      int
		legacy    int
		gregorian int
	}{
		{"january", 1, 18, 31, 31},
		{"april", 4, 18, 30, 30},
		{"february leap in set", 2, 16, 29, 29},
		{"february common year", 2, 17, 28, 28},
		{"february 2012 outside set", 2, 12, 28, 29},
		{"february 2000", 2, 0, 28, 29},
		{"february 2032 outside set", 2, 32, 28, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.legacy, legacy.DaysInMonth(tt.month, tt.year), "legacy")
			assert.Equal(t, tt.gregorian, gregorian.DaysInMonth(tt.month, tt.year), "gregorian")
		})
	}
}

func TestParseSupplyDate(t *testing.T) {
	tests := []struct {
		in      string
		want    SupplyDate
		wantErr bool
	}{
		{in: "2018-03-15", want: SupplyDate{Year: 18, Month: 3, Day: 15}},
		{in: "2018.03.15", want: SupplyDate{Year: 18, Month: 3, Day: 15}},
		{in: "  2016-11-02 ", want: SupplyDate{Year: 16, Month: 11, Day: 2}},
		{in: "18-03-15", want: SupplyDate{Year: 18, Month: 3, Day: 15}},
		{in: "15/03/2018", wantErr: true},
		{in: "2018-3-5", wantErr: true},
		{in: "2018-13-01", wantErr: true},
		{in: "2018-03-00", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSupplyDate(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedSupplyDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupplyDate_Check(t *testing.T) {
	tests := []struct {
		in      string
		cal     Calendar
		wantErr bool
	}{
		{in: "2018-04-30", cal: LegacyCalendar()},
		{in: "2018-04-31", cal: LegacyCalendar(), wantErr: true},
		{in: "2016-02-29", cal: LegacyCalendar()},
		{in: "2018-02-29", cal: LegacyCalendar(), wantErr: true},
		{in: "2032-02-29", cal: LegacyCalendar(), wantErr: true},
		{in: "2032-02-29", cal: GregorianCalendar()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseSupplyDate(tt.in)
			require.NoError(t, err)
			err = d.Check(tt.cal)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedSupplyDate)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProratedForecast(t *testing.T) {
	assert.InDelta(t, 51.6129, ProratedForecast(100, 15, 31), 0.0001)
	assert.InDelta(t, 0, ProratedForecast(100, 30, 30), 1e-9)
	assert.InDelta(t, 0, ProratedForecast(0, 15, 31), 1e-9)
}

func TestRun_SupplyMonthProration(t *testing.T) {
	s := setupTestStore(t)
	const smi = "X123456789"

	var readings []models.DailyReading
	readings = append(readings, monthOf(smi, 12, 17, 31, 3)...)
	readings = append(readings, monthOf(smi, 2, 18, 28, 3)...)
	for d := 1; d <= 14; d++ {
		readings = append(readings, reading(smi, d, 3, 18, 2))
	}
	for d := 15; d <= 30; d++ {
		readings = append(readings, reading(smi, d, 3, 18, 2.5))
	}
	readings = append(readings, reading(smi, 31, 3, 18, 0))
	readings = append(readings, monthOf(smi, 4, 18, 30, 4)...)

	seed(t, s, readings,
		[]models.Site{{SMI: smi, SupplyDate: "2018-03-15"}},
		flatForecast(smi, 100))

	summary, err := New(s, Options{}).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sites)
	assert.Equal(t, 4, summary.Periods)
	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, 0, summary.Uncommissioned)

	forecasts, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	generation, err := s.GenerationSeries(smi)
	require.NoError(t, err)
	require.Len(t, forecasts, 4)
	require.Len(t, generation, 4)

	// Dec 17 and Feb 18 precede supply.
	assert.Equal(t, 0.0, forecasts[0])
	assert.Equal(t, 0.0, generation[0])
	assert.Equal(t, 0.0, forecasts[1])
	assert.Equal(t, 0.0, generation[1])

	assert.InDelta(t, 100*(1-15.0/31.0), forecasts[2], 1e-9)
	assert.InDelta(t, 40, generation[2], 1e-9)

	assert.Equal(t, 100.0, forecasts[3])
	assert.InDelta(t, 120, generation[3], 1e-9)
}

func TestRun_NoSupplyDateKeepsRawForecast(t *testing.T) {
	s := setupTestStore(t)
	const smi = "W100000001"

	var readings []models.DailyReading
	readings = append(readings, monthOf(smi, 1, 18, 31, 1)...)
	readings = append(readings, monthOf(smi, 2, 18, 28, 1)...)

	forecasts := []models.Forecast{
		{SMI: smi, Month: 1, Value: 40},
		{SMI: smi, Month: 2, Value: 35},
	}
	seed(t, s, readings, []models.Site{{SMI: smi}}, forecasts)

	summary, err := New(s, Options{}).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Uncommissioned)

	adjusted, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 35}, adjusted)

	generation, err := s.GenerationSeries(smi)
	require.NoError(t, err)
	assert.Equal(t, []float64{31, 28}, generation)
}

func TestRun_SiteWithoutMetadata(t *testing.T) {
	s := setupTestStore(t)
	const smi = "W100000002"

	seed(t, s, monthOf(smi, 5, 18, 31, 1), nil, nil)

	summary, err := New(s, Options{}).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Uncommissioned)

	adjusted, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, adjusted, "missing forecast row counts as zero")
}

func TestRun_DerateAppliesAfterProration(t *testing.T) {
	s := setupTestStore(t)
	const smi = "6203778594"

	var readings []models.DailyReading
	readings = append(readings, monthOf(smi, 3, 17, 31, 10)...)
	readings = append(readings, monthOf(smi, 4, 17, 30, 10)...)

	seed(t, s, readings,
		[]models.Site{{SMI: smi, SupplyDate: "2017-03-15"}},
		flatForecast(smi, 1000))

	_, err := New(s, Options{Overrides: overrides.Default()}).Run()
	require.NoError(t, err)

	adjusted, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	require.Len(t, adjusted, 2)
	assert.InDelta(t, 1000*(1-15.0/31.0)*0.926, adjusted[0], 1e-9)
	assert.InDelta(t, 1000*0.926, adjusted[1], 1e-9)
}

func TestRun_DerateSkipsExcludedMonths(t *testing.T) {
	s := setupTestStore(t)
	const smi = "6203779394"

	seed(t, s, monthOf(smi, 6, 16, 30, 10),
		[]models.Site{{SMI: smi, SupplyDate: "2017-01-01"}},
		flatForecast(smi, 500))

	_, err := New(s, Options{Overrides: overrides.Default()}).Run()
	require.NoError(t, err)

	adjusted, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, adjusted)
}

func TestRun_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	const smi = "X123456789"

	var readings []models.DailyReading
	readings = append(readings, monthOf(smi, 3, 18, 31, 2)...)
	readings = append(readings, monthOf(smi, 4, 18, 30, 2)...)
	seed(t, s, readings,
		[]models.Site{{SMI: smi, SupplyDate: "2018-03-10"}},
		flatForecast(smi, 60))

	r := New(s, Options{})
	_, err := r.Run()
	require.NoError(t, err)
	firstFC, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	firstGen, err := s.GenerationSeries(smi)
	require.NoError(t, err)

	_, err = r.Run()
	require.NoError(t, err)
	secondFC, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	secondGen, err := s.GenerationSeries(smi)
	require.NoError(t, err)

	assert.Equal(t, firstFC, secondFC)
	assert.Equal(t, firstGen, secondGen)
}

func TestRun_RecomputesAfterInputChange(t *testing.T) {
	s := setupTestStore(t)
	const smi = "X123456789"

	seed(t, s, monthOf(smi, 4, 18, 30, 2),
		[]models.Site{{SMI: smi, SupplyDate: "2018-01-01"}},
		flatForecast(smi, 60))

	_, err := New(s, Options{}).Run()
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSites(
		[]models.Site{{SMI: smi, SupplyDate: "2018-01-01"}},
		flatForecast(smi, 90)))

	_, err = New(s, Options{}).Run()
	require.NoError(t, err)

	adjusted, err := s.AdjustedForecastSeries(smi)
	require.NoError(t, err)
	assert.Equal(t, []float64{90}, adjusted, "stale derived rows must be purged")
}

func TestRun_MalformedSupplyDateAborts(t *testing.T) {
	s := setupTestStore(t)

	seed(t, s, monthOf("X123456789", 4, 18, 30, 2),
		[]models.Site{{SMI: "X123456789", SupplyDate: "2018-01-01"}},
		flatForecast("X123456789", 60))
	_, err := New(s, Options{}).Run()
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSites(
		[]models.Site{{SMI: "X123456789", SupplyDate: "next week"}},
		flatForecast("X123456789", 60)))

	_, err = New(s, Options{}).Run()
	require.ErrorIs(t, err, ErrMalformedSupplyDate)
	assert.Contains(t, err.Error(), "X123456789")

	adjusted, err := s.AdjustedForecastSeries("X123456789")
	require.NoError(t, err)
	assert.Equal(t, []float64{60}, adjusted, "previous derived rows survive an aborted run")
}

func TestRun_DayPastMonthEndAborts(t *testing.T) {
	for _, supplyDate := range []string{"2018-04-31", "2032-02-29"} {
		t.Run(supplyDate, func(t *testing.T) {
			s := setupTestStore(t)
			seed(t, s, monthOf("X123456789", 4, 18, 30, 2),
				[]models.Site{{SMI: "X123456789", SupplyDate: supplyDate}},
				flatForecast("X123456789", 100))

			_, err := New(s, Options{}).Run()
			require.ErrorIs(t, err, ErrMalformedSupplyDate)
			assert.Contains(t, err.Error(), "X123456789")

			adjusted, err := s.AdjustedForecastSeries("X123456789")
			require.NoError(t, err)
			assert.Empty(t, adjusted)
		})
	}
}

func TestRun_WorkersMatchSequential(t *testing.T) {
	build := func(workers int) map[string][]float64 {
		s := setupTestStore(t)
		var readings []models.DailyReading
		var sites []models.Site
		var forecasts []models.Forecast
		for i, smi := range []string{"A100000001", "B100000002", "W100000003", "X100000004"} {
			readings = append(readings, monthOf(smi, 5, 18, 31, float64(i+1))...)
			readings = append(readings, monthOf(smi, 6, 18, 30, float64(i+1))...)
			sites = append(sites, models.Site{SMI: smi, SupplyDate: "2018-05-20"})
			forecasts = append(forecasts, flatForecast(smi, 100)...)
		}
		seed(t, s, readings, sites, forecasts)

		_, err := New(s, Options{Workers: workers}).Run()
		require.NoError(t, err)

		out := make(map[string][]float64)
		for _, site := range sites {
			fc, err := s.AdjustedForecastSeries(site.SMI)
			require.NoError(t, err)
			gen, err := s.GenerationSeries(site.SMI)
			require.NoError(t, err)
			out[site.SMI] = append(fc, gen...)
		}
		return out
	}

	assert.Equal(t, build(1), build(4))
}

func TestAggregator_EmptyMonthIsZero(t *testing.T) {
	s := setupTestStore(t)
	agg := NewAggregator(s)

	sum, err := agg.MonthlySum("X123456789", models.MonthYear{Month: 1, Year: 18})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)

	sum, err = agg.MonthlySumFrom("X123456789", models.MonthYear{Month: 1, Year: 18}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestAggregator_SumFromDay(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s, monthOf("X123456789", 1, 18, 31, 1), nil, nil)
	agg := NewAggregator(s)

	sum, err := agg.MonthlySum("X123456789", models.MonthYear{Month: 1, Year: 18})
	require.NoError(t, err)
	assert.Equal(t, 31.0, sum)

	sum, err = agg.MonthlySumFrom("X123456789", models.MonthYear{Month: 1, Year: 18}, 20)
	require.NoError(t, err)
	assert.Equal(t, 12.0, sum)
}
