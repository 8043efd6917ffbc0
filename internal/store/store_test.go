package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/solarperf/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	require.NoError(t, store.Migrate())
	return store
}

func reading(smi string, day, month, year int, value float64) models.DailyReading {
	return models.DailyReading{
		SMI:      smi,
		Datatype: "kWh Generation",
		Date:     models.Date{Day: day, Month: month, Year: year},
		Value:    sql.NullFloat64{Float64: value, Valid: true},
	}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	// applying again is a no-op
	require.NoError(t, store.Migrate())
	version, err = store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestInsertDailyReadings_NoDuplicate(t *testing.T) {
	store := setupTestStore(t)

	n, err := store.InsertDailyReadings([]models.DailyReading{
		reading("X123456789", 1, 3, 18, 10),
		reading("X123456789", 2, 3, 18, 11),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.InsertDailyReadings([]models.DailyReading{
		reading("X123456789", 2, 3, 18, 99),
		reading("X123456789", 3, 3, 18, 12),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "duplicate ignored")

	sum, err := store.SumReadings("X123456789", models.MonthYear{Month: 3, Year: 18})
	require.NoError(t, err)
	assert.Equal(t, 33.0, sum.Float64, "first value kept")

	count, err := store.CountDailyReadings()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, store.ClearDailyReadings())
	count, err = store.CountDailyReadings()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReadingSMIsAndPeriods(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.InsertDailyReadings([]models.DailyReading{
		reading("Y000000002", 5, 1, 18, 1),
		reading("X000000001", 31, 12, 17, 1),
		reading("X000000001", 1, 2, 18, 1),
		reading("Y000000002", 7, 1, 18, 1),
	})
	require.NoError(t, err)

	smis, err := store.ReadingSMIs()
	require.NoError(t, err)
	assert.Equal(t, []string{"X000000001", "Y000000002"}, smis)

	periods, err := store.ReadingPeriods()
	require.NoError(t, err)
	assert.Equal(t, []models.MonthYear{{Month: 12, Year: 17}, {Month: 1, Year: 18}, {Month: 2, Year: 18}}, periods)

	last, err := store.LastReadingDate()
	require.NoError(t, err)
	assert.Equal(t, models.Date{Day: 1, Month: 2, Year: 18}, last)
}

func TestLastReadingDate_NoData(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LastReadingDate()
	assert.ErrorIs(t, err, ErrNoReadings)
}

func TestSumReadings(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.InsertDailyReadings([]models.DailyReading{
		reading("X123456789", 1, 3, 18, 5),
		reading("X123456789", 14, 3, 18, 6),
		reading("X123456789", 15, 3, 18, 7),
		reading("X123456789", 31, 3, 18, 8),
		{SMI: "X123456789", Datatype: "kWh Generation", Date: models.Date{Day: 20, Month: 3, Year: 18}},
	})
	require.NoError(t, err)
	march := models.MonthYear{Month: 3, Year: 18}

	sum, err := store.SumReadings("X123456789", march)
	require.NoError(t, err)
	assert.Equal(t, sql.NullFloat64{Float64: 26, Valid: true}, sum)

	from, err := store.SumReadingsFrom("X123456789", march, 15)
	require.NoError(t, err)
	assert.Equal(t, sql.NullFloat64{Float64: 15, Valid: true}, from)

	empty, err := store.SumReadings("X123456789", models.MonthYear{Month: 4, Year: 18})
	require.NoError(t, err)
	assert.False(t, empty.Valid, "empty month sums to NULL")

	values, err := store.DailyValues("X123456789", march)
	require.NoError(t, err)
	require.Len(t, values, 5)
	assert.False(t, values[3].Valid, "day 20 is NULL")
}

func TestReplaceSites(t *testing.T) {
	store := setupTestStore(t)

	sites := []models.Site{
		{
			SMI:           "X123456789",
			RefNo:         "R1",
			PVSize:        "6.6",
			SupplyDate:    "2018-03-15",
			Tariff:        decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
			ExportControl: true,
			SiteType:      "Resi",
		},
		{SMI: "X123456789", RefNo: "duplicate"},
		{SMI: "B123456789", PVSize: "TBC"},
	}
	forecasts := []models.Forecast{
		{SMI: "X123456789", Month: 2, Value: 200},
		{SMI: "X123456789", Month: 1, Value: 100},
		{SMI: "X123456789", Month: 1, Value: 999},
	}
	require.NoError(t, store.ReplaceSites(sites, forecasts))

	count, err := store.CountSites()
	require.NoError(t, err)
	assert.Equal(t, 2, count, "duplicate SMI stored once")

	site, err := store.GetSite("X123456789")
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, "R1", site.RefNo, "first row kept")
	assert.Equal(t, "2018-03-15", site.SupplyDate)
	assert.True(t, site.ExportControl)
	assert.Equal(t, "Resi", site.SiteType)
	require.True(t, site.Tariff.Valid)
	assert.True(t, site.Tariff.Decimal.Equal(decimal.RequireFromString("12.5")), "Tariff = %v", site.Tariff)

	other, err := store.GetSite("B123456789")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.False(t, other.Tariff.Valid)
	assert.False(t, other.HasSupplyDate())

	fcs, err := store.Forecasts("X123456789")
	require.NoError(t, err)
	assert.Equal(t, []models.Forecast{
		{SMI: "X123456789", Month: 1, Value: 100},
		{SMI: "X123456789", Month: 2, Value: 200},
	}, fcs)

	missing, err := store.Forecast("X123456789", 7)
	require.NoError(t, err)
	assert.False(t, missing.Valid)

	// a second ingest replaces rather than merges
	require.NoError(t, store.ReplaceSites([]models.Site{{SMI: "Z123456789"}}, nil))
	count, err = store.CountSites()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	gone, err := store.GetSite("X123456789")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSaveMonthlyResults(t *testing.T) {
	store := setupTestStore(t)

	results := []models.MonthlyResult{
		{SMI: "X123456789", Period: models.MonthYear{Month: 1, Year: 18}, Generation: 90, Forecast: 100},
		{SMI: "X123456789", Period: models.MonthYear{Month: 12, Year: 17}, Generation: 80, Forecast: 95},
		{SMI: "X123456789", Period: models.MonthYear{Month: 2, Year: 18}, Generation: 70, Forecast: 60},
	}
	n, err := store.SaveMonthlyResults(results)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.SaveMonthlyResults(results[:1])
	require.NoError(t, err)
	assert.Zero(t, n, "re-save stores nothing")

	gen, err := store.GenerationSeries("X123456789")
	require.NoError(t, err)
	assert.Equal(t, []float64{80, 90, 70}, gen)

	fc, err := store.AdjustedForecastSeries("X123456789")
	require.NoError(t, err)
	assert.Equal(t, []float64{95, 100, 60}, fc)

	one, err := store.MonthlyGeneration("X123456789", models.MonthYear{Month: 2, Year: 18})
	require.NoError(t, err)
	assert.Equal(t, sql.NullFloat64{Float64: 70, Valid: true}, one)

	missing, err := store.MonthlyGeneration("X123456789", models.MonthYear{Month: 3, Year: 18})
	require.NoError(t, err)
	assert.False(t, missing.Valid)

	require.NoError(t, store.ClearDerived())
	gen, err = store.GenerationSeries("X123456789")
	require.NoError(t, err)
	assert.Empty(t, gen)
}

func TestRuns_StartAndComplete(t *testing.T) {
	store := setupTestStore(t)

	ok, err := store.StartRun("ingest-daily", "exports/")
	require.NoError(t, err)
	assert.NotEmpty(t, ok.ID)
	require.NoError(t, store.CompleteRun(ok, 120, 4, nil))

	failed, err := store.StartRun("reconcile", "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(failed, 0, 0, errors.New("malformed supply date")))

	runs, err := store.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := make(map[string]Run)
	for _, r := range runs {
		byID[r.ID] = r
	}
	got := byID[ok.ID]
	assert.True(t, got.Success)
	assert.Equal(t, int64(120), got.Records.Int64)
	assert.Equal(t, int64(4), got.Sites.Int64)
	assert.Equal(t, "exports/", got.Source.String)
	assert.True(t, got.FinishedAt.Valid)

	got = byID[failed.ID]
	assert.False(t, got.Success)
	assert.Equal(t, "malformed supply date", got.ErrorMessage.String)
	assert.False(t, got.Source.Valid)
}

func TestCompleteRun_Nil(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.CompleteRun(nil, 0, 0, nil))
}

func TestArchiveExport(t *testing.T) {
	store := setupTestStore(t)

	payload := []byte("Date,X123456789 - kWh Generation\n5-Mar-18,10\n")
	added, err := store.ArchiveExport(ExportDaily, "march.csv", payload)
	require.NoError(t, err)
	assert.True(t, added, "new content is archived")

	added, err = store.ArchiveExport(ExportDaily, "march-copy.csv", payload)
	require.NoError(t, err)
	assert.False(t, added, "duplicate content is skipped")

	exports, err := store.ArchivedExports(ExportDaily)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "march.csv", exports[0].Name)
	assert.Equal(t, int64(len(payload)), exports[0].Size)

	data, err := store.ArchivedExportData(exports[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(data))

	_, err = store.ArchivedExportData("0000")
	assert.ErrorIs(t, err, ErrExportNotFound)

	sites, err := store.ArchivedExports(ExportSites)
	require.NoError(t, err)
	assert.Empty(t, sites)
}
