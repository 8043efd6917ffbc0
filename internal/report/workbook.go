package report

import (
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"github.com/lox/solarperf/internal/metrics"
	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/perf"
)

const (
	SheetAllSites    = "All_sites"
	SheetPerformance = "Perf Report"
	SheetSummary     = "Summary"
)

const (
	fillRed   = "FA5858"
	fillGreen = "9AFE2E"

	// numFmtPercent is the built-in "0.00%" format.
	numFmtPercent = 10
)

var monthHeadings = [12]string{
	"Jan FC", "Feb FC", "Mar FC", "Apr FC", "May FC", "Jun FC",
	"Jul FC", "Aug FC", "Sep FC", "Oct FC", "Nov FC", "Dec FC",
}

var detailHeadings = []string{
	"SMI", "Ref No", "State", "Installer", "System Size", "Export Control",
	"Panel Make", "System Type", "PPA Status", "Supply Date", "Tariff",
}

var revenueHeadings = [len(perf.Periods)][3]string{
	perf.Annual:        {"Annual FC $", "Annual Gen $", "Shortfall $"},
	perf.Quarter:       {"Quarter FC $", "Quarter Gen $", "Shortfall $"},
	perf.Month:         {"CurrMonth FC $", "CurrMonth Gen $", "Shortfall $"},
	perf.PreviousMonth: {"PrevMonth FC $", "PrevMonth Gen $", "Shortfall $"},
}

// PerformanceHeadings returns the Perf Report header row for the given months.
func PerformanceHeadings(periods []models.MonthYear) []string {
	headings := append([]string(nil), detailHeadings...)
	headings = append(headings, monthHeadings[:]...)
	for _, p := range periods {
		headings = append(headings, fmt.Sprintf("adj_fc(%s)", p))
	}
	for _, p := range periods {
		headings = append(headings, fmt.Sprintf("gen(%s)", p))
	}
	for _, p := range perf.Periods {
		headings = append(headings, p.String()+" FC", p.String()+" Gen", p.String()+" Perf")
	}
	headings = append(headings, "Outage Days")
	for _, p := range perf.Periods {
		headings = append(headings, revenueHeadings[p][:]...)
	}
	return headings
}

// cellStyle is the set of formatting a report cell can carry.
type cellStyle struct {
	fill    string
	left    bool
	right   bool
	percent bool
}

// ratioStyle formats a performance ratio, filled red below the
// underperformance threshold and green above the overperformance threshold.
func ratioStyle(ratio float64) cellStyle {
	st := cellStyle{percent: true}
	switch perf.Classify(ratio) {
	case perf.HighlightUnder:
		st.fill = fillRed
	case perf.HighlightOver:
		st.fill = fillGreen
	}
	return st
}

type styleCache struct {
	f   *excelize.File
	ids map[cellStyle]int
}

func (c *styleCache) id(st cellStyle) (int, error) {
	if id, ok := c.ids[st]; ok {
		return id, nil
	}
	style := &excelize.Style{}
	if st.fill != "" {
		style.Fill = excelize.Fill{Type: "pattern", Color: []string{st.fill}, Pattern: 1}
	}
	if st.left {
		style.Border = append(style.Border, excelize.Border{Type: "left", Color: "000000", Style: 1})
	}
	if st.right {
		style.Border = append(style.Border, excelize.Border{Type: "right", Color: "000000", Style: 1})
	}
	if st.percent {
		style.NumFmt = numFmtPercent
	}
	id, err := c.f.NewStyle(style)
	if err != nil {
		return 0, err
	}
	c.ids[st] = id
	return id, nil
}

// rowWriter fills one sheet row left to right. The first error sticks and
// later calls are no-ops.
type rowWriter struct {
	f      *excelize.File
	styles *styleCache
	sheet  string
	row    int
	col    int
	err    error
}

func (w *rowWriter) next(row int) {
	w.row = row
	w.col = 0
}

func (w *rowWriter) put(v interface{}, st cellStyle) {
	w.col++
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(w.col, w.row)
	if err != nil {
		w.err = err
		return
	}
	if v != nil {
		if err := w.f.SetCellValue(w.sheet, cell, v); err != nil {
			w.err = fmt.Errorf("%s!%s: %w", w.sheet, cell, err)
			return
		}
	}
	if st == (cellStyle{}) {
		return
	}
	id, err := w.styles.id(st)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellStyle(w.sheet, cell, cell, id); err != nil {
		w.err = fmt.Errorf("%s!%s: %w", w.sheet, cell, err)
	}
}

func (w *rowWriter) skip() {
	w.put(nil, cellStyle{})
}

func (w *rowWriter) header(headings []string) {
	w.next(1)
	for _, h := range headings {
		w.put(h, cellStyle{})
	}
}

// Write saves the report as a workbook with the All_sites, Perf Report and
// Summary sheets.
func Write(r *Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", SheetAllSites)
	for _, name := range []string{SheetPerformance, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	styles := &styleCache{f: f, ids: make(map[cellStyle]int)}
	for _, write := range []func(*rowWriter, *Report){writeAllSites, writePerformance, writeSummary} {
		w := &rowWriter{f: f, styles: styles}
		write(w, r)
		if w.err != nil {
			return w.err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	log.Printf("report: wrote %s", path)
	return nil
}

func writeAllSites(w *rowWriter, r *Report) {
	w.sheet = SheetAllSites

	headings := []string{"SMI"}
	for _, p := range r.Periods {
		headings = append(headings, fmt.Sprintf("%d,%d", p.Month, p.Year))
	}
	w.header(append(headings, "Outage Days"))

	for i, m := range r.Matrix {
		w.next(i + 2)
		w.put(m.SMI, cellStyle{right: true})
		for _, gen := range m.Generation {
			if gen.Valid {
				w.put(gen.Float64, cellStyle{})
			} else {
				w.skip()
			}
		}
		w.put(m.OutageDays, cellStyle{left: true})
		metrics.ReportRows.WithLabelValues(SheetAllSites).Inc()
	}
}

func writePerformance(w *rowWriter, r *Report) {
	w.sheet = SheetPerformance
	w.header(PerformanceHeadings(r.Periods))

	for i, row := range r.Sites {
		w.next(i + 2)

		smiStyle := cellStyle{}
		if !row.Commissioned {
			smiStyle.fill = fillRed
		}
		w.put(row.SMI, smiStyle)
		writeDetails(w, row.Site)

		for j := 0; j < len(monthHeadings); j++ {
			st := cellStyle{left: j == 0}
			if j < len(row.RawForecast) {
				w.put(row.RawForecast[j], st)
			} else {
				w.put(nil, st)
			}
		}
		metrics.ReportRows.WithLabelValues(SheetPerformance).Inc()
		if !row.Commissioned {
			continue
		}

		writeSeries(w, row.AdjustedForecast, len(r.Periods))
		writeSeries(w, row.Generation, len(r.Periods))

		for _, p := range perf.Periods {
			t := row.Performance[p]
			w.put(t.Forecast, cellStyle{left: true})
			w.put(t.Generation, cellStyle{})
			st := ratioStyle(t.Ratio)
			st.right = p == perf.PreviousMonth
			w.put(t.Ratio, st)
		}

		outage := cellStyle{right: true}
		if row.OutageDays > 0 {
			outage.fill = fillRed
		}
		w.put(row.OutageDays, outage)

		if row.Revenue == nil {
			continue
		}
		for _, p := range perf.Periods {
			rev := row.Revenue[p]
			w.put(rev.Forecast.InexactFloat64(), cellStyle{})
			w.put(rev.Generation.InexactFloat64(), cellStyle{})
			w.put(rev.Shortfall.InexactFloat64(), cellStyle{right: true})
		}
	}
}

// writeDetails fills the metadata columns after the SMI. Sites missing from
// the site export get blank cells.
func writeDetails(w *rowWriter, site *models.Site) {
	if site == nil {
		for range detailHeadings[1:] {
			w.skip()
		}
		return
	}
	exportControl := "No"
	if site.ExportControl {
		exportControl = "Yes"
	}
	w.put(site.RefNo, cellStyle{})
	w.put(site.State, cellStyle{})
	w.put(site.Installer, cellStyle{})
	w.put(site.PVSize, cellStyle{})
	w.put(exportControl, cellStyle{})
	w.put(site.PanelBrand, cellStyle{})
	w.put(site.SiteType, cellStyle{})
	w.put(site.SiteStatus, cellStyle{})
	w.put(site.SupplyDate, cellStyle{})
	if site.Tariff.Valid {
		w.put(site.Tariff.Decimal.InexactFloat64(), cellStyle{})
	} else {
		w.skip()
	}
}

// writeSeries writes one value per observed month, leaving trailing cells
// blank when the series is short.
func writeSeries(w *rowWriter, values []float64, n int) {
	for i := 0; i < n; i++ {
		st := cellStyle{left: i == 0}
		if i < len(values) {
			w.put(values[i], st)
		} else {
			w.put(nil, st)
		}
	}
}

func writeSummary(w *rowWriter, r *Report) {
	w.sheet = SheetSummary

	headings := []string{"Performance"}
	for _, p := range perf.Periods {
		headings = append(headings, p.String()+" kW")
	}
	w.header(headings)

	var totals [len(perf.Periods)]perf.Buckets
	for _, p := range perf.Periods {
		totals[p] = r.Buckets.Totals(p)
	}
	for b := 0; b < perf.NumBuckets; b++ {
		w.next(b + 2)
		w.put(perf.BucketLabel(b), cellStyle{right: true})
		for _, p := range perf.Periods {
			w.put(totals[p][b], cellStyle{})
		}
		metrics.ReportRows.WithLabelValues(SheetSummary).Inc()
	}

	counts := []struct {
		label string
		value interface{}
	}{
		{"Last reading", fmt.Sprintf("%d/%d/%d", r.LastDate.Day, r.LastDate.Month, r.LastDate.Year)},
		{"Sites", len(r.Sites)},
		{"Sites bucketed", r.Buckets.Sites()},
		{"Without supply date", r.Uncommissioned},
		{"Without tariff", r.Untariffed},
	}
	row := perf.NumBuckets + 3
	for i, c := range counts {
		w.next(row + i)
		w.put(c.label, cellStyle{})
		w.put(c.value, cellStyle{})
	}
}
