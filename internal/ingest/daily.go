package ingest

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lox/solarperf/internal/metrics"
	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/store"
)

// ErrNoReadings is returned when an ingest folder yields no generation readings.
var ErrNoReadings = errors.New("ingest: no generation readings found")

var (
	smiPattern = regexp.MustCompile(`[a-zA-Z0-9]{10}`)
	hasDigit   = regexp.MustCompile(`\d`)
)

// DefaultGenerationLabels are the metric labels that carry daily generation.
func DefaultGenerationLabels() []string {
	return []string{"kWh Generation", "kWh Generation Generation", "kWh Generation B1"}
}

// DailyResult summarises a daily export ingest.
type DailyResult struct {
	Files    int
	Readings int
	SMIs     int
	Flagged  int
}

type DailyIngester struct {
	store  *store.Store
	labels map[string]bool
}

func NewDailyIngester(s *store.Store, labels []string) *DailyIngester {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return &DailyIngester{store: s, labels: set}
}

// IngestFolder replaces the readings table with the contents of every file
// in folder.
func (d *DailyIngester) IngestFolder(folder string) (DailyResult, error) {
	var result DailyResult

	files, err := exportFiles(folder)
	if err != nil {
		return result, err
	}

	if err := d.store.ClearDailyReadings(); err != nil {
		return result, fmt.Errorf("clear daily readings: %w", err)
	}

	smis := make(map[string]bool)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return result, fmt.Errorf("read %s: %w", path, err)
		}
		readings, err := d.Parse(bytes.NewReader(data))
		if err != nil {
			return result, fmt.Errorf("parse %s: %w", path, err)
		}

		for _, r := range readings {
			if !smis[r.SMI] {
				smis[r.SMI] = true
				log.Printf("ingest: collating daily data for SMI %s", r.SMI)
			}
			if flags := ValidateReading(r); len(flags) > 0 {
				result.Flagged++
				metrics.ReadingsFlagged.Inc()
			}
		}

		stored, err := d.store.InsertDailyReadings(readings)
		if err != nil {
			return result, fmt.Errorf("store %s: %w", path, err)
		}
		metrics.ReadingsIngested.Add(float64(stored))
		if _, err := d.store.ArchiveExport(store.ExportDaily, filepath.Base(path), data); err != nil {
			return result, fmt.Errorf("archive %s: %w", path, err)
		}
		result.Files++
		result.Readings += stored
	}
	result.SMIs = len(smis)

	if result.Readings == 0 {
		return result, fmt.Errorf("%w in %s", ErrNoReadings, folder)
	}
	if result.Flagged > 0 {
		log.Printf("ingest: %d readings flagged by validation", result.Flagged)
	}
	log.Printf("ingest: collated %d data points for %d unique SMIs from %d files", result.Readings, result.SMIs, result.Files)
	return result, nil
}

func exportFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Parse reads one daily export. The first column holds dates; every other
// header names one or more SMIs and ends in "- <metric label>". Only columns
// whose label is a generation label are kept.
func (d *DailyIngester) Parse(r io.Reader) ([]models.DailyReading, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	dates := make([]models.Date, len(records))
	validDate := make([]bool, len(records))
	for i := 1; i < len(records); i++ {
		if len(records[i]) == 0 {
			continue
		}
		dates[i], validDate[i] = parseExportDate(records[i][0])
	}

	var readings []models.DailyReading
	for col, title := range header {
		datatype := metricLabel(title)
		if !d.labels[datatype] {
			continue
		}
		for _, smi := range smiPattern.FindAllString(title, -1) {
			if !hasDigit.MatchString(smi) {
				continue
			}
			for i := 1; i < len(records); i++ {
				if !validDate[i] {
					continue
				}
				var cell string
				if col < len(records[i]) {
					cell = records[i][col]
				}
				readings = append(readings, models.DailyReading{
					SMI:      smi,
					Datatype: datatype,
					Date:     dates[i],
					Value:    parseReading(cell),
				})
			}
		}
	}
	return readings, nil
}

// metricLabel returns the text after the last "- " of a column header.
func metricLabel(title string) string {
	if i := strings.LastIndex(title, "- "); i >= 0 {
		return strings.TrimSpace(title[i+2:])
	}
	return strings.TrimSpace(title)
}

func parseReading(cell string) sql.NullFloat64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
