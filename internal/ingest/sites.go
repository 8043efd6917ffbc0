package ingest

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/lox/solarperf/internal/metrics"
	"github.com/lox/solarperf/internal/models"
	"github.com/lox/solarperf/internal/overrides"
	"github.com/lox/solarperf/internal/store"
)

// DefaultTariffPrefixLen is the length of the label the CRM puts in front of
// tariff values.
const DefaultTariffPrefixLen = 5

// DefaultWorkbookTrailingRows is the footer the CRM appends to its XLSX
// report: totals, filter summary and generation stamp.
const DefaultWorkbookTrailingRows = 6

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

type SiteOptions struct {
	Headers []HeaderMapping
	// TrailingRows are footer rows at the end of a CSV export to ignore.
	TrailingRows int
	// WorkbookTrailingRows are footer rows at the end of an XLSX export.
	WorkbookTrailingRows int
	TariffPrefixLen      int
	Overrides            overrides.Table
}

// SiteResult summarises a site metadata ingest.
type SiteResult struct {
	Sites     int
	Forecasts int
}

type SiteIngester struct {
	store   *store.Store
	headers *HeaderMap
	opts    SiteOptions
}

func NewSiteIngester(s *store.Store, opts SiteOptions) (*SiteIngester, error) {
	if opts.Headers == nil {
		opts.Headers = DefaultHeaderMappings()
	}
	hm, err := NewHeaderMap(opts.Headers)
	if err != nil {
		return nil, err
	}
	return &SiteIngester{store: s, headers: hm, opts: opts}, nil
}

// IngestFile replaces the site and forecast tables with the export at path.
func (si *SiteIngester) IngestFile(path string) (SiteResult, error) {
	rows, err := ReadSheet(path)
	if err != nil {
		return SiteResult{}, err
	}
	trailing := si.opts.TrailingRows
	if isWorkbook(path) {
		trailing = si.opts.WorkbookTrailingRows
	}
	sites, forecasts, err := si.parse(rows, trailing)
	if err != nil {
		return SiteResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := si.store.ReplaceSites(sites, forecasts); err != nil {
		return SiteResult{}, fmt.Errorf("store sites: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SiteResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := si.store.ArchiveExport(store.ExportSites, filepath.Base(path), data); err != nil {
		return SiteResult{}, fmt.Errorf("archive %s: %w", path, err)
	}
	stored, err := si.store.CountSites()
	if err != nil {
		return SiteResult{}, fmt.Errorf("count sites: %w", err)
	}
	metrics.SitesIngested.Add(float64(stored))

	log.Printf("ingest: collected details for %d unique SMIs", stored)
	return SiteResult{Sites: stored, Forecasts: len(forecasts)}, nil
}

// ReadSheet returns the cells of a CSV file or of the first sheet of an XLSX
// workbook. Workbook cells are read raw so dates arrive as serial numbers.
func ReadSheet(path string) ([][]string, error) {
	if isWorkbook(path) {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook %s: %w", path, err)
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
		}
		return rows, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func isWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Parse converts export rows into sites and their forecast profiles. The
// first row is the header and the last TrailingRows rows are dropped.
func (si *SiteIngester) Parse(rows [][]string) ([]models.Site, []models.Forecast, error) {
	return si.parse(rows, si.opts.TrailingRows)
}

func (si *SiteIngester) parse(rows [][]string, trailing int) ([]models.Site, []models.Forecast, error) {
	if len(rows) == 0 {
		return nil, nil, ErrNoSMIColumn
	}
	cols, err := si.headers.Columns(rows[0])
	if err != nil {
		return nil, nil, err
	}

	end := len(rows) - trailing
	var sites []models.Site
	var forecasts []models.Forecast
	for i := 1; i < end; i++ {
		row := rows[i]
		get := func(field string) string {
			c, ok := cols[field]
			if !ok || c >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[c])
		}

		smi := get(FieldSMI)
		if smi == "" {
			continue
		}
		if len(smi) > 10 {
			smi = smi[:10]
		}

		site := models.Site{
			SMI:           smi,
			RefNo:         get(FieldRefNo),
			ECS:           get(FieldECS),
			Installer:     get(FieldInstaller),
			PVSize:        get(FieldPVSize),
			PanelBrand:    get(FieldPanelBrand),
			Address:       get(FieldAddress),
			Postcode:      get(FieldPostcode),
			State:         get(FieldState),
			SiteStatus:    get(FieldSiteStatus),
			InstallDate:   normalizeDate(get(FieldInstallDate)),
			SupplyDate:    normalizeDate(get(FieldSupplyDate)),
			ExportControl: strings.EqualFold(get(FieldExportControl), "yes"),
			Tariff:        ParseTariff(get(FieldTariff), si.opts.TariffPrefixLen),
		}
		site.SiteType = SiteType(smi, site.PVSize)
		if t, ok := si.opts.Overrides.Tariff(smi); ok {
			site.Tariff = decimal.NewNullDecimal(t)
		}

		for m, field := range monthFields {
			c, ok := cols[field]
			if !ok {
				continue
			}
			month := m + 1
			var cell string
			if c < len(row) {
				cell = strings.TrimSpace(row[c])
			}
			value := 0.0
			if cell != "" {
				v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
				if err != nil {
					return nil, nil, fmt.Errorf("row %d: %s forecast %q: %w", i+1, smi, cell, err)
				}
				value = v
			}
			forecasts = append(forecasts, models.Forecast{SMI: smi, Month: month, Value: value})
		}

		log.Printf("ingest: collected SMI details for %s", smi)
		sites = append(sites, site)
	}
	return sites, forecasts, nil
}

// SiteType classifies a site: systems over 100 kW are C&I, otherwise the
// SMI's leading letter decides between SME (A-G) and residential (W-Z).
func SiteType(smi, pvSize string) string {
	if pvSize == "" || smi == "" {
		return ""
	}
	if size, err := strconv.ParseFloat(pvSize, 64); err == nil && size > 100 {
		return "C&I"
	}
	switch c := smi[0]; {
	case c >= 'A' && c <= 'G':
		return "SME"
	case c >= 'W' && c <= 'Z':
		return "Resi"
	}
	return ""
}

// ParseTariff reads a tariff cell. Plain numbers are used as-is; otherwise
// the leading label of prefixLen characters is dropped along with anything
// that is not a digit or a decimal point.
func ParseTariff(s string, prefixLen int) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return decimal.NewNullDecimal(d)
	}
	if prefixLen > 0 && len(s) > prefixLen {
		s = s[prefixLen:]
	}
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
