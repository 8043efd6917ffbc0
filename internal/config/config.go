package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/lox/solarperf/internal/ingest"
	"github.com/lox/solarperf/internal/overrides"
	"github.com/lox/solarperf/internal/perf"
	"github.com/lox/solarperf/internal/reconcile"
)

// ErrUnknownCalendar is returned for a calendar other than legacy or gregorian.
var ErrUnknownCalendar = errors.New("config: unknown calendar")

const (
	CalendarLegacy    = "legacy"
	CalendarGregorian = "gregorian"
)

// Config is the run configuration shared by every command. Derates and
// Tariffs from a file extend the built-in tables.
type Config struct {
	GenerationLabels     []string                   `yaml:"generation_labels"`
	HeaderMappings       []ingest.HeaderMapping     `yaml:"header_mappings"`
	TrailingRows         int                        `yaml:"trailing_rows"`
	WorkbookTrailingRows int                        `yaml:"workbook_trailing_rows"`
	TariffPrefixLen      int                        `yaml:"tariff_prefix_len"`
	Calendar             string                     `yaml:"calendar"`
	LeapYears            []int                      `yaml:"leap_years"`
	Derates              map[string]map[int]float64 `yaml:"derates"`
	Tariffs              map[string]string          `yaml:"tariffs"`
	OutageThreshold      float64                    `yaml:"outage_threshold"`
	OutputDir            string                     `yaml:"output_dir"`
	PadFilename          bool                       `yaml:"pad_filename"`
	Workers              int                        `yaml:"workers"`
	FTP                  FTPConfig                  `yaml:"ftp"`
}

// FTPConfig locates the drop the daily exports are delivered to.
type FTPConfig struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dir      string `yaml:"dir"`
}

// Default returns the configuration that reproduces the existing reports.
func Default() Config {
	legacy := overrides.Default()
	tariffs := make(map[string]string, len(legacy.Tariffs))
	for smi, v := range legacy.Tariffs {
		tariffs[smi] = v.String()
	}
	return Config{
		GenerationLabels:     ingest.DefaultGenerationLabels(),
		HeaderMappings:       ingest.DefaultHeaderMappings(),
		WorkbookTrailingRows: ingest.DefaultWorkbookTrailingRows,
		TariffPrefixLen:      ingest.DefaultTariffPrefixLen,
		Calendar:             CalendarLegacy,
		LeapYears:            []int{16, 20, 24, 28},
		Derates:              legacy.Derates,
		Tariffs:              tariffs,
		OutageThreshold:      perf.DefaultOutageThreshold,
		OutputDir:            ".",
		Workers:              1,
		FTP: FTPConfig{
			User: "anonymous",
			Dir:  "/",
		},
	}
}

// Load builds defaults, overlays the YAML file at path when path is non-empty,
// then applies SOLARPERF_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Calendar = getenvDefault("SOLARPERF_CALENDAR", cfg.Calendar)
	cfg.OutputDir = getenvDefault("SOLARPERF_OUTPUT_DIR", cfg.OutputDir)
	cfg.Workers = getenvIntDefault("SOLARPERF_WORKERS", cfg.Workers)
	cfg.FTP.Addr = getenvDefault("SOLARPERF_FTP_ADDR", cfg.FTP.Addr)
	cfg.FTP.User = getenvDefault("SOLARPERF_FTP_USER", cfg.FTP.User)
	cfg.FTP.Password = getenvDefault("SOLARPERF_FTP_PASSWORD", cfg.FTP.Password)
	if v := os.Getenv("SOLARPERF_PAD_FILENAME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PadFilename = b
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Calendar {
	case CalendarLegacy, CalendarGregorian:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCalendar, c.Calendar)
	}
	if len(c.GenerationLabels) == 0 {
		return errors.New("config: at least one generation label required")
	}
	if c.OutageThreshold < 0 {
		return errors.New("config: outage_threshold must not be negative")
	}
	if _, err := c.Overrides(); err != nil {
		return err
	}
	return nil
}

// ReconcileCalendar returns the month-length rules selected by Calendar.
func (c Config) ReconcileCalendar() reconcile.Calendar {
	if c.Calendar == CalendarGregorian {
		return reconcile.GregorianCalendar()
	}
	leap := make(map[int]bool, len(c.LeapYears))
	for _, y := range c.LeapYears {
		leap[y] = true
	}
	return reconcile.Calendar{LeapYears: leap}
}

// Overrides converts the derate and tariff sections into an override table.
func (c Config) Overrides() (overrides.Table, error) {
	table := overrides.Table{
		Derates: c.Derates,
		Tariffs: make(map[string]decimal.Decimal, len(c.Tariffs)),
	}
	for smi, raw := range c.Tariffs {
		v, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return table, fmt.Errorf("config: tariff for %s: %w", smi, err)
		}
		table.Tariffs[smi] = v
	}
	return table, nil
}

// ReconcileOptions assembles the reconciler settings.
func (c Config) ReconcileOptions() (reconcile.Options, error) {
	table, err := c.Overrides()
	if err != nil {
		return reconcile.Options{}, err
	}
	return reconcile.Options{
		Calendar:  c.ReconcileCalendar(),
		Overrides: table,
		Workers:   c.Workers,
	}, nil
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
