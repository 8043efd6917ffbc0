package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lox/solarperf/internal/config"
	"github.com/lox/solarperf/internal/ingest"
	"github.com/lox/solarperf/internal/metrics"
	"github.com/lox/solarperf/internal/reconcile"
	"github.com/lox/solarperf/internal/report"
	"github.com/lox/solarperf/internal/store"
)

// Phase names recorded in the runs table.
const (
	PhaseFetch       = "fetch"
	PhaseIngestDaily = "ingest-daily"
	PhaseIngestSites = "ingest-sites"
	PhaseReconcile   = "reconcile"
	PhaseReport      = "report"
)

// Pipeline runs the batch phases against one store. Every phase is audited in
// the runs table and timed in metrics.PhaseDuration.
type Pipeline struct {
	store *store.Store
	cfg   config.Config
}

func New(s *store.Store, cfg config.Config) *Pipeline {
	return &Pipeline{store: s, cfg: cfg}
}

// Fetch downloads daily exports from the configured FTP drop into dest.
func (p *Pipeline) Fetch(dest string) (int, error) {
	var fetched int
	err := p.phase(PhaseFetch, p.cfg.FTP.Addr, func() (int, int, error) {
		fetcher := ingest.NewFTPFetcher(p.cfg.FTP.Addr, p.cfg.FTP.User, p.cfg.FTP.Password, p.cfg.FTP.Dir)
		n, err := fetcher.Fetch(dest)
		fetched = n
		return n, 0, err
	})
	return fetched, err
}

// IngestDaily replaces the daily readings with the exports in folder.
func (p *Pipeline) IngestDaily(folder string) (ingest.DailyResult, error) {
	var result ingest.DailyResult
	err := p.phase(PhaseIngestDaily, folder, func() (int, int, error) {
		d := ingest.NewDailyIngester(p.store, p.cfg.GenerationLabels)
		res, err := d.IngestFolder(folder)
		result = res
		return res.Readings, res.SMIs, err
	})
	return result, err
}

// IngestSites replaces the site metadata and forecasts with the export at path.
func (p *Pipeline) IngestSites(path string) (ingest.SiteResult, error) {
	var result ingest.SiteResult
	err := p.phase(PhaseIngestSites, path, func() (int, int, error) {
		table, err := p.cfg.Overrides()
		if err != nil {
			return 0, 0, err
		}
		si, err := ingest.NewSiteIngester(p.store, ingest.SiteOptions{
			Headers:              p.cfg.HeaderMappings,
			TrailingRows:         p.cfg.TrailingRows,
			WorkbookTrailingRows: p.cfg.WorkbookTrailingRows,
			TariffPrefixLen:      p.cfg.TariffPrefixLen,
			Overrides:            table,
		})
		if err != nil {
			return 0, 0, err
		}
		res, err := si.IngestFile(path)
		result = res
		return res.Forecasts, res.Sites, err
	})
	return result, err
}

// Reconcile rebuilds the derived monthly tables.
func (p *Pipeline) Reconcile() (reconcile.Summary, error) {
	var summary reconcile.Summary
	err := p.phase(PhaseReconcile, "", func() (int, int, error) {
		opts, err := p.cfg.ReconcileOptions()
		if err != nil {
			return 0, 0, err
		}
		s, err := reconcile.New(p.store, opts).Run()
		summary = s
		return s.Rows, s.Sites, err
	})
	return summary, err
}

// Report writes the workbook into the output directory and returns its path.
func (p *Pipeline) Report() (string, error) {
	var path string
	err := p.phase(PhaseReport, p.cfg.OutputDir, func() (int, int, error) {
		r, err := report.NewAssembler(p.store, report.Options{OutageThreshold: p.cfg.OutageThreshold}).Build()
		if err != nil {
			return 0, 0, err
		}
		if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
			return 0, 0, fmt.Errorf("create output dir: %w", err)
		}
		path = filepath.Join(p.cfg.OutputDir, report.Filename(r.LastDate, p.cfg.PadFilename))
		if err := report.Write(r, path); err != nil {
			return 0, len(r.Sites), err
		}
		return len(r.Sites) + len(r.Matrix), len(r.Sites), nil
	})
	return path, err
}

// Run executes ingest-daily, ingest-sites, reconcile and report in order and
// stops at the first failure. An empty sitesFile keeps the stored metadata.
func (p *Pipeline) Run(folder, sitesFile string) (string, error) {
	if _, err := p.IngestDaily(folder); err != nil {
		return "", err
	}
	if sitesFile != "" {
		if _, err := p.IngestSites(sitesFile); err != nil {
			return "", err
		}
	}
	if _, err := p.Reconcile(); err != nil {
		return "", err
	}
	return p.Report()
}

// Exports lists archived source files of kind, newest first. An empty kind
// lists every file.
func (p *Pipeline) Exports(kind string) ([]store.ArchivedExport, error) {
	return p.store.ArchivedExports(kind)
}

// RestoreExport writes the archived file with the given content hash to path.
func (p *Pipeline) RestoreExport(hash, path string) error {
	data, err := p.store.ArchivedExportData(hash)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("pipeline: restored export %s to %s (%d bytes)", hash, path, len(data))
	return nil
}

func (p *Pipeline) phase(name, source string, fn func() (records, sites int, err error)) error {
	timer := prometheus.NewTimer(metrics.PhaseDuration.WithLabelValues(name))
	defer timer.ObserveDuration()

	run, err := p.store.StartRun(name, source)
	if err != nil {
		log.Printf("pipeline: failed to record %s run: %v", name, err)
	}

	records, sites, runErr := fn()
	if err := p.store.CompleteRun(run, records, sites, runErr); err != nil {
		log.Printf("pipeline: failed to complete %s run: %v", name, err)
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", name, runErr)
	}
	log.Printf("pipeline: %s complete (%d records, %d sites)", name, records, sites)
	return nil
}
