package main

import (
	"fmt"
	"log"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/solarperf/internal/config"
	"github.com/lox/solarperf/internal/metrics"
	"github.com/lox/solarperf/internal/pipeline"
	"github.com/lox/solarperf/internal/store"
)

type Globals struct {
	EnvFile     kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	DB          string                   `help:"Path to SQLite database." default:"dataset.db" env:"SOLARPERF_DB" type:"path"`
	Config      string                   `help:"Path to YAML config file." env:"SOLARPERF_CONFIG" type:"path"`
	MetricsFile string                   `help:"Write run metrics in textfile format to this path." env:"SOLARPERF_METRICS_FILE"`
	Workers     int                      `help:"Sites reconciled concurrently (overrides config)."`
}

type CLI struct {
	Globals

	IngestDaily   IngestDailyCmd   `cmd:"" help:"Load daily generation exports from a folder."`
	IngestSites   IngestSitesCmd   `cmd:"" help:"Load site metadata and forecasts from a CSV or XLSX export."`
	Fetch         FetchCmd         `cmd:"" help:"Download daily exports from the FTP drop."`
	Reconcile     ReconcileCmd     `cmd:"" help:"Rebuild monthly generation and adjusted forecasts."`
	Report        ReportCmd        `cmd:"" help:"Write the performance workbook."`
	Run           RunCmd           `cmd:"" help:"Ingest, reconcile and report in one go."`
	Exports       ExportsCmd       `cmd:"" help:"List archived source exports."`
	RestoreExport RestoreExportCmd `cmd:"" help:"Write an archived source export back to disk."`
}

type IngestDailyCmd struct {
	Folder string `arg:"" optional:"" default:"daily_data" type:"existingdir" help:"Folder of daily export CSVs."`
}

func (c *IngestDailyCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		_, err := p.IngestDaily(c.Folder)
		return err
	})
}

type IngestSitesCmd struct {
	File string `arg:"" type:"existingfile" help:"Site metadata export (CSV or XLSX)."`
}

func (c *IngestSitesCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		_, err := p.IngestSites(c.File)
		return err
	})
}

type FetchCmd struct {
	Dest string `arg:"" optional:"" default:"daily_data" help:"Folder to download exports into."`
}

func (c *FetchCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		_, err := p.Fetch(c.Dest)
		return err
	})
}

type ReconcileCmd struct{}

func (c *ReconcileCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		_, err := p.Reconcile()
		return err
	})
}

type ReportCmd struct{}

func (c *ReportCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		path, err := p.Report()
		if err != nil {
			return err
		}
		log.Printf("complete: %s", path)
		return nil
	})
}

type RunCmd struct {
	Folder string `arg:"" optional:"" default:"daily_data" help:"Folder of daily export CSVs."`
	Sites  string `help:"Site metadata export to load before reconciling." type:"existingfile"`
	Fetch  bool   `help:"Download exports from the FTP drop into the folder first."`
}

func (c *RunCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		if c.Fetch {
			if _, err := p.Fetch(c.Folder); err != nil {
				return err
			}
		}
		path, err := p.Run(c.Folder, c.Sites)
		if err != nil {
			return err
		}
		log.Printf("complete: %s", path)
		return nil
	})
}

type ExportsCmd struct {
	Kind string `help:"Only list exports of this kind." enum:",daily,sites" default:""`
}

func (c *ExportsCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		exports, err := p.Exports(c.Kind)
		if err != nil {
			return err
		}
		for _, e := range exports {
			fmt.Printf("%s  %-5s  %s  %8d  %s\n", e.Hash, e.Kind, e.ArchivedAt.Format("2006-01-02 15:04"), e.Size, e.Name)
		}
		return nil
	})
}

type RestoreExportCmd struct {
	Hash string `arg:"" help:"Content hash shown by the exports command."`
	Dest string `arg:"" help:"File to write the export to."`
}

func (c *RestoreExportCmd) Run(g *Globals) error {
	return withPipeline(g, func(p *pipeline.Pipeline) error {
		return p.RestoreExport(c.Hash, c.Dest)
	})
}

// withPipeline loads configuration, opens the store for the duration of one
// command and writes the metrics textfile afterwards.
func withPipeline(g *Globals, fn func(*pipeline.Pipeline) error) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	if g.Workers > 0 {
		cfg.Workers = g.Workers
	}

	st, err := store.Open(g.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	runErr := fn(pipeline.New(st, cfg))

	if g.MetricsFile != "" {
		if err := metrics.WriteTextfile(g.MetricsFile); err != nil {
			log.Printf("write metrics: %v", err)
		}
	}
	return runErr
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("solarperf"),
		kong.Description("Solar generation performance reporting."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
