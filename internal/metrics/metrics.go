package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solarperf_readings_ingested_total",
			Help: "Total daily generation readings stored",
		},
	)

	ReadingsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solarperf_readings_flagged_total",
			Help: "Total daily generation readings flagged by validation",
		},
	)

	SitesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solarperf_sites_ingested_total",
			Help: "Total site metadata rows stored",
		},
	)

	SitesReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarperf_sites_reconciled_total",
			Help: "Total sites reconciled against their supply date",
		},
		[]string{"supply_date"},
	)

	ReportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarperf_report_rows_total",
			Help: "Total rows written to the performance workbook",
		},
		[]string{"sheet"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarperf_phase_duration_seconds",
			Help:    "Duration of each batch phase in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
)

// WriteTextfile dumps the default registry in the node_exporter textfile
// format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
