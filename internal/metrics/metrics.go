//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package metrics holds the Prometheus counters of a batch run. Batch runs
// do not serve HTTP, so the registry is written to a node-exporter
// textfile when the run ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pgEdge/pgedge-salesdw/pkg/version"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgedge_salesdw_build_info",
			Help: "Build information of pgedge-salesdw",
		},
		[]string{"version", "commit", "date"},
	)

	ScrubRowsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgedge_salesdw_scrub_rows_removed_total",
			Help: "Rows removed while cleaning, by entity and rule",
		},
		[]string{"entity", "rule"},
	)

	LoadRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgedge_salesdw_load_rows_total",
			Help: "Rows handled by the warehouse loader, by table and outcome",
		},
		[]string{"table", "outcome"},
	)

	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgedge_salesdw_load_duration_seconds",
			Help:    "Duration of table loads",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"table"},
	)

	ConsistencyChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgedge_salesdw_consistency_checks_total",
			Help: "Aggregate consistency checks, by status",
		},
		[]string{"status"},
	)
)

// WriteTextfile writes every registered metric to path in the text
// exposition format.
func WriteTextfile(path string) error {
	BuildInfo.WithLabelValues(version.Version, version.Commit, version.BuildDate).Set(1)
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
