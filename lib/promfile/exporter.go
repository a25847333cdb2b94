// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package promfile writes the result of a rebalance run in the
// Prometheus text format, for node_exporter's textfile collector.
package promfile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsbalance"
	"git.lukeshu.com/btrfs-rebalance/lib/btrfsusage"
)

const (
	namespace = "btrfs"
	subsystem = "rebalance"
)

// Exporter holds the gauges for one run.  It has its own registry, so
// that only rebalance metrics end up in the file.
type Exporter struct {
	registry *prometheus.Registry

	AllocPercent         *prometheus.GaugeVec
	UsedOverAllocPercent *prometheus.GaugeVec
	DataUsedPercent      *prometheus.GaugeVec
	MetadataUsedPercent  *prometheus.GaugeVec
	FreeDeltaBytes       *prometheus.GaugeVec
	Passes               *prometheus.GaugeVec
	LastRunTimestamp     *prometheus.GaugeVec
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewExporter creates the gauges and registers them.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),

		AllocPercent: newGaugeVec("alloc_percent",
			"Percentage of the device allocated into chunks", "mountpath"),
		UsedOverAllocPercent: newGaugeVec("used_over_alloc_percent",
			"Percentage of allocated chunk space that holds data", "mountpath"),
		DataUsedPercent: newGaugeVec("data_used_percent",
			"Fill ratio of the Data chunk group", "mountpath"),
		MetadataUsedPercent: newGaugeVec("metadata_used_percent",
			"Fill ratio of the Metadata chunk group", "mountpath"),
		FreeDeltaBytes: newGaugeVec("free_delta_bytes",
			"Expected free space minus reported free space", "mountpath"),
		Passes: newGaugeVec("passes",
			"Number of passes of the last run, by outcome", "mountpath", "outcome"),
		LastRunTimestamp: newGaugeVec("last_run_timestamp_seconds",
			"Unix time at which the last run finished", "mountpath"),
	}
	e.registry.MustRegister(
		e.AllocPercent,
		e.UsedOverAllocPercent,
		e.DataUsedPercent,
		e.MetadataUsedPercent,
		e.FreeDeltaBytes,
		e.Passes,
		e.LastRunTimestamp,
	)
	return e
}

// ObserveMetrics sets the usage gauges for mountpath.
func (e *Exporter) ObserveMetrics(mountpath string, m btrfsusage.Metrics) {
	e.AllocPercent.WithLabelValues(mountpath).Set(m.AllocPct)
	e.UsedOverAllocPercent.WithLabelValues(mountpath).Set(m.UsedOverAllocPct)
	e.DataUsedPercent.WithLabelValues(mountpath).Set(m.DataUsedPct)
	e.MetadataUsedPercent.WithLabelValues(mountpath).Set(m.MetadataUsedPct)
	e.FreeDeltaBytes.WithLabelValues(mountpath).Set(float64(m.FreeDeltaBytes))
}

// ObserveSummary records a run: the usage gauges take the values of
// the last measurement, and every outcome gets a pass count (zero
// included, so that stale counts from an earlier file are not left
// behind).
func (e *Exporter) ObserveSummary(s btrfsbalance.RunSummary, finished time.Time) {
	if n := len(s.Passes); n > 0 {
		e.ObserveMetrics(s.MountPath, s.Passes[n-1].Metrics)
	}
	for _, outcome := range []btrfsbalance.Outcome{
		btrfsbalance.OutcomeAttempted,
		btrfsbalance.OutcomeSkippedHealthy,
		btrfsbalance.OutcomeSkippedTooFull,
		btrfsbalance.OutcomeFailed,
	} {
		e.Passes.WithLabelValues(s.MountPath, outcome.String()).Set(float64(s.Count(outcome)))
	}
	e.LastRunTimestamp.WithLabelValues(s.MountPath).Set(float64(finished.Unix()))
}

// WriteFile atomically replaces filename with the current values.
func (e *Exporter) WriteFile(filename string) error {
	return prometheus.WriteToTextfile(filename, e.registry)
}
