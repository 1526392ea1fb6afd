// Package metrics exports the figures of one run as a Prometheus textfile,
// for collection by the node exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/substantialcattle5/stillsuit/internal/constants"
)

const namespace = "stillsuit"

// Run holds the outcome of one backup, restore or recovery.
type Run struct {
	Operation string
	Files     int64
	Bytes     int64
	Failures  int64
	Duration  time.Duration
	Success   bool
	Finished  time.Time
}

// WriteTextfile renders run into a fresh registry and writes it to path.
func WriteTextfile(path string, run Run) error {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"operation": run.Operation}

	files := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "files_total",
		Help:        "Files archived or restored by the last run.",
		ConstLabels: labels,
	})
	bytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "bytes_total",
		Help:        "Bytes processed by the last run.",
		ConstLabels: labels,
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "failures_total",
		Help:        "Files that failed in the last run.",
		ConstLabels: labels,
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "duration_seconds",
		Help:        "Wall-clock duration of the last run.",
		ConstLabels: labels,
	})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "last_run_success",
		Help:        "1 if the last run completed without failures.",
		ConstLabels: labels,
	})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "last_success_timestamp_seconds",
		Help:        "Unix time of the last successful run.",
		ConstLabels: labels,
	})

	for _, c := range []prometheus.Collector{files, bytes, failures, duration, success} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	files.Add(float64(run.Files))
	bytes.Add(float64(run.Bytes))
	failures.Add(float64(run.Failures))
	duration.Set(run.Duration.Seconds())
	if run.Success {
		success.Set(1)
		finished := run.Finished
		if finished.IsZero() {
			finished = time.Now()
		}
		lastSuccess.Set(float64(finished.Unix()))
		if err := reg.Register(lastSuccess); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), constants.StandardDirPerms); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
