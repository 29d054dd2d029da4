// Package metrics records per-invocation pipeline metrics in a private
// registry and pushes them to a Prometheus pushgateway, the usual pattern
// for batch jobs that do not live long enough to be scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "taxi_etl"

// Collector implements the pipeline's stage observer.
type Collector struct {
	pipeline string
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	rowsLoaded    prometheus.Counter
	lastPartition prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func NewCollector(pipeline string) *Collector {
	c := &Collector{
		pipeline: pipeline,
		registry: prometheus.NewRegistry(),

		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each controller stage",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		}, []string{"stage", "outcome"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Failed stages by error kind",
		}, []string{"stage", "kind"}),

		rowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_rows_loaded_total",
			Help:      "Rows copied into the raw table",
		}),

		lastPartition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_committed_partition",
			Help:      "Last committed partition as YYYYMM",
		}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed checkpoint",
		}),
	}

	c.registry.MustRegister(c.stageDuration, c.failures, c.rowsLoaded, c.lastPartition, c.lastSuccess)
	return c
}

func (c *Collector) StageFinished(stage models.Stage, _ models.Partition, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		c.failures.WithLabelValues(string(stage), models.KindOf(err).String()).Inc()
	}
	c.stageDuration.WithLabelValues(string(stage), outcome).Observe(elapsed.Seconds())
}

func (c *Collector) RowsLoaded(_ models.Partition, rows int64) {
	c.rowsLoaded.Add(float64(rows))
}

func (c *Collector) Committed(p models.Partition, at time.Time) {
	c.lastPartition.Set(float64(p.Key()))
	c.lastSuccess.Set(float64(at.Unix()))
}

// Push sends the registry to the pushgateway at url, grouped by pipeline.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(c.registry).
		Grouping("pipeline", c.pipeline).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
