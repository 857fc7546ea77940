// Package metrics exports Prometheus metrics for the annotation editor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/camden-git/entomobackend/annotation"
)

// SaveMetrics records changeset saves. It implements annotation.Observer.
type SaveMetrics struct {
	registry *prometheus.Registry

	savesTotal       *prometheus.CounterVec
	saveDuration     prometheus.Histogram
	savesInFlight    prometheus.Gauge
	changesetRecords *prometheus.CounterVec
}

var _ annotation.Observer = (*SaveMetrics)(nil)

// NewSaveMetrics creates and registers the save metrics
func NewSaveMetrics(registry *prometheus.Registry) (*SaveMetrics, error) {
	m := &SaveMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SaveMetrics) initMetrics() {
	m.savesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotation_saves_total",
			Help: "Total number of save attempts by outcome",
		},
		[]string{"status"}, // noop, success, failed, aborted, busy
	)

	m.saveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "annotation_save_duration_seconds",
			Help: "Time the persistence boundary took to apply a changeset",
			// 10ms to ~40s
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	m.savesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "annotation_saves_in_flight",
			Help: "Number of changesets currently being applied",
		},
	)

	m.changesetRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotation_changeset_records_total",
			Help: "Detections sent to the persistence boundary by change kind",
		},
		[]string{"kind"}, // added, modified, deleted
	)
}

// Describe implements the Collector interface
func (m *SaveMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.savesTotal.Describe(ch)
	m.saveDuration.Describe(ch)
	m.savesInFlight.Describe(ch)
	m.changesetRecords.Describe(ch)
}

// Collect implements the Collector interface
func (m *SaveMetrics) Collect(ch chan<- prometheus.Metric) {
	m.savesTotal.Collect(ch)
	m.saveDuration.Collect(ch)
	m.savesInFlight.Collect(ch)
	m.changesetRecords.Collect(ch)
}

// SaveStarted counts a dispatched changeset.
func (m *SaveMetrics) SaveStarted(_ string, cs annotation.Changeset) {
	m.savesInFlight.Inc()
	m.changesetRecords.WithLabelValues("added").Add(float64(len(cs.Added)))
	m.changesetRecords.WithLabelValues("modified").Add(float64(len(cs.Modified)))
	m.changesetRecords.WithLabelValues("deleted").Add(float64(len(cs.Deleted)))
}

// SaveFinished records the outcome. Only dispatched saves are timed.
func (m *SaveMetrics) SaveFinished(_ string, status annotation.SaveStatus, _ annotation.Changeset, elapsed time.Duration) {
	m.savesTotal.WithLabelValues(string(status)).Inc()
	switch status {
	case annotation.SaveSucceeded, annotation.SaveFailed, annotation.SaveAborted:
		m.savesInFlight.Dec()
		m.saveDuration.Observe(elapsed.Seconds())
	}
}
