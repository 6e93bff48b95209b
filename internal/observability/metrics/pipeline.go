package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

// PipelineMetrics records cache, batch and clustering outcomes.
type PipelineMetrics struct {
	service string

	cacheLookups   *prometheus.CounterVec
	batchRuns      *prometheus.CounterVec
	batchesTotal   *prometheus.CounterVec
	batchesFailed  *prometheus.CounterVec
	clusteringRuns *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache and outcome.",
		},
		[]string{"service", "cache", "outcome"},
	)
	batchRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Batch fetch runs by provider.",
		},
		[]string{"service", "provider"},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "batches_total",
			Help:      "Batches attempted by provider.",
		},
		[]string{"service", "provider"},
	)
	batchesFailed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "batches_failed_total",
			Help:      "Batches that failed and were skipped, by provider.",
		},
		[]string{"service", "provider"},
	)
	clusteringRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clustering",
			Name:      "transitions_total",
			Help:      "Clustering status transitions.",
		},
		[]string{"service", "status"},
	)

	registerer.MustRegister(cacheLookups, batchRuns, batchesTotal, batchesFailed, clusteringRuns)

	return &PipelineMetrics{
		service:        service,
		cacheLookups:   cacheLookups,
		batchRuns:      batchRuns,
		batchesTotal:   batchesTotal,
		batchesFailed:  batchesFailed,
		clusteringRuns: clusteringRuns,
	}
}

func (m *PipelineMetrics) ObserveCacheLookup(cache string, outcome domain.CacheOutcome) {
	m.cacheLookups.WithLabelValues(m.service, cache, string(outcome)).Inc()
}

func (m *PipelineMetrics) ObserveBatchRun(provider string, batches, failed int) {
	m.batchRuns.WithLabelValues(m.service, provider).Inc()
	m.batchesTotal.WithLabelValues(m.service, provider).Add(float64(batches))
	if failed > 0 {
		m.batchesFailed.WithLabelValues(m.service, provider).Add(float64(failed))
	}
}

func (m *PipelineMetrics) ObserveClustering(status domain.ClusteringStatus) {
	m.clusteringRuns.WithLabelValues(m.service, string(status)).Inc()
}
