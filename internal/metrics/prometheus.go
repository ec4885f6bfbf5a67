package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	evaluations   *prometheus.CounterVec
	invalidations prometheus.Counter
	rollbacks     *prometheus.CounterVec
	flags         *prometheus.GaugeVec
}

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rolloutgate_evaluations_total",
		Help: "Flag evaluations by decision source",
	}, []string{"source"})
	cacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rolloutgate_cache_invalidations_total",
		Help: "Cache entries removed by administrative mutations",
	})
	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rolloutgate_rollbacks_total",
		Help: "Rollback executions by strategy",
	}, []string{"strategy"})
	flagsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rolloutgate_flags",
		Help: "Number of persisted flags by rollout state",
	}, []string{"state"})
)

func NewPrometheusObserver() Observer {
	return &prometheusObserver{
		evaluations:   evaluationsTotal,
		invalidations: cacheInvalidationsTotal,
		rollbacks:     rollbacksTotal,
		flags:         flagsGauge,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) RecordEvaluation(source string) {
	p.evaluations.WithLabelValues(source).Inc()
}

func (p *prometheusObserver) RecordCacheInvalidation(removed int) {
	p.invalidations.Add(float64(removed))
}

func (p *prometheusObserver) RecordRollback(strategy string) {
	p.rollbacks.WithLabelValues(strategy).Inc()
}

func (p *prometheusObserver) SetFlagCounts(total, enabled, partialRollout int) {
	p.flags.WithLabelValues("total").Set(float64(total))
	p.flags.WithLabelValues("enabled").Set(float64(enabled))
	p.flags.WithLabelValues("partial_rollout").Set(float64(partialRollout))
}
