package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome 预测结果标签
const (
	OutcomeOK             = "ok"
	OutcomeSchemaMismatch = "schema_mismatch"
	OutcomeError          = "error"
)

// Metrics 服务指标
type Metrics struct {
	registry *prometheus.Registry

	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
	reloads     *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics 创建指标收集器，使用独立的registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "penguins_predictions_total",
			Help: "Body mass predictions by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "penguins_prediction_duration_seconds",
			Help:    "Time spent in the model per prediction.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "penguins_model_reloads_total",
			Help: "Model artifact reload attempts by outcome.",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "penguins_cache_hits_total",
			Help: "Predictions served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "penguins_cache_misses_total",
			Help: "Predictions forwarded to the model.",
		}),
	}

	m.registry.MustRegister(
		m.predictions,
		m.latency,
		m.reloads,
		m.cacheHits,
		m.cacheMisses,
		collectors.NewGoCollector(),
	)
	return m
}

// ObservePrediction 记录一次预测
func (m *Metrics) ObservePrediction(outcome string, duration time.Duration) {
	m.predictions.WithLabelValues(outcome).Inc()
	m.latency.Observe(duration.Seconds())
}

// ObserveReload 记录一次模型重载
func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.reloads.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.reloads.WithLabelValues(OutcomeOK).Inc()
}

func (m *Metrics) CacheHit() {
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	m.cacheMisses.Inc()
}

// Registry 返回底层registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回/metrics处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
