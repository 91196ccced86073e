package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	registry       *prom.Registry
	updateDuration *prom.HistogramVec
	updateOutcome  *prom.CounterVec
	warmDuration   prom.Histogram
	cachedDocs     prom.Gauge
	gateWait       prom.Histogram
	gateTimeouts   prom.Counter
	webhooks       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.updateDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "ordserve",
			Name:      "update_duration_seconds",
			Help:      "Duration of content update runs",
			Buckets:   prom.DefBuckets,
		}, []string{"source"})
		pr.updateOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ordserve",
			Name:      "update_outcomes_total",
			Help:      "Update run outcomes",
		}, []string{"outcome"})
		pr.warmDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "ordserve",
			Name:      "cache_warm_duration_seconds",
			Help:      "Duration of cache warming runs",
			Buckets:   prom.DefBuckets,
		})
		pr.cachedDocs = prom.NewGauge(prom.GaugeOpts{
			Namespace: "ordserve",
			Name:      "cached_documents",
			Help:      "Processed documents currently held in the cache",
		})
		pr.gateWait = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "ordserve",
			Name:      "readiness_gate_wait_seconds",
			Help:      "Time requests spent waiting on the readiness gate",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 60, 300},
		})
		pr.gateTimeouts = prom.NewCounter(prom.CounterOpts{
			Namespace: "ordserve",
			Name:      "readiness_gate_timeouts_total",
			Help:      "Requests rejected because the readiness gate timed out",
		})
		pr.webhooks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ordserve",
			Name:      "webhooks_received_total",
			Help:      "GitHub webhook deliveries by acceptance",
		}, []string{"accepted"})
		reg.MustRegister(pr.updateDuration, pr.updateOutcome, pr.warmDuration,
			pr.cachedDocs, pr.gateWait, pr.gateTimeouts, pr.webhooks)
	})
	return pr
}

// Handler serves the registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveUpdateDuration(source string, d time.Duration) {
	if p == nil || p.updateDuration == nil {
		return
	}
	p.updateDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUpdateOutcome(outcome string) {
	if p == nil || p.updateOutcome == nil {
		return
	}
	p.updateOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveWarmDuration(d time.Duration) {
	if p == nil || p.warmDuration == nil {
		return
	}
	p.warmDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetCachedDocuments(n int) {
	if p == nil || p.cachedDocs == nil {
		return
	}
	p.cachedDocs.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveGateWait(d time.Duration) {
	if p == nil || p.gateWait == nil {
		return
	}
	p.gateWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncGateTimeout() {
	if p == nil || p.gateTimeouts == nil {
		return
	}
	p.gateTimeouts.Inc()
}

func (p *PrometheusRecorder) IncWebhookReceived(accepted bool) {
	if p == nil || p.webhooks == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	p.webhooks.WithLabelValues(label).Inc()
}
