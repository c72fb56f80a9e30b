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
	once               sync.Once
	statuses           *prom.CounterVec
	downloadOutcomes   *prom.CounterVec
	downloadBytes      prom.Gauge
	downloadTotal      prom.Gauge
	downloadDuration   prom.Histogram
	decompressDuration *prom.HistogramVec
	deferredDrained    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.statuses = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "xwalk",
			Name:      "readiness_status_total",
			Help:      "Readiness status transitions by target status",
		}, []string{"status"})
		pr.downloadOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "xwalk",
			Name:      "download_outcomes_total",
			Help:      "Runtime download outcomes by terminal result",
		}, []string{"outcome"})
		pr.downloadBytes = prom.NewGauge(prom.GaugeOpts{
			Namespace: "xwalk",
			Name:      "download_bytes",
			Help:      "Bytes downloaded so far for the active runtime download",
		})
		pr.downloadTotal = prom.NewGauge(prom.GaugeOpts{
			Namespace: "xwalk",
			Name:      "download_total_bytes",
			Help:      "Total size of the active runtime download",
		})
		pr.downloadDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "xwalk",
			Name:      "download_duration_seconds",
			Help:      "Duration of runtime downloads",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		})
		pr.decompressDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "xwalk",
			Name:      "decompress_duration_seconds",
			Help:      "Duration of bundled runtime decompression",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.deferredDrained = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "xwalk",
			Name:      "deferred_drained_total",
			Help:      "Deferred operations replayed at readiness",
		}, []string{"kind"})
		reg.MustRegister(pr.statuses, pr.downloadOutcomes, pr.downloadBytes, pr.downloadTotal,
			pr.downloadDuration, pr.decompressDuration, pr.deferredDrained)
	})
	return pr
}

func (p *PrometheusRecorder) IncStatus(status string) {
	if p == nil || p.statuses == nil {
		return
	}
	p.statuses.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncDownloadOutcome(outcome DownloadOutcomeLabel) {
	if p == nil || p.downloadOutcomes == nil {
		return
	}
	p.downloadOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetDownloadBytes(done, total int64) {
	if p == nil || p.downloadBytes == nil {
		return
	}
	p.downloadBytes.Set(float64(done))
	p.downloadTotal.Set(float64(total))
}

func (p *PrometheusRecorder) ObserveDownloadDuration(d time.Duration) {
	if p == nil || p.downloadDuration == nil {
		return
	}
	p.downloadDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveDecompressDuration(d time.Duration, success bool) {
	if p == nil || p.decompressDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.decompressDuration.WithLabelValues(res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddDeferredDrained(objects, invocations int) {
	if p == nil || p.deferredDrained == nil {
		return
	}
	p.deferredDrained.WithLabelValues("object").Add(float64(objects))
	p.deferredDrained.WithLabelValues("invocation").Add(float64(invocations))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
