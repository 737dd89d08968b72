package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitebuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	buildDuration prom.Histogram
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	pagesBuilt    prom.Gauge
	seoViolations *prom.CounterVec
	imageSaved    prom.Counter
	imageCache    *prom.CounterVec
	sitemapURLs   prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		pagesBuilt: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "pages_built",
			Help:      "Pages composed by the last build",
		}),
		seoViolations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "seo_violations_total",
			Help:      "Missing SEO tags by requirement",
		}, []string{"requirement"}),
		imageSaved: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "image_bytes_saved_total",
			Help:      "Bytes removed by image recompression",
		}),
		imageCache: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_lookups_total",
			Help:      "Image optimizer cache lookups by result",
		}, []string{"result"}),
		sitemapURLs: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "sitemap_urls",
			Help:      "URLs written to the last sitemap",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.pagesBuilt, pr.seoViolations, pr.imageSaved, pr.imageCache, pr.sitemapURLs)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetPagesBuilt(n int) {
	if p == nil {
		return
	}
	p.pagesBuilt.Set(float64(n))
}

func (p *PrometheusRecorder) IncSEOViolations(requirement string) {
	if p == nil {
		return
	}
	p.seoViolations.WithLabelValues(requirement).Inc()
}

func (p *PrometheusRecorder) AddImageBytesSaved(n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.imageSaved.Add(float64(n))
}

func (p *PrometheusRecorder) IncImageCacheResult(hit bool) {
	if p == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.imageCache.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetSitemapURLs(n int) {
	if p == nil {
		return
	}
	p.sitemapURLs.Set(float64(n))
}
