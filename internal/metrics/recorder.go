// Package metrics instruments a collection run with Prometheus and serves it over HTTP.
package metrics

import (
	"net/http"
	"sync"

	"github.com/cam3ron2/github-review-stats/internal/githubapi"
	"github.com/cam3ron2/github-review-stats/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "github_review_stats"

// Recorder counts pages, repositories, throttle pauses and API requests, and exposes the final ranking.
// It satisfies the collector's progress interface and the API client's request observer.
type Recorder struct {
	registry *prometheus.Registry

	pages        *prometheus.CounterVec
	repositories *prometheus.CounterVec
	pauses       prometheus.Counter
	inFlight     prometheus.Gauge
	requests     *prometheus.CounterVec

	mu      sync.RWMutex
	ranking *stats.Ranking
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages fetched per paginated sequence, by result.",
		}, []string{"sequence", "result"}),
		repositories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repositories_total",
			Help:      "Repositories finished, by outcome.",
		}, []string{"outcome"}),
		pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_pauses_total",
			Help:      "Cooldown pauses inserted between submissions.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repositories_in_flight",
			Help:      "Repositories currently being fetched.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub API request attempts, by endpoint status and rate-limit decision.",
		}, []string{"status", "decision"}),
	}
	r.registry.MustRegister(r.pages, r.repositories, r.pauses, r.inFlight, r.requests, &rankingCollector{recorder: r})
	return r
}

// PageFetched counts one page of a paginated sequence.
func (r *Recorder) PageFetched(sequence string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.pages.WithLabelValues(sequence, result).Inc()
}

// RepositoryFinished counts one finished repository.
func (r *Recorder) RepositoryFinished(outcome string) {
	r.repositories.WithLabelValues(outcome).Inc()
}

// ThrottlePaused counts one cooldown pause.
func (r *Recorder) ThrottlePaused() {
	r.pauses.Inc()
}

// InFlight adjusts the in-flight repository gauge.
func (r *Recorder) InFlight(delta int) {
	r.inFlight.Add(float64(delta))
}

// ObserveRequest counts one GitHub API request attempt.
func (r *Recorder) ObserveRequest(status githubapi.EndpointStatus, decision githubapi.Decision) {
	reason := decision.Reason
	if reason == "" {
		reason = "unknown"
	}
	r.requests.WithLabelValues(string(status), reason).Inc()
}

// SetRanking publishes the final ranking as gauges.
func (r *Recorder) SetRanking(ranking stats.Ranking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranking = &ranking
}

func (r *Recorder) currentRanking() *stats.Ranking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ranking
}

// Gatherer exposes the registry for tests and custom handlers.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler renders the registry through the OpenMetrics encoder.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
