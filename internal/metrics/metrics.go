// Package metrics records per-run harvest counters and optionally pushes them to a Pushgateway.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "newsharvester"

// Recorder owns a private registry so short-lived runs never touch the global one.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	gateway  string
	job      string

	ArticlesFound       prometheus.Counter
	ArticlesRelevant    prometheus.Counter
	ArticlesPersisted   prometheus.Counter
	FetchFailures       prometheus.Counter
	ClassifierFailures  prometheus.Counter
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	LastSuccessUnixTime prometheus.Gauge
}

// New registers all collectors. An empty gateway disables Push.
func New(gateway, job string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		gateway:  gateway,
		job:      job,
		ArticlesFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_found_total",
			Help:      "Articles that passed the date window",
		}),
		ArticlesRelevant: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_relevant_total",
			Help:      "Articles classified as relevant to the theme",
		}),
		ArticlesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_persisted_total",
			Help:      "Rows appended to the article table",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_fetch_failures_total",
			Help:      "Candidate pages skipped because fetch or parse failed",
		}),
		ClassifierFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Classification calls that failed and defaulted to not relevant",
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LastSuccessUnixTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// AddFound adds n articles found in the window.
func (r *Recorder) AddFound(n int) {
	if r == nil {
		return
	}
	r.ArticlesFound.Add(float64(n))
}

// AddRelevant adds n relevant articles.
func (r *Recorder) AddRelevant(n int) {
	if r == nil {
		return
	}
	r.ArticlesRelevant.Add(float64(n))
}

// AddPersisted adds n stored rows.
func (r *Recorder) AddPersisted(n int) {
	if r == nil {
		return
	}
	r.ArticlesPersisted.Add(float64(n))
}

// IncFetchFailure counts one skipped candidate.
func (r *Recorder) IncFetchFailure() {
	if r == nil {
		return
	}
	r.FetchFailures.Inc()
}

// IncClassifierFailure counts one failed classification.
func (r *Recorder) IncClassifierFailure() {
	if r == nil {
		return
	}
	r.ClassifierFailures.Inc()
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(seconds float64, err error, finishedUnix float64) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		r.LastSuccessUnixTime.Set(finishedUnix)
	}
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.Observe(seconds)
}

// Push sends the registry to the configured Pushgateway; no-op without one.
func (r *Recorder) Push(ctx context.Context) error {
	if r == nil || r.gateway == "" {
		return nil
	}
	if err := push.New(r.gateway, r.job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
