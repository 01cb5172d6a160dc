package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/logging"
	"NewsHarvester/internal/metrics"
	"NewsHarvester/internal/ports"
)

const metricsPushTimeout = 10 * time.Second

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.ArticleSource
	Classifier ports.RelevanceClassifier
	Store      ports.ArticleStore
	Notifier   ports.Notifier
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
	Theme      string
	Table      string
	Clock      func() time.Time
}

// Report summarises one pipeline run.
type Report struct {
	RunID              string
	Day                time.Time
	Found              int
	Relevant           int
	Persisted          int
	ClassifierFailures int
}

// Pipeline implements the harvest workflow: fetch, classify, persist, notify.
type Pipeline struct {
	source     ports.ArticleSource
	classifier ports.RelevanceClassifier
	store      ports.ArticleStore
	notifier   ports.Notifier
	metrics    *metrics.Recorder
	logger     *slog.Logger
	theme      string
	table      string
	clock      func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Pipeline{
		source:     deps.Source,
		classifier: deps.Classifier,
		store:      deps.Store,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		theme:      deps.Theme,
		table:      deps.Table,
		clock:      clock,
	}
}

// ProcessDay harvests the articles published the calendar day before
// startedAt. Only source and storage failures are returned as errors.
func (p *Pipeline) ProcessDay(ctx context.Context, startedAt time.Time) (report Report, err error) {
	if p.source == nil || p.classifier == nil || p.store == nil {
		return Report{}, errors.New("pipeline is not fully wired")
	}

	window := domain.YesterdayWindow(startedAt)
	report = Report{RunID: uuid.NewString(), Day: window.Day}
	log := p.logger.With("run_id", report.RunID, "day", window.String())
	began := p.clock()

	defer func() {
		p.finish(ctx, log, began, report, err)
	}()

	log.Info("run started", "theme", p.theme)

	articles, err := p.source.FetchDaily(ctx, window)
	if err != nil {
		return report, fmt.Errorf("fetch daily: %w", err)
	}
	report.Found = len(articles)
	p.metrics.AddFound(len(articles))

	if len(articles) == 0 {
		log.Warn("no articles found for day")
		return report, nil
	}
	log.Info("articles fetched", "count", len(articles))

	for i := range articles {
		relevant, cErr := p.classifier.Classify(ctx, p.theme, articles[i])
		if cErr != nil {
			report.ClassifierFailures++
			p.metrics.IncClassifierFailure()
			log.Warn("classification failed, treating as not relevant", "url", articles[i].URL, "error", cErr)
			relevant = false
		}
		articles[i].IsRelevant = relevant
		log.Debug("classified", "url", articles[i].URL, "relevant", relevant)
	}

	relevant := domain.Relevant(articles)
	report.Relevant = len(relevant)
	p.metrics.AddRelevant(len(relevant))
	log.Info("articles classified", "relevant", len(relevant), "failures", report.ClassifierFailures)

	if err = p.store.EnsureSchema(ctx, p.table); err != nil {
		log.Error("ensure schema failed", "error", err)
		return report, fmt.Errorf("ensure schema: %w", err)
	}
	if err = p.store.Append(ctx, p.table, relevant); err != nil {
		log.Error("persist failed", "error", err)
		return report, fmt.Errorf("persist articles: %w", err)
	}
	report.Persisted = len(relevant)
	p.metrics.AddPersisted(len(relevant))
	log.Info("articles persisted", "count", len(relevant), "table", p.table)

	if p.notifier != nil && report.Persisted > 0 {
		if nErr := p.notifier.PublishDigest(ctx, BuildDigest(p.theme, window, relevant)); nErr != nil {
			log.Warn("digest notification failed", "error", nErr)
		}
	}

	return report, nil
}

func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, began time.Time, report Report, runErr error) {
	finished := p.clock()
	p.metrics.ObserveRun(finished.Sub(began).Seconds(), runErr, float64(finished.Unix()))

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := p.metrics.Push(pushCtx); err != nil {
		log.Warn("metrics push failed", "error", err)
	}

	if runErr != nil {
		log.Error("run failed", "error", runErr, "duration", finished.Sub(began))
		return
	}
	log.Info("run finished",
		"found", report.Found,
		"relevant", report.Relevant,
		"persisted", report.Persisted,
		"duration", finished.Sub(began))
}

// BuildDigest renders the notification text: a header line, then title and
// URL for every persisted article.
func BuildDigest(theme string, window domain.DateWindow, articles []domain.Article) string {
	if len(articles) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s news for %s (%d)\n", theme, window.String(), len(articles))
	for _, article := range articles {
		fmt.Fprintf(&b, "\n- %s\n  %s\n", article.Title, article.URL)
	}
	return b.String()
}
