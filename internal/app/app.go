package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/infrastructure/fetcher"
	"NewsHarvester/internal/infrastructure/llm"
	"NewsHarvester/internal/infrastructure/parser"
	"NewsHarvester/internal/infrastructure/scheduler"
	"NewsHarvester/internal/infrastructure/storage"
	"NewsHarvester/internal/infrastructure/telegram"
	"NewsHarvester/internal/logging"
	"NewsHarvester/internal/metrics"
	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New builds every adapter from cfg. The database pool connects lazily, so
// nothing here touches the network.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	recorder := metrics.New(cfg.Metrics.PushGatewayURL, cfg.Metrics.Job)

	pageFetcher := fetcher.NewHTTPFetcher(nil, fetcher.Options{
		UserAgent:         cfg.Fetcher.UserAgent,
		Timeout:           cfg.Fetcher.Timeout,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		FailOnHTTPError:   cfg.Fetcher.FailOnHTTPError,
	})

	source, err := parser.NewNewsScanner(pageFetcher, parser.Options{
		SeedURL:       cfg.Harvest.SeedURL,
		LinkPrefix:    cfg.Harvest.LinkPrefix,
		Workers:       cfg.Harvest.Workers,
		RespectRobots: cfg.Fetcher.RespectRobots,
		UserAgent:     cfg.Fetcher.UserAgent,
	}, recorder, baseLogger.With("component", "scanner.news"))
	if err != nil {
		return nil, err
	}

	classifier, err := llm.NewOpenAIClassifier(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.ConnString())
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Classifier: classifier,
		Store:      storage.NewPostgresRepository(pool),
		Notifier:   notifier,
		Metrics:    recorder,
		Logger:     baseLogger.With("component", "pipeline"),
		Theme:      cfg.Harvest.Theme,
		Table:      cfg.Harvest.Table,
	})

	application := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		pool:     pool,
		pipeline: pipeline,
	}

	if cfg.Scheduler.Interval > 0 {
		driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location())
		application.scheduler = usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler"))
	}

	return application, nil
}

func buildNotifier(cfg config.Config) (ports.Notifier, error) {
	if !cfg.Notifications.Telegram.Enabled() {
		return nil, nil
	}
	chatID, err := cfg.TelegramChatID()
	if err != nil {
		return nil, err
	}
	return telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, chatID, nil), nil
}

// Run executes one harvest, or keeps harvesting on the configured interval
// until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.pipeline == nil {
		return nil
	}

	if a.scheduler == nil {
		now := time.Now().In(a.cfg.Scheduler.Location())
		_, err := a.pipeline.ProcessDay(ctx, now)
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "interval", a.cfg.Scheduler.Interval)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// Close releases the database pool.
func (a *Application) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
