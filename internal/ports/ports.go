package ports

import (
	"context"
	"time"

	"NewsHarvester/internal/domain"
)

// PageFetcher retrieves raw HTML for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArticleSource discovers articles published inside the window.
type ArticleSource interface {
	FetchDaily(ctx context.Context, window domain.DateWindow) ([]domain.Article, error)
}

// RelevanceClassifier decides whether an article relates to a theme.
type RelevanceClassifier interface {
	Classify(ctx context.Context, theme string, article domain.Article) (bool, error)
}

// ArticleStore persists relevant articles.
type ArticleStore interface {
	EnsureSchema(ctx context.Context, table string) error
	Append(ctx context.Context, table string, articles []domain.Article) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
