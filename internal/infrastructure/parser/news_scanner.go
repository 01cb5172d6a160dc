package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/metrics"
	"NewsHarvester/internal/ports"
)

// publishedLayouts are tried in order after a trailing Z became +00:00.
var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Options configures NewsScanner.
type Options struct {
	SeedURL       string
	LinkPrefix    string
	Workers       int
	RespectRobots bool
	UserAgent     string
}

// NewsScanner crawls a single seed page and extracts articles for the requested day.
type NewsScanner struct {
	fetcher       ports.PageFetcher
	seedURL       string
	origin        string
	linkPrefix    string
	workers       int
	respectRobots bool
	userAgent     string
	metrics       *metrics.Recorder
	logger        *slog.Logger
}

var _ ports.ArticleSource = (*NewsScanner)(nil)

// NewNewsScanner validates the seed URL and derives the origin used to resolve links.
func NewNewsScanner(fetcher ports.PageFetcher, opts Options, rec *metrics.Recorder, log *slog.Logger) (*NewsScanner, error) {
	seed, err := url.Parse(opts.SeedURL)
	if err != nil || seed.Scheme == "" || seed.Host == "" {
		return nil, fmt.Errorf("invalid seed url %q", opts.SeedURL)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &NewsScanner{
		fetcher:       fetcher,
		seedURL:       opts.SeedURL,
		origin:        seed.Scheme + "://" + seed.Host,
		linkPrefix:    opts.LinkPrefix,
		workers:       workers,
		respectRobots: opts.RespectRobots,
		userAgent:     opts.UserAgent,
		metrics:       rec,
		logger:        log,
	}, nil
}

// FetchDaily discovers candidate links on the seed page and returns the
// articles published inside window, in seed-page order.
func (s *NewsScanner) FetchDaily(ctx context.Context, window domain.DateWindow) ([]domain.Article, error) {
	seed, err := s.fetchDocument(ctx, s.seedURL)
	if err != nil {
		return nil, err
	}

	candidates := s.candidateLinks(seed)
	s.debug("candidate links", "count", len(candidates), "window", window.String())

	if s.respectRobots {
		candidates = s.allowedByRobots(ctx, candidates)
	}

	slots := make([]*domain.Article, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, link := range candidates {
		g.Go(func() error {
			article, ok, err := s.scanArticle(gctx, link, window)
			if err != nil {
				s.metrics.IncFetchFailure()
				s.warn("skip candidate", "url", link, "error", err)
				return nil
			}
			if ok {
				slots[i] = &article
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]domain.Article, 0, len(slots))
	for _, article := range slots {
		if article != nil {
			results = append(results, *article)
		}
	}

	s.debug("scan done", "candidates", len(candidates), "kept", len(results))
	return results, nil
}

func (s *NewsScanner) scanArticle(ctx context.Context, link string, window domain.DateWindow) (domain.Article, bool, error) {
	doc, err := s.fetchDocument(ctx, link)
	if err != nil {
		return domain.Article{}, false, err
	}

	published, ok := extractPublishedDate(doc)
	if !ok {
		s.debug("no publish date", "url", link)
		return domain.Article{}, false, nil
	}
	if !window.Contains(published) {
		return domain.Article{}, false, nil
	}

	return domain.Article{
		Title:         extractTitle(doc),
		URL:           link,
		PublishedDate: domain.CalendarDate(published),
		Content:       extractContent(doc),
		Source:        s.seedURL,
	}, true, nil
}

func (s *NewsScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ParseError{URL: pageURL, Err: err}
	}

	return doc, nil
}

// candidateLinks resolves hrefs starting with the link prefix against the
// seed origin, dropping duplicates.
func (s *NewsScanner) candidateLinks(doc *goquery.Document) []string {
	var (
		links []string
		seen  = map[string]struct{}{}
	)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, s.linkPrefix) {
			return
		}

		abs := s.origin + href
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links
}

// allowedByRobots drops candidates disallowed for our user agent. An
// unreachable or unreadable robots.txt allows everything.
func (s *NewsScanner) allowedByRobots(ctx context.Context, candidates []string) []string {
	body, err := s.fetcher.Fetch(ctx, s.origin+"/robots.txt")
	if err != nil {
		s.warn("robots.txt unavailable, allowing all", "error", err)
		return candidates
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		s.warn("robots.txt unreadable, allowing all", "error", err)
		return candidates
	}

	allowed := make([]string, 0, len(candidates))
	for _, link := range candidates {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if robots.TestAgent(u.RequestURI(), s.userAgent) {
			allowed = append(allowed, link)
		} else {
			s.debug("disallowed by robots.txt", "url", link)
		}
	}
	return allowed
}

// extractPublishedDate reads the first time element that carries a datetime attribute.
func extractPublishedDate(doc *goquery.Document) (time.Time, bool) {
	raw, ok := doc.Find("time[datetime]").First().Attr("datetime")
	if !ok {
		return time.Time{}, false
	}
	return parsePublished(raw)
}

func parsePublished(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "Z") {
		raw = strings.TrimSuffix(raw, "Z") + "+00:00"
	}

	for _, layout := range publishedLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func extractTitle(doc *goquery.Document) string {
	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return domain.NoTitle
	}
	return strings.TrimSpace(h1.Text())
}

// extractContent joins trimmed paragraph texts of the first article element.
func extractContent(doc *goquery.Document) string {
	body := doc.Find("article").First()
	if body.Length() == 0 {
		return ""
	}

	var paragraphs []string
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		paragraphs = append(paragraphs, strings.TrimSpace(p.Text()))
	})
	return strings.Join(paragraphs, "\n")
}

func (s *NewsScanner) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *NewsScanner) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
