package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/infrastructure/fetcher"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return doc
}

func articlePage(title, datetime string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if title != "" {
		fmt.Fprintf(&b, "<h1> %s </h1>", title)
	}
	if datetime != "" {
		fmt.Fprintf(&b, `<time datetime="%s">some day</time>`, datetime)
	}
	b.WriteString("<article>")
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<p>  %s  </p>", p)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fails map[string]error
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err, ok := f.fails[url]; ok {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, &domain.FetchError{URL: url, Err: errors.New("no such page")}
	}
	return []byte(page), nil
}

func TestExtractTitle(t *testing.T) {
	t.Parallel()

	if got := extractTitle(mustDoc(t, "<h1>  X  </h1><h1>Y</h1>")); got != "X" {
		t.Fatalf("expected X, got %q", got)
	}
	if got := extractTitle(mustDoc(t, "<h2>not a title</h2>")); got != "No title found" {
		t.Fatalf("expected sentinel, got %q", got)
	}
}

func TestExtractContent(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<p>outside</p><article><p> A </p><div><p>B</p></div></article><article><p>C</p></article>`)
	if got := extractContent(doc); got != "A\nB" {
		t.Fatalf("expected %q, got %q", "A\nB", got)
	}

	if got := extractContent(mustDoc(t, "<div><p>A</p></div>")); got != "" {
		t.Fatalf("expected empty content, got %q", got)
	}
}

func TestParsePublished(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		wantDay string
		ok      bool
	}{
		{"2025-03-09T22:15:00Z", "2025-03-09", true},
		{"2025-03-09T22:15:00.123Z", "2025-03-09", true},
		{"2025-03-09T23:30:00-05:00", "2025-03-09", true},
		{"2025-03-09T10:00:00", "2025-03-09", true},
		{"2025-03-09", "2025-03-09", true},
		{" 2025-03-09T10:00 ", "2025-03-09", true},
		{"yesterday", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := parsePublished(tc.raw)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%v, got %v", tc.raw, tc.ok, ok)
		}
		if ok && domain.CalendarDate(got).Format(time.DateOnly) != tc.wantDay {
			t.Fatalf("%q: expected day %s, got %s", tc.raw, tc.wantDay, got)
		}
	}
}

func TestExtractPublishedDateSkipsBareTime(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<time>2 hours ago</time><time datetime="2025-03-09T08:00:00Z">x</time>`)
	got, ok := extractPublishedDate(doc)
	if !ok {
		t.Fatalf("expected a date")
	}
	if got.Format(time.DateOnly) != "2025-03-09" {
		t.Fatalf("unexpected date: %v", got)
	}

	if _, ok := extractPublishedDate(mustDoc(t, "<p>no time</p>")); ok {
		t.Fatalf("expected no date")
	}
}

func TestCandidateLinks(t *testing.T) {
	t.Parallel()

	sc, err := NewNewsScanner(&stubFetcher{}, Options{SeedURL: "https://www.bbc.com/news", LinkPrefix: "/news"}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	doc := mustDoc(t, `
	<a href="/news/articles/one">1</a>
	<a href="/sport/football">x</a>
	<a href="https://www.bbc.com/news/absolute">x</a>
	<a href="/news/articles/one">dup</a>
	<a>no href</a>
	<a href="/news/articles/two">2</a>`)

	got := sc.candidateLinks(doc)
	want := []string{"https://www.bbc.com/news/articles/one", "https://www.bbc.com/news/articles/two"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected candidates: %v", got)
	}
}

func TestNewNewsScannerRejectsRelativeSeed(t *testing.T) {
	t.Parallel()

	if _, err := NewNewsScanner(&stubFetcher{}, Options{SeedURL: "/news"}, nil, nil); err == nil {
		t.Fatalf("expected error for relative seed")
	}
}

func TestNewsScannerFetchDaily(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	window := domain.YesterdayWindow(now)

	pages := map[string]string{
		"/news": `
		<a href="/news/two-days-ago">old</a>
		<a href="/news/yesterday">fresh</a>
		<a href="/news/today">today</a>
		<a href="/news/undated">undated</a>
		<a href="/weather">skip</a>`,
		"/news/two-days-ago": articlePage("Old", now.AddDate(0, 0, -2).Format(time.RFC3339), "old"),
		"/news/yesterday":    articlePage("Fresh", "2025-03-09T18:45:00Z", "A", "B"),
		"/news/today":        articlePage("Today", now.Format(time.RFC3339), "new"),
		"/news/undated":      articlePage("Undated", "", "?"),
	}

	var mu sync.Mutex
	var userAgents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		userAgents = append(userAgents, r.Header.Get("User-Agent"))
		mu.Unlock()

		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	f := fetcher.NewHTTPFetcher(server.Client(), fetcher.Options{UserAgent: "test-agent"})
	sc, err := NewNewsScanner(f, Options{SeedURL: server.URL + "/news", LinkPrefix: "/news", Workers: 3}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	articles, err := sc.FetchDaily(context.Background(), window)
	if err != nil {
		t.Fatalf("FetchDaily error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}

	got := articles[0]
	if got.Title != "Fresh" {
		t.Fatalf("unexpected title: %s", got.Title)
	}
	if got.URL != server.URL+"/news/yesterday" {
		t.Fatalf("unexpected url: %s", got.URL)
	}
	if got.Content != "A\nB" {
		t.Fatalf("unexpected content: %q", got.Content)
	}
	if got.Source != server.URL+"/news" {
		t.Fatalf("unexpected source: %s", got.Source)
	}
	if !got.PublishedDate.Equal(window.Day) {
		t.Fatalf("unexpected published date: %v", got.PublishedDate)
	}
	if got.IsRelevant {
		t.Fatalf("articles must start as not relevant")
	}

	for _, ua := range userAgents {
		if ua != "test-agent" {
			t.Fatalf("unexpected user agent %q", ua)
		}
	}
}

func TestNewsScannerIsolatesArticleFailures(t *testing.T) {
	t.Parallel()

	window := domain.DateWindow{Day: time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)}
	base := "https://news.example.com"

	f := &stubFetcher{
		pages: map[string]string{
			base + "/news":   `<a href="/news/1">1</a><a href="/news/2">2</a><a href="/news/3">3</a>`,
			base + "/news/1": articlePage("One", "2025-03-09T01:00:00Z", "first"),
			base + "/news/3": articlePage("Three", "2025-03-09T02:00:00Z", "third"),
		},
		fails: map[string]error{base + "/news/2": errors.New("connection reset")},
	}

	sc, err := NewNewsScanner(f, Options{SeedURL: base + "/news", LinkPrefix: "/news", Workers: 2}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	articles, err := sc.FetchDaily(context.Background(), window)
	if err != nil {
		t.Fatalf("FetchDaily error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}
	if articles[0].Title != "One" || articles[1].Title != "Three" {
		t.Fatalf("expected seed order One, Three; got %s, %s", articles[0].Title, articles[1].Title)
	}
}

func TestNewsScannerSeedFailureIsFatal(t *testing.T) {
	t.Parallel()

	base := "https://news.example.com"
	f := &stubFetcher{fails: map[string]error{base + "/news": errors.New("dns failure")}}

	sc, err := NewNewsScanner(f, Options{SeedURL: base + "/news", LinkPrefix: "/news"}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	_, err = sc.FetchDaily(context.Background(), domain.YesterdayWindow(time.Now()))
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.URL != base+"/news" {
		t.Fatalf("unexpected url in error: %s", fetchErr.URL)
	}
}

func TestNewsScannerNoCandidates(t *testing.T) {
	t.Parallel()

	base := "https://news.example.com"
	f := &stubFetcher{pages: map[string]string{base + "/news": `<a href="/sport">x</a>`}}

	sc, err := NewNewsScanner(f, Options{SeedURL: base + "/news", LinkPrefix: "/news"}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	articles, err := sc.FetchDaily(context.Background(), domain.YesterdayWindow(time.Now()))
	if err != nil {
		t.Fatalf("FetchDaily error: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("expected no articles, got %d", len(articles))
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected only the seed fetch, got %v", f.calls)
	}
}

func TestNewsScannerRespectsRobots(t *testing.T) {
	t.Parallel()

	window := domain.DateWindow{Day: time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)}
	base := "https://news.example.com"

	f := &stubFetcher{
		pages: map[string]string{
			base + "/robots.txt":     "User-agent: *\nDisallow: /news/private\n",
			base + "/news":           `<a href="/news/public">p</a><a href="/news/private/x">x</a>`,
			base + "/news/public":    articlePage("Public", "2025-03-09", "ok"),
			base + "/news/private/x": articlePage("Private", "2025-03-09", "secret"),
		},
	}

	sc, err := NewNewsScanner(f, Options{
		SeedURL:       base + "/news",
		LinkPrefix:    "/news",
		RespectRobots: true,
		UserAgent:     "test-agent",
	}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	articles, err := sc.FetchDaily(context.Background(), window)
	if err != nil {
		t.Fatalf("FetchDaily error: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "Public" {
		t.Fatalf("expected only the public article, got %+v", articles)
	}

	for _, call := range f.calls {
		if call == base+"/news/private/x" {
			t.Fatalf("disallowed page was fetched")
		}
	}
}

func TestNewsScannerRobotsUnavailableAllowsAll(t *testing.T) {
	t.Parallel()

	window := domain.DateWindow{Day: time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)}
	base := "https://news.example.com"

	f := &stubFetcher{
		pages: map[string]string{
			base + "/news":   `<a href="/news/a">a</a>`,
			base + "/news/a": articlePage("A", "2025-03-09", "ok"),
		},
	}

	sc, err := NewNewsScanner(f, Options{SeedURL: base + "/news", LinkPrefix: "/news", RespectRobots: true}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	articles, err := sc.FetchDaily(context.Background(), window)
	if err != nil {
		t.Fatalf("FetchDaily error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
}

func TestNewsScannerCancelledContext(t *testing.T) {
	t.Parallel()

	base := "https://news.example.com"
	f := &stubFetcher{
		pages: map[string]string{
			base + "/news":   `<a href="/news/a">a</a>`,
			base + "/news/a": articlePage("A", "2025-03-09", "ok"),
		},
	}

	sc, err := NewNewsScanner(f, Options{SeedURL: base + "/news", LinkPrefix: "/news"}, nil, nil)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sc.FetchDaily(ctx, domain.YesterdayWindow(time.Now())); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
