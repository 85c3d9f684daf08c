// Package webcrawl discovers, fetches, and converts a documentation
// website's pages into sanitized Markdown, maintaining a persistent
// crawl frontier so an interrupted or incremental crawl can resume.
package webcrawl

import (
	"context"
	"time"
)

// DefaultMaxWorkers bounds fetch concurrency.
const DefaultMaxWorkers = 5

// DefaultMinBodyCharacters is the shortest body spec §4.4 accepts
// without marking the page failed.
const DefaultMinBodyCharacters = 200

// DefaultFetchTimeout is the client timeout NewHTTPFetcher uses when
// given a nil client, and the time limit of one headless render.
const DefaultFetchTimeout = 20 * time.Second

// sparse-page heuristics from spec §4.4 step 3.
const (
	sparseBodyThreshold = 400
	sparseLinkThreshold = 3
)

// Options configures one crawl run.
type Options struct {
	RootURL             string
	AllowSubdomains     bool
	AllowedPaths        []string
	DeniedPaths         []string
	MaxPages            int
	MaxDepth            int
	MaxWorkers          int
	MinBodyCharacters   int
	RequireCodeSnippets bool
	Force               bool // redo discovery and re-enqueue what it finds; existing frontier rows are not removed
	UserAgent           string
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.MinBodyCharacters <= 0 {
		o.MinBodyCharacters = DefaultMinBodyCharacters
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 5000
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = 10
	}
	if o.UserAgent == "" {
		o.UserAgent = "librarian-crawler/1.0 (+https://github.com/go-librarian/librarian)"
	}
	return o
}

// Page is one fetched page ready for ingest.
type Page struct {
	URL      string
	Title    string
	Markdown string
	Depth    int
}

// FailedPage records why a page didn't produce usable content.
type FailedPage struct {
	URL     string
	Reason  string
	Depth   int
}

// Result summarizes one crawl run.
type Result struct {
	Pages    []Page
	Failed   []FailedPage
	Skipped  int // out-of-scope links found on fetched pages, plus queued pages beyond MaxDepth
}

// PageCallback streams one completed page at a time, for incremental
// ingest of large crawls.
type PageCallback func(Page) error

// Queue is the persistent crawl-frontier dependency the crawler needs;
// satisfied by internal/store's LibraryStore crawl-frontier methods.
type Queue interface {
	UpsertPage(ctx context.Context, sourceID, url, normalizedURL string, depth int) error
	GetPage(ctx context.Context, sourceID, normalizedURL string) (exists bool, state string, err error)
	MarkState(ctx context.Context, sourceID, normalizedURL, state, errMsg string) error
	Pending(ctx context.Context, sourceID string, limit int) ([]QueuedPage, error)
}

// QueuedPage is one frontier entry as returned by Queue.Pending.
type QueuedPage struct {
	URL           string
	NormalizedURL string
	Depth         int
}

// Fetcher performs the actual HTTP/headless fetch for one URL; an
// interface so tests can substitute a fake transport without standing
// up a real server or browser.
type Fetcher interface {
	FetchMarkdown(ctx context.Context, url, userAgent string) (body string, ok bool, err error)
	FetchHTML(ctx context.Context, url, userAgent string) (body string, err error)
}

// HeadlessRenderer is the best-effort browser-rendering fallback from
// spec §4.4's "Headless renderer" section. Render returns ("", nil)
// when no browser is available rather than an error, so the crawler
// can proceed without it.
type HeadlessRenderer interface {
	Render(ctx context.Context, url, userAgent string) (html string, err error)
	Available() bool
}
