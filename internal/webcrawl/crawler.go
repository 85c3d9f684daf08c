package webcrawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Crawler runs one source's crawl, per spec §4.4: seed from discovery
// on first run, fetch with bounded concurrency by ascending
// (depth, id), extract and sanitize content, and enqueue in-scope
// links for the next depth.
type Crawler struct {
	Queue    Queue
	Fetcher  Fetcher
	Headless HeadlessRenderer
	Logger   *slog.Logger

	// DiscoveryClient fetches llms.txt/robots.txt/sitemap.xml during
	// seeding. Defaults to http.DefaultClient when nil.
	DiscoveryClient *http.Client
}

// NewCrawler wires the default HTTP fetcher and, when available, a
// local-Chrome headless fallback.
func NewCrawler(queue Queue, logger *slog.Logger) *Crawler {
	return &Crawler{
		Queue:           queue,
		Fetcher:         NewHTTPFetcher(http.DefaultClient),
		Headless:        NewChromedpRenderer(),
		Logger:          logger,
		DiscoveryClient: http.DefaultClient,
	}
}

func (c *Crawler) discoveryClient() *http.Client {
	if c.DiscoveryClient != nil {
		return c.DiscoveryClient
	}
	return http.DefaultClient
}

// Run crawls sourceID starting at opts.RootURL, returning every page
// successfully fetched this run.
func (c *Crawler) Run(ctx context.Context, sourceID string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	sc, err := newScope(opts.RootURL, opts.AllowSubdomains, opts.AllowedPaths, opts.DeniedPaths)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}

	if err := c.seed(ctx, sourceID, opts, sc); err != nil {
		return nil, err
	}

	return c.fetchLoop(ctx, sourceID, opts, sc)
}

// seed populates the frontier on first run: discovery first, falling
// back to the bare root URL if nothing was found.
func (c *Crawler) seed(ctx context.Context, sourceID string, opts Options, sc *scope) error {
	rootNormalized, err := normalizeURL(opts.RootURL)
	if err != nil {
		return fmt.Errorf("normalize root URL: %w", err)
	}

	exists, _, err := c.Queue.GetPage(ctx, sourceID, rootNormalized)
	if err != nil {
		return err
	}
	if exists && !opts.Force {
		return nil
	}

	discovered := discover(ctx, c.discoveryClient(), sc, opts.RootURL, opts.UserAgent)
	if len(discovered) == 0 {
		discovered = []string{opts.RootURL}
	}

	for _, u := range discovered {
		normalized, err := normalizeURL(u)
		if err != nil {
			continue
		}
		if err := c.Queue.UpsertPage(ctx, sourceID, u, normalized, 0); err != nil {
			return err
		}
	}
	return nil
}

// fetchLoop pops pending/failed pages in batches and processes up to
// opts.MaxWorkers concurrently until the frontier is empty or
// opts.MaxPages has been reached.
func (c *Crawler) fetchLoop(ctx context.Context, sourceID string, opts Options, sc *scope) (*Result, error) {
	result := &Result{}
	processed := 0
	// Pages that fail in this run stay "failed" in the frontier for the
	// next run; they are not fetched again in this one.
	failedThisRun := map[string]bool{}

	for processed < opts.MaxPages {
		batchLimit := opts.MaxPages - processed
		if batchLimit > opts.MaxWorkers {
			batchLimit = opts.MaxWorkers
		}
		pending, err := c.Queue.Pending(ctx, sourceID, batchLimit+len(failedThisRun))
		if err != nil {
			return nil, err
		}
		batch := make([]QueuedPage, 0, batchLimit)
		for _, page := range pending {
			if !failedThisRun[page.NormalizedURL] && len(batch) < batchLimit {
				batch = append(batch, page)
			}
		}
		if len(batch) == 0 {
			break
		}

		var mu sync.Mutex
		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.MaxWorkers)

		for _, page := range batch {
			if page.Depth > opts.MaxDepth {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				_ = c.Queue.MarkState(ctx, sourceID, page.NormalizedURL, "done", "")
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(page QueuedPage) {
				defer wg.Done()
				defer func() { <-sem }()

				fetched, links, failReason := c.processPage(ctx, page, opts)

				mu.Lock()
				defer mu.Unlock()
				if failReason != "" {
					result.Failed = append(result.Failed, FailedPage{URL: page.URL, Reason: failReason, Depth: page.Depth})
					failedThisRun[page.NormalizedURL] = true
					_ = c.Queue.MarkState(ctx, sourceID, page.NormalizedURL, "failed", failReason)
					return
				}

				result.Pages = append(result.Pages, *fetched)
				_ = c.Queue.MarkState(ctx, sourceID, page.NormalizedURL, "done", "")

				for _, link := range links {
					if !sc.inScope(link) {
						result.Skipped++
						continue
					}
					normalized, err := normalizeURL(link)
					if err != nil {
						continue
					}
					exists, _, _ := c.Queue.GetPage(ctx, sourceID, normalized)
					if exists {
						continue
					}
					_ = c.Queue.UpsertPage(ctx, sourceID, link, normalized, page.Depth+1)
				}
			}(page)
		}
		wg.Wait()
		processed += len(batch)
	}

	return result, nil
}

// processPage runs one page through content negotiation, extraction,
// the headless fallback, and sanitization, per spec §4.4 steps 1-5.
func (c *Crawler) processPage(ctx context.Context, page QueuedPage, opts Options) (*Page, []string, string) {
	if markdown, ok, err := c.Fetcher.FetchMarkdown(ctx, page.URL, opts.UserAgent); err == nil && ok {
		clean := sanitizeMarkdown(markdown)
		if len(clean) < opts.MinBodyCharacters {
			return nil, nil, "body too short after markdown negotiation"
		}
		if opts.RequireCodeSnippets && !hasCodeSnippet(clean) {
			return nil, nil, "no code snippet present"
		}
		links := extractLinks(clean, page.URL)
		return &Page{URL: page.URL, Markdown: clean, Depth: page.Depth}, links, ""
	}

	rawHTML, err := c.Fetcher.FetchHTML(ctx, page.URL, opts.UserAgent)
	if err != nil {
		return nil, nil, err.Error()
	}
	htmlBody := sanitizeHTML(rawHTML)

	title, markdown, err := extractMainHTML(htmlBody, page.URL)
	if err != nil {
		return nil, nil, err.Error()
	}
	links := extractLinksFromHTML(htmlBody, page.URL)

	if c.Headless != nil && c.Headless.Available() && (isSparse(markdown, len(links)) || looksLikeSPA(htmlBody)) {
		if rendered, err := c.Headless.Render(ctx, page.URL, opts.UserAgent); err == nil && rendered != "" {
			if t2, m2, err2 := extractMainHTML(rendered, page.URL); err2 == nil && len(m2) > len(markdown) {
				title, markdown = t2, m2
				links = extractLinksFromHTML(rendered, page.URL)
			}
		}
	}

	clean := sanitizeMarkdown(markdown)
	if len(clean) < opts.MinBodyCharacters {
		return nil, nil, "body too short"
	}
	if opts.RequireCodeSnippets && !hasCodeSnippet(clean) {
		return nil, nil, "no code snippet present"
	}

	return &Page{URL: page.URL, Title: title, Markdown: clean, Depth: page.Depth}, links, ""
}

func hasCodeSnippet(markdown string) bool {
	return containsFencedCode(markdown)
}

func containsFencedCode(s string) bool {
	count := 0
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '`' && s[i+1] == '`' && s[i+2] == '`' {
			count++
		}
	}
	return count >= 2
}
