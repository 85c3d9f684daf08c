package webcrawl

import (
	"context"

	"github.com/go-librarian/librarian/internal/store"
)

// StoreQueue adapts a store.LibraryStore's crawl-frontier methods to
// the narrow Queue interface the crawler depends on.
type StoreQueue struct {
	Library store.LibraryStore
}

// NewStoreQueue wraps a LibraryStore for use as the crawler's frontier.
func NewStoreQueue(library store.LibraryStore) Queue {
	return &StoreQueue{Library: library}
}

func (q *StoreQueue) UpsertPage(ctx context.Context, sourceID, url, normalizedURL string, depth int) error {
	return q.Library.UpsertCrawlPage(ctx, &store.CrawlPage{
		SourceID:      sourceID,
		URL:           url,
		NormalizedURL: normalizedURL,
		Depth:         depth,
		State:         store.CrawlStatePending,
	})
}

// GetPage reports whether normalizedURL is already in the frontier.
// GetCrawlPage returns an error rather than a nil row for an unknown
// page, so any error here is treated as "not yet discovered" rather
// than propagated.
func (q *StoreQueue) GetPage(ctx context.Context, sourceID, normalizedURL string) (bool, string, error) {
	page, err := q.Library.GetCrawlPage(ctx, sourceID, normalizedURL)
	if err != nil {
		return false, "", nil
	}
	return true, string(page.State), nil
}

func (q *StoreQueue) MarkState(ctx context.Context, sourceID, normalizedURL, state, errMsg string) error {
	return q.Library.UpdateCrawlPageState(ctx, sourceID, normalizedURL, store.CrawlState(state), errMsg)
}

func (q *StoreQueue) Pending(ctx context.Context, sourceID string, limit int) ([]QueuedPage, error) {
	pages, err := q.Library.PendingCrawlPages(ctx, sourceID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]QueuedPage, len(pages))
	for i, p := range pages {
		out[i] = QueuedPage{URL: p.URL, NormalizedURL: p.NormalizedURL, Depth: p.Depth}
	}
	return out, nil
}
