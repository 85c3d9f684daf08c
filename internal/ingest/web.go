package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-librarian/librarian/internal/chunk"
	"github.com/go-librarian/librarian/internal/store"
	"github.com/go-librarian/librarian/internal/webcrawl"
)

// webVersionLabel is the single version a web source is stored under;
// crawled sites have no branches or tags to track separately.
const webVersionLabel = "latest"

// syncWeb implements spec §4.5 step 3: run the crawler, upsert each
// successful page under a synthetic .md path, chunk it as Markdown,
// then deactivate pages the crawl no longer sees.
func (ig *Ingestor) syncWeb(ctx context.Context, src *store.Source, lib store.LibraryStore, force bool, onProgress ProgressFunc) (*Result, error) {
	onProgress = progressOrNoop(onProgress)

	queue := webcrawl.NewStoreQueue(lib)
	crawler := webcrawl.NewCrawler(queue, ig.deps.Logger)
	crawler.DiscoveryClient = ig.deps.HTTPClient
	crawler.Fetcher = webcrawl.NewHTTPFetcher(ig.deps.HTTPClient)

	opts := webcrawl.Options{
		RootURL:             src.RootURL,
		AllowedPaths:        src.AllowPaths,
		DeniedPaths:         src.DenyPaths,
		MaxDepth:            src.MaxDepth,
		MaxPages:            src.MaxPages,
		MaxWorkers:          ig.deps.MaxWorkers,
		RequireCodeSnippets: src.IngestMode == store.IngestModeDocsOnly,
		Force:               force,
	}

	crawlResult, err := crawler.Run(ctx, src.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", src.RootURL, err)
	}

	result := &Result{SourceID: src.ID, Labels: []string{webVersionLabel}}
	result.Skipped += crawlResult.Skipped
	result.Failed += len(crawlResult.Failed)
	for _, f := range crawlResult.Failed {
		ig.deps.Logger.Warn("crawl page failed", "source", src.ID, "url", f.URL, "reason", f.Reason)
	}

	seen := make(map[string]bool, len(crawlResult.Pages))
	total := len(crawlResult.Pages)

	for i, page := range crawlResult.Pages {
		path := webDocPath(page.URL)
		title := page.Title
		if title == "" {
			title = extractTitle([]byte(page.Markdown), path)
		}

		doc := &store.Document{
			SourceID:     src.ID,
			Path:         path,
			VersionLabel: webVersionLabel,
			URI:          page.URL,
			Title:        title,
			ContentType:  store.ContentTypeMarkdown,
		}

		content := []byte(page.Markdown)
		changed, err := lib.UpsertDocument(ctx, doc, content)
		if err != nil {
			result.Failed++
			ig.deps.Logger.Error("upsert crawled document failed", "source", src.ID, "path", path, "error", err)
			continue
		}

		if changed {
			drafts, err := ig.deps.MarkdownChunker.Chunk(ctx, &chunk.FileInput{
				Path:          path,
				Content:       content,
				DocumentTitle: title,
			})
			if err != nil {
				result.Failed++
				ig.deps.Logger.Error("chunk crawled document failed", "source", src.ID, "path", path, "error", err)
				continue
			}
			if err := lib.InsertChunks(ctx, doc.ID, buildDocumentChunks(doc, drafts)); err != nil {
				result.Failed++
				ig.deps.Logger.Error("insert crawled chunks failed", "source", src.ID, "path", path, "error", err)
				continue
			}
			result.Updated++
		} else {
			result.Unchanged++
		}

		result.Processed++
		seen[path] = true
		onProgress(i+1, total)
	}

	deactivated, err := ig.deactivateMissing(ctx, lib, src.ID, webVersionLabel, seen)
	if err != nil {
		ig.deps.Logger.Warn("deactivate missing documents failed", "source", src.ID, "error", err)
	}
	result.Deactivated = deactivated

	if err := ig.deps.Index.UpsertSourceVersion(ctx, &store.SourceVersion{
		SourceID:     src.ID,
		VersionLabel: webVersionLabel,
		SyncedAt:     time.Now().UTC(),
	}); err != nil {
		ig.deps.Logger.Warn("record source version failed", "source", src.ID, "error", err)
	}

	return result, nil
}
