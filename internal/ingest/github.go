package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-librarian/librarian/internal/chunk"
	liberrors "github.com/go-librarian/librarian/internal/errors"
	"github.com/go-librarian/librarian/internal/githubsync"
	"github.com/go-librarian/librarian/internal/store"
)

// githubRateLimitRetry is the GitHub backoff policy: waits of 15s, 30s
// and 60s across three retries, with each wait capped at 120s.
func githubRateLimitRetry() liberrors.RetryConfig {
	return liberrors.RetryConfig{
		MaxRetries:   3,
		InitialDelay: 15 * time.Second,
		MaxDelay:     120 * time.Second,
		Multiplier:   2,
	}
}

type planEntry struct {
	label string
	ref   string
}

// resolveVersionPlan turns a VersionPlan's labels into concrete refs:
// the default label syncs at the declared default branch, each series
// label resolves to its latest tag, falling back to whatever ref that
// label last synced at, and finally the default branch itself.
func resolveVersionPlan(src *store.Source, plan githubsync.VersionPlan, refs []githubsync.GitRef, previous map[string]*store.SourceVersion) []planEntry {
	defaultLabel := src.VersionLabel
	if defaultLabel == "" {
		defaultLabel = "latest"
	}

	entries := []planEntry{{label: defaultLabel, ref: plan.Default}}
	for _, label := range plan.Series {
		ref := githubsync.PickLatestForSeries(refs, label)
		if ref == "" {
			if v, ok := previous[label]; ok && v.Ref != "" {
				ref = v.Ref
			} else {
				ref = plan.Default
			}
		}
		entries = append(entries, planEntry{label: label, ref: ref})
	}
	return entries
}

// syncGitHub implements spec §4.5 step 2: build the version plan, sync
// each (label, ref), ingest its files, and deactivate paths no longer
// seen. Returns the commit/etag from the source's default-label sync,
// which the caller records on the Source row.
func (ig *Ingestor) syncGitHub(ctx context.Context, src *store.Source, lib store.LibraryStore, breaker *liberrors.CircuitBreaker, force bool, onProgress ProgressFunc) (*Result, string, string, error) {
	owner, repo, err := splitRepo(src.Repo)
	if err != nil {
		return nil, "", "", err
	}

	previousVersions, err := ig.deps.Index.ListSourceVersions(ctx, src.ID)
	if err != nil {
		return nil, "", "", fmt.Errorf("list previous versions: %w", err)
	}
	priorLabels := make([]string, len(previousVersions))
	byLabel := make(map[string]*store.SourceVersion, len(previousVersions))
	for i, v := range previousVersions {
		priorLabels[i] = v.VersionLabel
		byLabel[v.VersionLabel] = v
	}

	refs, err := githubsync.ListTags(ctx, ig.deps.HTTPClient, owner, repo, ig.deps.GitHubToken)
	if err != nil {
		ig.deps.Logger.Warn("list tags failed, version plan limited to declared default", "source", src.ID, "error", err)
	}

	plan := githubsync.BuildVersionPlan(src.Ref, refs, priorLabels, githubsync.DefaultMaxVersionSeries)
	entries := resolveVersionPlan(src, plan, refs, byLabel)

	result := &Result{SourceID: src.ID}
	var lastCommit, lastEtag string
	defaultLabel := entries[0].label

	for _, entry := range entries {
		if !breaker.Allow() {
			ig.deps.Logger.Warn("circuit open, skipping remaining versions", "source", src.ID, "label", entry.label)
			break
		}

		result.Labels = append(result.Labels, entry.label)

		var previousSHA, previousETag string
		if v, ok := byLabel[entry.label]; ok {
			previousSHA, previousETag = v.CommitSHA, v.ETag
		}

		req := githubsync.Request{
			Owner:        owner,
			Repo:         repo,
			Ref:          entry.ref,
			DocsPath:     src.DocsPath,
			Token:        ig.deps.GitHubToken,
			PreviousSHA:  previousSHA,
			PreviousETag: previousETag,
			Force:        force,
		}

		syncResult, err := liberrors.RetryWithResult(ctx, githubRateLimitRetry(), func() (*githubsync.Result, error) {
			return githubsync.Sync(ctx, req)
		})
		if err != nil {
			breaker.RecordFailure()
			ig.deps.Logger.Error("github sync failed", "source", src.ID, "label", entry.label, "error", err)
			continue
		}
		breaker.RecordSuccess()

		if syncResult.NotModified {
			result.Unchanged++
			continue
		}

		seen, err := ig.ingestGitHubFiles(ctx, lib, src, entry, syncResult.Files, result, onProgress)
		if err != nil {
			ig.deps.Logger.Error("ingest files failed", "source", src.ID, "label", entry.label, "error", err)
			continue
		}

		deactivated, err := ig.deactivateMissing(ctx, lib, src.ID, entry.label, seen)
		if err != nil {
			ig.deps.Logger.Warn("deactivate missing documents failed", "source", src.ID, "label", entry.label, "error", err)
		}
		result.Deactivated += deactivated

		if err := ig.deps.Index.UpsertSourceVersion(ctx, &store.SourceVersion{
			SourceID:     src.ID,
			VersionLabel: entry.label,
			Ref:          entry.ref,
			CommitSHA:    syncResult.CommitSHA,
			ETag:         syncResult.ETag,
			SyncedAt:     time.Now().UTC(),
		}); err != nil {
			ig.deps.Logger.Warn("record source version failed", "source", src.ID, "label", entry.label, "error", err)
		}

		if entry.label == defaultLabel {
			lastCommit, lastEtag = syncResult.CommitSHA, syncResult.ETag
		}
	}

	return result, lastCommit, lastEtag, nil
}

// ingestGitHubFiles upserts and, when changed, re-chunks every file a
// sync loaded, honoring docs-only mode and bounded parallelism. Each
// file's failure is isolated: it's logged and counted, never aborting
// its siblings.
func (ig *Ingestor) ingestGitHubFiles(ctx context.Context, lib store.LibraryStore, src *store.Source, entry planEntry, files []githubsync.ExtractedFile, result *Result, onProgress ProgressFunc) (map[string]bool, error) {
	onProgress = progressOrNoop(onProgress)

	var mu sync.Mutex
	seen := make(map[string]bool, len(files))
	processed := 0
	total := len(files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ig.deps.MaxWorkers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if src.IngestMode == store.IngestModeDocsOnly && !hasFencedCodeBlock(file.Content) {
				mu.Lock()
				result.Skipped++
				seen[file.Rel] = true
				processed++
				onProgress(processed, total)
				mu.Unlock()
				return nil
			}

			title := extractTitle(file.Content, file.Rel)
			doc := &store.Document{
				SourceID:     src.ID,
				Path:         file.Rel,
				VersionLabel: entry.label,
				URI:          githubFileURI(src.Repo, entry.ref, file.Rel),
				Title:        title,
				ContentType:  determineContentType(file.Rel, file.Language),
			}

			changed, err := lib.UpsertDocument(gctx, doc, file.Content)
			if err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
				ig.deps.Logger.Error("upsert document failed", "source", src.ID, "path", file.Rel, "error", err)
				return nil
			}

			if changed {
				if err := ig.rebuildChunks(gctx, lib, doc, file.Content, file.Language); err != nil {
					mu.Lock()
					result.Failed++
					mu.Unlock()
					ig.deps.Logger.Error("rebuild chunks failed", "source", src.ID, "path", file.Rel, "error", err)
					return nil
				}
			}

			mu.Lock()
			seen[file.Rel] = true
			processed++
			if changed {
				result.Updated++
			} else {
				result.Unchanged++
			}
			result.Processed++
			onProgress(processed, total)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return seen, err
	}
	return seen, nil
}

// rebuildChunks picks the code or Markdown chunker by content type and
// replaces a document's chunks with the freshly produced set.
func (ig *Ingestor) rebuildChunks(ctx context.Context, lib store.LibraryStore, doc *store.Document, content []byte, language string) error {
	chunker := ig.deps.MarkdownChunker
	if doc.ContentType == store.ContentTypeCode {
		chunker = ig.deps.CodeChunker
	}

	drafts, err := chunker.Chunk(ctx, &chunk.FileInput{
		Path:          doc.Path,
		Content:       content,
		Language:      language,
		DocumentTitle: doc.Title,
	})
	if err != nil {
		return fmt.Errorf("chunk %s: %w", doc.Path, err)
	}

	return lib.InsertChunks(ctx, doc.ID, buildDocumentChunks(doc, drafts))
}

func (ig *Ingestor) deactivateMissing(ctx context.Context, lib store.LibraryStore, sourceID, versionLabel string, seen map[string]bool) (int, error) {
	docs, err := lib.ListDocuments(ctx, sourceID, versionLabel)
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for _, d := range docs {
		if !d.Active || seen[d.Path] {
			continue
		}
		if err := lib.SetDocumentActive(ctx, d.ID, false); err != nil {
			ig.deps.Logger.Warn("deactivate document failed", "source", sourceID, "path", d.Path, "error", err)
			continue
		}
		deactivated++
	}
	return deactivated, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q, want \"owner/name\"", repo)
	}
	return parts[0], parts[1], nil
}

func githubFileURI(repo, ref, path string) string {
	return fmt.Sprintf("https://github.com/%s/blob/%s/%s", repo, ref, path)
}
