package githubsync

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Sync fetches req.Owner/req.Repo at req.Ref, unpacks it, and returns
// the filtered, hashed file set under req.DocsPath. A nil error with
// Result.NotModified true means the resolved commit matches
// req.PreviousSHA and the caller already has the current content.
func Sync(ctx context.Context, req Request) (*Result, error) {
	return sync(ctx, defaultHTTPClient(), req)
}

func sync(ctx context.Context, client doFetcher, req Request) (*Result, error) {
	urls := candidateURLs(req.Owner, req.Repo, req.Ref)

	fetched, err := fetchArchive(ctx, client, urls, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", req.Owner, req.Repo, err)
	}
	if fetched.outcome == outcomeNotModified {
		return &Result{NotModified: true, CommitSHA: req.PreviousSHA, ETag: req.PreviousETag}, nil
	}

	entries, err := unzipArchive(fetched.body)
	if err != nil {
		return nil, fmt.Errorf("unzip %s/%s: %w", req.Owner, req.Repo, err)
	}

	commitSHA := resolveCommitSHA(fetched, urls, req.PreviousSHA)
	if !req.Force && commitSHA != "" && commitSHA == req.PreviousSHA {
		return &Result{NotModified: true, CommitSHA: commitSHA, ETag: fetched.etag}, nil
	}

	docsPath := normalizeDocsPath(req.DocsPath)

	result := &Result{CommitSHA: commitSHA, ETag: fetched.etag}
	var keptPaths []string

	for _, entry := range entries {
		rel := entry.rel
		if docsPath != "" {
			if !strings.HasPrefix(rel, docsPath+"/") && rel != docsPath {
				continue
			}
			rel = strings.TrimPrefix(rel, docsPath)
			rel = strings.TrimPrefix(rel, "/")
			if rel == "" {
				continue
			}
		}

		ok, reason := classify(rel, int64(len(entry.content)), req.FileMaxSize)
		if !ok {
			if reason != "" {
				result.Skipped = append(result.Skipped, Skipped{Path: rel, Reason: reason})
			}
			continue
		}

		result.Files = append(result.Files, ExtractedFile{
			Abs:      entry.rel,
			Rel:      rel,
			Content:  entry.content,
			Language: detectLanguage(rel),
			Hash:     sha256Hex(entry.content),
		})
		keptPaths = append(keptPaths, rel)
	}

	result.Tree = renderTree(keptPaths)
	return result, nil
}

// resolveCommitSHA recovers the synced commit's SHA in priority order:
// a response header, the candidate URL's trailing hex segment, or the
// previously known SHA. The archive's top-level directory name is not
// consulted.
func resolveCommitSHA(fetched fetchResult, urls []string, previous string) string {
	if fetched.commitSHA != "" {
		clean := strings.Trim(fetched.commitSHA, `"`)
		if hexTailPattern.MatchString(clean) {
			return clean
		}
	}
	for _, u := range urls {
		if sha := shaFromURL(u); sha != "" {
			return sha
		}
	}
	return previous
}

func normalizeDocsPath(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

// renderTree builds an indented, printable directory tree from a sorted
// list of relative file paths, for status/inspection output.
func renderTree(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range paths {
		depth := strings.Count(p, "/")
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(path.Base(p))
		b.WriteString("\n")
	}
	return b.String()
}
