package githubsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	liberrors "github.com/go-librarian/librarian/internal/errors"
)

// candidateURLs builds the ordered list of zipball URLs to try for a
// given ref, per spec §4.3 step 1: the API endpoint first, then
// web-archive fallbacks keyed on what the ref looks like.
func candidateURLs(owner, repo, ref string) []string {
	if ref == "" {
		ref = "HEAD"
	}
	urls := []string{
		fmt.Sprintf("https://api.github.com/repos/%s/%s/zipball/%s", owner, repo, ref),
	}

	switch {
	case shaPattern.MatchString(ref):
		urls = append(urls, fmt.Sprintf("https://github.com/%s/%s/archive/%s.zip", owner, repo, ref))
	case ref == "HEAD":
		urls = append(urls, fmt.Sprintf("https://github.com/%s/%s/archive/refs/heads/HEAD.zip", owner, repo))
	default:
		urls = append(urls,
			fmt.Sprintf("https://github.com/%s/%s/archive/refs/heads/%s.zip", owner, repo, ref),
			fmt.Sprintf("https://github.com/%s/%s/archive/refs/tags/%s.zip", owner, repo, ref),
		)
	}
	return urls
}

var shaPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// fetchOutcome classifies one candidate's HTTP response per spec §4.3
// step 3.
type fetchOutcome int

const (
	outcomeOK fetchOutcome = iota
	outcomeNotModified
	outcomeTokenInvalid
	outcomeAccessDenied
	outcomeNotFound
	outcomeRetryable
)

func interpretStatus(code int) fetchOutcome {
	switch {
	case code == http.StatusNotModified:
		return outcomeNotModified
	case code == http.StatusUnauthorized:
		return outcomeTokenInvalid
	case code == http.StatusForbidden:
		return outcomeAccessDenied
	case code == http.StatusNotFound:
		return outcomeNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return outcomeRetryable
	case code >= 200 && code < 300:
		return outcomeOK
	default:
		return outcomeRetryable
	}
}

// fetchResult is one candidate's fetch outcome plus any recovered data.
type fetchResult struct {
	outcome    fetchOutcome
	body       []byte
	etag       string
	commitSHA  string // from the response header, if present
	statusText string
}

// doFetcher is the HTTP transport used for candidate requests; a field
// rather than a package var so tests can substitute a fake transport.
type doFetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// fetchCandidate issues one GET per spec §4.3 step 2: bearer auth when a
// token is configured, conditional If-None-Match when an etag is known,
// a bounded timeout, and redirect-following (the default http.Client
// behavior already follows redirects).
func fetchCandidate(ctx context.Context, client doFetcher, url string, req Request, maxSize int64) (fetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, fmt.Errorf("build request: %w", err)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.PreviousETag != "" {
		httpReq.Header.Set("If-None-Match", req.PreviousETag)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	result := fetchResult{
		outcome:    interpretStatus(resp.StatusCode),
		etag:       resp.Header.Get("ETag"),
		commitSHA:  firstNonEmpty(resp.Header.Get("X-Resolved-Commit-SHA"), resp.Header.Get("ETag")),
		statusText: resp.Status,
	}
	if result.outcome != outcomeOK {
		return result, nil
	}

	if maxSize <= 0 {
		maxSize = DefaultArchiveSizeLimit
	}
	if resp.ContentLength > maxSize {
		return fetchResult{}, fmt.Errorf("archive content-length %d exceeds limit %d", resp.ContentLength, maxSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return fetchResult{}, fmt.Errorf("read archive body: %w", err)
	}
	if int64(len(body)) > maxSize {
		return fetchResult{}, fmt.Errorf("archive body exceeds limit %d bytes", maxSize)
	}
	result.body = body
	return result, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// fetchArchive tries each candidate URL in order, retrying a retryable
// failure once with backoff before moving to the next candidate, per
// spec §4.3 step 3's "retry the next candidate after a short delay; on
// exhaustion, fail with the last error."
func fetchArchive(ctx context.Context, client doFetcher, urls []string, req Request) (fetchResult, error) {
	var lastErr error
	retryCfg := liberrors.DefaultRetryConfig()
	retryCfg.MaxRetries = 1
	retryCfg.InitialDelay = 500 * time.Millisecond

	for _, url := range urls {
		result, err := liberrors.RetryWithResult(ctx, retryCfg, func() (fetchResult, error) {
			res, err := fetchCandidate(ctx, client, url, req, req.ArchiveMaxSize)
			if err != nil {
				return fetchResult{}, err
			}
			if res.outcome == outcomeRetryable {
				return fetchResult{}, fmt.Errorf("retryable status: %s", res.statusText)
			}
			return res, nil
		})
		if err != nil {
			lastErr = err
			continue
		}

		switch result.outcome {
		case outcomeOK, outcomeNotModified:
			return result, nil
		case outcomeTokenInvalid:
			return fetchResult{}, fmt.Errorf("token invalid for %s", url)
		case outcomeAccessDenied:
			lastErr = fmt.Errorf("access denied or rate limited for %s", url)
		case outcomeNotFound:
			lastErr = fmt.Errorf("not found: %s", url)
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate URLs available")
	}
	return fetchResult{}, lastErr
}

// defaultHTTPClient is used when the caller doesn't supply one.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultFetchTimeout + 5*time.Second}
}
