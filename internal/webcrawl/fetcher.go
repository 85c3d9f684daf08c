package webcrawl

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// HTTPFetcher implements Fetcher against a real HTTP client, via
// content negotiation per spec §4.4's fetch-loop steps 1-2.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a Fetcher using client, or a sensible default
// client when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &HTTPFetcher{Client: client}
}

// FetchMarkdown requests url with an Accept header favoring Markdown.
// ok is false when the server responded with something other than a
// markdown-flavored content-type, so the caller falls through to HTML.
func (f *HTTPFetcher) FetchMarkdown(ctx context.Context, url, userAgent string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.8, text/html;q=0.5")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return "", false, err
	}
	text := string(body)

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "markdown") {
		return text, true, nil
	}
	if strings.Contains(contentType, "text/plain") && looksLikeMarkdown(text) {
		return text, true, nil
	}
	return "", false, nil
}

// FetchHTML requests url with an Accept header favoring HTML.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, url, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
