package webcrawl

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/temoto/robotstxt"
)

const maxDiscoveredURLLength = 255
const maxSitemapIndexDepth = 3

// discover implements spec §4.4's seeding sequence: llms.txt/
// llms-full.txt, then robots.txt Sitemap: entries plus a direct
// sitemap.xml probe, filtered to scope. If nothing is found, the
// caller enqueues the root URL at depth 0 instead.
func discover(ctx context.Context, client *http.Client, sc *scope, rootURL, userAgent string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		if u == "" || seen[u] || len(u) > maxDiscoveredURLLength || !sc.inScope(u) {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, llmsURL := range llmsTxtCandidates(rootURL) {
		body, err := fetchText(ctx, client, llmsURL, userAgent)
		if err != nil {
			continue
		}
		for _, u := range parseLlmsTxt(llmsURL, body) {
			add(u)
		}
	}

	for _, sitemapURL := range sitemapCandidates(ctx, client, rootURL, userAgent) {
		for _, u := range fetchSitemapURLs(ctx, client, sitemapURL, userAgent, 0) {
			add(u)
		}
	}

	return out
}

func llmsTxtCandidates(rootURL string) []string {
	base := strings.TrimSuffix(rootURL, "/")
	return []string{base + "/llms.txt", base + "/llms-full.txt"}
}

var llmsListItemLink = regexp.MustCompile(`^-\s*\[([^\]]*)\]\(([^)]+)\)`)
var llmsListItemBare = regexp.MustCompile(`^-\s*(\S+)`)

// parseLlmsTxt extracts "- [title](url)" and "- url" list items,
// resolving relative URLs against the file's own URL.
func parseLlmsTxt(sourceURL, body string) []string {
	var urls []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if m := llmsListItemLink.FindStringSubmatch(line); m != nil {
			if resolved := resolveRelative(sourceURL, m[2]); resolved != "" {
				urls = append(urls, resolved)
			}
			continue
		}
		if m := llmsListItemBare.FindStringSubmatch(line); m != nil {
			if looksLikeURL(m[1]) {
				if resolved := resolveRelative(sourceURL, m[1]); resolved != "" {
					urls = append(urls, resolved)
				}
			}
		}
	}
	return urls
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "/")
}

// sitemapCandidates collects sitemap URLs from robots.txt Sitemap:
// entries plus a direct sitemap.xml probe at the root.
func sitemapCandidates(ctx context.Context, client *http.Client, rootURL, userAgent string) []string {
	parsed, err := url.Parse(rootURL)
	if err != nil {
		return nil
	}
	robotsURL := (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}).String()

	var candidates []string
	if body, err := fetchText(ctx, client, robotsURL, userAgent); err == nil {
		if robots, err := robotstxt.FromString(body); err == nil {
			candidates = append(candidates, robots.Sitemaps...)
		}
	}

	direct := (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/sitemap.xml"}).String()
	candidates = append(candidates, direct)
	return candidates
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// fetchSitemapURLs fetches one sitemap URL and extracts <loc> entries,
// following sitemap-index entries up to maxSitemapIndexDepth.
func fetchSitemapURLs(ctx context.Context, client *http.Client, sitemapURL, userAgent string, depth int) []string {
	if depth > maxSitemapIndexDepth {
		return nil
	}
	body, err := fetchBytes(ctx, client, sitemapURL, userAgent)
	if err != nil {
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, s := range index.Sitemaps {
			urls = append(urls, fetchSitemapURLs(ctx, client, s.Loc, userAgent, depth+1)...)
		}
		return urls
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil
	}
	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	return urls
}

func fetchText(ctx context.Context, client *http.Client, u, userAgent string) (string, error) {
	body, err := fetchBytes(ctx, client, u, userAgent)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func fetchBytes(ctx context.Context, client *http.Client, u, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
}
