package webcrawl

import (
	"net/url"
	"regexp"
	"strings"
)

// scope holds the compiled rules a discovered URL must satisfy to be
// crawled, per spec §4.4's "Scope rules".
type scope struct {
	rootHost        string
	allowSubdomains bool
	rootPath        string
	allowedPaths    []string
	deniedPaths     []string
}

func newScope(rootURL string, allowSubdomains bool, allowedPaths, deniedPaths []string) (*scope, error) {
	parsed, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}
	return &scope{
		rootHost:        strings.ToLower(parsed.Hostname()),
		allowSubdomains: allowSubdomains,
		rootPath:        normalizedPath(parsed.Path),
		allowedPaths:    allowedPaths,
		deniedPaths:     deniedPaths,
	}, nil
}

// inScope reports whether candidate should be discovered/fetched.
func (s *scope) inScope(candidate string) bool {
	parsed, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host != s.rootHost {
		if !s.allowSubdomains || !strings.HasSuffix(host, "."+s.rootHost) {
			return false
		}
	}

	p := normalizedPath(parsed.Path)
	if len(s.allowedPaths) > 0 {
		matched := false
		for _, allowed := range s.allowedPaths {
			if strings.HasPrefix(p, normalizedPath(allowed)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, denied := range s.deniedPaths {
		if strings.HasPrefix(p, normalizedPath(denied)) {
			return false
		}
	}
	return true
}

func normalizedPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

var multiSlash = regexp.MustCompile(`/{2,}`)

// normalizeURL implements spec §4.4's normalization rule: lowercased
// host, collapsed repeated slashes, trailing slash stripped, trailing
// ".md" stripped, scheme kept, query preserved.
func normalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	path := multiSlash.ReplaceAllString(parsed.Path, "/")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	path = strings.TrimSuffix(path, ".md")
	if path == "" {
		path = "/"
	}
	parsed.Path = path

	return parsed.String(), nil
}

// resolveRelative resolves a possibly-relative href against base,
// returning "" if either fails to parse.
func resolveRelative(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
