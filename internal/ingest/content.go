package ingest

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-librarian/librarian/internal/store"
)

var h1Pattern = regexp.MustCompile(`(?m)^#\s+(.+?)\s*$`)

// extractTitle takes a document's first H1 heading, falling back to its
// filename without extension when none is present.
func extractTitle(content []byte, path string) string {
	if m := h1Pattern.FindSubmatch(content); m != nil {
		return strings.TrimSpace(string(m[1]))
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// determineContentType classifies a file by extension, falling back to
// "code" when the archive reported a programming language for it.
func determineContentType(path, language string) store.ContentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return store.ContentTypeMarkdown
	}
	if language != "" {
		return store.ContentTypeCode
	}
	return store.ContentTypeMarkdown
}

// hasFencedCodeBlock reports whether content contains a complete
// ``` ... ``` fence, the docs-only filter's definition of "contains a
// code snippet" (spec §8 scenario 1).
func hasFencedCodeBlock(content []byte) bool {
	count := strings.Count(string(content), "```")
	return count >= 2
}

// webDocPath derives the synthetic, Markdown-suffixed path a crawled
// page is stored under from its URL's path component.
func webDocPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return sanitizePathFallback(rawURL)
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		p = "index"
	}
	if !strings.HasSuffix(p, ".md") {
		p += ".md"
	}
	return p
}

func sanitizePathFallback(rawURL string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '/':
			return r
		default:
			return '-'
		}
	}, rawURL)
	if !strings.HasSuffix(cleaned, ".md") {
		cleaned += ".md"
	}
	return cleaned
}
