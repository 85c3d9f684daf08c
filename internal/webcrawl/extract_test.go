package webcrawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksLikeMarkdown(t *testing.T) {
	assert.True(t, looksLikeMarkdown("# Title\n\nSome body text"))
	assert.True(t, looksLikeMarkdown("plain text\n```go\ncode\n```"))
	assert.True(t, looksLikeMarkdown("- item one\n- item two"))
	assert.False(t, looksLikeMarkdown("just a sentence with no markdown signals"))
	assert.False(t, looksLikeMarkdown(""))
}

func TestExtractMainHTML_PrefersArticleTag(t *testing.T) {
	html := `<html><head><title>My Page</title></head><body>
		<nav>skip this nav</nav>
		<article><h1>Heading</h1><p>Real content here.</p></article>
		<footer>skip this footer</footer>
	</body></html>`

	title, markdown, err := extractMainHTML(html, "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "My Page", title)
	assert.Contains(t, markdown, "Real content here")
	assert.NotContains(t, markdown, "skip this nav")
	assert.NotContains(t, markdown, "skip this footer")
}

func TestIsSparse(t *testing.T) {
	assert.True(t, isSparse("short", 10))
	assert.True(t, isSparse(sampleText(500), 1))
	assert.False(t, isSparse(sampleText(500), 10))
}

func sampleText(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}

func TestLooksLikeSPA(t *testing.T) {
	assert.True(t, looksLikeSPA(`<div id="__next"></div>`))
	assert.True(t, looksLikeSPA(`<div id="root"></div>`))
	assert.False(t, looksLikeSPA(`<article>normal page</article>`))
}

func TestSanitizeMarkdown(t *testing.T) {
	input := "# Table of Contents\n\n- [link](#anchor)\n\nReal Heading\n=====\n\nBody text\n\n\n\nmore text"
	out := sanitizeMarkdown(input)

	assert.NotContains(t, out, "Table of Contents")
	assert.NotContains(t, out, "[link](#anchor)")
	assert.Contains(t, out, "# Real Heading")
	assert.NotContains(t, out, "\n\n\n")
}

func TestExtractLinks(t *testing.T) {
	markdown := "See [guide](/guide) and [other](https://other.com/x)."
	links := extractLinks(markdown, "https://example.com/base")
	assert.Contains(t, links, "https://example.com/guide")
	assert.Contains(t, links, "https://other.com/x")
}
