package webcrawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_InScope(t *testing.T) {
	sc, err := newScope("https://docs.example.com/guide", false, []string{"/guide"}, []string{"/guide/internal"})
	require.NoError(t, err)

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "same host in allowed path", url: "https://docs.example.com/guide/intro", want: true},
		{name: "denied subpath", url: "https://docs.example.com/guide/internal/secret", want: false},
		{name: "outside allowed path", url: "https://docs.example.com/other", want: false},
		{name: "different host", url: "https://example.com/guide/intro", want: false},
		{name: "non-http scheme", url: "ftp://docs.example.com/guide/intro", want: false},
		{name: "invalid url", url: "://not-a-url", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sc.inScope(tt.url))
		})
	}
}

func TestScope_AllowSubdomains(t *testing.T) {
	sc, err := newScope("https://example.com/", true, nil, nil)
	require.NoError(t, err)

	assert.True(t, sc.inScope("https://docs.example.com/page"))
	assert.True(t, sc.inScope("https://example.com/page"))
	assert.False(t, sc.inScope("https://other.com/page"))
}

func TestScope_DisallowSubdomains(t *testing.T) {
	sc, err := newScope("https://example.com/", false, nil, nil)
	require.NoError(t, err)

	assert.False(t, sc.inScope("https://docs.example.com/page"))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases host", in: "https://EXAMPLE.com/Page", want: "https://example.com/Page"},
		{name: "collapses slashes", in: "https://example.com//a//b", want: "https://example.com/a/b"},
		{name: "strips trailing slash", in: "https://example.com/a/", want: "https://example.com/a"},
		{name: "strips trailing md", in: "https://example.com/guide.md", want: "https://example.com/guide"},
		{name: "keeps query", in: "https://example.com/a?x=1", want: "https://example.com/a?x=1"},
		{name: "root path kept", in: "https://example.com/", want: "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRelative(t *testing.T) {
	assert.Equal(t, "https://example.com/a/b", resolveRelative("https://example.com/a/", "b"))
	assert.Equal(t, "https://example.com/c", resolveRelative("https://example.com/a/b", "/c"))
	assert.Equal(t, "https://other.com/x", resolveRelative("https://example.com/a", "https://other.com/x"))
}
