package webcrawl

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLlmsTxt(t *testing.T) {
	body := "# Docs\n" +
		"- [Getting Started](/start)\n" +
		"- /guide/intro\n" +
		"- https://example.com/other\n" +
		"not a list item\n"

	urls := parseLlmsTxt("https://example.com/llms.txt", body)
	assert.Contains(t, urls, "https://example.com/start")
	assert.Contains(t, urls, "https://example.com/guide/intro")
	assert.Contains(t, urls, "https://example.com/other")
}

func TestLooksLikeURL(t *testing.T) {
	assert.True(t, looksLikeURL("https://x.com"))
	assert.True(t, looksLikeURL("http://x.com"))
	assert.True(t, looksLikeURL("/relative/path"))
	assert.False(t, looksLikeURL("not a url"))
}

func TestDiscover_ReturnsEmptyWhenNothingFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sc, err := newScope(server.URL, false, nil, nil)
	assert.NoError(t, err)

	found := discover(t.Context(), server.Client(), sc, server.URL, "test-agent")
	assert.Empty(t, found)
}

func TestDiscover_UsesLlmsTxt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/llms.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("- [Intro](/intro)\n- /guide\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sc, err := newScope(server.URL, false, nil, nil)
	assert.NoError(t, err)

	found := discover(t.Context(), server.Client(), sc, server.URL, "test-agent")
	assert.Contains(t, found, server.URL+"/intro")
	assert.Contains(t, found, server.URL+"/guide")
}

func TestFetchSitemapURLs_FollowsIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap1.xml", func(w http.ResponseWriter, r *http.Request) {
		self := "http://" + r.Host
		w.Write([]byte(`<urlset><url><loc>` + self + `/page1</loc></url></urlset>`))
	})
	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		self := "http://" + r.Host
		w.Write([]byte(`<sitemapindex><sitemap><loc>` + self + `/sitemap1.xml</loc></sitemap></sitemapindex>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	urls := fetchSitemapURLs(t.Context(), server.Client(), server.URL+"/sitemap_index.xml", "test-agent", 0)
	assert.Contains(t, urls, server.URL+"/page1")
}
