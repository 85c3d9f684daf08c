package githubsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_ReturnsFilteredFiles(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"owner-repo-1234567/README.md":          "# docs",
		"owner-repo-1234567/docs/guide.md":       "guide",
		"owner-repo-1234567/node_modules/x/y.js": "ignored",
		"owner-repo-1234567/.env":                "SECRET=1",
		"owner-repo-1234567/assets/logo.png":     "binary",
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"1234567"`)
		w.WriteHeader(http.StatusOK)
		w.Write(archive)
	}))
	defer server.Close()

	req := Request{Owner: "owner", Repo: "repo", Ref: "main"}
	urls := []string{server.URL}

	fetched, err := fetchArchive(context.Background(), server.Client(), urls, req)
	require.NoError(t, err)

	entries, err := unzipArchive(fetched.body)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	result := &Result{}
	for _, e := range entries {
		ok, reason := classify(e.rel, int64(len(e.content)), 0)
		if !ok {
			result.Skipped = append(result.Skipped, Skipped{Path: e.rel, Reason: reason})
			continue
		}
		result.Files = append(result.Files, ExtractedFile{Rel: e.rel, Content: e.content})
	}

	assert.Len(t, result.Files, 2)
	assert.Len(t, result.Skipped, 3)
}

func TestNormalizeDocsPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "root slash", in: "/", want: ""},
		{name: "simple", in: "docs", want: "docs"},
		{name: "leading slash", in: "/docs", want: "docs"},
		{name: "trailing slash", in: "docs/", want: "docs"},
		{name: "nested", in: "site/docs/", want: "site/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDocsPath(tt.in))
		})
	}
}

func TestRenderTree(t *testing.T) {
	tree := renderTree([]string{"README.md", "docs/guide.md", "docs/sub/deep.md"})
	assert.Contains(t, tree, "README.md")
	assert.Contains(t, tree, "guide.md")
	assert.Contains(t, tree, "deep.md")
}

func TestRenderTree_Empty(t *testing.T) {
	assert.Equal(t, "", renderTree(nil))
}

func TestResolveCommitSHA_PrefersHeaderThenURLThenPrevious(t *testing.T) {
	sha := resolveCommitSHA(fetchResult{commitSHA: `"abc1234"`}, nil, "previous")
	assert.Equal(t, "abc1234", sha)

	sha = resolveCommitSHA(fetchResult{}, []string{"https://github.com/o/r/archive/deadbee.zip"}, "previous")
	assert.Equal(t, "deadbee", sha)

	sha = resolveCommitSHA(fetchResult{}, nil, "previous")
	assert.Equal(t, "previous", sha)
}

// redirectingRoundTripper rewrites every outgoing request to target a
// local test server, so sync's real candidate URLs can still be
// exercised against httptest without reaching the network.
type redirectingRoundTripper struct {
	base   http.RoundTripper
	target *url.URL
}

func (rt *redirectingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	req.Host = rt.target.Host
	return rt.base.RoundTrip(req)
}

func TestSync_NotModifiedWhenServerReturns304(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: &redirectingRoundTripper{base: http.DefaultTransport, target: target}}

	req := Request{Owner: "owner", Repo: "repo", Ref: "main", PreviousSHA: "abc1234", PreviousETag: `"abc1234"`}
	result, err := sync(context.Background(), client, req)
	require.NoError(t, err)
	assert.True(t, result.NotModified)
	assert.Equal(t, "abc1234", result.CommitSHA)
}
