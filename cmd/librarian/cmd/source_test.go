package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-librarian/librarian/internal/store"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "github repo", in: "golang/go", want: "golang-go"},
		{name: "url with scheme stripped by caller", in: "pkg.go.dev/std", want: "pkg-go-dev-std"},
		{name: "already lowercase slug", in: "already-a-slug", want: "already-a-slug"},
		{name: "uppercase and punctuation", in: "Owner/Repo.Name", want: "owner-repo-name"},
		{name: "empty falls back to source", in: "", want: "source"},
		{name: "only punctuation falls back to source", in: "///", want: "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an arbitrary origin string

			// When: slugifying it
			got := slugify(tt.in)

			// Then: it matches the expected stable ID
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSource_GitHubRepo(t *testing.T) {
	// Given: a GitHub-style origin with no explicit options
	src := buildSource("golang/go", sourceAddOptions{})

	// Then: it's classified as a GitHub source with sane defaults
	assert.Equal(t, store.SourceKindGitHub, src.Kind)
	assert.Equal(t, "golang/go", src.Repo)
	assert.Equal(t, "main", src.Ref)
	assert.Equal(t, "golang-go", src.ID)
	assert.Equal(t, "latest", src.VersionLabel)
	assert.Equal(t, store.IngestModeFull, src.IngestMode)
}

func TestBuildSource_GitHubRepo_WithOptions(t *testing.T) {
	// Given: explicit id, ref, docs-path, and docs-only options
	opts := sourceAddOptions{id: "go-lang", ref: "release-branch.go1.22", docsPath: "doc/", docsOnly: true}

	// When: building the source
	src := buildSource("golang/go", opts)

	// Then: every option overrides its default
	assert.Equal(t, "go-lang", src.ID)
	assert.Equal(t, "release-branch.go1.22", src.Ref)
	assert.Equal(t, "doc/", src.DocsPath)
	assert.Equal(t, store.IngestModeDocsOnly, src.IngestMode)
}

func TestBuildSource_Website(t *testing.T) {
	// Given: an absolute URL origin
	src := buildSource("https://pkg.go.dev", sourceAddOptions{maxDepth: 3, maxPages: 100})

	// Then: it's classified as a web source
	assert.Equal(t, store.SourceKindWeb, src.Kind)
	assert.Equal(t, "https://pkg.go.dev", src.RootURL)
	assert.Equal(t, 3, src.MaxDepth)
	assert.Equal(t, 100, src.MaxPages)
	assert.Equal(t, "pkg-go-dev", src.ID)
}

func TestBuildSource_LibraryDBPathIsDerived(t *testing.T) {
	// Given: a source built with an explicit id
	src := buildSource("owner/repo", sourceAddOptions{id: "mylib"})

	// Then: its library DB path is derived from that id
	assert.Equal(t, libraryDBPath("mylib"), src.LibraryDBPath)
}
