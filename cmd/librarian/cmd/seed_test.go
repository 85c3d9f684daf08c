package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectSeedOrigins_URLsOnly(t *testing.T) {
	// Given: only --url origins, no files
	opts := seedOptions{urls: []string{"golang/go", "https://pkg.go.dev"}}

	// When: collecting origins
	got, err := collectSeedOrigins(opts)

	// Then: they pass through unchanged
	require.NoError(t, err)
	assert.Equal(t, []string{"golang/go", "https://pkg.go.dev"}, got)
}

func TestCollectSeedOrigins_FileSkipsBlankAndComments(t *testing.T) {
	// Given: a seed file mixing real entries, blanks, and comments
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.txt")
	content := "golang/go\n\n# a comment\nhttps://pkg.go.dev\n  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: collecting origins from that file plus one --url
	got, err := collectSeedOrigins(seedOptions{files: []string{path}, urls: []string{"owner/repo"}})

	// Then: --url origins come first, file origins follow, noise is dropped
	require.NoError(t, err)
	assert.Equal(t, []string{"owner/repo", "golang/go", "https://pkg.go.dev"}, got)
}

func TestCollectSeedOrigins_MissingFile(t *testing.T) {
	// Given: a seed file path that doesn't exist

	// When: collecting origins
	_, err := collectSeedOrigins(seedOptions{files: []string{"/does/not/exist.txt"}})

	// Then: it errors rather than silently skipping
	assert.Error(t, err)
}
