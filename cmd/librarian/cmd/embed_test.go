package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/store"
)

func TestRebuildOnDimensionMismatch_NoRecordedDimension(t *testing.T) {
	// Given: a freshly opened library with no prior embed recorded
	lib, err := store.OpenSQLiteLibraryStore("")
	require.NoError(t, err)
	defer func() { _ = lib.Close() }()

	ctx := context.Background()

	// When: checking for a dimension mismatch
	rebuilt, err := rebuildOnDimensionMismatch(ctx, lib, "src-1", "ollama://nomic-embed-text", 768)

	// Then: nothing to compare against, so no rebuild is triggered
	require.NoError(t, err)
	assert.False(t, rebuilt)
}

func TestRebuildOnDimensionMismatch_SameDimension(t *testing.T) {
	// Given: a library that last embedded at 768 dimensions
	lib, err := store.OpenSQLiteLibraryStore("")
	require.NoError(t, err)
	defer func() { _ = lib.Close() }()

	ctx := context.Background()
	require.NoError(t, lib.SetState(ctx, store.StateKeyEmbedDimension, "768"))

	// When: re-checking with the same dimension
	rebuilt, err := rebuildOnDimensionMismatch(ctx, lib, "src-1", "ollama://nomic-embed-text", 768)

	// Then: no rebuild needed
	require.NoError(t, err)
	assert.False(t, rebuilt)
}

func TestRebuildOnDimensionMismatch_ChangedDimension(t *testing.T) {
	// Given: a library that last embedded at 768 dimensions, and a
	// stale vector store file on disk under the same model URI
	dir := t.TempDir()
	t.Setenv("LIBRARIAN_LIBRARY_DB_DIR", dir)
	require.NoError(t, os.MkdirAll(config.GetLibraryDBDir(), 0o755))

	lib, err := store.OpenSQLiteLibraryStore("")
	require.NoError(t, err)
	defer func() { _ = lib.Close() }()

	ctx := context.Background()
	require.NoError(t, lib.SetState(ctx, store.StateKeyEmbedDimension, "768"))

	modelURI := "ollama://nomic-embed-text"
	stalePath := vectorStorePath("src-1", modelURI)
	require.NoError(t, os.WriteFile(stalePath, []byte("stale"), 0o644))

	// When: the embedder about to run reports a different width
	rebuilt, err := rebuildOnDimensionMismatch(ctx, lib, "src-1", modelURI, 1536)

	// Then: the stale file is dropped and a rebuild is signaled
	require.NoError(t, err)
	assert.True(t, rebuilt)
	_, statErr := os.Stat(stalePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestVectorStorePath_DiffersByModelURI(t *testing.T) {
	// Given/When: two distinct model URIs for the same source
	a := vectorStorePath("src-1", "ollama://nomic-embed-text")
	b := vectorStorePath("src-1", "static://768")

	// Then: each gets its own file, sidestepping dimension collisions
	assert.NotEqual(t, a, b)
	assert.Equal(t, filepath.Dir(a), filepath.Dir(b))
}
