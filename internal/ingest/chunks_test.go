package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-librarian/librarian/internal/chunk"
	"github.com/go-librarian/librarian/internal/store"
)

func TestBuildDocumentChunks(t *testing.T) {
	doc := &store.Document{
		ID:    "doc-1",
		Path:  "docs/intro.md",
		URI:   "https://github.com/acme/widgets/blob/main/docs/intro.md",
		Title: "Introduction",
	}
	drafts := []*chunk.ChunkDraft{
		{ChunkType: chunk.ChunkTypeDoc, Content: "first section", LineStart: 1, LineEnd: 4},
		{ChunkType: chunk.ChunkTypeDoc, Content: "second section", LineStart: 5, LineEnd: 9},
	}

	chunks := buildDocumentChunks(doc, drafts)
	require.Len(t, chunks, 2)

	for i, c := range chunks {
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, i, c.Position)
		assert.Equal(t, doc.Path, c.DocPath)
		assert.Equal(t, doc.URI, c.DocURI)
		assert.Equal(t, doc.Title, c.DocTitle)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.ChunkSHA)
	}
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestChunkID_StableAndDistinct(t *testing.T) {
	a := chunkID("doc-1", 0, "hello")
	b := chunkID("doc-1", 0, "hello")
	c := chunkID("doc-1", 1, "hello")
	d := chunkID("doc-2", 0, "hello")

	assert.Equal(t, a, b, "same inputs must hash identically")
	assert.NotEqual(t, a, c, "position changes the id")
	assert.NotEqual(t, a, d, "document changes the id")
	assert.Len(t, a, 16)
}
