package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownChunker_Chunk_HeaderBasedSplitting(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := `# Title

Welcome to the project.

## Section 1

Content for section 1.

## Section 2

Content for section 2.
`

	file := &FileInput{
		Path:          "README.md",
		Content:       []byte(content),
		Language:      "markdown",
		DocumentTitle: "Title",
	}

	chunks, err := chunker.Chunk(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, chunks, 3, "expected 3 chunks for 3 sections")

	assert.Equal(t, "Title", chunks[0].Breadcrumb)
	assert.Contains(t, chunks[0].Content, "Welcome to the project")

	assert.Equal(t, "Title > Section 1", chunks[1].Breadcrumb)
	assert.Contains(t, chunks[1].Content, "Content for section 1")

	assert.Equal(t, "Title > Section 2", chunks[2].Breadcrumb)
	assert.Contains(t, chunks[2].Content, "Content for section 2")

	for _, c := range chunks {
		assert.Equal(t, ChunkTypeDoc, c.ChunkType)
	}
}

func TestMarkdownChunker_Chunk_NestedHeadingsBuildBreadcrumb(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := `# Guide

## Setup

### Install deps

Run the installer.

### Configure

Edit the config file.
`

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:          "guide.md",
		Content:       []byte(content),
		DocumentTitle: "Guide",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Guide > Setup > Install deps", chunks[0].Breadcrumb)
	assert.Equal(t, "Guide > Setup > Configure", chunks[1].Breadcrumb)
}

func TestMarkdownChunker_Chunk_ShortFileWithCodeFenceIsSingleChunk(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := "Install with:\n\n```sh\nnpm install librarian\n```\n"

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:          "install.md",
		Content:       []byte(content),
		DocumentTitle: "install",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "npm install librarian")
}

func TestMarkdownChunker_Chunk_NoHeadingsFallsBackToParagraphs(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := "Just a plain paragraph of prose with no headings at all in it."

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "notes.md",
		Content: []byte(content),
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Just a plain paragraph")
}

func TestMarkdownChunker_Chunk_SplitsOversizedSection(t *testing.T) {
	chunker := NewMarkdownChunker()

	var body strings.Builder
	body.WriteString("# Big\n\n")
	for i := 0; i < 250; i++ {
		body.WriteString("This is a sentence that takes up a bit of space in the document.\n\n")
	}

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:          "big.md",
		Content:       []byte(body.String()),
		DocumentTitle: "Big",
	})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "an oversized section should be split")
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, MarkdownMaxTokens)
	}
}

func TestMarkdownChunker_Chunk_DoesNotMergeAcrossSections(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := `# Doc

## A

short.

## B

also short.
`

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:          "doc.md",
		Content:       []byte(content),
		DocumentTitle: "Doc",
	})

	require.NoError(t, err)
	// Distinct breadcrumbs ("Doc > A" vs "Doc > B") never merge even though
	// both sections are tiny — merging only fires across split parts of
	// the same section.
	require.Len(t, chunks, 2)
}

func TestMarkdownChunker_Chunk_EmptyFile_ReturnsNoChunks(t *testing.T) {
	chunker := NewMarkdownChunker()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "empty.md",
		Content: []byte("   \n\n  "),
	})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}
