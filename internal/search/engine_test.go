package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-librarian/librarian/internal/store"
)

// fakeVectorStore is a minimal in-memory store.VectorStore stand-in: it
// returns a fixed, caller-supplied ranking regardless of the query vector,
// which is all the engine's fusion logic needs to be exercised.
type fakeVectorStore struct {
	ranked []string
}

func (f *fakeVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	results := make([]*store.VectorResult, 0, len(f.ranked))
	for i, id := range f.ranked {
		if i >= k {
			break
		}
		results = append(results, &store.VectorResult{ChunkID: id, Score: 1.0 - float32(i)*0.1})
	}
	return results, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorStore) AllIDs() []string                              { return f.ranked }
func (f *fakeVectorStore) Contains(id string) bool                       { return true }
func (f *fakeVectorStore) Count() int                                    { return len(f.ranked) }
func (f *fakeVectorStore) Save(path string) error                        { return nil }
func (f *fakeVectorStore) Load(path string) error                        { return nil }
func (f *fakeVectorStore) Close() error                                  { return nil }

// fakeEmbedder returns a constant vector so tests can exercise the
// vector/hybrid code paths without a real embedding model.
type fakeEmbedder struct {
	dims int
	err  error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func seedLibrary(t *testing.T, s *store.SQLiteLibraryStore, chunks []*store.Chunk) {
	t.Helper()
	ctx := context.Background()
	doc := &store.Document{
		ID: "doc-1", SourceID: "src-1", Path: "guide/search.md",
		VersionLabel: "latest", URI: "https://example.test/guide/search.md",
		Title: "Search guide", ContentType: store.ContentTypeMarkdown, Active: true,
	}
	_, err := s.UpsertDocument(ctx, doc, []byte("search guide content"))
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(ctx, doc.ID, chunks))
}

func newTestEngineStore(t *testing.T) *store.SQLiteLibraryStore {
	t.Helper()
	s, err := store.OpenSQLiteLibraryStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEngine_SearchWord_ReturnsMatchingChunks(t *testing.T) {
	s := newTestEngineStore(t)
	seedLibrary(t, s, []*store.Chunk{
		{DocumentID: "doc-1", Content: "hybrid search uses reciprocal rank fusion", Preview: "hybrid search uses reciprocal rank fusion", DocPath: "guide/search.md", DocTitle: "Search guide", DocURI: "u"},
		{DocumentID: "doc-1", Content: "installing the command line tool", Preview: "installing the command line tool", DocPath: "guide/install.md", DocTitle: "Install guide", DocURI: "u"},
	})

	e := NewEngine(s, s, nil, nil, "golang-go")
	results, err := e.Search(context.Background(), "reciprocal rank fusion", Options{Mode: ModeWord})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Preview, "reciprocal rank fusion")
	assert.Equal(t, "golang-go", results[0].SourceName)
}

func TestEngine_SearchVector_NotReadyWithoutEmbedder(t *testing.T) {
	s := newTestEngineStore(t)
	e := NewEngine(s, s, nil, nil, "golang-go")
	_, err := e.Search(context.Background(), "anything", Options{Mode: ModeVector})
	assert.ErrorIs(t, err, ErrVectorSearchNotReady)
}

func TestEngine_SearchVector_ReturnsRankedChunks(t *testing.T) {
	s := newTestEngineStore(t)
	seedLibrary(t, s, []*store.Chunk{
		{DocumentID: "doc-1", Content: "alpha chunk", Preview: "alpha chunk", DocPath: "a.md", DocTitle: "A", DocURI: "u"},
		{DocumentID: "doc-1", Content: "beta chunk", Preview: "beta chunk", DocPath: "b.md", DocTitle: "B", DocURI: "u"},
	})
	chunks, err := s.GetChunksForDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	vs := &fakeVectorStore{ranked: []string{chunks[1].ID, chunks[0].ID}}
	e := NewEngine(s, s, vs, &fakeEmbedder{dims: 8}, "golang-go")

	results, err := e.Search(context.Background(), "beta", Options{Mode: ModeVector})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunks[1].ID, results[0].ChunkID)
}

func TestEngine_SearchHybrid_FusesTextAndVector(t *testing.T) {
	s := newTestEngineStore(t)
	seedLibrary(t, s, []*store.Chunk{
		{DocumentID: "doc-1", Content: "goroutines and channels for concurrency", Preview: "goroutines and channels for concurrency", DocPath: "concurrency.md", DocTitle: "Concurrency", DocURI: "u"},
		{DocumentID: "doc-1", Content: "error handling conventions", Preview: "error handling conventions", DocPath: "errors.md", DocTitle: "Errors", DocURI: "u"},
	})
	chunks, err := s.GetChunksForDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	vs := &fakeVectorStore{ranked: []string{chunks[0].ID, chunks[1].ID}}
	e := NewEngine(s, s, vs, &fakeEmbedder{dims: 8}, "golang-go")

	results, err := e.Search(context.Background(), "goroutines channels", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, chunks[0].ID, results[0].ChunkID)
	assert.Equal(t, 1.0, results[0].Confidence)
}

func TestEngine_SearchHybrid_RelaxedFallbackWhenNoExactMatch(t *testing.T) {
	s := newTestEngineStore(t)
	seedLibrary(t, s, []*store.Chunk{
		{DocumentID: "doc-1", Content: "configuring the build pipeline", Preview: "configuring the build pipeline", DocPath: "ci.md", DocTitle: "CI", DocURI: "u"},
	})

	e := NewEngine(s, s, nil, nil, "golang-go")
	// No chunk contains both terms verbatim, so the exact AND query
	// returns nothing and the relaxed OR-prefix query should still surface
	// the one chunk sharing a term stem.
	results, err := e.Search(context.Background(), "pipeline zzzznomatch", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "ci.md", results[0].Path)
}

func TestEngine_SearchHybrid_NoResultsWhenNothingMatches(t *testing.T) {
	s := newTestEngineStore(t)
	seedLibrary(t, s, []*store.Chunk{
		{DocumentID: "doc-1", Content: "unrelated content entirely", Preview: "unrelated content entirely", DocPath: "x.md", DocTitle: "X", DocURI: "u"},
	})

	e := NewEngine(s, s, nil, nil, "golang-go")
	results, err := e.Search(context.Background(), "zzz yyy xxx", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIsStrongSignal(t *testing.T) {
	assert.False(t, isStrongSignal(nil))
	assert.False(t, isStrongSignal([]*store.SearchHit{{ChunkID: "a", Score: 0.5}}))
	assert.True(t, isStrongSignal([]*store.SearchHit{{ChunkID: "a", Score: 0.9}}))
	assert.True(t, isStrongSignal([]*store.SearchHit{{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.7}}))
	assert.False(t, isStrongSignal([]*store.SearchHit{{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}}))
}

func TestKeywordBoost_WeightsPathOverPreview(t *testing.T) {
	pathHit := &store.Chunk{DocPath: "routing/middleware.md", DocTitle: "x", Breadcrumb: "x", Preview: "x"}
	previewHit := &store.Chunk{DocPath: "x", DocTitle: "x", Breadcrumb: "x", Preview: "uses middleware for routing"}

	pathBoost := keywordBoost(pathHit, []string{"middleware"})
	previewBoost := keywordBoost(previewHit, []string{"middleware"})
	assert.Greater(t, pathBoost, previewBoost)
	assert.LessOrEqual(t, pathBoost, KeywordBoostMax)
}
