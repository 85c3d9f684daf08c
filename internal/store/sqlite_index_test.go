package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexStore(t *testing.T) *SQLiteIndexStore {
	t.Helper()
	s, err := OpenSQLiteIndexStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteIndexStore_UpsertAndGetSource(t *testing.T) {
	s := newTestIndexStore(t)
	ctx := context.Background()

	src := &Source{
		ID:            "golang-go",
		Kind:          SourceKindGitHub,
		DisplayName:   "Go",
		LibraryDBPath: "/data/golang-go.db",
		Repo:          "golang/go",
		Ref:           "master",
		DocsPath:      "doc/",
		IngestMode:    IngestModeDocsOnly,
		VersionLabel:  "latest",
	}
	require.NoError(t, s.UpsertSource(ctx, src))

	got, err := s.GetSource(ctx, "golang-go")
	require.NoError(t, err)
	assert.Equal(t, "golang/go", got.Repo)
	assert.Equal(t, SourceKindGitHub, got.Kind)
	assert.Equal(t, IngestModeDocsOnly, got.IngestMode)

	src.LastCommit = "abc123"
	require.NoError(t, s.UpsertSource(ctx, src))
	got, err = s.GetSource(ctx, "golang-go")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.LastCommit)
}

func TestSQLiteIndexStore_ListSources(t *testing.T) {
	s := newTestIndexStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSource(ctx, &Source{ID: "a", Kind: SourceKindWeb, RootURL: "https://a.example"}))
	require.NoError(t, s.UpsertSource(ctx, &Source{ID: "b", Kind: SourceKindGitHub, Repo: "x/y"}))

	sources, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
}

func TestSQLiteIndexStore_DeleteSource(t *testing.T) {
	s := newTestIndexStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSource(ctx, &Source{ID: "a", Kind: SourceKindWeb, RootURL: "https://a.example"}))
	require.NoError(t, s.DeleteSource(ctx, "a"))

	_, err := s.GetSource(ctx, "a")
	assert.Error(t, err)
}

func TestSQLiteIndexStore_SourceVersions(t *testing.T) {
	s := newTestIndexStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSourceVersion(ctx, &SourceVersion{
		SourceID: "golang-go", VersionLabel: "latest", CommitSHA: "abc",
	}))
	require.NoError(t, s.UpsertSourceVersion(ctx, &SourceVersion{
		SourceID: "golang-go", VersionLabel: "go1.22", CommitSHA: "def",
	}))

	v, err := s.GetSourceVersion(ctx, "golang-go", "latest")
	require.NoError(t, err)
	assert.Equal(t, "abc", v.CommitSHA)

	versions, err := s.ListSourceVersions(ctx, "golang-go")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestSQLiteIndexStore_RecordSyncResult(t *testing.T) {
	s := newTestIndexStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSource(ctx, &Source{ID: "a", Kind: SourceKindWeb, RootURL: "https://a.example"}))
	now := time.Now().UTC()
	require.NoError(t, s.RecordSyncResult(ctx, "a", now, "", "", "boom"))

	got, err := s.GetSource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "boom", got.LastError)
	assert.False(t, got.LastSyncAt.IsZero())
}
