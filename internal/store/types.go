// Package store provides the two persistence scopes described by the
// system: a single index database tracking configured sources and their
// synced versions, and one library database per source holding documents,
// chunks, their full-text and vector indexes, and (for web sources) crawl
// frontier state.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceKind identifies where a source's content originates.
type SourceKind string

const (
	SourceKindGitHub SourceKind = "github"
	SourceKindWeb    SourceKind = "web"
)

// IngestMode controls which files of a GitHub archive are considered.
type IngestMode string

const (
	IngestModeDocsOnly IngestMode = "docs_only"
	IngestModeFull     IngestMode = "full"
)

// ContentType classifies a document's chunking strategy.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeCode     ContentType = "code"
)

// State keys for the per-library key-value state table.
const (
	// StateKeyEmbedDimension stores the dimension of the vector table currently on disk.
	StateKeyEmbedDimension = "embed_dimension"
	// StateKeyEmbedModelURI stores the model URI vectors were built with.
	StateKeyEmbedModelURI = "embed_model_uri"
	// StateKeyCheckpointStage stores the current ingest stage for resume: "fetch"|"chunk"|"embed"|"done".
	StateKeyCheckpointStage = "checkpoint_stage"
	// StateKeyCheckpointCursor stores an opaque cursor (file index, crawl frontier position) for resume.
	StateKeyCheckpointCursor = "checkpoint_cursor"
	// StateKeyCheckpointTimestamp stores when the checkpoint was last written.
	StateKeyCheckpointTimestamp = "checkpoint_timestamp"
)

// CurrentLibrarySchemaVersion is the schema version library databases migrate to.
const CurrentLibrarySchemaVersion = 1

// CurrentIndexSchemaVersion is the schema version the index database migrates to.
const CurrentIndexSchemaVersion = 1

// Source is a configured documentation origin: one GitHub repo or one
// crawlable website. Tracked in the index database.
type Source struct {
	ID           string // stable slug, e.g. "golang-go"
	Kind         SourceKind
	DisplayName  string
	LibraryDBPath string // path to this source's library database file

	// GitHub-specific fields (Kind == SourceKindGitHub)
	Repo       string // "owner/name"
	Ref        string // branch/tag to track, e.g. "main"
	DocsPath   string // subtree to ingest, e.g. "docs/"
	IngestMode IngestMode
	VersionLabel string // e.g. "latest", "v1.22"

	// Web-specific fields (Kind == SourceKindWeb)
	RootURL     string
	AllowPaths  []string
	DenyPaths   []string
	MaxDepth    int
	MaxPages    int

	// Sync bookkeeping
	LastSyncAt  time.Time
	LastCommit  string // GitHub: last-seen commit SHA
	LastETag    string // conditional-GET cache validator
	LastError   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceVersion records one successful sync of a Source at a point in time.
type SourceVersion struct {
	SourceID     string
	VersionLabel string
	Ref          string
	CommitSHA    string
	TreeHash     string
	ETag         string
	SyncedAt     time.Time
}

// IndexStore persists Source and SourceVersion rows in the top-level index database.
type IndexStore interface {
	UpsertSource(ctx context.Context, src *Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id string) error
	RecordSyncResult(ctx context.Context, id string, syncedAt time.Time, commit, etag, syncErr string) error

	UpsertSourceVersion(ctx context.Context, v *SourceVersion) error
	GetSourceVersion(ctx context.Context, sourceID, versionLabel string) (*SourceVersion, error)
	ListSourceVersions(ctx context.Context, sourceID string) ([]*SourceVersion, error)

	Close() error
}

// DocumentBlob is content-addressed raw bytes shared by any Document whose
// hash matches, so re-syncing unchanged files never duplicates storage.
type DocumentBlob struct {
	Hash      string // SHA-256 of Content
	Content   []byte
	CreatedAt time.Time
}

// Document is one normalized file within a library: a Markdown page or a
// source file, unique per (path, version_label).
type Document struct {
	ID           string // content-addressable: sha256(sourceID + ":" + path + ":" + versionLabel)
	SourceID     string
	Path         string // repo-relative path, or crawled page path
	VersionLabel string
	URI          string // canonical URL/location for citing this document
	Title        string
	Hash         string // DocumentBlob hash backing this document's content
	ContentType  ContentType
	Active       bool // false once superseded by a newer sync and not yet GC'd
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a retrievable unit of a Document's content.
type Chunk struct {
	ID              string // content-addressable, see chunk.symbolID / chunk IDs
	DocumentID      string
	Position        int // 0-indexed order within the document
	ChunkType       string // "code" | "doc" | "doc_inline" (chunk.ChunkType values, stored as string)
	Language        string
	Breadcrumb      string
	Content         string
	Preview         string
	LineStart       int
	LineEnd         int
	CharStart       int
	CharEnd         int
	TokenCount      int
	SymbolName      string
	SymbolType      string
	SymbolID        string
	SymbolPartIndex int
	SymbolPartCount int
	ChunkSHA        string // sha256(Content), used for change detection across re-ingests

	// Denormalized from the parent Document so search results need no join.
	DocPath  string
	DocURI   string
	DocTitle string

	CreatedAt time.Time
}

// VectorRow is one embedding vector attached to a Chunk for a specific
// embedding model, kept separate from Chunk so a library can be re-embedded
// with a new model without touching chunk rows.
type VectorRow struct {
	ChunkID   string
	ModelURI  string
	Vector    []float32
	CreatedAt time.Time
}

// CrawlState tracks a CrawlPage's position in the fetch pipeline.
type CrawlState string

const (
	CrawlStatePending  CrawlState = "pending"
	CrawlStateFetching CrawlState = "fetching"
	CrawlStateDone     CrawlState = "done"
	CrawlStateFailed   CrawlState = "failed"
)

// CrawlPage is one URL discovered while crawling a web Source, tracked so a
// crawl can resume from where it left off.
type CrawlPage struct {
	SourceID      string
	URL           string
	NormalizedURL string // unique per source: scheme+host+path with trailing slash/fragment/query normalization
	Depth         int
	State         CrawlState
	LastError     string
	DiscoveredAt  time.Time
	FetchedAt     time.Time
}

// LibraryStore persists Documents, Chunks, their blobs, and crawl frontier
// state for one source's library database. One LibraryStore instance wraps
// one SQLite file holding documents, chunks, the chunks_fts index, vector
// presence rows and crawl state; the vectors themselves live in a separate
// VectorStore file, exposed through the separate interface below.
type LibraryStore interface {
	// TextIndex is embedded so one LibraryStore value can be handed to
	// search.NewEngine as both its text and library dependency: the
	// chunks_fts table and the documents/chunks tables live in the same
	// SQLite file.
	TextIndex

	// UpsertDocument inserts or updates a Document, writing its DocumentBlob
	// if the content hash hasn't been seen before. Returns whether the
	// content actually changed so callers can skip re-chunking unchanged
	// documents.
	UpsertDocument(ctx context.Context, doc *Document, content []byte) (changed bool, err error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentByPath(ctx context.Context, sourceID, path, versionLabel string) (*Document, error)
	ListDocuments(ctx context.Context, sourceID, versionLabel string) ([]*Document, error)
	// FindDocumentByLocator returns the first active document whose path
	// or URI exactly matches locator, regardless of version label, for
	// the CLI's "get <path|uri>" lookup.
	FindDocumentByLocator(ctx context.Context, locator string) (*Document, error)
	GetBlob(ctx context.Context, hash string) ([]byte, error)
	SetDocumentActive(ctx context.Context, id string, active bool) error
	DeleteInactiveDocuments(ctx context.Context, sourceID, versionLabel string, olderThan time.Time) (int, error)

	// InsertChunks replaces every chunk belonging to a document in one
	// transaction (delete-then-insert, matching the FTS rebuild pattern).
	InsertChunks(ctx context.Context, documentID string, chunks []*Chunk) error
	DeleteChunksForDocument(ctx context.Context, documentID string) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunksForDocument(ctx context.Context, documentID string) ([]*Chunk, error)

	// Embeddings
	SaveVectors(ctx context.Context, rows []*VectorRow) error
	ClearVectors(ctx context.Context, modelURI string) error
	GetEmbeddingStats(ctx context.Context, modelURI string) (withVector, withoutVector int, err error)
	// ChunksNeedingEmbedding returns up to limit chunks (0 means no limit)
	// that have no vector_presence row for modelURI yet, ordered by
	// document then position so a batch covers whole documents first.
	ChunksNeedingEmbedding(ctx context.Context, modelURI string, limit int) ([]*Chunk, error)

	// Crawl frontier (web sources only; no-op tables for github sources)
	UpsertCrawlPage(ctx context.Context, page *CrawlPage) error
	GetCrawlPage(ctx context.Context, sourceID, normalizedURL string) (*CrawlPage, error)
	UpdateCrawlPageState(ctx context.Context, sourceID, normalizedURL string, state CrawlState, errMsg string) error
	PendingCrawlPages(ctx context.Context, sourceID string, limit int) ([]*CrawlPage, error)

	// State (key-value, per-library: embed dimension/model, checkpoints)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// SearchHit is a single FTS match returned by a TextIndex search.
type SearchHit struct {
	ChunkID string
	Score   float64 // 1/(1+|bm25|), higher is better
}

// TextIndex provides full-text search over chunk content via the library
// database's chunks_fts virtual table.
type TextIndex interface {
	// Index (re)indexes the given chunks. FTS rows are kept in lockstep
	// with the chunks table by the schema's triggers; this call exists for
	// index implementations that don't rely on triggers (e.g. tests using
	// an in-memory stand-in).
	Index(ctx context.Context, chunks []*Chunk) error
	// Search runs query verbatim first; on an FTS5 syntax error it retries
	// once with a normalized (letters/digits only) form of query before
	// giving up and returning an empty result.
	Search(ctx context.Context, query string, limit int) ([]*SearchHit, error)
	Delete(ctx context.Context, chunkIDs []string) error
	Stats(ctx context.Context) (*IndexStats, error)
	Close() error
}

// IndexStats summarizes a TextIndex's contents.
type IndexStats struct {
	ChunkCount int
}

// VectorResult is a single nearest-neighbor match.
type VectorResult struct {
	ChunkID  string
	Distance float32 // raw distance, metric-dependent
	Score    float32 // 1 - distance/2 for "cos", 1/(1+distance) for "l2"
}

// VectorStoreConfig configures a library's per-model HNSW graph.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" | "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns the library default: cosine distance
// over a 16-connection graph, tuned for the embedding dimensions in use.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       20,
	}
}

// VectorStore provides nearest-neighbor search over one library's chunk
// embeddings for a single embedding model. A dimension change forces the
// caller to drop and rebuild a fresh VectorStore (see ErrDimensionMismatch).
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates the embedding to add/search doesn't match
// the library's current vector table dimension; the caller should drop and
// rebuild the vector table for the new model.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index built for %d dims, got %d (rebuild required)", e.Expected, e.Got)
}
