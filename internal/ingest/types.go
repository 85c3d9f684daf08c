// Package ingest drives one source's sync from its origin (a GitHub
// repository archive or a crawled website) into its library database:
// it resolves versions, loads files or pages, chunks whatever changed,
// and retires documents the latest run no longer sees.
package ingest

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-librarian/librarian/internal/chunk"
	liberrors "github.com/go-librarian/librarian/internal/errors"
	"github.com/go-librarian/librarian/internal/store"
)

// DefaultMaxWorkers bounds per-source file/page processing concurrency.
const DefaultMaxWorkers = 5

// ProgressFunc reports current/total progress for the file or page
// currently being processed. Implementations must not block on locks
// the caller might be holding.
type ProgressFunc func(current, total int)

// Dependencies are the collaborators an Ingestor needs injected so
// tests can substitute fakes for the store, chunkers, and HTTP client.
type Dependencies struct {
	Index           store.IndexStore
	OpenLibrary     func(path string) (store.LibraryStore, error)
	CodeChunker     chunk.Chunker
	MarkdownChunker chunk.Chunker
	Logger          *slog.Logger
	HTTPClient      *http.Client
	MaxWorkers      int
	// GitHubToken authenticates archive/tag requests, raising the
	// unauthenticated rate limit. Optional.
	GitHubToken string
}

func (d Dependencies) withDefaults() Dependencies {
	if d.MaxWorkers <= 0 {
		d.MaxWorkers = DefaultMaxWorkers
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	return d
}

// Result summarizes one Sync call against a single source.
type Result struct {
	SourceID    string
	Labels      []string // version labels processed this run
	Processed   int       // files or pages successfully evaluated
	Updated     int       // documents whose content changed and were re-chunked
	Unchanged   int       // documents seen again with identical content
	Skipped     int       // files/pages excluded by ingest mode or content filters
	Failed      int       // individual file/page failures, isolated per item
	Deactivated int       // documents no longer present, marked inactive
}

// Ingestor runs sync operations for configured sources.
type Ingestor struct {
	deps Dependencies

	mu       sync.Mutex
	breakers map[string]*liberrors.CircuitBreaker
}

// New builds an Ingestor, filling in default workers/logger/client.
func New(deps Dependencies) *Ingestor {
	return &Ingestor{deps: deps.withDefaults()}
}

// Close releases chunker resources (e.g. the code chunker's tree-sitter
// parsers) the Ingestor was constructed with.
func (ig *Ingestor) Close() {
	if closer, ok := ig.deps.CodeChunker.(interface{ Close() }); ok {
		closer.Close()
	}
	if closer, ok := ig.deps.MarkdownChunker.(interface{ Close() }); ok {
		closer.Close()
	}
}

// noopProgress discards progress reports when a caller passes nil.
func noopProgress(current, total int) {}

func progressOrNoop(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return noopProgress
	}
	return fn
}
