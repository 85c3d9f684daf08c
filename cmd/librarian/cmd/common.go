package cmd

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/chunk"
	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/embed"
	"github.com/go-librarian/librarian/internal/ingest"
	"github.com/go-librarian/librarian/internal/store"
	"github.com/go-librarian/librarian/internal/telemetry"
)

// jsonEnvelope is the shape every command's --json output takes, per
// spec §6: "items[] and meta".
type jsonEnvelope struct {
	Items []any          `json:"items"`
	Meta  map[string]any `json:"meta"`
}

func writeJSON(cmd *cobra.Command, items []any, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(jsonEnvelope{Items: items, Meta: meta})
}

// openIndex opens the shared index DB, creating its directory if needed.
func openIndex() (*store.SQLiteIndexStore, error) {
	path := config.GetIndexDBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return store.OpenSQLiteIndexStore(path)
}

// libraryDBPath returns the per-library database path for a source ID.
func libraryDBPath(sourceID string) string {
	return filepath.Join(config.GetLibraryDBDir(), sourceID+".db")
}

// openLibrary opens (creating the directory if needed) the library
// database backing sourceID.
func openLibrary(sourceID string) (store.LibraryStore, error) {
	path := libraryDBPath(sourceID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	return store.OpenSQLiteLibraryStore(path)
}

// newIngestor wires an ingest.Ingestor with the config-tuned chunkers
// and GitHub token, matching the dependencies ingest.Dependencies needs.
func newIngestor(idx store.IndexStore, cfg *config.Config, concurrency int) *ingest.Ingestor {
	deps := ingest.Dependencies{
		Index:           idx,
		OpenLibrary:     func(path string) (store.LibraryStore, error) { return store.OpenSQLiteLibraryStore(path) },
		CodeChunker:     chunk.NewCodeChunker(),
		MarkdownChunker: chunk.NewMarkdownChunker(),
		MaxWorkers:      concurrency,
		GitHubToken:     cfg.GitHub.Token,
	}
	return ingest.New(deps)
}

// buildEmbedder resolves the embedding provider/model from config,
// falling back to the static fallback embedder when model is "static".
func buildEmbedder(ctx context.Context, cfg *config.Config, modelOverride string) (embed.Embedder, error) {
	model := cfg.Models.Embed
	if modelOverride != "" {
		model = modelOverride
	}
	provider := embed.ParseProvider(model)
	return embed.NewEmbedder(ctx, provider, model)
}

// vectorStorePath names the per-model HNSW graph file for a library,
// keyed by a hash of the model URI so switching models never collides.
func vectorStorePath(sourceID, modelURI string) string {
	sum := sha256.Sum256([]byte(modelURI))
	return filepath.Join(config.GetLibraryDBDir(), sourceID+".vectors."+hex.EncodeToString(sum[:])[:16]+".hnsw")
}

// loadVectorStore opens (or creates empty) the vector store for a
// library/model pair, loading persisted vectors from disk if present.
func loadVectorStore(sourceID, modelURI string, dimensions int) (store.VectorStore, error) {
	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	path := vectorStorePath(sourceID, modelURI)
	if _, statErr := os.Stat(path); statErr == nil {
		if err := vs.Load(path); err != nil {
			return nil, fmt.Errorf("load vector store: %w", err)
		}
	}
	return vs, nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// slugify turns an arbitrary name into a stable source ID: lowercased,
// non-alphanumerics collapsed to a single hyphen, trimmed.
func slugify(name string) string {
	s := strings.ToLower(name)
	s = slugInvalid.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "source"
	}
	return s
}

// removeLibraryFiles deletes a library's database and any vector
// store files left beside it. Best-effort: failures are ignored since
// the source row is already gone from the index.
func removeLibraryFiles(sourceID string) {
	_ = os.Remove(libraryDBPath(sourceID))
	matches, _ := filepath.Glob(filepath.Join(config.GetLibraryDBDir(), sourceID+".vectors.*.hnsw"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// openMetricsStore opens (creating if needed) the shared query-telemetry
// database and returns its persistence layer plus a close func that
// releases the underlying connection.
func openMetricsStore() (telemetry.QueryMetricsStore, func() error, error) {
	path := filepath.Join(config.GetCacheDir(), "telemetry.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create telemetry dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open telemetry store: %w", err)
	}
	return metricsStore, db.Close, nil
}

// openMetrics builds a query metrics collector over the shared
// telemetry database, returning a close func that flushes it and
// releases the underlying connection. The returned metrics is safe to
// pass to search.Engine.SetMetrics even when callers skip closing it
// promptly, since Record only ever touches in-memory state.
func openMetrics() (*telemetry.QueryMetrics, func() error, error) {
	metricsStore, closeStore, err := openMetricsStore()
	if err != nil {
		return nil, nil, err
	}
	metrics := telemetry.NewQueryMetrics(metricsStore)
	closeFn := func() error {
		err := metrics.Close()
		if cerr := closeStore(); err == nil {
			err = cerr
		}
		return err
	}
	return metrics, closeFn, nil
}

// resolveSource looks up a source by ID, returning a helpful error
// listing known sources when it's not found.
func resolveSource(ctx context.Context, idx store.IndexStore, id string) (*store.Source, error) {
	src, err := idx.GetSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("unknown library %q: %w", id, err)
	}
	return src, nil
}
