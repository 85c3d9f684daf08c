package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/embed"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/search"
	"github.com/go-librarian/librarian/internal/store"
)

type searchOptions struct {
	library string
	mode    string
	version string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search one library with hybrid word+vector search",
		Long: `Search a single library, combining full-text and vector search with
reciprocal-rank fusion (mode "hybrid", the default). Pass --mode word
or --mode vector to run just one strategy.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.library, "library", "", "Library ID to search (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", "hybrid", "Search mode: word, vector, or hybrid")
	cmd.Flags().StringVar(&opts.version, "version", "", "Version label to scope the search to (default: all versions)")
	cmd.Flags().Bool("json", false, "Output as structured JSON")
	_ = cmd.MarkFlagRequired("library")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	src, err := resolveSource(ctx, idx, opts.library)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	results, err := searchLibrary(ctx, cfg, src, query, opts.mode, opts.version)
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		items := make([]any, 0, len(results))
		for _, r := range results {
			items = append(items, resultToItemJSON(r))
		}
		return writeJSON(cmd, items, map[string]any{"library": src.ID, "mode": opts.mode})
	}

	return printResults(output.New(cmd.OutOrStdout()), query, results)
}

// searchLibrary opens a library's text/vector indexes and embedder,
// wires them into a search.Engine, and runs one query. When version
// is non-empty, results whose document isn't tagged with that
// version label are dropped; the engine itself searches the whole
// library regardless of version, since chunks_fts/vectors_vec carry
// no version column of their own.
func searchLibrary(ctx context.Context, cfg *config.Config, src *store.Source, query, mode, version string) ([]*search.Result, error) {
	lib, err := openLibrary(src.ID)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	defer func() { _ = lib.Close() }()

	embedder, err := buildEmbedder(ctx, cfg, "")
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	modelURI := embedder.ModelName()
	vectors, err := loadVectorStore(src.ID, modelURI, embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	defer func() { _ = vectors.Close() }()

	engine := search.NewEngine(lib, lib, vectors, embed.NewQueryAdapter(embedder), src.ID)
	if metrics, closeMetrics, metricsErr := openMetrics(); metricsErr == nil {
		engine.SetMetrics(metrics)
		defer func() { _ = closeMetrics() }()
	}

	results, err := engine.Search(ctx, query, search.Options{
		Mode:     search.Mode(mode),
		ModelURI: modelURI,
	})
	if err != nil || version == "" {
		return results, err
	}

	filtered := results[:0]
	for _, r := range results {
		doc, err := lib.GetDocument(ctx, r.DocumentID)
		if err != nil || doc.VersionLabel != version {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func resultToItemJSON(r *search.Result) map[string]any {
	return map[string]any{
		"chunk_id":     r.ChunkID,
		"document_id":  r.DocumentID,
		"title":        r.Title,
		"path":         r.Path,
		"uri":          r.URI,
		"source":       r.SourceName,
		"context_path": r.ContextPath,
		"slice":        r.Slice,
		"preview":      r.Preview,
		"tokens":       r.TokenCount,
		"score":        r.Score,
		"confidence":   r.Confidence,
	}
}

func printResults(out *output.Writer, query string, results []*search.Result) error {
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()
	for i, r := range results {
		location := r.Path
		if r.Slice != "" {
			location = fmt.Sprintf("%s:%s", r.Path, r.Slice)
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, location, r.Score)
		if r.ContextPath != "" {
			out.Status("", "   "+r.ContextPath)
		}
		for _, line := range strings.Split(r.Preview, "\n") {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}
