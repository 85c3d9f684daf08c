package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/embed"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
	"github.com/go-librarian/librarian/internal/telemetry"
)

// statusTelemetryWindow is how far back query-type counts are summed
// for the "queries (30d)" status line.
const statusTelemetryWindow = 30 * 24 * time.Hour

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show chunk/vector counts and last sync time per library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
	cmd.Flags().Bool("json", false, "Output as structured JSON")
	return cmd
}

func runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()

	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	sources, err := idx.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	items := make([]any, 0, len(sources))
	out := output.New(cmd.OutOrStdout())

	if len(sources) == 0 && !jsonOut {
		out.Status("", "No libraries configured. Run 'librarian add <repo|url>' first.")
		return nil
	}

	for _, src := range sources {
		item, err := sourceStatus(ctx, cfg, src)
		if err != nil {
			out.Errorf("%s: %v", src.ID, err)
			items = append(items, map[string]any{"source": src.ID, "error": err.Error()})
			continue
		}
		items = append(items, item)
		if !jsonOut {
			printSourceStatus(out, src, item)
		}
	}

	meta := map[string]any{"count": len(sources)}
	if querySummary, err := searchTelemetrySummary(); err != nil {
		out.Warningf("telemetry unavailable: %v", err)
	} else {
		meta["queries"] = querySummary
		if !jsonOut {
			printTelemetrySummary(out, querySummary)
		}
	}

	if jsonOut {
		return writeJSON(cmd, items, meta)
	}
	return nil
}

// searchTelemetrySummary reads persisted per-library search telemetry
// (query-type counts, top terms, zero-result queries) recorded by
// search.Engine across every prior CLI invocation.
func searchTelemetrySummary() (map[string]any, error) {
	metricsStore, closeStore, err := openMetricsStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeStore() }()

	now := time.Now().UTC()
	from := now.Add(-statusTelemetryWindow).Format("2006-01-02")
	to := now.Format("2006-01-02")

	typeCounts, err := metricsStore.GetQueryTypeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("query type counts: %w", err)
	}
	topTerms, err := metricsStore.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("top terms: %w", err)
	}
	zeroResults, err := metricsStore.GetZeroResultQueries(5)
	if err != nil {
		return nil, fmt.Errorf("zero-result queries: %w", err)
	}

	terms := make([]string, 0, len(topTerms))
	for _, t := range topTerms {
		terms = append(terms, t.Term)
	}

	return map[string]any{
		"lexical":            typeCounts[telemetry.QueryTypeLexical],
		"semantic":           typeCounts[telemetry.QueryTypeSemantic],
		"mixed":              typeCounts[telemetry.QueryTypeMixed],
		"top_terms":          terms,
		"zero_result_recent": zeroResults,
	}, nil
}

func printTelemetrySummary(out *output.Writer, summary map[string]any) {
	total := summary["lexical"].(int64) + summary["semantic"].(int64) + summary["mixed"].(int64)
	if total == 0 {
		return
	}
	out.Statusf("", "queries (30d): %v lexical, %v semantic, %v mixed", summary["lexical"], summary["semantic"], summary["mixed"])
	if terms, ok := summary["top_terms"].([]string); ok && len(terms) > 0 {
		out.Statusf("", "top terms: %s", strings.Join(terms, ", "))
	}
	out.Newline()
}

// sourceStatus opens a library's indexes just long enough to read
// their sizes; it never spins up an embedder, so it stays cheap even
// when Ollama is offline.
func sourceStatus(ctx context.Context, cfg *config.Config, src *store.Source) (map[string]any, error) {
	lib, err := openLibrary(src.ID)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	defer func() { _ = lib.Close() }()

	modelURI := cfg.Models.Embed
	if modelURI == "" {
		modelURI = string(embed.ProviderOllama)
	}
	withVector, withoutVector, err := lib.GetEmbeddingStats(ctx, modelURI)
	if err != nil {
		return nil, fmt.Errorf("embedding stats: %w", err)
	}

	textStats, err := lib.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("text stats: %w", err)
	}

	return map[string]any{
		"source":          src.ID,
		"kind":            string(src.Kind),
		"last_sync_at":    src.LastSyncAt,
		"last_error":      src.LastError,
		"chunks":          textStats.ChunkCount,
		"with_vector":     withVector,
		"without_vector":  withoutVector,
		"embed_model_uri": modelURI,
	}, nil
}

func printSourceStatus(out *output.Writer, src *store.Source, item map[string]any) {
	out.Statusf("", "%s (%s)", src.ID, src.Kind)
	out.Statusf("", "   chunks:  %v", item["chunks"])
	out.Statusf("", "   vectors: %v with, %v without (%s)", item["with_vector"], item["without_vector"], item["embed_model_uri"])
	if src.LastSyncAt.IsZero() {
		out.Status("", "   last sync: never")
	} else {
		out.Statusf("", "   last sync: %s", src.LastSyncAt.Format("2006-01-02 15:04:05"))
	}
	if src.LastError != "" {
		out.Warningf("   last error: %s", src.LastError)
	}
	out.Newline()
}
