package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/embed"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
)

type embedOptions struct {
	source string
	model  string
	force  bool
}

func newEmbedCmd() *cobra.Command {
	var opts embedOptions

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute vector embeddings for ingested chunks",
		Long: `Embed every chunk of one or all libraries that doesn't already
carry a vector for the configured model, writing the result into
that library's HNSW vector store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmbed(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Only embed this library ID (default: all)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model URI override (default: config models.embed)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed chunks that already have a vector")
	cmd.Flags().Bool("json", false, "Output as structured JSON")

	return cmd
}

func runEmbed(cmd *cobra.Command, opts embedOptions) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	sources, err := selectSources(ctx, idx, opts.source)
	if err != nil {
		return err
	}

	items := make([]any, 0, len(sources))
	for _, src := range sources {
		if err := runEmbedForSource(ctx, out, cfg, src, opts.model, opts.force); err != nil {
			out.Errorf("%s: %v", src.ID, err)
			items = append(items, map[string]any{"source": src.ID, "error": err.Error()})
			continue
		}
		items = append(items, map[string]any{"source": src.ID, "status": "ok"})
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, items, map[string]any{"count": len(items)})
	}
	return nil
}

// runEmbedForSource embeds every not-yet-vectored chunk of one
// library, persisting both the vector store graph and the
// vector_presence bookkeeping row per chunk.
func runEmbedForSource(ctx context.Context, out *output.Writer, cfg *config.Config, src *store.Source, modelOverride string, force bool) error {
	lib, err := openLibrary(src.ID)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer func() { _ = lib.Close() }()

	embedder, err := buildEmbedder(ctx, cfg, modelOverride)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	modelURI := embedder.ModelName()
	if rebuilt, err := rebuildOnDimensionMismatch(ctx, lib, src.ID, modelURI, embedder.Dimensions()); err != nil {
		return fmt.Errorf("check embed dimension: %w", err)
	} else if rebuilt {
		out.Warningf("%s: embedding dimension changed for %s, rebuilding vector table", src.ID, modelURI)
		force = true
	}

	if force {
		if err := lib.ClearVectors(ctx, modelURI); err != nil {
			return fmt.Errorf("clear vectors: %w", err)
		}
	}

	chunks, err := lib.ChunksNeedingEmbedding(ctx, modelURI, 0)
	if err != nil {
		return fmt.Errorf("list chunks needing embedding: %w", err)
	}
	if len(chunks) == 0 {
		out.Status("", fmt.Sprintf("%s: nothing to embed", src.ID))
		return nil
	}

	vectors, err := loadVectorStore(src.ID, modelURI, embedder.Dimensions())
	if err != nil {
		return err
	}
	defer func() { _ = vectors.Close() }()

	const batchSize = embed.DefaultBatchSize
	embedded := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
			ids[i] = c.ID
		}

		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}

		if err := vectors.Add(ctx, ids, vecs); err != nil {
			return fmt.Errorf("add vectors: %w", err)
		}

		rows := make([]*store.VectorRow, len(ids))
		for i, id := range ids {
			rows[i] = &store.VectorRow{ChunkID: id, ModelURI: modelURI, Vector: vecs[i]}
		}
		if err := lib.SaveVectors(ctx, rows); err != nil {
			return fmt.Errorf("save vector presence: %w", err)
		}

		embedded += len(batch)
		out.Progress(embedded, len(chunks), src.ID)
	}
	out.ProgressDone()

	if err := vectors.Save(vectorStorePath(src.ID, modelURI)); err != nil {
		return fmt.Errorf("save vector store: %w", err)
	}
	if err := lib.SetState(ctx, store.StateKeyEmbedModelURI, modelURI); err != nil {
		out.Warningf("%s: record embed model failed: %v", src.ID, err)
	}
	if err := lib.SetState(ctx, store.StateKeyEmbedDimension, strconv.Itoa(embedder.Dimensions())); err != nil {
		out.Warningf("%s: record embed dimension failed: %v", src.ID, err)
	}

	out.Successf("%s: embedded %d chunks with %s", src.ID, embedded, modelURI)
	return nil
}

// rebuildOnDimensionMismatch compares the dimension recorded for this
// library's last successful embed against the embedder about to run.
// A mismatch means the on-disk HNSW vector table (sized for the old
// dimension) can no longer accept new vectors, so it's dropped and
// every chunk is re-embedded from scratch. This only fires when the
// same model URI string is reused across a dimension change (e.g. an
// Ollama model upgrade that changes its output size); distinct model
// URIs already get distinct vector-store files via vectorStorePath's
// model-hash suffix and never hit this path.
func rebuildOnDimensionMismatch(ctx context.Context, lib store.LibraryStore, sourceID, modelURI string, dimensions int) (bool, error) {
	recorded, err := lib.GetState(ctx, store.StateKeyEmbedDimension)
	if err != nil {
		return false, fmt.Errorf("read recorded dimension: %w", err)
	}
	if recorded == "" {
		return false, nil
	}
	recordedDim, err := strconv.Atoi(recorded)
	if err != nil || recordedDim == dimensions {
		return false, nil
	}

	path := vectorStorePath(sourceID, modelURI)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale vector store: %w", err)
	}
	return true, nil
}
