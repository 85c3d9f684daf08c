package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/async"
	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/ingest"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
)

type ingestOptions struct {
	source      string
	embed       bool
	force       bool
	concurrency int
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Sync configured libraries from their origin",
		Long: `Sync one or all configured libraries: download the latest GitHub
archive or crawl the latest website pages, chunk whatever changed,
and retire documents no longer present.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Only ingest this library ID (default: all)")
	cmd.Flags().BoolVar(&opts.embed, "embed", false, "Embed newly ingested chunks afterward")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Bypass unchanged/cached short-circuits")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", ingest.DefaultMaxWorkers, "Per-source file/page processing concurrency")
	cmd.Flags().Bool("json", false, "Output as structured JSON")

	return cmd
}

func runIngest(cmd *cobra.Command, opts ingestOptions) error {
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

	ig := newIngestor(idx, cfg, opts.concurrency)
	defer ig.Close()

	items := make([]any, 0, len(sources))
	for _, src := range sources {
		progress := async.NewIndexProgress()
		progress.SetStage(async.StageScanning, 0)

		onFileProgress := func(current, total int) {
			progress.SetStage(async.StageIndexing, total)
			progress.UpdateFiles(current)
			progress.SetChunksTotal(total)
			progress.UpdateChunks(current)
			out.Progress(current, total, src.ID)
		}

		result, err := ig.Sync(ctx, src, opts.force, onFileProgress)
		if err != nil {
			progress.SetError(err.Error())
			out.Errorf("%s: %v", src.ID, err)
			items = append(items, map[string]any{"source": src.ID, "error": err.Error(), "progress": progress.Snapshot()})
			continue
		}
		out.ProgressDone()
		out.Successf("%s: %d updated, %d unchanged, %d skipped, %d failed, %d deactivated",
			src.ID, result.Updated, result.Unchanged, result.Skipped, result.Failed, result.Deactivated)

		if opts.embed {
			progress.SetStage(async.StageEmbedding, 0)
			if err := runEmbedForSource(ctx, out, cfg, src, "", opts.force); err != nil {
				out.Warningf("%s: embed failed: %v", src.ID, err)
			}
		}
		progress.SetReady()

		item := resultToItem(result)
		item["progress"] = progress.Snapshot()
		items = append(items, item)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, items, map[string]any{"count": len(items)})
	}
	return nil
}

// selectSources returns every configured source, or just the one
// named by id when id is non-empty.
func selectSources(ctx context.Context, idx store.IndexStore, id string) ([]*store.Source, error) {
	if id != "" {
		src, err := resolveSource(ctx, idx, id)
		if err != nil {
			return nil, err
		}
		return []*store.Source{src}, nil
	}
	return idx.ListSources(ctx)
}

func resultToItem(r *ingest.Result) map[string]any {
	return map[string]any{
		"source":      r.SourceID,
		"labels":      r.Labels,
		"processed":   r.Processed,
		"updated":     r.Updated,
		"unchanged":   r.Unchanged,
		"skipped":     r.Skipped,
		"failed":      r.Failed,
		"deactivated": r.Deactivated,
	}
}
