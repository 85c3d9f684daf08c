package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/ingest"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
)

type seedOptions struct {
	files       []string
	urls        []string
	noIngest    bool
	noEmbed     bool
	concurrency int
}

func newSeedCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-register libraries from a list of repos/URLs",
		Long: `Register many libraries at once: each --file names a text file of
one "owner/repo" or URL per line (blank lines and #-comments are
skipped), and each --url/--repo-style argument adds one more origin
directly. By default every newly registered library is ingested and
embedded immediately; --no-ingest/--no-embed skip those steps so you
can review what was registered first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.urls = append(opts.urls, args...)
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.files, "file", nil, "Text file of repos/URLs, one per line (repeatable)")
	cmd.Flags().StringSliceVar(&opts.urls, "url", nil, "A repo (\"owner/name\") or URL to register (repeatable)")
	cmd.Flags().BoolVar(&opts.noIngest, "no-ingest", false, "Register only; don't sync")
	cmd.Flags().BoolVar(&opts.noEmbed, "no-embed", false, "Don't embed after syncing")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", ingest.DefaultMaxWorkers, "Per-source ingest concurrency")
	cmd.Flags().Bool("json", false, "Output as structured JSON")

	return cmd
}

func runSeed(cmd *cobra.Command, opts seedOptions) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	origins, err := collectSeedOrigins(opts)
	if err != nil {
		return err
	}
	if len(origins) == 0 {
		return fmt.Errorf("nothing to seed: pass --file or --url/positional arguments")
	}

	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	items := make([]any, 0, len(origins))
	for _, origin := range origins {
		src := buildSource(origin, sourceAddOptions{})
		if err := idx.UpsertSource(ctx, src); err != nil {
			out.Errorf("%s: register failed: %v", origin, err)
			items = append(items, map[string]any{"origin": origin, "error": err.Error()})
			continue
		}
		out.Successf("registered %q as %q", origin, src.ID)
		item := map[string]any{"origin": origin, "source": src.ID}

		if !opts.noIngest {
			seedIngestOne(ctx, out, idx, cfg, src, opts, item)
		}
		items = append(items, item)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, items, map[string]any{"count": len(items)})
	}
	return nil
}

// seedIngestOne syncs (and optionally embeds) one freshly registered
// source, recording outcomes into item rather than failing the whole
// seed run.
func seedIngestOne(ctx context.Context, out *output.Writer, idx store.IndexStore, cfg *config.Config, src *store.Source, opts seedOptions, item map[string]any) {
	ig := newIngestor(idx, cfg, opts.concurrency)
	defer ig.Close()

	result, err := ig.Sync(ctx, src, false, func(current, total int) { out.Progress(current, total, src.ID) })
	if err != nil {
		out.Warningf("%s: ingest failed: %v", src.ID, err)
		item["ingest_error"] = err.Error()
		return
	}
	out.ProgressDone()
	item["ingested"] = result.Updated

	if !opts.noEmbed {
		if err := runEmbedForSource(ctx, out, cfg, src, "", false); err != nil {
			out.Warningf("%s: embed failed: %v", src.ID, err)
			item["embed_error"] = err.Error()
		}
	}
}

// collectSeedOrigins merges --url origins with every non-comment,
// non-blank line of every --file.
func collectSeedOrigins(opts seedOptions) ([]string, error) {
	origins := append([]string{}, opts.urls...)

	for _, path := range opts.files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			origins = append(origins, line)
		}
		err = scanner.Err()
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	return origins, nil
}
