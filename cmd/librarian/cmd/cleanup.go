package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
)

type cleanupOptions struct {
	source    string
	olderThan time.Duration
}

func newCleanupCmd() *cobra.Command {
	var opts cleanupOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Reclaim space held by documents superseded by a sync",
		Long: `A sync marks documents no longer present upstream inactive rather
than deleting them immediately, so a search mid-resync never sees a
half-updated library. cleanup permanently removes documents (and
their chunks) that have sat inactive past the grace period.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Only clean up this library ID (default: all)")
	cmd.Flags().DurationVar(&opts.olderThan, "older-than", 24*time.Hour, "Grace period before an inactive document is removed")
	cmd.Flags().Bool("json", false, "Output as structured JSON")

	return cmd
}

func runCleanup(cmd *cobra.Command, opts cleanupOptions) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	sources, err := selectSources(ctx, idx, opts.source)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-opts.olderThan)
	items := make([]any, 0, len(sources))

	for _, src := range sources {
		removed, err := cleanupSource(ctx, src, cutoff)
		if err != nil {
			out.Errorf("%s: %v", src.ID, err)
			items = append(items, map[string]any{"source": src.ID, "error": err.Error()})
			continue
		}
		out.Successf("%s: removed %d inactive documents", src.ID, removed)
		items = append(items, map[string]any{"source": src.ID, "removed": removed})
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, items, map[string]any{"count": len(items)})
	}
	return nil
}

// cleanupSource deletes a library's documents that have been inactive
// since before cutoff. Only documents under the source's own version
// label are considered (web pages are stored under "latest", the label
// sources are created with); documents of other labels are left alone.
func cleanupSource(ctx context.Context, src *store.Source, cutoff time.Time) (int, error) {
	lib, err := openLibrary(src.ID)
	if err != nil {
		return 0, fmt.Errorf("open library: %w", err)
	}
	defer func() { _ = lib.Close() }()

	n, err := lib.DeleteInactiveDocuments(ctx, src.ID, src.VersionLabel, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete inactive documents: %w", err)
	}
	return n, nil
}
