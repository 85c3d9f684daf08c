package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/search"
)

type libraryOptions struct {
	version string
}

// newLibraryCmd runs a query against every configured library and
// merges the results by score, for when the caller doesn't know (or
// care) which library holds the answer.
func newLibraryCmd() *cobra.Command {
	var opts libraryOptions

	cmd := &cobra.Command{
		Use:   "library <query>",
		Short: "Search across every configured library",
		Long: `Run a hybrid search against every configured library and merge
the results by score. Use 'search --library L' instead when you
already know which library to query.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLibrarySearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", "", "Version label to scope the search to (default: all versions)")
	cmd.Flags().Bool("json", false, "Output as structured JSON")

	return cmd
}

func runLibrarySearch(cmd *cobra.Command, query string, opts libraryOptions) error {
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
	if len(sources) == 0 {
		return fmt.Errorf("no libraries configured. Run 'librarian add <repo|url>' first")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var merged []*search.Result
	for _, src := range sources {
		results, err := searchLibrary(ctx, cfg, src, query, string(search.ModeHybrid), opts.version)
		if err != nil {
			continue
		}
		merged = append(merged, results...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > search.DefaultResultLimit {
		merged = merged[:search.DefaultResultLimit]
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		items := make([]any, 0, len(merged))
		for _, r := range merged {
			items = append(items, resultToItemJSON(r))
		}
		return writeJSON(cmd, items, map[string]any{"libraries_searched": len(sources)})
	}

	return printResults(output.New(cmd.OutOrStdout()), query, merged)
}
