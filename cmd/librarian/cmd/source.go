package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
)

// sourceAddOptions holds the flags shared by `add` and `source add`.
type sourceAddOptions struct {
	id         string
	ref        string
	docsPath   string
	docsOnly   bool
	allowPaths []string
	denyPaths  []string
	maxDepth   int
	maxPages   int
}

func newAddCmd() *cobra.Command {
	cmd := newSourceAddCmd()
	cmd.Use = "add <repo|url>"
	return cmd
}

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage configured libraries (sources)",
	}
	cmd.AddCommand(newSourceAddCmd())
	cmd.AddCommand(newSourceListCmd())
	cmd.AddCommand(newSourceRemoveCmd())
	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var opts sourceAddOptions

	cmd := &cobra.Command{
		Use:   "add <owner/repo|url>",
		Short: "Register a GitHub repository or website as a library",
		Long: `Register a new library to ingest.

A GitHub repository is given as "owner/name" (e.g. "golang/go");
a website is given as an absolute URL (e.g. "https://pkg.go.dev").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceAdd(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Library ID (default: derived from the repo/host name)")
	cmd.Flags().StringVar(&opts.ref, "ref", "", "Branch or tag to track (GitHub sources; default: repo's default branch)")
	cmd.Flags().StringVar(&opts.docsPath, "docs-path", "", "Subtree to ingest (GitHub sources, e.g. \"docs/\")")
	cmd.Flags().BoolVar(&opts.docsOnly, "docs-only", false, "Only ingest files containing fenced code blocks")
	cmd.Flags().StringSliceVar(&opts.allowPaths, "allow", nil, "Allowed path prefixes (web sources, repeatable)")
	cmd.Flags().StringSliceVar(&opts.denyPaths, "deny", nil, "Denied path prefixes (web sources, repeatable)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 5, "Maximum crawl depth (web sources)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 2000, "Maximum pages to crawl (web sources)")
	cmd.Flags().Bool("json", false, "Output as structured JSON")

	return cmd
}

func runSourceAdd(cmd *cobra.Command, origin string, opts sourceAddOptions) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	src := buildSource(origin, opts)

	if err := idx.UpsertSource(cmd.Context(), src); err != nil {
		return fmt.Errorf("register source: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, []any{sourceToItem(src)}, map[string]any{"added": 1})
	}
	out.Successf("registered library %q (%s)", src.ID, src.Kind)
	return nil
}

// buildSource classifies origin as a GitHub repo ("owner/name") or a
// website (anything parseable as an absolute http(s) URL).
func buildSource(origin string, opts sourceAddOptions) *store.Source {
	now := time.Now().UTC()
	id := opts.id

	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		if id == "" {
			id = slugify(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"))
		}
		mode := store.IngestModeFull
		if opts.docsOnly {
			mode = store.IngestModeDocsOnly
		}
		return &store.Source{
			ID:            id,
			Kind:          store.SourceKindWeb,
			DisplayName:   origin,
			LibraryDBPath: libraryDBPath(id),
			RootURL:       origin,
			AllowPaths:    opts.allowPaths,
			DenyPaths:     opts.denyPaths,
			MaxDepth:      opts.maxDepth,
			MaxPages:      opts.maxPages,
			IngestMode:    mode,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if id == "" {
		id = slugify(origin)
	}
	ref := opts.ref
	if ref == "" {
		ref = "main"
	}
	mode := store.IngestModeFull
	if opts.docsOnly {
		mode = store.IngestModeDocsOnly
	}
	return &store.Source{
		ID:            id,
		Kind:          store.SourceKindGitHub,
		DisplayName:   origin,
		LibraryDBPath: libraryDBPath(id),
		Repo:          origin,
		Ref:           ref,
		DocsPath:      opts.docsPath,
		IngestMode:    mode,
		VersionLabel:  "latest",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newSourceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured libraries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSourceList(cmd)
		},
	}
	cmd.Flags().Bool("json", false, "Output as structured JSON")
	return cmd
}

func runSourceList(cmd *cobra.Command) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	sources, err := idx.ListSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		items := make([]any, 0, len(sources))
		for _, s := range sources {
			items = append(items, sourceToItem(s))
		}
		return writeJSON(cmd, items, map[string]any{"count": len(sources)})
	}

	out := output.New(cmd.OutOrStdout())
	if len(sources) == 0 {
		out.Status("", "No libraries configured. Run 'librarian add <repo|url>' first.")
		return nil
	}
	for _, s := range sources {
		origin := s.Repo
		if s.Kind == store.SourceKindWeb {
			origin = s.RootURL
		}
		out.Statusf("", "%-24s %-8s %s", s.ID, s.Kind, origin)
	}
	return nil
}

func newSourceRemoveCmd() *cobra.Command {
	var keepData bool

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a configured library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceRemove(cmd, args[0], keepData)
		},
	}
	cmd.Flags().BoolVar(&keepData, "keep-data", false, "Keep the library's database file on disk")
	return cmd
}

func runSourceRemove(cmd *cobra.Command, id string, keepData bool) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	src, err := resolveSource(cmd.Context(), idx, id)
	if err != nil {
		return err
	}

	if err := idx.DeleteSource(cmd.Context(), id); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}

	if !keepData {
		removeLibraryFiles(src.ID)
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("removed library %q", id)
	return nil
}

func sourceToItem(s *store.Source) map[string]any {
	origin := s.Repo
	if s.Kind == store.SourceKindWeb {
		origin = s.RootURL
	}
	return map[string]any{
		"id":     s.ID,
		"kind":   string(s.Kind),
		"origin": origin,
		"ref":    s.Ref,
	}
}
