package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/store"
)

type getOptions struct {
	library string
	doc     string
	slice   string
}

func newGetCmd() *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get [path|uri]",
		Short: "Fetch one document's content from a library",
		Long: `Fetch a document by --doc ID, or by its repo-relative path or URI
given as the positional argument. --slice a:b returns only that
1-indexed, inclusive line range.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var locator string
			if len(args) == 1 {
				locator = args[0]
			}
			return runGet(cmd, locator, opts)
		},
	}

	cmd.Flags().StringVar(&opts.library, "library", "", "Library ID to fetch from (required)")
	cmd.Flags().StringVar(&opts.doc, "doc", "", "Document ID (alternative to path/uri positional argument)")
	cmd.Flags().StringVar(&opts.slice, "slice", "", "Line range to return, e.g. \"10:40\" (1-indexed, inclusive)")
	cmd.Flags().Bool("json", false, "Output as structured JSON")
	_ = cmd.MarkFlagRequired("library")

	return cmd
}

func runGet(cmd *cobra.Command, locator string, opts getOptions) error {
	if opts.doc == "" && locator == "" {
		return fmt.Errorf("specify --doc ID or a path/uri argument")
	}

	ctx := cmd.Context()
	lib, err := openLibrary(opts.library)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer func() { _ = lib.Close() }()

	doc, err := findDocument(ctx, lib, opts.doc, locator)
	if err != nil {
		return err
	}

	content, err := lib.GetBlob(ctx, doc.Hash)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	text := string(content)
	if opts.slice != "" {
		text, err = sliceLines(text, opts.slice)
		if err != nil {
			return err
		}
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, []any{map[string]any{
			"id":      doc.ID,
			"path":    doc.Path,
			"uri":     doc.URI,
			"title":   doc.Title,
			"version": doc.VersionLabel,
			"content": text,
		}}, map[string]any{"library": opts.library})
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "%s (%s)", doc.Path, doc.URI)
	out.Code(text)
	return nil
}

// findDocument resolves a document by ID if given, else by exact
// path or URI match against the library's active documents.
func findDocument(ctx context.Context, lib store.LibraryStore, docID, locator string) (*store.Document, error) {
	if docID != "" {
		return lib.GetDocument(ctx, docID)
	}
	return lib.FindDocumentByLocator(ctx, locator)
}

// sliceLines returns the 1-indexed, inclusive line range "a:b" of text.
func sliceLines(text, slice string) (string, error) {
	parts := strings.SplitN(slice, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed slice %q, want \"a:b\"", slice)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil || start < 1 {
		return "", fmt.Errorf("malformed slice start %q", parts[0])
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil || end < start {
		return "", fmt.Errorf("malformed slice end %q", parts[1])
	}

	lines := strings.Split(text, "\n")
	if start > len(lines) {
		return "", nil
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}
