package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/embed"
	"github.com/go-librarian/librarian/internal/output"
	"github.com/go-librarian/librarian/internal/webcrawl"
)

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Report which optional backends are available",
		Long: `Check whether the optional backends librarian can use are reachable:
an Ollama server for real embeddings, and a headless Chrome/Chromium
binary for rendering script-driven crawl pages. Neither is required —
librarian falls back to static hash embeddings and plain HTTP fetches
when they're missing — but results are better with both.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd)
		},
	}
	cmd.Flags().Bool("json", false, "Output as structured JSON")
	return cmd
}

func runDetect(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ollama := detectOllama(ctx, cfg)
	headless := webcrawl.NewChromedpRenderer().Available()

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, []any{
			map[string]any{"backend": "ollama", "available": ollama},
			map[string]any{"backend": "headless_chrome", "available": headless},
		}, nil)
	}

	out := output.New(cmd.OutOrStdout())
	reportBackend(out, "Ollama (real embeddings)", ollama, "static hash embeddings")
	reportBackend(out, "headless Chrome (script-rendered pages)", headless, "plain HTTP fetch")
	return nil
}

// detectOllama spins up a throwaway Ollama embedder just to probe
// availability; it's immediately closed and never used for real work.
func detectOllama(ctx context.Context, cfg *config.Config) bool {
	model := cfg.Models.Embed
	e, err := embed.NewEmbedder(ctx, embed.ProviderOllama, model)
	if err != nil {
		return false
	}
	defer func() { _ = e.Close() }()
	return e.Available(ctx)
}

func reportBackend(out *output.Writer, name string, available bool, fallback string) {
	if available {
		out.Success(name + ": available")
		return
	}
	out.Warningf("%s: unavailable, falling back to %s", name, fallback)
}
