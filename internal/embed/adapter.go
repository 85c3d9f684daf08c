package embed

import (
	"context"

	"github.com/go-librarian/librarian/internal/search"
)

// QueryAdapter exposes an Embedder as a search.Embedder, so the search
// engine depends only on the narrow EmbedQuery/Dimensions surface it
// actually needs rather than the full embed.Embedder lifecycle interface.
type QueryAdapter struct {
	Embedder
}

// NewQueryAdapter wraps an Embedder for use by internal/search.
func NewQueryAdapter(e Embedder) search.Embedder {
	return &QueryAdapter{Embedder: e}
}

// EmbedQuery satisfies search.Embedder by delegating to Embed.
func (a *QueryAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return a.Embed(ctx, text)
}
