package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-librarian/librarian/internal/chunk"
	"github.com/go-librarian/librarian/internal/store"
)

// buildDocumentChunks stamps the parent document's identity onto a
// chunker's drafts, producing the store.Chunk rows InsertChunks expects.
// The chunker itself never sees doc, per chunk.ChunkDraft's contract.
func buildDocumentChunks(doc *store.Document, drafts []*chunk.ChunkDraft) []*store.Chunk {
	chunks := make([]*store.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = &store.Chunk{
			ID:              chunkID(doc.ID, i, d.Content),
			DocumentID:      doc.ID,
			Position:        i,
			ChunkType:       string(d.ChunkType),
			Language:        d.Language,
			Breadcrumb:      d.Breadcrumb,
			Content:         d.Content,
			Preview:         d.Preview,
			LineStart:       d.LineStart,
			LineEnd:         d.LineEnd,
			CharStart:       d.CharStart,
			CharEnd:         d.CharEnd,
			TokenCount:      d.TokenCount,
			SymbolName:      d.SymbolName,
			SymbolType:      string(d.SymbolType),
			SymbolID:        d.SymbolID,
			SymbolPartIndex: d.SymbolPartIndex,
			SymbolPartCount: d.SymbolPartCount,
			ChunkSHA:        sha256Hex([]byte(d.Content)),
			DocPath:         doc.Path,
			DocURI:          doc.URI,
			DocTitle:        doc.Title,
		}
	}
	return chunks
}

// chunkID derives a content-addressable chunk id from its parent
// document, position, and content, matching the shape of the code
// chunker's own internal chunkID helper.
func chunkID(documentID string, position int, content string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", documentID, position, sha256Hex([]byte(content)))))
	return hex.EncodeToString(sum[:])[:16]
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
