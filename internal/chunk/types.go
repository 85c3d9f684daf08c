// Package chunk splits ingested documents into ranked, retrievable units.
//
// Two strategies are dispatched by file extension: the Markdown strategy
// walks ATX headings into a tree and flattens to leaf sections; the code
// strategy walks a tree-sitter AST and slices out symbol-defining nodes.
// Both strategies run every chunk through a shared token limiter so no
// chunk drifts outside the bounds the store and search layers assume.
package chunk

import "context"

// Token-budget constants. The approximation is deliberately crude
// (4 chars ≈ 1 token) and is a load-bearing part of chunk boundary
// stability — changing it reshuffles every chunk's position.
const (
	TokensPerChar = 4

	// Markdown leaf-section limits.
	MarkdownMaxTokens     = 600
	MarkdownMinTokens     = 40
	MarkdownMergeUnder    = 200
	MarkdownOverlapTokens = 60

	// Code symbol-chunk limits.
	CodeTargetTokens  = 320
	CodeOverlapLines  = 8
	CodeMaxTokens     = 1000
	CodeMergeMaxTotal = 800
	CodeMinKeepTokens = 50

	PreviewChars = 220
)

// ChunkType is the retrievable-unit kind persisted on a Chunk row.
type ChunkType string

const (
	ChunkTypeCode      ChunkType = "code"
	ChunkTypeDoc       ChunkType = "doc"
	ChunkTypeDocInline ChunkType = "doc-inline"
)

// SymbolType is the kind of code symbol a chunk was sliced from.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeMethod    SymbolType = "method"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeStruct    SymbolType = "struct"
	SymbolTypeEnum      SymbolType = "enum"
	SymbolTypeType      SymbolType = "type" // declaration whose struct/enum/alias shape wasn't distinguished
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
)

// Symbol is a named code construct found while walking an AST, produced
// by SymbolExtractor and consumed by the code chunker to slice Content
// and stamp SymbolID/SymbolName/SymbolType on the resulting ChunkDraft.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int // 1-indexed
	EndLine    int
	StartByte  uint32
	EndByte    uint32
	Signature  string
	DocComment string
}

// FileInput is the raw material handed to a Chunker.
type FileInput struct {
	Path          string // repo/crawl-relative path
	Content       []byte
	Language      string // empty for markdown/text
	DocumentTitle string // first H1 or filename; outermost breadcrumb segment
}

// ChunkDraft is a chunk before it is assigned a document id and position.
// The chunker never sees a Document; the ingest orchestrator stamps
// DocPath/DocURI/DocTitle and Position once the parent document is known.
type ChunkDraft struct {
	ChunkType ChunkType
	Language  string

	Breadcrumb string // "parent > ... > leaf"; empty when there is no heading/symbol context
	Content    string // breadcrumb + "\n\n" + body, the text actually indexed
	Preview    string // first ~220 chars of Content, whitespace collapsed

	LineStart int // 1-indexed, inclusive
	LineEnd   int
	CharStart int // byte offset into the document, inclusive
	CharEnd   int

	TokenCount int

	SymbolName      string
	SymbolType      SymbolType
	SymbolID        string // stable id: name + start/end byte offsets
	SymbolPartIndex int    // 0 when the symbol was not split
	SymbolPartCount int    // 1 when the symbol was not split
}

// Chunker converts one document's raw content into ranked ChunkDrafts.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*ChunkDraft, error)
}

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string // struct/enum in addition to the plain "type" catch-all
	ConstantTypes  []string
	VariableTypes  []string
	NameField      string
}

// estimateTokens approximates token count from character count.
// max(1, ceil(chars/4)) — see package doc: this heuristic is load-bearing.
func estimateTokens(s string) int {
	n := (len(s) + TokensPerChar - 1) / TokensPerChar
	if n < 1 {
		return 1
	}
	return n
}

// collapseWhitespace builds a single-line preview from arbitrary content.
func collapseWhitespace(s string) string {
	var b []byte
	lastSpace := false
	for i := 0; i < len(s) && len(b) < PreviewChars; i++ {
		c := s[i]
		if c == '\n' || c == '\t' || c == '\r' || c == ' ' {
			if lastSpace {
				continue
			}
			b = append(b, ' ')
			lastSpace = true
			continue
		}
		b = append(b, c)
		lastSpace = false
	}
	return string(b)
}

func makePreview(content string) string {
	runes := []rune(collapseWhitespace(content))
	if len(runes) > PreviewChars {
		runes = runes[:PreviewChars]
	}
	return string(runes)
}
