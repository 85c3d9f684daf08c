package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// CodeChunkerOptions configures the code chunker behavior.
type CodeChunkerOptions struct {
	TargetTokens int // target chunk size when splitting a symbol (default: CodeTargetTokens)
	OverlapLines int // overlap between split parts (default: CodeOverlapLines)
}

// CodeChunker implements AST-aware code chunking using tree-sitter.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

// NewCodeChunker creates a new code chunker with default options.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.TargetTokens == 0 {
		opts.TargetTokens = CodeTargetTokens
	}
	if opts.OverlapLines == 0 {
		opts.OverlapLines = CodeOverlapLines
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Chunk splits a file into symbol-bounded chunks.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*ChunkDraft, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	config, supported := c.registry.GetByName(file.Language)
	if !supported {
		return c.chunkByLines(file), nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return c.chunkByLines(file), nil
	}

	symbolNodes := c.findSymbolNodes(tree, config, file.Language)
	if len(symbolNodes) == 0 {
		return c.chunkByLines(file), nil
	}

	var drafts []*ChunkDraft
	for _, sn := range symbolNodes {
		drafts = append(drafts, c.draftsFromSymbol(sn, tree, file)...)
	}

	drafts = mergeAdjacentSameSymbol(drafts)
	drafts = removeNestedTinyChunks(drafts)

	return drafts, nil
}

// symbolNodeInfo holds a symbol node with its extracted symbol info.
type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes walks the tree collecting nodes whose type classifies
// as a function/method/class/interface/struct/enum for the language.
func (c *CodeChunker) findSymbolNodes(tree *Tree, config *LanguageConfig, language string) []*symbolNodeInfo {
	var symbolNodes []*symbolNodeInfo

	tree.Root.Walk(func(n *Node) bool {
		// Arrow functions and function expressions assigned to a const/let/var
		// are classified before the generic const/var passthrough below.
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return true
			}
		}

		symType, ok := classifyNode(n, tree.Source, config)
		if !ok {
			return true
		}

		sym := c.extractSymbol(n, tree, symType, language)
		if sym != nil {
			symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
		}
		return true
	})

	return symbolNodes
}

// classifyNode matches a node's type against the language's configured
// type lists, preferring the most specific category. A Go type_declaration
// is refined by inspecting its type_spec child for struct_type/interface_type.
func classifyNode(n *Node, source []byte, config *LanguageConfig) (SymbolType, bool) {
	switch {
	case containsType(config.MethodTypes, n.Type):
		return SymbolTypeMethod, true
	case containsType(config.FunctionTypes, n.Type):
		return SymbolTypeFunction, true
	case containsType(config.InterfaceTypes, n.Type):
		return SymbolTypeInterface, true
	case containsType(config.ClassTypes, n.Type):
		return SymbolTypeClass, true
	case n.Type == "enum_declaration":
		return SymbolTypeEnum, true
	case containsType(config.TypeDefTypes, n.Type):
		return refineTypeDecl(n), true
	case containsType(config.ConstantTypes, n.Type):
		return SymbolTypeConstant, true
	case containsType(config.VariableTypes, n.Type):
		return SymbolTypeVariable, true
	default:
		return "", false
	}
}

func refineTypeDecl(n *Node) SymbolType {
	spec := n.FindChildByType("type_spec")
	if spec == nil {
		return SymbolTypeType
	}
	for _, child := range spec.Children {
		switch child.Type {
		case "struct_type":
			return SymbolTypeStruct
		case "interface_type":
			return SymbolTypeInterface
		}
	}
	return SymbolTypeType
}

func containsType(list []string, nodeType string) bool {
	for _, t := range list {
		if t == nodeType {
			return true
		}
	}
	return false
}

// extractSymbol pulls name and doc comment for a classified node.
func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		StartByte:  n.StartByte,
		EndByte:    n.EndByte,
		DocComment: c.extractor.extractDocComment(n, tree.Source, language),
	}
}

// symbolID builds the stable id spec §4.2 requires: name plus start/end
// byte offset, so it changes whenever the symbol's bytes move or its
// length changes (an edit to its body, or any edit above it).
func symbolID(symbol *Symbol) string {
	return fmt.Sprintf("%s@%d-%d", symbol.Name, symbol.StartByte, symbol.EndByte)
}

// draftsFromSymbol turns one extracted symbol into one or more ChunkDrafts,
// splitting when the symbol's formatted content exceeds CodeMaxTokens.
func (c *CodeChunker) draftsFromSymbol(info *symbolNodeInfo, tree *Tree, file *FileInput) []*ChunkDraft {
	node := info.node
	body := c.rawContentWithDocComment(node, tree.Source, info.symbol.DocComment)
	id := symbolID(info.symbol)

	single := c.newDraft(file, body, info.symbol, id, 0, 1, startLineForBody(node, tree.Source, body))
	if single.TokenCount <= CodeMaxTokens {
		return []*ChunkDraft{single}
	}

	return c.splitSymbolBody(file, body, info.symbol, id, startLineForBody(node, tree.Source, body))
}

// startLineForBody returns the line the (possibly doc-comment-extended)
// body actually starts on.
func startLineForBody(node *Node, source []byte, body string) int {
	bodyLines := strings.Count(body, "\n")
	nodeLines := strings.Count(node.GetContent(source), "\n")
	extra := bodyLines - nodeLines
	if extra < 0 {
		extra = 0
	}
	return int(node.StartPoint.Row) + 1 - extra
}

// rawContentWithDocComment extends the node's raw text backward over the
// lines its doc comment occupies, if any.
func (c *CodeChunker) rawContentWithDocComment(n *Node, source []byte, docComment string) string {
	content := n.GetContent(source)
	if docComment == "" {
		return content
	}

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// splitSymbolBody subdivides an oversized symbol into line-based parts
// targeting CodeTargetTokens with an overlap of CodeOverlapLines.
func (c *CodeChunker) splitSymbolBody(file *FileInput, body string, symbol *Symbol, id string, startLine int) []*ChunkDraft {
	lines := strings.Split(body, "\n")
	maxLinesPerPart := (c.options.TargetTokens * TokensPerChar) / 80
	if maxLinesPerPart < 5 {
		maxLinesPerPart = 5
	}

	var parts []string
	var partStartLines []int
	for i := 0; i < len(lines); {
		end := i + maxLinesPerPart
		if end > len(lines) {
			end = len(lines)
		}
		parts = append(parts, strings.Join(lines[i:end], "\n"))
		partStartLines = append(partStartLines, startLine+i)

		if end >= len(lines) {
			break
		}
		next := end - c.options.OverlapLines
		if next <= i {
			next = i + 1
		}
		i = next
	}

	drafts := make([]*ChunkDraft, 0, len(parts))
	for idx, part := range parts {
		drafts = append(drafts, c.newDraft(file, part, symbol, id, idx, len(parts), partStartLines[idx]))
	}
	return drafts
}

// newDraft formats one chunk's breadcrumb+body content and stamps symbol
// metadata. Code bodies are fenced with the language name.
func (c *CodeChunker) newDraft(file *FileInput, body string, symbol *Symbol, id string, partIndex, partCount, startLine int) *ChunkDraft {
	breadcrumb := fmt.Sprintf("%s > %s", file.Path, symbol.Name)
	fenced := fmt.Sprintf("```%s\n%s\n```", file.Language, body)
	content := breadcrumb + "\n\n" + fenced
	lineCount := strings.Count(body, "\n")

	return &ChunkDraft{
		ChunkType:       ChunkTypeCode,
		Language:        file.Language,
		Breadcrumb:      breadcrumb,
		Content:         content,
		Preview:         makePreview(content),
		LineStart:       startLine,
		LineEnd:         startLine + lineCount,
		TokenCount:      estimateTokens(content),
		SymbolName:      symbol.Name,
		SymbolType:      symbol.Type,
		SymbolID:        id,
		SymbolPartIndex: partIndex,
		SymbolPartCount: partCount,
	}
}

// mergeAdjacentSameSymbol merges consecutive parts of the same split
// symbol while their combined size stays within CodeMergeMaxTotal.
func mergeAdjacentSameSymbol(drafts []*ChunkDraft) []*ChunkDraft {
	if len(drafts) < 2 {
		return drafts
	}

	merged := make([]*ChunkDraft, 0, len(drafts))
	cur := drafts[0]
	for i := 1; i < len(drafts); i++ {
		next := drafts[i]
		sameSymbol := cur.SymbolID == next.SymbolID && cur.SymbolPartCount > 1
		if sameSymbol && cur.TokenCount+next.TokenCount <= CodeMergeMaxTotal {
			cur = combineDrafts(cur, next)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	return merged
}

func combineDrafts(a, b *ChunkDraft) *ChunkDraft {
	content := a.Content + "\n" + strings.TrimPrefix(b.Content, b.Breadcrumb+"\n\n")
	return &ChunkDraft{
		ChunkType:       a.ChunkType,
		Language:        a.Language,
		Breadcrumb:      a.Breadcrumb,
		Content:         content,
		Preview:         makePreview(content),
		LineStart:       a.LineStart,
		LineEnd:         b.LineEnd,
		TokenCount:      estimateTokens(content),
		SymbolName:      a.SymbolName,
		SymbolType:      a.SymbolType,
		SymbolID:        a.SymbolID,
		SymbolPartIndex: a.SymbolPartIndex,
		SymbolPartCount: a.SymbolPartCount,
	}
}

// removeNestedTinyChunks drops chunks under CodeMinKeepTokens whose line
// range and content are wholly contained within another chunk (e.g. a
// one-line nested closure already covered by its enclosing function).
func removeNestedTinyChunks(drafts []*ChunkDraft) []*ChunkDraft {
	keep := make([]*ChunkDraft, 0, len(drafts))
	for i, d := range drafts {
		if d.TokenCount >= CodeMinKeepTokens {
			keep = append(keep, d)
			continue
		}
		nested := false
		for j, other := range drafts {
			if i == j {
				continue
			}
			if other.LineStart <= d.LineStart && d.LineEnd <= other.LineEnd && strings.Contains(other.Content, d.Content) {
				nested = true
				break
			}
		}
		if !nested {
			keep = append(keep, d)
		}
	}
	return keep
}

// chunkByLines is the fallback when no grammar is registered for the
// file's language, or parsing produced no symbols.
func (c *CodeChunker) chunkByLines(file *FileInput) []*ChunkDraft {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	maxLinesPerPart := (c.options.TargetTokens * TokensPerChar) / 80
	if maxLinesPerPart < 5 {
		maxLinesPerPart = 5
	}

	var drafts []*ChunkDraft
	for i := 0; i < len(lines); {
		end := i + maxLinesPerPart
		if end > len(lines) {
			end = len(lines)
		}

		body := strings.Join(lines[i:end], "\n")
		breadcrumb := file.Path
		fenced := fmt.Sprintf("```%s\n%s\n```", file.Language, body)
		content := breadcrumb + "\n\n" + fenced

		drafts = append(drafts, &ChunkDraft{
			ChunkType:  ChunkTypeCode,
			Language:   file.Language,
			Breadcrumb: breadcrumb,
			Content:    content,
			Preview:    makePreview(content),
			LineStart:  i + 1,
			LineEnd:    end,
			TokenCount: estimateTokens(content),
		})

		if end >= len(lines) {
			break
		}
		next := end - c.options.OverlapLines
		if next <= i {
			next = i + 1
		}
		i = next
	}

	return drafts
}

// chunkID is a content-addressable identifier derived from a document's
// path and a chunk's content, stable across re-indexing when nothing
// about the chunk changed.
func chunkID(docPath, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]
	input := fmt.Sprintf("%s:%s", docPath, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
