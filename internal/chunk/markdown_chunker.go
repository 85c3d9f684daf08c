package chunk

import (
	"context"
	"regexp"
	"strings"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	MaxTokens     int // token limiter ceiling (default: MarkdownMaxTokens)
	MinTokens     int // minimum part size; stored but not checked by the limiter (default: MarkdownMinTokens)
	MergeUnder    int // merge consecutive chunks under this size (default: MarkdownMergeUnder)
	OverlapTokens int // overlap applied when splitting (default: MarkdownOverlapTokens)
}

// MarkdownChunker implements header-tree Markdown chunking.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var (
	// Matches ATX headers, levels 1-5: # Title .. ##### Title.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,5})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Matches a fenced code block.
	codeFencePattern = regexp.MustCompile("```")

	// Matches a 4-space indented code line.
	indentedCodePattern = regexp.MustCompile(`(?m)^(    |\t)\S`)
)

// NewMarkdownChunker creates a new markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = MarkdownMaxTokens
	}
	if opts.MinTokens == 0 {
		opts.MinTokens = MarkdownMinTokens
	}
	if opts.MergeUnder == 0 {
		opts.MergeUnder = MarkdownMergeUnder
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = MarkdownOverlapTokens
	}
	return &MarkdownChunker{options: opts}
}

// Close releases chunker resources. MarkdownChunker is stateless.
func (c *MarkdownChunker) Close() {}

// Chunk splits a markdown file into breadcrumbed, token-bounded chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*ChunkDraft, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	if m := frontmatterPattern.FindString(content); m != "" {
		content = content[len(m):]
	}

	if isShortSelfContained(content) {
		return []*ChunkDraft{c.singleDraft(file, content)}, nil
	}

	sections := parseSections(content)
	if len(sections) == 0 {
		return c.limitAndMerge(c.draftsFromParagraphs(file, content, "")), nil
	}

	var drafts []*ChunkDraft
	for _, sec := range sections {
		body := strings.TrimSpace(sec.content)
		if body == "" {
			continue
		}
		drafts = append(drafts, c.sectionDraft(file, sec, body))
	}

	return c.limitAndMerge(drafts), nil
}

// isShortSelfContained implements the whole-file single-chunk shortcut:
// short, no nested headings, and at least one code fence or indented block.
func isShortSelfContained(content string) bool {
	if estimateTokens(content) > MarkdownMaxTokens {
		return false
	}
	headers := headerPattern.FindAllString(content, -1)
	if len(headers) > 1 {
		return false
	}
	hasFence := len(codeFencePattern.FindAllString(content, -1)) >= 2
	hasIndented := indentedCodePattern.MatchString(content)
	return hasFence || hasIndented
}

func (c *MarkdownChunker) singleDraft(file *FileInput, body string) *ChunkDraft {
	breadcrumb := file.DocumentTitle
	content := formatChunkContent(breadcrumb, strings.TrimSpace(body))
	return &ChunkDraft{
		ChunkType:  ChunkTypeDoc,
		Breadcrumb: breadcrumb,
		Content:    content,
		Preview:    makePreview(content),
		LineStart:  1,
		LineEnd:    strings.Count(body, "\n") + 1,
		TokenCount: estimateTokens(content),
	}
}

// section is one heading's own content, up to (excluding) the next heading
// of any level — the leaf unit the spec's flattening produces.
type section struct {
	headerLevel int
	headerPath  string
	content     string
	startLine   int // 1-indexed
}

// parseSections walks ATX headings, maintaining a per-level title stack
// to build each section's "parent > ... > leaf" breadcrumb.
func parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 5)

	var cur *section
	var body strings.Builder

	flush := func() {
		if cur != nil {
			cur.content = body.String()
			sections = append(sections, cur)
			body.Reset()
		}
	}

	for lineNum, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()

			level := len(match[1])
			title := strings.TrimSpace(match[2])
			headerStack[level-1] = title
			for i := level; i < 5; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}

			cur = &section{
				headerLevel: level,
				headerPath:  strings.Join(pathParts, " > "),
				startLine:   lineNum + 1,
			}
			continue
		}
		if cur != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	return sections
}

func (c *MarkdownChunker) sectionDraft(file *FileInput, sec *section, body string) *ChunkDraft {
	content := formatChunkContent(sec.headerPath, body)
	return &ChunkDraft{
		ChunkType:  ChunkTypeDoc,
		Breadcrumb: sec.headerPath,
		Content:    content,
		Preview:    makePreview(content),
		LineStart:  sec.startLine,
		LineEnd:    sec.startLine + strings.Count(body, "\n"),
		TokenCount: estimateTokens(content),
	}
}

// draftsFromParagraphs is the fallback for a file with no headings at all:
// paragraphs under the same token limiter, with an empty breadcrumb.
func (c *MarkdownChunker) draftsFromParagraphs(file *FileInput, content, breadcrumb string) []*ChunkDraft {
	paragraphs := splitParagraphs(content)
	if len(paragraphs) == 0 {
		return nil
	}
	formatted := formatChunkContent(breadcrumb, strings.Join(paragraphs, "\n\n"))
	return []*ChunkDraft{{
		ChunkType:  ChunkTypeDoc,
		Breadcrumb: breadcrumb,
		Content:    formatted,
		Preview:    makePreview(formatted),
		LineStart:  1,
		LineEnd:    strings.Count(content, "\n") + 1,
		TokenCount: estimateTokens(formatted),
	}}
}

func splitParagraphs(content string) []string {
	parts := strings.Split(content, "\n\n")
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func formatChunkContent(breadcrumb, body string) string {
	if breadcrumb == "" {
		return body
	}
	return breadcrumb + "\n\n" + body
}

// limitAndMerge runs the token limiter (split oversized chunks into line
// windows with ~60 token overlap) then merges consecutive chunks under
// MergeUnder tokens while the combined result stays under MaxTokens.
func (c *MarkdownChunker) limitAndMerge(drafts []*ChunkDraft) []*ChunkDraft {
	var limited []*ChunkDraft
	for _, d := range drafts {
		limited = append(limited, c.applyTokenLimiter(d)...)
	}
	return c.mergeSmallChunks(limited)
}

// applyTokenLimiter splits a chunk line-by-line with overlap when it
// exceeds MaxTokens. Parts are fixed windows of MaxTokens*4/80 lines
// overlapping by OverlapTokens*4/80 lines, and every part after the
// first is prefixed with the breadcrumb. Part sizes are not measured:
// a part made of long lines can exceed MaxTokens, and the last part can
// fall under MinTokens.
func (c *MarkdownChunker) applyTokenLimiter(d *ChunkDraft) []*ChunkDraft {
	if d.TokenCount <= c.options.MaxTokens {
		return []*ChunkDraft{d}
	}

	lines := strings.Split(d.Content, "\n")
	maxLinesPerPart := (c.options.MaxTokens * TokensPerChar) / 80
	if maxLinesPerPart < 5 {
		maxLinesPerPart = 5
	}
	overlapLines := (c.options.OverlapTokens * TokensPerChar) / 80
	if overlapLines < 1 {
		overlapLines = 1
	}

	var out []*ChunkDraft
	lineOffset := d.LineStart
	for i := 0; i < len(lines); {
		end := i + maxLinesPerPart
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[i:end], "\n")
		if i > 0 {
			body = formatChunkContent(d.Breadcrumb, body)
		}
		out = append(out, &ChunkDraft{
			ChunkType:  d.ChunkType,
			Breadcrumb: d.Breadcrumb,
			Content:    body,
			Preview:    makePreview(body),
			LineStart:  lineOffset + i,
			LineEnd:    lineOffset + end - 1,
			TokenCount: estimateTokens(body),
		})

		if end >= len(lines) {
			break
		}
		next := end - overlapLines
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return out
}

// mergeSmallChunks merges consecutive chunks under MergeUnder tokens
// while the combined size stays under MaxTokens. Only chunks sharing a
// breadcrumb are merged, so merging never blends unrelated sections.
func (c *MarkdownChunker) mergeSmallChunks(drafts []*ChunkDraft) []*ChunkDraft {
	if len(drafts) < 2 {
		return drafts
	}

	merged := make([]*ChunkDraft, 0, len(drafts))
	cur := drafts[0]
	for i := 1; i < len(drafts); i++ {
		next := drafts[i]
		if cur.Breadcrumb == next.Breadcrumb && cur.TokenCount < c.options.MergeUnder &&
			cur.TokenCount+next.TokenCount < c.options.MaxTokens {
			cur = mergeDocChunks(cur, next)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	return merged
}

func mergeDocChunks(a, b *ChunkDraft) *ChunkDraft {
	bBody := b.Content
	if b.Breadcrumb != "" {
		bBody = strings.TrimPrefix(bBody, b.Breadcrumb+"\n\n")
	}
	content := a.Content + "\n\n" + bBody
	return &ChunkDraft{
		ChunkType:  a.ChunkType,
		Breadcrumb: a.Breadcrumb,
		Content:    content,
		Preview:    makePreview(content),
		LineStart:  a.LineStart,
		LineEnd:    b.LineEnd,
		TokenCount: estimateTokens(content),
	}
}
