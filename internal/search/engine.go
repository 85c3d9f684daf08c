package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-librarian/librarian/internal/store"
	"github.com/go-librarian/librarian/internal/telemetry"
)

// Engine serves word/vector/hybrid search over one library's text index,
// vector store and embedder. One Engine is scoped to a single Source, so
// sourceName is fixed at construction rather than carried per chunk.
type Engine struct {
	text       store.TextIndex
	library    store.LibraryStore
	vectors    store.VectorStore
	embedder   Embedder
	expander   *QueryExpander
	fusion     *RRFFusion
	sourceName string
	metrics    *telemetry.QueryMetrics
}

// NewEngine builds a search engine over one library's indexes. vectors may
// be nil when the library hasn't been embedded yet; vector and hybrid mode
// then report ErrVectorSearchNotReady rather than running a query against it.
func NewEngine(text store.TextIndex, library store.LibraryStore, vectors store.VectorStore, embedder Embedder, sourceName string) *Engine {
	return &Engine{
		text:       text,
		library:    library,
		vectors:    vectors,
		embedder:   embedder,
		expander:   NewQueryExpander(),
		fusion:     NewRRFFusion(),
		sourceName: sourceName,
	}
}

// SetMetrics attaches a query metrics collector; every Search call is
// then recorded (query type, result count, latency). Passing nil
// disables recording, which is also the default when unset.
func (e *Engine) SetMetrics(m *telemetry.QueryMetrics) {
	e.metrics = m
}

// queryTypeFor maps a search mode to the telemetry classification used
// to distinguish lexical, semantic, and fused queries in the summary.
func queryTypeFor(mode Mode) telemetry.QueryType {
	switch mode {
	case ModeVector:
		return telemetry.QueryTypeSemantic
	case ModeWord:
		return telemetry.QueryTypeLexical
	default:
		return telemetry.QueryTypeMixed
	}
}

// ErrVectorSearchNotReady is returned by vector/hybrid search when no
// vector store or embedder is available for the library yet.
var ErrVectorSearchNotReady = fmt.Errorf("vector search not ready")

// Search runs the requested mode and returns up to opts.Limit (default
// DefaultResultLimit) ranked results.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultResultLimit
	}

	start := time.Now()
	var results []*Result
	var err error
	switch opts.Mode {
	case ModeVector:
		results, err = e.searchVector(ctx, query, limit)
	case ModeHybrid, "":
		results, err = e.searchHybrid(ctx, query, limit)
	default:
		results, err = e.searchWord(ctx, query, limit)
	}

	if e.metrics != nil && err == nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       query,
			QueryType:   queryTypeFor(opts.Mode),
			ResultCount: len(results),
			Latency:     time.Since(start),
			Timestamp:   start,
		})
	}
	return results, err
}

// searchWord implements spec §4.6's word mode: sanitized AND query, top
// rows returned directly in text-index rank order.
func (e *Engine) searchWord(ctx context.Context, query string, limit int) ([]*Result, error) {
	hits, err := e.text.Search(ctx, andQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("word search: %w", err)
	}
	return e.buildResults(ctx, hits, nil)
}

// searchVector implements spec §4.6's vector mode.
func (e *Engine) searchVector(ctx context.Context, query string, limit int) ([]*Result, error) {
	if e.vectors == nil || e.embedder == nil {
		return nil, ErrVectorSearchNotReady
	}
	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, ErrVectorSearchNotReady
	}
	vresults, err := e.vectors.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	scores := make(map[string]float64, len(vresults))
	for _, v := range vresults {
		scores[v.ChunkID] = float64(v.Score)
	}
	return e.buildResultsFromScores(ctx, vectorResultIDs(vresults), scores)
}

func vectorResultIDs(vresults []*store.VectorResult) []string {
	ids := make([]string, len(vresults))
	for i, v := range vresults {
		ids[i] = v.ChunkID
	}
	return ids
}

// searchHybrid runs spec §4.6's 8-step hybrid algorithm.
func (e *Engine) searchHybrid(ctx context.Context, query string, limit int) ([]*Result, error) {
	// Step 1: text search, relaxed fallback on empty.
	textHits, err := e.text.Search(ctx, andQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid text search: %w", err)
	}
	relaxed := false
	if len(textHits) == 0 {
		relaxed = true
		textHits, err = e.text.Search(ctx, relaxedQuery(query), limit)
		if err != nil {
			return nil, fmt.Errorf("hybrid relaxed text search: %w", err)
		}
	}

	// Step 2: strong-signal heuristic.
	strong := !relaxed && isStrongSignal(textHits)

	// Step 3: query expansion when signal isn't already strong.
	var alternatives []string
	if !strong {
		alternatives = e.expander.Alternatives(query, MaxAlternativeQueries)
	}

	// Steps 4-5: run text + vector search for the original and every
	// alternative query, collecting weighted ranked lists.
	var lists []WeightedList

	textWeight := WeightOriginalText
	if relaxed {
		textWeight = WeightOriginalTextRelaxed
	}
	lists = append(lists, WeightedList{ChunkIDs: hitIDs(textHits), Weight: textWeight})

	vectorAvailable := e.vectors != nil && e.embedder != nil
	if vectorAvailable {
		if vec, embedErr := e.embedder.EmbedQuery(ctx, query); embedErr == nil {
			if vresults, searchErr := e.vectors.Search(ctx, vec, limit); searchErr == nil {
				lists = append(lists, WeightedList{ChunkIDs: vectorResultIDs(vresults), Weight: WeightOriginalVector})
			}
		}
	}

	altWeight := WeightAlternative
	if relaxed {
		altWeight = WeightAlternativeRelaxed
	}
	for _, alt := range alternatives {
		altHits, err := e.text.Search(ctx, andQuery(alt), limit)
		if err == nil && len(altHits) > 0 {
			lists = append(lists, WeightedList{ChunkIDs: hitIDs(altHits), Weight: altWeight})
		}
		if vectorAvailable {
			if vec, embedErr := e.embedder.EmbedQuery(ctx, alt); embedErr == nil {
				if vresults, searchErr := e.vectors.Search(ctx, vec, limit); searchErr == nil {
					lists = append(lists, WeightedList{ChunkIDs: vectorResultIDs(vresults), Weight: altWeight})
				}
			}
		}
	}

	// Step 6: RRF fusion.
	fused := e.fusion.Fuse(lists)
	if len(fused) > limit*4 {
		fused = fused[:limit*4] // cap candidate pool before the keyword-boost pass fetches chunks
	}

	// Step 7: keyword boost pass, fetch chunk rows as we go.
	terms := boostTerms(query)
	results := make([]*Result, 0, len(fused))
	for _, f := range fused {
		chunk, err := e.library.GetChunk(ctx, f.ChunkID)
		if err != nil {
			continue
		}
		score := f.RRFScore + keywordBoost(chunk, terms)
		results = append(results, e.toResult(chunk, score))
	}

	// Step 8: sort, truncate, compute confidence.
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	applyConfidence(results)
	return results, nil
}

func hitIDs(hits []*store.SearchHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

// isStrongSignal reports spec §4.6 step 2's strong-signal condition: top
// score at or above StrongSignalScore and, if a second result exists, a
// gap to it of at least StrongSignalGap.
func isStrongSignal(hits []*store.SearchHit) bool {
	if len(hits) == 0 || hits[0].Score < StrongSignalScore {
		return false
	}
	if len(hits) == 1 {
		return true
	}
	return hits[0].Score-hits[1].Score >= StrongSignalGap
}

// andQuery builds a conjunctive FTS5 MATCH expression from a raw query,
// stripping everything but word characters so the resulting string is
// always syntactically valid FTS5.
func andQuery(query string) string {
	return strings.Join(tokenize(query), " AND ")
}

// relaxedQuery builds a disjunctive, prefix-matching FTS5 MATCH
// expression, used when the exact conjunctive query returns nothing.
func relaxedQuery(query string) string {
	terms := tokenize(query)
	prefixed := make([]string, len(terms))
	for i, t := range terms {
		prefixed[i] = t + "*"
	}
	return strings.Join(prefixed, " OR ")
}

// boostTerms returns the query terms eligible for the keyword boost:
// at least 3 letters and not a stop word.
func boostTerms(query string) []string {
	var out []string
	for _, t := range tokenize(query) {
		if len(t) >= 3 && !isSearchStopWord(strings.ToLower(t)) {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

var searchStopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"with": {}, "this": {}, "that": {}, "from": {}, "have": {}, "how": {}, "what": {},
	"does": {}, "can": {}, "use": {}, "get": {},
}

func isSearchStopWord(term string) bool {
	_, ok := searchStopWords[term]
	return ok
}

// keywordBoost implements spec §4.6 step 7: up to KeywordBoostMax,
// weighted by where an exact substring match occurs — path found
// outweighs title, title outweighs context (breadcrumb), context
// outweighs preview.
func keywordBoost(chunk *store.Chunk, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	const (
		pathWeight    = 1.0
		titleWeight   = 0.8
		contextWeight = 0.6
		previewWeight = 0.4
	)
	maxWeight := pathWeight + titleWeight + contextWeight + previewWeight

	path := strings.ToLower(chunk.DocPath)
	title := strings.ToLower(chunk.DocTitle)
	context := strings.ToLower(chunk.Breadcrumb)
	preview := strings.ToLower(chunk.Preview)

	var hit float64
	for _, term := range terms {
		var perTerm float64
		if strings.Contains(path, term) {
			perTerm += pathWeight
		}
		if strings.Contains(title, term) {
			perTerm += titleWeight
		}
		if strings.Contains(context, term) {
			perTerm += contextWeight
		}
		if strings.Contains(preview, term) {
			perTerm += previewWeight
		}
		if perTerm > maxWeight {
			perTerm = maxWeight
		}
		hit += perTerm
	}

	boost := (hit / (float64(len(terms)) * maxWeight)) * KeywordBoostMax
	if boost > KeywordBoostMax {
		boost = KeywordBoostMax
	}
	return boost
}

func (e *Engine) buildResults(ctx context.Context, hits []*store.SearchHit, _ []string) ([]*Result, error) {
	scores := make(map[string]float64, len(hits))
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
		scores[h.ChunkID] = h.Score
	}
	return e.buildResultsFromScores(ctx, ids, scores)
}

func (e *Engine) buildResultsFromScores(ctx context.Context, ids []string, scores map[string]float64) ([]*Result, error) {
	results := make([]*Result, 0, len(ids))
	for _, id := range ids {
		chunk, err := e.library.GetChunk(ctx, id)
		if err != nil {
			continue
		}
		results = append(results, e.toResult(chunk, scores[id]))
	}
	applyConfidence(results)
	return results, nil
}

func (e *Engine) toResult(chunk *store.Chunk, score float64) *Result {
	return &Result{
		ChunkID:     chunk.ID,
		DocumentID:  chunk.DocumentID,
		Title:       chunk.DocTitle,
		Path:        chunk.DocPath,
		URI:         chunk.DocURI,
		SourceName:  e.sourceName,
		ContextPath: chunk.Breadcrumb,
		Slice:       fmt.Sprintf("%d-%d", chunk.LineStart, chunk.LineEnd),
		Preview:     chunk.Preview,
		TokenCount:  chunk.TokenCount,
		Score:       score,
	}
}

// applyConfidence computes spec §4.6's confidence field: each result's
// score divided by the top score, clamped to [0, 1].
func applyConfidence(results []*Result) {
	if len(results) == 0 {
		return
	}
	top := results[0].Score
	for _, r := range results {
		if top <= 0 {
			r.Confidence = 0
			continue
		}
		c := r.Score / top
		if c > 1 {
			c = 1
		}
		if c < 0 {
			c = 0
		}
		r.Confidence = c
	}
}

// Stats reports the library's current index sizes.
func (e *Engine) Stats(ctx context.Context) (*EngineStats, error) {
	stats, err := e.text.Stats(ctx)
	if err != nil {
		return nil, err
	}
	vectorCount := 0
	if e.vectors != nil {
		vectorCount = e.vectors.Count()
	}
	return &EngineStats{ChunkCount: stats.ChunkCount, VectorCount: vectorCount}, nil
}
