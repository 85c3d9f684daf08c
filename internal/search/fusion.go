// Package search provides hybrid search combining a library's text index
// and its per-model vector index, fused with Reciprocal Rank Fusion (RRF).
package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter (k=60, the
// same constant used by Azure AI Search and OpenSearch's RRF implementations).
const DefaultRRFConstant = 60

// WeightedList is one ranked result list contributed to a fusion pass —
// a text search, a vector search, or the same run against an alternative
// (expanded) query — each carrying its own weight per spec §4.6 step 5.
type WeightedList struct {
	ChunkIDs []string // rank order, best first
	Weight   float64
}

// FusedResult is one chunk's combined ranking after RRF fusion.
type FusedResult struct {
	ChunkID  string
	RRFScore float64 // raw (unnormalized) summed score + bonus
	ListHits int      // number of contributing lists this chunk appeared in
}

// RRFFusion combines arbitrarily many weighted ranked lists using
// Reciprocal Rank Fusion: RRF_score(d) = Σ weight_i / (k + rank_i).
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion instance with the default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates an RRF fusion instance with a custom k. A
// non-positive k falls back to the default.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// firstRankBonus and top3Bonus implement spec §4.6 step 6's "small bonus
// for chunks ranked first or top-3 in any list" — the spec names the
// behavior but not the magnitude, so these are chosen small enough never
// to outweigh a genuine RRF score gap between unrelated chunks.
const (
	firstRankBonus = 0.05
	top3Bonus      = 0.02
)

// Fuse combines the given weighted lists into one ranked, deduplicated
// result set, sorted by descending RRFScore with a deterministic
// (list-hit-count, then ChunkID) tie-break.
func (f *RRFFusion) Fuse(lists []WeightedList) []*FusedResult {
	scores := make(map[string]*FusedResult)
	bonused := make(map[string]bool)

	for _, list := range lists {
		for i, id := range list.ChunkIDs {
			rank := i + 1
			r, ok := scores[id]
			if !ok {
				r = &FusedResult{ChunkID: id}
				scores[id] = r
			}
			r.RRFScore += list.Weight / float64(f.K+rank)
			r.ListHits++

			if rank == 1 {
				if !bonused[id] {
					r.RRFScore += firstRankBonus
					bonused[id] = true
				}
			} else if rank <= 3 && !bonused[id] {
				r.RRFScore += top3Bonus
				bonused[id] = true
			}
		}
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return compareFused(results[i], results[j])
	})
	return results
}

// compareFused returns true if a should rank before b: higher RRF score
// first, then more contributing lists, then lexicographic ChunkID for a
// deterministic result order across identical runs.
func compareFused(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.ListHits != b.ListHits {
		return a.ListHits > b.ListHits
	}
	return a.ChunkID < b.ChunkID
}
