package engine

import (
	"context"
	"log"
	"sort"
)

// Hit is a single retrieval result: id, text, and a strategy-normalized
// score, ranked descending.
type Hit struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// FusionOpts controls the retrieval strategies.
type FusionOpts struct {
	Limit         int
	MinVectorSim  float64 // vector strategy similarity floor
	MinGraphScore float64 // graph strategy traversal-strength floor
}

func (o FusionOpts) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// SearchVector runs embedding-similarity retrieval. Backend failures
// (index not ready, embedder unavailable) degrade to an empty list —
// a retrieval miss must never fail the caller's request.
func (e *Engine) SearchVector(ctx context.Context, query string, opts FusionOpts) []Hit {
	if e.Embedder == nil {
		log.Printf("vector search: no embedder configured, returning empty")
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("vector search: embed query: %v", err)
		return nil
	}
	similar, err := e.DB.FindSimilar(vec, opts.MinVectorSim, opts.limit())
	if err != nil {
		log.Printf("vector search: %v", err)
		return nil
	}

	hits := make([]Hit, 0, len(similar))
	for _, s := range similar {
		m, err := e.DB.GetMemory(s.MemoryID)
		if err != nil || m == nil {
			continue
		}
		hits = append(hits, Hit{ID: s.MemoryID, Content: m.Content, Score: s.Score})
	}
	return hits
}

// SearchLexical runs relevance-ranked full-text retrieval. Raw scores are
// normalized by the maximum in the result set, so the top hit is 1.0.
func (e *Engine) SearchLexical(query string, opts FusionOpts) ([]Hit, error) {
	raw, err := e.DB.SearchLexical(query, opts.limit())
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	max := raw[0].Score
	for _, h := range raw {
		if h.Score > max {
			max = h.Score
		}
	}

	hits := make([]Hit, len(raw))
	for i, h := range raw {
		score := h.Score
		if max > 0 {
			score = h.Score / max
		}
		hits[i] = Hit{ID: h.ID, Content: h.Content, Score: score}
	}
	sortHits(hits)
	return hits, nil
}

// SearchGraph seeds from entities matched in the query and expands along
// relationship edges, scoring memories by traversal strength: the mention
// confidence times the product of edge confidences along the path. Paths
// below the minimum graph score are pruned.
func (e *Engine) SearchGraph(query string, opts FusionOpts) ([]Hit, error) {
	seeds, err := e.DB.FindEntitySeeds(tokenize(query))
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	minScore := opts.MinGraphScore
	if minScore <= 0 {
		minScore = 0.2
	}

	// Entity strength: seeds start at 1.0, neighbors inherit the product
	// of edge confidences. Two expansion waves keep traversal bounded.
	strength := make(map[string]float64)
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		strength[s.EntityID] = 1.0
		frontier = append(frontier, s.EntityID)
	}
	for depth := 0; depth < 2; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := e.DB.EntityNeighbors(id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				s := strength[id] * n.Confidence
				if s < minScore {
					continue
				}
				if s > strength[n.EntityID] {
					strength[n.EntityID] = s
					next = append(next, n.EntityID)
				}
			}
		}
		frontier = next
	}

	best := make(map[string]Hit)
	for entityID, s := range strength {
		mentioning, err := e.DB.MemoriesMentioning(entityID)
		if err != nil {
			return nil, err
		}
		for _, mm := range mentioning {
			score := s * mm.Confidence
			if score < minScore {
				continue
			}
			if existing, ok := best[mm.MemoryID]; !ok || score > existing.Score {
				best[mm.MemoryID] = Hit{ID: mm.MemoryID, Content: mm.Content, Score: score}
			}
		}
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sortHits(hits)
	if len(hits) > opts.limit() {
		hits = hits[:opts.limit()]
	}
	return hits, nil
}

// Search fuses all three strategies into one ranking, deduplicated by id
// with the maximum score winning, and records retrievals for the returned
// memories.
func (e *Engine) Search(ctx context.Context, query string, opts FusionOpts) ([]Hit, error) {
	best := make(map[string]Hit)
	merge := func(hits []Hit) {
		for _, h := range hits {
			if existing, ok := best[h.ID]; !ok || h.Score > existing.Score {
				best[h.ID] = h
			}
		}
	}

	merge(e.SearchVector(ctx, query, opts))

	lexical, err := e.SearchLexical(query, opts)
	if err != nil {
		return nil, err
	}
	merge(lexical)

	graph, err := e.SearchGraph(query, opts)
	if err != nil {
		return nil, err
	}
	merge(graph)

	fused := make([]Hit, 0, len(best))
	for _, h := range best {
		fused = append(fused, h)
	}
	sortHits(fused)
	if len(fused) > opts.limit() {
		fused = fused[:opts.limit()]
	}

	ids := make([]string, len(fused))
	for i, h := range fused {
		ids[i] = h.ID
	}
	if err := e.DB.RecordRetrievals(ids); err != nil {
		log.Printf("search: record retrievals: %v", err)
	}
	return fused, nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
