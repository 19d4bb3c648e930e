package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/stayscout/hotel-search/internal/config"
	"github.com/stayscout/hotel-search/internal/model"
)

// EmbeddingCache memoizes hotel-text embeddings across searches. It is a
// deliberately simple bounded map: once it grows past capacity it is flushed
// wholesale, which keeps the hot path to one lock and no bookkeeping.
type EmbeddingCache struct {
	mu       sync.Mutex
	entries  map[string][]float32
	capacity int
}

func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &EmbeddingCache{
		entries:  make(map[string][]float32),
		capacity: capacity,
	}
}

func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.entries[key]
	return vec, ok
}

func (c *EmbeddingCache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > c.capacity {
		c.entries = make(map[string][]float32)
	}
	c.entries[key] = vec
}

// Len returns the current entry count.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const rankWorkerPoolCap = 8

// SemanticRanker orders candidate records by a weighted blend of their
// store rating and their embedding similarity to the query. It degrades to
// rating-only ordering when the embedder is missing or failing; ranking
// never fails a search.
type SemanticRanker struct {
	embedder Embedder
	cache    *EmbeddingCache
	cfg      config.RankingConfig
	pool     *ants.Pool
	logger   *slog.Logger
}

func NewSemanticRanker(embedder Embedder, cache *EmbeddingCache, cfg config.RankingConfig, logger *slog.Logger) (*SemanticRanker, error) {
	pool, err := ants.NewPool(rankWorkerPoolCap)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking worker pool: %w", err)
	}
	if cache == nil {
		cache = NewEmbeddingCache(cfg.CacheCapacity)
	}
	return &SemanticRanker{
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Close releases the worker pool.
func (r *SemanticRanker) Close() {
	r.pool.Release()
}

// hotelText is the canonical text embedded per hotel. Keep it in sync with
// the cache key: a changed name changes both.
func hotelText(h *model.HotelRecord) string {
	return h.Name + " " + h.City + " " + h.Description + " " + strings.Join(h.Amenities, " ")
}

func cacheKey(h *model.HotelRecord) string {
	return fmt.Sprintf("%d_%s", h.ID, h.Name)
}

// Rank scores and orders the records. baseReason is the filter-derived match
// reason; semantic tiers replace it unless it carries a relaxation note, in
// which case the note is preserved and annotated with the relevance.
func (r *SemanticRanker) Rank(ctx context.Context, query string, records []model.HotelRecord, baseReason string) []model.RankedResult {
	results := make([]model.RankedResult, len(records))
	for i := range records {
		results[i] = model.RankedResult{
			HotelRecord:     records[i],
			SimilarityScore: -1, // sentinel: no similarity computed
			MatchReason:     baseReason,
		}
	}

	if r.embedder != nil {
		if queryVec, err := r.embedder.EmbedText(ctx, query); err != nil {
			r.logger.Warn("query embedding failed, falling back to rating-only ranking", "error", err)
		} else {
			r.scoreSimilarity(ctx, queryVec, results)
			r.annotateReasons(query, results, baseReason)
		}
	}

	for i := range results {
		results[i].CompositeScore = r.composite(&results[i])
		if results[i].SimilarityScore < 0 {
			results[i].SimilarityScore = r.cfg.NeutralSimilarity
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompositeScore > results[j].CompositeScore
	})
	return results
}

// scoreSimilarity fills SimilarityScore for each result concurrently. A
// stored embedding on the record wins outright; otherwise the hotel text is
// embedded through the cache. A failed hotel embedding just leaves that
// record at the neutral sentinel.
func (r *SemanticRanker) scoreSimilarity(ctx context.Context, queryVec []float32, results []model.RankedResult) {
	var wg sync.WaitGroup
	for i := range results {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			h := &results[i].HotelRecord

			vec := h.Embedding.Slice()
			if !h.Embedding.Valid || len(vec) == 0 {
				key := cacheKey(h)
				var ok bool
				vec, ok = r.cache.Get(key)
				if !ok {
					var err error
					vec, err = r.embedder.EmbedText(ctx, hotelText(h))
					if err != nil {
						r.logger.Warn("hotel embedding failed, using neutral similarity",
							"hotel_id", h.ID, "error", err)
						return
					}
					r.cache.Put(key, vec)
				}
			}

			if sim, ok := cosineSimilarity(queryVec, vec); ok {
				results[i].SimilarityScore = sim
			}
		}
		if err := r.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
}

// annotateReasons sets the per-record match reason from the similarity
// tiers, or appends the relevance to a relaxation note when one is present.
func (r *SemanticRanker) annotateReasons(query string, results []model.RankedResult, baseReason string) {
	queryTerms := significantTerms(query)
	hasNote := strings.Contains(baseReason, "Note:")

	for i := range results {
		sim := results[i].SimilarityScore
		if sim < 0 {
			continue
		}
		pct := int(sim * 100)

		if hasNote {
			results[i].MatchReason = fmt.Sprintf("%s (%d%% semantic relevance)", baseReason, pct)
			continue
		}

		fullText := strings.ToLower(hotelText(&results[i].HotelRecord))
		termsFound := false
		for _, t := range queryTerms {
			if strings.Contains(fullText, t) {
				termsFound = true
				break
			}
		}

		switch {
		case pct > 85 && termsFound:
			results[i].MatchReason = fmt.Sprintf("Excellent match for your request (%d%% relevance)", pct)
		case pct > 65:
			results[i].MatchReason = fmt.Sprintf("Good semantic match (%d%% relevance)", pct)
		default:
			results[i].MatchReason = fmt.Sprintf("Semantic match (%d%%)", pct)
		}
	}
}

// composite blends the normalized rating with the similarity. Unrated
// hotels get the benefit of the doubt at 5.0, and records without a
// similarity use the neutral value so one missing embedding cannot sink an
// otherwise strong candidate.
func (r *SemanticRanker) composite(res *model.RankedResult) float64 {
	rating := res.AverageRating
	if rating == 0 {
		rating = 5.0
	}
	normalizedRating := rating / 10.0

	sim := res.SimilarityScore
	if sim < 0 {
		sim = r.cfg.NeutralSimilarity
	}
	return r.cfg.RatingWeight*normalizedRating + r.cfg.SimilarityWeight*sim
}

func significantTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) > 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// SortCue is a direct-ordering override detected in refinement queries.
type SortCue int

const (
	SortNone SortCue = iota
	SortPriceAsc
	SortRatingDesc
)

var priceCueWords = []string{"cheap", "cheaper", "cheapest", "price", "low", "lowest"}
var ratingCueWords = []string{"rating", "best", "review", "reviews", "top"}

// RefinementSortCue inspects a refinement query for an explicit ordering
// request. Price wins over rating when both appear.
func RefinementSortCue(query string) SortCue {
	q := strings.ToLower(query)
	for _, w := range priceCueWords {
		if strings.Contains(q, w) {
			return SortPriceAsc
		}
	}
	for _, w := range ratingCueWords {
		if strings.Contains(q, w) {
			return SortRatingDesc
		}
	}
	return SortNone
}

// SortRefined orders the current candidates directly instead of by
// composite score. Used when a refinement asks for "cheapest" or "best
// rated" over what is already on the table.
func (r *SemanticRanker) SortRefined(cue SortCue, records []model.HotelRecord, baseReason string) []model.RankedResult {
	results := make([]model.RankedResult, len(records))
	for i := range records {
		results[i] = model.RankedResult{
			HotelRecord:     records[i],
			SimilarityScore: r.cfg.NeutralSimilarity,
			MatchReason:     baseReason,
		}
		results[i].CompositeScore = r.composite(&results[i])
	}

	switch cue {
	case SortPriceAsc:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].PricePerNight < results[j].PricePerNight
		})
	case SortRatingDesc:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].AverageRating > results[j].AverageRating
		})
	}
	return results
}
