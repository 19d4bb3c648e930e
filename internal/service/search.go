package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stayscout/hotel-search/internal/config"
	"github.com/stayscout/hotel-search/internal/model"
)

const (
	noResultsExplanation    = "No hotels found matching your criteria."
	searchFailedExplanation = "Sorry, the search failed on our side. Please try again."
)

// SearchService sequences the full pipeline: resolve context, extract
// filters, query the store, relax if empty, rank, truncate. It holds no
// per-session state; everything multi-turn travels in the request and
// response.
type SearchService struct {
	store     RecordStore
	extractor *FilterExtractor
	resolver  *ContextResolver
	relaxer   *RelaxationPlanner
	ranker    *SemanticRanker
	cfg       config.SearchConfig
	logger    *slog.Logger

	// Discovery metadata cached after the first successful load. An empty
	// catalog still counts as loaded.
	mu             sync.RWMutex
	discoveryDone  bool
	knownCities    []string
	knownAmenities []string
}

func NewSearchService(
	store RecordStore,
	extractor *FilterExtractor,
	resolver *ContextResolver,
	relaxer *RelaxationPlanner,
	ranker *SemanticRanker,
	cfg config.SearchConfig,
	logger *slog.Logger,
) (*SearchService, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	return &SearchService{
		store:     store,
		extractor: extractor,
		resolver:  resolver,
		relaxer:   relaxer,
		ranker:    ranker,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Search runs one query through the pipeline. It never returns an error:
// invalid input, empty catalogs, and even store outages all become a
// well-formed response with an explanation. The caller classifies
// greetings and small talk upstream; only genuine search intents belong
// here.
func (s *SearchService) Search(ctx context.Context, req model.SearchRequest) (resp *model.SearchResponse) {
	start := time.Now()
	searchID := uuid.NewString()
	session := req.Session

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("search panicked", "search_id", searchID, "panic", r)
			resp = &model.SearchResponse{
				SearchID:    searchID,
				Results:     []model.RankedResult{},
				Explanation: searchFailedExplanation,
				Session:     session,
				Took:        time.Since(start).Milliseconds(),
			}
		}
	}()

	cities, amenities := s.discovery(ctx)

	resolved, isRefinement := s.resolver.Resolve(ctx, req.Query, req.History, session.LastHotels, cities)
	filters := s.extractor.Extract(resolved, cities, amenities)

	respond := func(results []model.RankedResult, explanation string) *model.SearchResponse {
		return &model.SearchResponse{
			SearchID:       searchID,
			Results:        results,
			AppliedFilters: filters,
			Explanation:    explanation,
			IsRefinement:   isRefinement,
			ResolvedQuery:  resolved,
			Session:        session,
			Took:           time.Since(start).Milliseconds(),
		}
	}

	// An impossible constraint short-circuits before any store query.
	if filters.Invalid {
		s.logger.Warn("invalid query rejected", "search_id", searchID, "reason", filters.InvalidReason)
		s.logSearchAsync(searchID, req.Query, filters, nil, time.Since(start))
		return respond([]model.RankedResult{}, filters.InvalidReason)
	}

	// Already-shown hotels are excluded on fresh searches only. A brand
	// query must always see the full catalog, and a refinement must be able
	// to re-rank what was already on the table.
	var excludeIDs []int64
	if filters.NameLike == nil && !isRefinement {
		excludeIDs = session.ShownIDs
	}

	offset := 0
	if req.Options != nil && req.Options.Offset > 0 {
		offset = req.Options.Offset
	}

	query := recordQuery(filters, excludeIDs, s.cfg.CandidateLimit)
	query.Offset = offset
	records, err := s.store.FetchRecords(ctx, query)
	if err != nil {
		s.logger.Error("record store query failed", "search_id", searchID, "error", err)
		return respond([]model.RankedResult{}, searchFailedExplanation)
	}

	relaxationNote := ""
	if len(records) == 0 && s.relaxer != nil {
		var applied model.FilterSet
		records, applied, relaxationNote, err = s.relaxer.Relax(ctx, filters, excludeIDs, s.cfg.CandidateLimit)
		if err != nil {
			s.logger.Error("relaxation failed", "search_id", searchID, "error", err)
			return respond([]model.RankedResult{}, searchFailedExplanation)
		}
		if len(records) > 0 {
			filters = applied
		}
	}

	if len(records) == 0 {
		s.logSearchAsync(searchID, req.Query, filters, nil, time.Since(start))
		return respond([]model.RankedResult{}, noResultsExplanation)
	}

	baseReason := relaxationNote
	if baseReason == "" {
		baseReason = criteriaReason(filters)
	}

	var ranked []model.RankedResult
	if cue := RefinementSortCue(resolved); isRefinement && cue != SortNone {
		ranked = s.ranker.SortRefined(cue, records, baseReason)
	} else {
		ranked = s.ranker.Rank(ctx, resolved, records, baseReason)
	}

	topK := s.cfg.TopK
	if req.Options != nil && req.Options.TopK > 0 {
		topK = req.Options.TopK
	}
	if s.cfg.MaxLimit > 0 && topK > s.cfg.MaxLimit {
		topK = s.cfg.MaxLimit
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	// The session carries the full candidate list for refinements, and the
	// shown set grows by what this turn actually displayed.
	session.LastHotels = records
	session.ShownIDs = mergeShownIDs(req.Session.ShownIDs, ranked)

	explanation := relaxationNote
	if explanation == "" {
		explanation = criteriaReason(filters)
	}

	s.logSearchAsync(searchID, req.Query, filters, ranked, time.Since(start))
	s.logger.Info("search completed",
		"search_id", searchID,
		"query", req.Query,
		"resolved_query", resolved,
		"is_refinement", isRefinement,
		"candidates", len(records),
		"returned", len(ranked),
		"took_ms", time.Since(start).Milliseconds(),
	)
	return respond(ranked, explanation)
}

// GetHotel returns a single approved hotel, or nil when absent.
func (s *SearchService) GetHotel(ctx context.Context, id int64) (*model.HotelRecord, error) {
	return s.store.GetHotelByID(ctx, id)
}

// Cities returns the known-city list for discovery endpoints.
func (s *SearchService) Cities(ctx context.Context) ([]string, error) {
	cities, _ := s.discovery(ctx)
	if cities == nil {
		cities = []string{}
	}
	return cities, nil
}

// criteriaReason summarizes the filters that produced a result set, used as
// the default match reason and explanation when nothing was relaxed.
func criteriaReason(f model.FilterSet) string {
	var parts []string
	if f.City != nil {
		parts = append(parts, "city="+*f.City)
	}
	if f.NameLike != nil {
		parts = append(parts, "name="+*f.NameLike)
	}
	if f.PriceMax != nil {
		parts = append(parts, fmt.Sprintf("budget < $%.0f", *f.PriceMax))
	}
	if f.PriceMin != nil {
		parts = append(parts, fmt.Sprintf("price > $%.0f", *f.PriceMin))
	}
	if f.RatingMin != nil {
		parts = append(parts, fmt.Sprintf("rating > %.1f", *f.RatingMin))
	}
	if len(f.Amenities) > 0 {
		parts = append(parts, "amenities="+strings.Join(f.Amenities, ","))
	}
	if len(parts) == 0 {
		return "Matched by criteria: Top recommendations"
	}
	return "Matched by criteria: " + strings.Join(parts, ", ")
}

func mergeShownIDs(previous []int64, shown []model.RankedResult) []int64 {
	seen := make(map[int64]bool, len(previous)+len(shown))
	merged := make([]int64, 0, len(previous)+len(shown))
	for _, id := range previous {
		if !seen[id] {
			merged = append(merged, id)
			seen[id] = true
		}
	}
	for _, r := range shown {
		if !seen[r.ID] {
			merged = append(merged, r.ID)
			seen[r.ID] = true
		}
	}
	return merged
}

// discovery returns the known cities and amenity tags, loading them from
// the store once and caching. A failed load logs and returns what we have;
// the extractor falls back to its built-in vocabulary.
func (s *SearchService) discovery(ctx context.Context) ([]string, []string) {
	s.mu.RLock()
	if s.discoveryDone {
		cities, amenities := s.knownCities, s.knownAmenities
		s.mu.RUnlock()
		return cities, amenities
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discoveryDone {
		return s.knownCities, s.knownAmenities
	}

	loaded, err := s.store.ListCities(ctx)
	if err != nil {
		// Not cached: the next request retries the load.
		s.logger.Warn("failed to load city list, using built-in fallback", "error", err)
		return s.knownCities, s.knownAmenities
	}
	s.knownCities = loaded

	if tags, err := s.store.ListAmenities(ctx); err != nil {
		s.logger.Warn("failed to load amenity list", "error", err)
	} else {
		s.knownAmenities = tags
	}
	s.discoveryDone = true
	return s.knownCities, s.knownAmenities
}

// logSearchAsync appends to the search log without blocking the response.
func (s *SearchService) logSearchAsync(searchID, query string, filters model.FilterSet, results []model.RankedResult, took time.Duration) {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.LogSearch(ctx, searchID, query, filters, len(ids), ids, took.Milliseconds()); err != nil {
			s.logger.Warn("failed to log search", "search_id", searchID, "error", err)
		}
	}()
}
