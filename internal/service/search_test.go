package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayscout/hotel-search/internal/config"
	"github.com/stayscout/hotel-search/internal/model"
)

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{TopK: 5, CandidateLimit: 10, MaxLimit: 50}
}

func newTestSearchService(t *testing.T, store *fakeStore) *SearchService {
	t.Helper()
	relaxer, err := NewRelaxationPlanner(store, testLogger())
	require.NoError(t, err)
	t.Cleanup(relaxer.Close)

	ranker, err := NewSemanticRanker(nil, nil, testRankingConfig(), testLogger())
	require.NoError(t, err)
	t.Cleanup(ranker.Close)

	svc, err := NewSearchService(
		store,
		NewFilterExtractor(testLogger()),
		NewContextResolver(nil, testLogger()),
		relaxer,
		ranker,
		testSearchConfig(),
		testLogger(),
	)
	require.NoError(t, err)
	return svc
}

func sydneyCatalog() []model.HotelRecord {
	return []model.HotelRecord{
		{ID: 1, Name: "Harbour View", City: "Sydney", PricePerNight: 180, AverageRating: 8.4, Amenities: model.JSONArray{"Pool", "Gym"}},
		{ID: 2, Name: "Quay Stay", City: "Sydney", PricePerNight: 120, AverageRating: 7.1, Amenities: model.JSONArray{"Free Wi-Fi"}},
		{ID: 3, Name: "Hilton Sydney", City: "Sydney", PricePerNight: 320, AverageRating: 9.0, Amenities: model.JSONArray{"Pool", "Spa"}},
		{ID: 4, Name: "Budget Beds", City: "Sydney", PricePerNight: 70, AverageRating: 6.2},
	}
}

func TestSearchInvalidPriceIssuesNoStoreQueries(t *testing.T) {
	store := &fakeStore{cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels under $0"})

	assert.Empty(t, resp.Results)
	assert.True(t, resp.AppliedFilters.Invalid)
	assert.Contains(t, resp.Explanation, "too low")
	assert.Equal(t, 0, store.fetchCount(), "invalid queries must never reach the store")
}

func TestSearchUnknownCityIssuesNoStoreQueries(t *testing.T) {
	store := &fakeStore{cities: []string{"Sydney", "Melbourne"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Atlantis"})

	assert.Empty(t, resp.Results)
	assert.True(t, resp.AppliedFilters.Invalid)
	assert.Contains(t, resp.Explanation, "not found")
	assert.Equal(t, 0, store.fetchCount())
}

func TestSearchHappyPath(t *testing.T) {
	store := &fakeStore{records: sydneyCatalog(), cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney"})

	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.AppliedFilters.Invalid)
	require.NotNil(t, resp.AppliedFilters.City)
	assert.Equal(t, "Sydney", *resp.AppliedFilters.City)
	assert.Contains(t, resp.Explanation, "city=Sydney")
	assert.NotEmpty(t, resp.SearchID)

	// Without an embedder the ranking is rating-driven.
	assert.Equal(t, int64(3), resp.Results[0].ID)

	// The session returns the shown IDs and the full candidate list.
	assert.Len(t, resp.Session.LastHotels, 4)
	assert.Len(t, resp.Session.ShownIDs, len(resp.Results))
}

func TestSearchTruncatesToTopK(t *testing.T) {
	var records []model.HotelRecord
	for i := 1; i <= 9; i++ {
		records = append(records, model.HotelRecord{
			ID: int64(i), Name: fmt.Sprintf("Hotel %d", i), City: "Sydney",
			PricePerNight: float64(100 + i), AverageRating: float64(i),
		})
	}
	store := &fakeStore{records: records, cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney"})
	assert.Len(t, resp.Results, 5)

	resp = svc.Search(context.Background(), model.SearchRequest{
		Query:   "hotels in Sydney",
		Options: &model.SearchOptions{TopK: 2},
	})
	assert.Len(t, resp.Results, 2)
}

func TestSearchExcludesShownIDsOnFreshSearch(t *testing.T) {
	store := &fakeStore{records: sydneyCatalog(), cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{
		Query:   "hotels in Sydney",
		Session: model.SessionMemory{ShownIDs: []int64{1, 3}},
	})

	for _, r := range resp.Results {
		assert.NotContains(t, []int64{1, 3}, r.ID)
	}
	require.NotEmpty(t, store.fetchCalls)
	assert.Equal(t, []int64{1, 3}, store.fetchCalls[0].ExcludeIDs)
}

func TestSearchNameFilterBypassesShownIDs(t *testing.T) {
	store := &fakeStore{records: sydneyCatalog(), cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{
		Query:   "Hilton hotels in Sydney",
		Session: model.SessionMemory{ShownIDs: []int64{3}},
	})

	require.NotEmpty(t, resp.Results)
	assert.Equal(t, int64(3), resp.Results[0].ID, "a brand search must see already-shown hotels")
	require.NotEmpty(t, store.fetchCalls)
	assert.Empty(t, store.fetchCalls[0].ExcludeIDs)
}

func TestSearchRefinementSortsByPrice(t *testing.T) {
	store := &fakeStore{records: sydneyCatalog(), cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	// Turn 1: fresh search.
	first := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney"})
	require.NotEmpty(t, first.Results)

	// Turn 2: refinement over the same candidates.
	second := svc.Search(context.Background(), model.SearchRequest{
		Query:   "which is cheapest?",
		Session: first.Session,
	})

	assert.True(t, second.IsRefinement)
	assert.Contains(t, second.ResolvedQuery, "in Sydney")
	require.NotEmpty(t, second.Results)
	assert.Equal(t, int64(4), second.Results[0].ID, "cheapest hotel first")
	for i := 1; i < len(second.Results); i++ {
		assert.GreaterOrEqual(t, second.Results[i].PricePerNight, second.Results[i-1].PricePerNight)
	}
}

func TestSearchRelaxationNoteSurfacesAsExplanation(t *testing.T) {
	store := &fakeStore{records: sydneyCatalog(), cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	// $55 relaxes to $66, still under the cheapest hotel at $70: the
	// ladder exhausts. $65 relaxes to $78 and matches.
	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney under $55"})

	assert.Empty(t, resp.Results)
	assert.Equal(t, noResultsExplanation, resp.Explanation)

	resp = svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney under $65"})
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Explanation, "relaxed budget from $65 to $78")
	assert.Contains(t, resp.Results[0].MatchReason, "Note:")
}

func TestSearchStoreFailureReturnsApology(t *testing.T) {
	store := &fakeStore{cities: []string{"Sydney"}}
	store.fetchFn = func(model.RecordQuery) ([]model.HotelRecord, error) {
		return nil, fmt.Errorf("connection refused")
	}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney"})

	assert.Empty(t, resp.Results)
	assert.Equal(t, searchFailedExplanation, resp.Explanation)
}

func TestSearchLoadsDiscoveryOnceForEmptyCatalog(t *testing.T) {
	store := &fakeStore{} // no hotels, no cities
	svc := newTestSearchService(t, store)

	svc.Search(context.Background(), model.SearchRequest{Query: "hotels with pool"})
	svc.Search(context.Background(), model.SearchRequest{Query: "hotels with pool"})

	assert.Equal(t, 1, store.cityListCount(), "an empty city list is still a loaded city list")
}

func TestSearchNoMatchesReturnsEmptyWithExplanation(t *testing.T) {
	store := &fakeStore{cities: []string{"Sydney"}}
	svc := newTestSearchService(t, store)

	resp := svc.Search(context.Background(), model.SearchRequest{Query: "hotels in Sydney with pool"})

	assert.Empty(t, resp.Results)
	assert.Equal(t, noResultsExplanation, resp.Explanation)
}
