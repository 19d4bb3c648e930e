package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/stayscout/hotel-search/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory RecordStore that applies the same filter
// semantics as the SQL repository, and records every query it sees.
type fakeStore struct {
	mu         sync.Mutex
	records    []model.HotelRecord
	cities     []string
	amenities  []string
	fetchCalls    []model.RecordQuery
	fetchFn       func(model.RecordQuery) ([]model.HotelRecord, error)
	logCalls      int
	cityListCalls int
}

func (f *fakeStore) FetchRecords(_ context.Context, q model.RecordQuery) ([]model.HotelRecord, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, q)
	fn := f.fetchFn
	f.mu.Unlock()

	if fn != nil {
		return fn(q)
	}

	var out []model.HotelRecord
	for _, r := range f.records {
		if matchesQuery(q, r) {
			out = append(out, r)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesQuery(q model.RecordQuery, r model.HotelRecord) bool {
	if q.NameLike != nil && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(*q.NameLike)) {
		return false
	}
	if q.City != nil && !strings.EqualFold(r.City, *q.City) {
		return false
	}
	if q.ExcludeCity != nil && strings.EqualFold(r.City, *q.ExcludeCity) {
		return false
	}
	if q.PriceMin != nil && r.PricePerNight < *q.PriceMin {
		return false
	}
	if q.PriceMax != nil && r.PricePerNight > *q.PriceMax {
		return false
	}
	if q.RatingMin != nil && r.AverageRating < *q.RatingMin {
		return false
	}
	for _, want := range q.Amenities {
		found := false
		for _, have := range r.Amenities {
			if strings.Contains(strings.ToLower(have), strings.ToLower(want)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, excl := range q.ExcludeAmenities {
		for _, have := range r.Amenities {
			if strings.Contains(strings.ToLower(have), strings.ToLower(excl)) {
				return false
			}
		}
	}
	for _, id := range q.ExcludeIDs {
		if r.ID == id {
			return false
		}
	}
	return true
}

func (f *fakeStore) GetHotelByID(_ context.Context, id int64) (*model.HotelRecord, error) {
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListCities(context.Context) ([]string, error) {
	f.mu.Lock()
	f.cityListCalls++
	f.mu.Unlock()
	return f.cities, nil
}

func (f *fakeStore) ListAmenities(context.Context) ([]string, error) { return f.amenities, nil }
func (f *fakeStore) PriceBounds(context.Context) (float64, float64, error) {
	min, max := 0.0, 0.0
	for i, r := range f.records {
		if i == 0 || r.PricePerNight < min {
			min = r.PricePerNight
		}
		if r.PricePerNight > max {
			max = r.PricePerNight
		}
	}
	return min, max, nil
}

func (f *fakeStore) LogSearch(context.Context, string, string, model.FilterSet, int, []int64, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logCalls++
	return nil
}

func (f *fakeStore) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchCalls)
}

func (f *fakeStore) cityListCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cityListCalls
}

// fakeEmbedder maps text to vectors through a caller-supplied function and
// counts invocations per text.
type fakeEmbedder struct {
	mu    sync.Mutex
	fn    func(text string) ([]float32, error)
	calls map[string]int
}

func newFakeEmbedder(fn func(text string) ([]float32, error)) *fakeEmbedder {
	return &fakeEmbedder{fn: fn, calls: map[string]int{}}
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls[text]++
	f.mu.Unlock()
	return f.fn(text)
}

func (f *fakeEmbedder) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// fakeRewriter returns a canned rewrite or error.
type fakeRewriter struct {
	result string
	err    error
}

func (f *fakeRewriter) RewriteQuery(_ context.Context, query string, _ []model.ConversationTurn, _ []string) (string, error) {
	if f.err != nil {
		return query, f.err
	}
	if f.result == "" {
		return query, nil
	}
	return f.result, nil
}
