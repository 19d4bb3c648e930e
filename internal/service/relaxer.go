package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/stayscout/hotel-search/internal/model"
)

const (
	priceRelaxFactor   = 0.2 // widen each bound by 20%
	ratingRelaxStep    = 0.5
	relaxWorkerPoolCap = 8
)

// RelaxationPlanner runs the fixed ladder of constraint loosening that fires
// only when a strict query matched nothing. Every step widens, never
// tightens, and every applied step ends up in a human-readable note.
type RelaxationPlanner struct {
	store  RecordStore
	pool   *ants.Pool
	logger *slog.Logger
}

func NewRelaxationPlanner(store RecordStore, logger *slog.Logger) (*RelaxationPlanner, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	pool, err := ants.NewPool(relaxWorkerPoolCap)
	if err != nil {
		return nil, fmt.Errorf("failed to create relaxation worker pool: %w", err)
	}
	return &RelaxationPlanner{store: store, pool: pool, logger: logger}, nil
}

// Close releases the worker pool.
func (p *RelaxationPlanner) Close() {
	p.pool.Release()
}

// recordQuery maps a FilterSet plus orchestration extras onto a store query.
func recordQuery(f model.FilterSet, excludeIDs []int64, limit int) model.RecordQuery {
	return model.RecordQuery{
		NameLike:         f.NameLike,
		City:             f.City,
		ExcludeCity:      f.ExcludeCity,
		PriceMin:         f.PriceMin,
		PriceMax:         f.PriceMax,
		RatingMin:        f.RatingMin,
		RoomType:         f.RoomType,
		Amenities:        f.Amenities,
		ExcludeAmenities: f.ExcludeAmenities,
		ExcludeIDs:       excludeIDs,
		Limit:            limit,
	}
}

// Relax walks the ladder until a step yields records or the ladder is
// exhausted. It returns the surviving records, the filters that actually
// produced them (with RelaxationNote set), and a note for the explanation.
// Store errors on a whole step abort the ladder; failures of individual
// per-amenity sub-queries only drop that amenity's contribution.
func (p *RelaxationPlanner) Relax(ctx context.Context, original model.FilterSet, excludeIDs []int64, limit int) ([]model.HotelRecord, model.FilterSet, string, error) {
	relaxed := original
	var noteParts []string

	// Step 1: widen price window, lower the rating floor.
	if original.PriceMax != nil || original.PriceMin != nil || original.RatingMin != nil {
		if original.PriceMax != nil {
			v := *original.PriceMax * (1 + priceRelaxFactor)
			relaxed.PriceMax = &v
			noteParts = append(noteParts, fmt.Sprintf("relaxed budget from $%.0f to $%.0f", *original.PriceMax, v))
		}
		if original.PriceMin != nil {
			v := *original.PriceMin * (1 - priceRelaxFactor)
			relaxed.PriceMin = &v
			noteParts = append(noteParts, fmt.Sprintf("relaxed minimum price from $%.0f to $%.0f", *original.PriceMin, v))
		}
		if original.RatingMin != nil {
			v := *original.RatingMin - ratingRelaxStep
			if v < 0 {
				v = 0
			}
			relaxed.RatingMin = &v
			noteParts = append(noteParts, fmt.Sprintf("relaxed rating from %.1f to %.1f", *original.RatingMin, v))
		}

		records, err := p.store.FetchRecords(ctx, recordQuery(relaxed, excludeIDs, limit))
		if err != nil {
			return nil, original, "", fmt.Errorf("relaxation step price/rating: %w", err)
		}
		if len(records) > 0 {
			return p.done(records, relaxed, noteParts)
		}
	}

	// Step 2: drop the amenity constraint entirely and over-fetch so the
	// ranker can still surface the closest matches semantically.
	if len(original.Amenities) > 0 {
		noAmenities := relaxed
		noAmenities.Amenities = nil
		records, err := p.store.FetchRecords(ctx, recordQuery(noAmenities, excludeIDs, limit*2))
		if err != nil {
			return nil, original, "", fmt.Errorf("relaxation step amenities: %w", err)
		}
		if len(records) > 0 {
			noteParts = append(noteParts, fmt.Sprintf("broadening the search to find the best matches for %s", strings.Join(original.Amenities, ", ")))
			return p.done(records, noAmenities, noteParts)
		}
	}

	// Step 3: a brand query scoped to a city goes global on the name.
	if original.NameLike != nil && original.City != nil {
		nameOnly := model.FilterSet{NameLike: original.NameLike}
		records, err := p.store.FetchRecords(ctx, recordQuery(nameOnly, excludeIDs, limit))
		if err != nil {
			return nil, original, "", fmt.Errorf("relaxation step global name: %w", err)
		}
		if len(records) > 0 {
			noteParts = append(noteParts, fmt.Sprintf("searching globally for '%s'", *original.NameLike))
			return p.done(records, nameOnly, noteParts)
		}
	}

	// Step 4: with several required amenities, try each one alone and union
	// the results. Sub-queries run concurrently; one failing just loses its
	// amenity's candidates.
	if len(original.Amenities) > 1 {
		records := p.unionByAmenity(ctx, relaxed, original.Amenities, excludeIDs, limit)
		if len(records) > 0 {
			anyOf := relaxed
			anyOf.Amenities = nil
			noteParts = append(noteParts, fmt.Sprintf("showing hotels with at least one of: %s", strings.Join(original.Amenities, ", ")))
			return p.done(records, anyOf, noteParts)
		}
	}

	// Step 5: the city itself was the blocker; keep the price constraints
	// and search everywhere else.
	if original.City != nil && (original.PriceMin != nil || original.PriceMax != nil) {
		global := relaxed
		global.City = nil
		records, err := p.store.FetchRecords(ctx, recordQuery(global, excludeIDs, limit))
		if err != nil {
			return nil, original, "", fmt.Errorf("relaxation step global price: %w", err)
		}
		if len(records) > 0 {
			priceDesc := ""
			if original.PriceMin != nil {
				priceDesc = fmt.Sprintf("over $%.0f", *original.PriceMin)
			} else if original.PriceMax != nil {
				priceDesc = fmt.Sprintf("under $%.0f", *original.PriceMax)
			}
			noteParts = append(noteParts, fmt.Sprintf("no hotels found in %s %s; showing results from other cities", *original.City, priceDesc))
			return p.done(records, global, noteParts)
		}
	}

	return nil, original, "", nil
}

func (p *RelaxationPlanner) done(records []model.HotelRecord, applied model.FilterSet, noteParts []string) ([]model.HotelRecord, model.FilterSet, string, error) {
	note := "Note: " + strings.Join(noteParts, " and ")
	applied.RelaxationNote = note
	p.logger.Info("relaxation produced results", "count", len(records), "note", note)
	return records, applied, note, nil
}

// unionByAmenity fetches candidates for each amenity separately and merges
// them, de-duplicating by hotel ID while preserving first-seen order.
func (p *RelaxationPlanner) unionByAmenity(ctx context.Context, base model.FilterSet, amenities []string, excludeIDs []int64, limit int) []model.HotelRecord {
	perAmenity := make([][]model.HotelRecord, len(amenities))

	var wg sync.WaitGroup
	for i, amenity := range amenities {
		i, amenity := i, amenity
		wg.Add(1)
		task := func() {
			defer wg.Done()
			single := base
			single.NameLike = nil
			single.Amenities = []string{amenity}
			records, err := p.store.FetchRecords(ctx, recordQuery(single, excludeIDs, limit))
			if err != nil {
				p.logger.Warn("partial amenity query failed, dropping its results", "amenity", amenity, "error", err)
				return
			}
			perAmenity[i] = records
		}
		if err := p.pool.Submit(task); err != nil {
			// Pool exhausted or released: run inline rather than lose the step.
			task()
		}
	}
	wg.Wait()

	seen := make(map[int64]bool)
	var merged []model.HotelRecord
	for _, records := range perAmenity {
		for _, r := range records {
			if !seen[r.ID] {
				merged = append(merged, r)
				seen[r.ID] = true
			}
		}
	}
	return merged
}
