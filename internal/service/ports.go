package service

import (
	"context"

	"github.com/stayscout/hotel-search/internal/model"
)

// RecordStore is the read-only record store the engine queries. The
// PostgreSQL repository satisfies it in production; tests substitute fakes.
type RecordStore interface {
	FetchRecords(ctx context.Context, q model.RecordQuery) ([]model.HotelRecord, error)
	GetHotelByID(ctx context.Context, id int64) (*model.HotelRecord, error)
	ListCities(ctx context.Context) ([]string, error)
	ListAmenities(ctx context.Context) ([]string, error)
	PriceBounds(ctx context.Context) (float64, float64, error)
	LogSearch(ctx context.Context, searchID, query string, filters model.FilterSet, resultCount int, hotelIDs []int64, tookMs int64) error
}

// Embedder turns text into a fixed-length vector. Deterministic for
// identical input, no side effects.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// QueryRewriter is the LLM-backed oracle that turns a context-dependent
// query into a standalone one. Its output is untrusted text; callers
// sanitize it and fall back to the verbatim query on any error.
type QueryRewriter interface {
	RewriteQuery(ctx context.Context, query string, history []model.ConversationTurn, knownCities []string) (string, error)
}
