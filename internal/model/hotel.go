package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// HotelRecord is a read-only view of a hotel as stored in the record store.
// The search engine never mutates it.
type HotelRecord struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"hotel_name" db:"hotel_name"`
	City          string    `json:"city" db:"city"`
	Country       string    `json:"country" db:"country"`
	Description   string    `json:"description" db:"description"`
	PricePerNight float64   `json:"base_price_per_night" db:"base_price_per_night"`
	Amenities     JSONArray `json:"amenities" db:"amenities"`
	Images        JSONArray `json:"images" db:"images"`
	AverageRating float64   `json:"average_rating" db:"average_rating"`
	TotalRatings  int       `json:"total_ratings" db:"total_ratings"`
	RoomType      string    `json:"room_type" db:"room_type"`
	NumberOfRooms int       `json:"number_of_rooms" db:"number_of_rooms"`
	Embedding     Vector    `json:"-" db:"embedding"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// RankedResult is a hotel plus the scores the ranker attached to it.
// SimilarityScore is the cosine similarity between the query embedding and
// the hotel-text embedding; CompositeScore is the weighted blend of the
// normalized rating and the similarity.
type RankedResult struct {
	HotelRecord
	SimilarityScore float64 `json:"similarity_score"`
	CompositeScore  float64 `json:"composite_score"`
	MatchReason     string  `json:"match_reason"`
}

// Vector maps a nullable pgvector column. Hotels ingested before the
// embedding backfill carry NULL; they scan as an invalid Vector and the
// ranker embeds their text on demand instead.
type Vector struct {
	pgvector.Vector
	Valid bool
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		v.Vector = pgvector.Vector{}
		v.Valid = false
		return nil
	}
	if err := v.Vector.Scan(value); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if !v.Valid {
		return nil, nil
	}
	return v.Vector.Value()
}

// JSONArray maps a JSONB string array column.
type JSONArray []string

// Value implements driver.Valuer.
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner.
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), j)
	}
	return json.Unmarshal(bytes, j)
}
