package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stayscout/hotel-search/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// hotelColumns is the projection shared by every hotel query.
const hotelColumns = `
	id, hotel_name, city, country, description, base_price_per_night,
	amenities, images, average_rating, total_ratings, room_type,
	number_of_rooms, embedding, updated_at
`

// PostgresRepository is the read-only record store backing the search
// engine. Hotels are written by the surrounding booking platform; this
// repository only ever reads them (plus an append-only search log).
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository connects to PostgreSQL and verifies the connection.
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement
	// does not exist" errors behind connection poolers
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection. Used by tests.
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// FetchRecords queries hotels with all filters applied at database level.
// When no explicit sort is requested the ordering contract is rating
// descending, then rating count descending.
func (r *PostgresRepository) FetchRecords(ctx context.Context, q model.RecordQuery) ([]model.HotelRecord, error) {
	whereClauses := []string{"is_approved = 'approved'"}
	args := []interface{}{}
	argIndex := 1

	if q.NameLike != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("hotel_name ILIKE $%d", argIndex))
		args = append(args, "%"+*q.NameLike+"%")
		argIndex++
	}
	if q.City != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("LOWER(city) = LOWER($%d)", argIndex))
		args = append(args, *q.City)
		argIndex++
	}
	if q.ExcludeCity != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("LOWER(city) != LOWER($%d)", argIndex))
		args = append(args, *q.ExcludeCity)
		argIndex++
	}
	if q.PriceMin != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("base_price_per_night >= $%d", argIndex))
		args = append(args, *q.PriceMin)
		argIndex++
	}
	if q.PriceMax != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("base_price_per_night <= $%d", argIndex))
		args = append(args, *q.PriceMax)
		argIndex++
	}
	if q.RatingMin != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("average_rating >= $%d", argIndex))
		args = append(args, *q.RatingMin)
		argIndex++
	}
	if q.RatingMax != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("average_rating <= $%d", argIndex))
		args = append(args, *q.RatingMax)
		argIndex++
	}
	if q.RoomType != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("room_type ILIKE $%d", argIndex))
		args = append(args, "%"+*q.RoomType+"%")
		argIndex++
	}
	// Required amenities: every one must appear somewhere in the JSONB array
	for _, amenity := range q.Amenities {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(amenities) elem WHERE elem ILIKE $%d)", argIndex))
		args = append(args, "%"+amenity+"%")
		argIndex++
	}
	// Excluded amenities: none may appear
	for _, amenity := range q.ExcludeAmenities {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM jsonb_array_elements_text(amenities) elem WHERE elem ILIKE $%d)", argIndex))
		args = append(args, "%"+amenity+"%")
		argIndex++
	}
	if len(q.ExcludeIDs) > 0 {
		whereClauses = append(whereClauses, fmt.Sprintf("id != ALL($%d)", argIndex))
		args = append(args, pq.Array(q.ExcludeIDs))
		argIndex++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM hotel_hotel
		WHERE %s
		ORDER BY average_rating DESC, total_ratings DESC
		LIMIT $%d OFFSET $%d
	`, hotelColumns, strings.Join(whereClauses, " AND "), argIndex, argIndex+1)
	args = append(args, limit, q.Offset)

	var records []model.HotelRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch hotels: %w", err)
	}

	return records, nil
}

// GetHotelByID retrieves a single approved hotel, or nil when absent.
func (r *PostgresRepository) GetHotelByID(ctx context.Context, id int64) (*model.HotelRecord, error) {
	var record model.HotelRecord
	query := fmt.Sprintf(`
		SELECT %s
		FROM hotel_hotel
		WHERE id = $1 AND is_approved = 'approved'
	`, hotelColumns)
	err := r.db.GetContext(ctx, &record, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get hotel: %w", err)
	}
	return &record, nil
}

// ListCities returns all distinct cities with at least one approved hotel.
func (r *PostgresRepository) ListCities(ctx context.Context) ([]string, error) {
	var cities []string
	query := `
		SELECT DISTINCT TRIM(city)
		FROM hotel_hotel
		WHERE is_approved = 'approved' AND city IS NOT NULL AND TRIM(city) != ''
		ORDER BY 1
	`
	if err := r.db.SelectContext(ctx, &cities, query); err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	return cities, nil
}

// ListAmenities returns all distinct amenity tags across approved hotels.
func (r *PostgresRepository) ListAmenities(ctx context.Context) ([]string, error) {
	var amenities []string
	query := `
		SELECT DISTINCT jsonb_array_elements_text(amenities)
		FROM hotel_hotel
		WHERE is_approved = 'approved' AND amenities IS NOT NULL
		ORDER BY 1
	`
	if err := r.db.SelectContext(ctx, &amenities, query); err != nil {
		return nil, fmt.Errorf("failed to list amenities: %w", err)
	}
	return amenities, nil
}

// PriceBounds returns the current nightly-price range across approved
// hotels, grounding what "cheap" and "expensive" mean right now.
func (r *PostgresRepository) PriceBounds(ctx context.Context) (float64, float64, error) {
	var bounds struct {
		Min *float64 `db:"min"`
		Max *float64 `db:"max"`
	}
	query := `
		SELECT MIN(base_price_per_night) AS min, MAX(base_price_per_night) AS max
		FROM hotel_hotel
		WHERE is_approved = 'approved'
	`
	if err := r.db.GetContext(ctx, &bounds, query); err != nil {
		return 0, 0, fmt.Errorf("failed to get price bounds: %w", err)
	}
	min, max := 0.0, 0.0
	if bounds.Min != nil {
		min = *bounds.Min
	}
	if bounds.Max != nil {
		max = *bounds.Max
	}
	return min, max, nil
}

// LogSearch appends one row to the search log. Callers fire it in a
// goroutine and ignore the error beyond logging.
func (r *PostgresRepository) LogSearch(ctx context.Context, searchID, query string, filters model.FilterSet, resultCount int, hotelIDs []int64, tookMs int64) error {
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	logQuery := `
		INSERT INTO search_logs (search_id, query, applied_filters, result_count, returned_hotel_ids, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, logQuery, searchID, query, filtersJSON, resultCount, pq.Array(hotelIDs), tookMs)
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}
