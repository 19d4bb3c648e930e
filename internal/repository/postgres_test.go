package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayscout/hotel-search/internal/model"
)

var hotelTestColumns = []string{
	"id", "hotel_name", "city", "country", "description", "base_price_per_night",
	"amenities", "images", "average_rating", "total_ratings", "room_type",
	"number_of_rooms", "embedding", "updated_at",
}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepositoryFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleRows() *sqlmock.Rows {
	return sqlmock.NewRows(hotelTestColumns).AddRow(
		int64(1), "Harbour View", "Sydney", "Australia", "Quiet rooms near the quay",
		180.0, []byte(`["Pool","Gym"]`), []byte(`[]`), 8.4, 120, "Deluxe", 42,
		[]byte(`[0.1,0.2]`), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	)
}

func TestFetchRecordsBuildsFiltersInOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	city := "Sydney"
	maxPrice := 200.0
	mock.ExpectQuery(`SELECT(.|\s)+FROM hotel_hotel(.|\s)+WHERE is_approved = 'approved' AND LOWER\(city\) = LOWER\(\$1\) AND base_price_per_night <= \$2 AND EXISTS`).
		WithArgs("Sydney", 200.0, "%Pool%", 10, 0).
		WillReturnRows(sampleRows())

	records, err := repo.FetchRecords(context.Background(), model.RecordQuery{
		City:      &city,
		PriceMax:  &maxPrice,
		Amenities: []string{"Pool"},
		Limit:     10,
	})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Harbour View", records[0].Name)
	assert.Equal(t, model.JSONArray{"Pool", "Gym"}, records[0].Amenities)
	assert.True(t, records[0].Embedding.Valid)
	assert.Equal(t, []float32{0.1, 0.2}, records[0].Embedding.Slice())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRecordsToleratesNullEmbedding(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows(hotelTestColumns).AddRow(
		int64(2), "Quay Stay", "Sydney", "Australia", "",
		120.0, []byte(`[]`), []byte(`[]`), 7.1, 35, "Standard", 18,
		nil, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	)
	mock.ExpectQuery(`FROM hotel_hotel`).
		WithArgs(100, 0).
		WillReturnRows(rows)

	records, err := repo.FetchRecords(context.Background(), model.RecordQuery{})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Embedding.Valid)
}

func TestFetchRecordsExcludesIDs(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`id != ALL\(\$1\)`).
		WithArgs(sqlmock.AnyArg(), 100, 0).
		WillReturnRows(sqlmock.NewRows(hotelTestColumns))

	records, err := repo.FetchRecords(context.Background(), model.RecordQuery{
		ExcludeIDs: []int64{1, 2},
	})

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHotelByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM hotel_hotel`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	hotel, err := repo.GetHotelByID(context.Background(), 99)

	require.NoError(t, err, "a missing hotel is not an error")
	assert.Nil(t, hotel)
}

func TestGetHotelByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WHERE id = \$1 AND is_approved = 'approved'`).
		WithArgs(int64(1)).
		WillReturnRows(sampleRows())

	hotel, err := repo.GetHotelByID(context.Background(), 1)

	require.NoError(t, err)
	require.NotNil(t, hotel)
	assert.Equal(t, int64(1), hotel.ID)
	assert.Equal(t, "Sydney", hotel.City)
}

func TestListCities(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT DISTINCT TRIM\(city\)`).
		WillReturnRows(sqlmock.NewRows([]string{"city"}).AddRow("Melbourne").AddRow("Sydney"))

	cities, err := repo.ListCities(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Melbourne", "Sydney"}, cities)
}

func TestPriceBoundsEmptyCatalog(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT MIN\(base_price_per_night\)`).
		WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(nil, nil))

	min, max, err := repo.PriceBounds(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 0.0, max)
}

func TestLogSearch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO search_logs`).
		WithArgs("search-1", "hotels in Sydney", sqlmock.AnyArg(), 2, sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	city := "Sydney"
	err := repo.LogSearch(context.Background(), "search-1", "hotels in Sydney",
		model.FilterSet{City: &city}, 2, []int64{1, 2}, 42)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
