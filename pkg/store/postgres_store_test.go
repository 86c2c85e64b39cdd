package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	s, err := NewPostgresStore(sqlxDB, observability.NewNoopLogger())
	require.NoError(t, err)
	return s, mock
}

func businessRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "description", "category", "subcategory",
		"city", "state", "street", "postal_code", "lat", "lng", "timezone",
		"phone", "email", "website", "rating", "review_count", "price_range",
		"status", "verified", "created_at", "updated_at", "embedding_version",
	})
}

func TestGetBusiness(t *testing.T) {
	s, mock := setupPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE id =").
		WithArgs("biz-1").
		WillReturnRows(businessRows().AddRow(
			"biz-1", "Blue Tokai Coffee", "specialty coffee roasters", "food", "cafe",
			"Mumbai", "Maharashtra", "Marine Drive", "400001", 18.94, 72.82, "Asia/Kolkata",
			"+919876543210", "", "", 4.5, 320, "$$",
			"active", true, now, now, "titan-v2",
		))

	b, err := s.GetBusiness(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Tokai Coffee", b.Name)
	assert.Equal(t, "cafe", b.Subcategory)
	assert.Equal(t, "Mumbai", b.Address.City)
	require.NotNil(t, b.Address.Coordinates)
	assert.InDelta(t, 18.94, b.Address.Coordinates.Lat, 1e-9)
	assert.True(t, b.Verified)
}

func TestGetBusinessNotFound(t *testing.T) {
	s, mock := setupPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE id =").
		WithArgs("absent").
		WillReturnRows(businessRows())

	_, err := s.GetBusiness(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanWithContains(t *testing.T) {
	s, mock := setupPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE \\(name ILIKE").
		WillReturnRows(businessRows().AddRow(
			"biz-2", "Third Wave Coffee", "", "food", "cafe",
			"Bangalore", "Karnataka", "", "", nil, nil, "",
			"", "", "", 4.2, 150, "$$",
			"active", false, now, now, "",
		))

	got, err := s.ScanWithContains(context.Background(),
		[]string{FieldName, FieldDescription}, []string{"coffee"},
		nil, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Third Wave Coffee", got[0].Name)
	assert.Nil(t, got[0].Address.Coordinates)
}

func TestGetVector(t *testing.T) {
	s, mock := setupPostgresStore(t)

	mock.ExpectQuery("SELECT vector FROM business_vectors").
		WithArgs("biz-1", "titan-v2").
		WillReturnRows(sqlmock.NewRows([]string{"vector"}).AddRow("[0.25,-0.5,1]"))

	vec, err := s.GetVector(context.Background(), "biz-1", "titan-v2")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
}

func TestListVectorBusinessIDs(t *testing.T) {
	s, mock := setupPostgresStore(t)

	mock.ExpectQuery("SELECT business_id FROM business_vectors").
		WithArgs("titan-v2").
		WillReturnRows(sqlmock.NewRows([]string{"business_id"}).
			AddRow("biz-1").AddRow("biz-2"))

	ids, err := s.ListVectorBusinessIDs(context.Background(), "titan-v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"biz-1", "biz-2"}, ids)
}

func TestParseVector(t *testing.T) {
	vec, err := parseVector("[1.5, -2, 0.125]")
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 0.125}, vec)

	_, err = parseVector("[a,b]")
	assert.Error(t, err)
}
