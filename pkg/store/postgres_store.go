package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/observability"
)

// PostgresStore implements BusinessStore and VectorStore over Postgres.
// Vectors live in a business_vectors table keyed by (business_id, version)
// with the vector serialized in pgvector text form.
type PostgresStore struct {
	db     *sqlx.DB
	logger observability.Logger
}

// NewPostgresStore creates a store over an existing sqlx connection
func NewPostgresStore(db *sqlx.DB, logger observability.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = observability.NewLogger("store.postgres")
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// businessRow is the flat row shape scanned from the businesses table
type businessRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description sql.NullString  `db:"description"`
	Category    string          `db:"category"`
	Subcategory sql.NullString  `db:"subcategory"`
	City        sql.NullString  `db:"city"`
	State       sql.NullString  `db:"state"`
	Street      sql.NullString  `db:"street"`
	PostalCode  sql.NullString  `db:"postal_code"`
	Lat         sql.NullFloat64 `db:"lat"`
	Lng         sql.NullFloat64 `db:"lng"`
	Timezone    sql.NullString  `db:"timezone"`
	Phone       sql.NullString  `db:"phone"`
	Email       sql.NullString  `db:"email"`
	Website     sql.NullString  `db:"website"`
	Rating      float64         `db:"rating"`
	ReviewCount int             `db:"review_count"`
	PriceRange  sql.NullString  `db:"price_range"`
	Status      string          `db:"status"`
	Verified    bool            `db:"verified"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	EmbVersion  sql.NullString  `db:"embedding_version"`
}

const businessColumns = `id, name, description, category, subcategory,
	city, state, street, postal_code, lat, lng, timezone,
	phone, email, website, rating, review_count, price_range,
	status, verified, created_at, updated_at, embedding_version`

func (r *businessRow) toModel() *models.Business {
	b := &models.Business{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Category:    r.Category,
		Subcategory: r.Subcategory.String,
		Address: models.Address{
			Street:     r.Street.String,
			City:       r.City.String,
			State:      r.State.String,
			PostalCode: r.PostalCode.String,
			Timezone:   r.Timezone.String,
		},
		Phone:            r.Phone.String,
		Email:            r.Email.String,
		Website:          r.Website.String,
		Rating:           r.Rating,
		ReviewCount:      r.ReviewCount,
		PriceRange:       models.PriceRange(r.PriceRange.String),
		Status:           models.BusinessStatus(r.Status),
		Verified:         r.Verified,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		EmbeddingVersion: r.EmbVersion.String,
	}
	if r.Lat.Valid && r.Lng.Valid {
		b.Address.Coordinates = &models.Coordinates{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	return b
}

// GetBusiness fetches one business by id
func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var row businessRow
	query := fmt.Sprintf("SELECT %s FROM businesses WHERE id = $1", businessColumns)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return row.toModel(), nil
}

// QueryByCategoryAndCity uses the (category, city) index
func (s *PostgresStore) QueryByCategoryAndCity(ctx context.Context, categoryID, city string, limit int) ([]*models.Business, error) {
	query := fmt.Sprintf(`SELECT %s FROM businesses
		WHERE (category = $1 OR subcategory = $1) AND ($2 = '' OR lower(city) = lower($2))
		ORDER BY id LIMIT $3`, businessColumns)
	return s.queryBusinesses(ctx, query, categoryID, city, limit)
}

// QueryByCity lists businesses in a city
func (s *PostgresStore) QueryByCity(ctx context.Context, city string, limit int) ([]*models.Business, error) {
	query := fmt.Sprintf(`SELECT %s FROM businesses
		WHERE lower(city) = lower($1) ORDER BY id LIMIT $2`, businessColumns)
	return s.queryBusinesses(ctx, query, city, limit)
}

// ScanWithContains performs an ILIKE OR-scan over the selected fields
func (s *PostgresStore) ScanWithContains(ctx context.Context, fields []string, terms []string, statuses []models.BusinessStatus, limit int) ([]*models.Business, error) {
	if len(fields) == 0 || len(terms) == 0 {
		return nil, nil
	}

	var clauses []string
	args := []interface{}{}
	argN := 0
	for _, field := range fields {
		var col string
		switch field {
		case FieldName:
			col = "name"
		case FieldDescription:
			col = "description"
		case FieldCategory:
			col = "category"
		default:
			continue
		}
		for _, term := range terms {
			argN++
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", col, argN))
			args = append(args, "%"+term+"%")
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM businesses WHERE (%s)", businessColumns, strings.Join(clauses, " OR "))
	if len(statuses) > 0 {
		argN++
		query += fmt.Sprintf(" AND status = ANY($%d)", argN)
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		args = append(args, pq.Array(ss))
	}
	argN++
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", argN)
	args = append(args, limit)

	return s.queryBusinesses(ctx, query, args...)
}

// ListVectorBusinessIDs lists ids with a stored vector for the version
func (s *PostgresStore) ListVectorBusinessIDs(ctx context.Context, version string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT business_id FROM business_vectors WHERE version = $1 ORDER BY business_id", version)
	if err != nil {
		return nil, fmt.Errorf("list vector ids: %w", err)
	}
	return ids, nil
}

// GetVector returns the stored vector for a business and version
func (s *PostgresStore) GetVector(ctx context.Context, businessID, version string) ([]float32, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		"SELECT vector FROM business_vectors WHERE business_id = $1 AND version = $2", businessID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get vector: %w", err)
	}
	return parseVector(raw)
}

func (s *PostgresStore) queryBusinesses(ctx context.Context, query string, args ...interface{}) ([]*models.Business, error) {
	var rows []businessRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query businesses: %w", err)
	}
	out := make([]*models.Business, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// parseVector decodes the pgvector text form "[0.1,0.2,...]"
func parseVector(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
