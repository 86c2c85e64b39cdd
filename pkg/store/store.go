// Package store defines the business and vector store collaborator
// interfaces and ships two implementations: a Postgres-backed store for
// production and a deterministic in-memory store for tests and mock mode.
// The query core never writes to the store.
package store

import (
	"context"
	"errors"

	"github.com/placemesh/placemesh/pkg/models"
)

// ErrNotFound is returned when a record or vector does not exist
var ErrNotFound = errors.New("not found")

// BusinessStore is the read-only business record collaborator
type BusinessStore interface {
	// GetBusiness fetches one business by id; ErrNotFound when absent
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	// QueryByCategoryAndCity uses the category-city secondary index
	QueryByCategoryAndCity(ctx context.Context, categoryID, city string, limit int) ([]*models.Business, error)
	// QueryByCity lists businesses in a city
	QueryByCity(ctx context.Context, city string, limit int) ([]*models.Business, error)
	// ScanWithContains returns businesses where any of the given fields
	// (name, description, category) contains any of the terms,
	// restricted to the given statuses
	ScanWithContains(ctx context.Context, fields []string, terms []string, statuses []models.BusinessStatus, limit int) ([]*models.Business, error)
	// ListVectorBusinessIDs lists ids that have a stored vector for the
	// embedding version
	ListVectorBusinessIDs(ctx context.Context, version string) ([]string, error)
}

// VectorStore fetches stored business embeddings
type VectorStore interface {
	// GetVector returns the stored vector for a business and embedding
	// version; ErrNotFound when absent
	GetVector(ctx context.Context, businessID, version string) ([]float32, error)
}

// Scan field names accepted by ScanWithContains
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldCategory    = "category"
)
