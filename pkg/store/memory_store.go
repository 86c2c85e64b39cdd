package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
)

// MemoryStore is an in-process BusinessStore and VectorStore. Enumeration
// order is always ascending by business id so identical queries yield
// identical candidate lists. Safe for concurrent reads; Put is intended
// for setup only.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]*models.Business
	vectors    map[string]map[string][]float32 // id -> version -> vector
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]*models.Business),
		vectors:    make(map[string]map[string][]float32),
	}
}

// Put inserts or replaces a business record
func (s *MemoryStore) Put(b *models.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

// PutVector stores a vector for a business under an embedding version
func (s *MemoryStore) PutVector(businessID, version string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors[businessID] == nil {
		s.vectors[businessID] = make(map[string][]float32)
	}
	s.vectors[businessID][version] = vector
}

// GetBusiness fetches one business by id
func (s *MemoryStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// QueryByCategoryAndCity lists businesses matching both category and city
func (s *MemoryStore) QueryByCategoryAndCity(ctx context.Context, categoryID, city string, limit int) ([]*models.Business, error) {
	return s.filter(limit, func(b *models.Business) bool {
		if b.Category != categoryID && b.Subcategory != categoryID {
			return false
		}
		return city == "" || strings.EqualFold(b.Address.City, city)
	})
}

// QueryByCity lists businesses in a city
func (s *MemoryStore) QueryByCity(ctx context.Context, city string, limit int) ([]*models.Business, error) {
	return s.filter(limit, func(b *models.Business) bool {
		return strings.EqualFold(b.Address.City, city)
	})
}

// ScanWithContains returns businesses where any selected field contains any
// term, case-insensitively. Name matching uses the normalized name.
func (s *MemoryStore) ScanWithContains(ctx context.Context, fields []string, terms []string, statuses []models.BusinessStatus, limit int) ([]*models.Business, error) {
	statusSet := make(map[models.BusinessStatus]bool, len(statuses))
	for _, st := range statuses {
		statusSet[st] = true
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}

	return s.filter(limit, func(b *models.Business) bool {
		if len(statusSet) > 0 && !statusSet[b.Status] {
			return false
		}
		for _, field := range fields {
			var hay string
			switch field {
			case FieldName:
				hay, _ = normalize.NormalizeBusinessName(b.Name)
			case FieldDescription:
				hay = strings.ToLower(b.Description)
			case FieldCategory:
				hay = strings.ToLower(b.Category + " " + b.Subcategory)
			default:
				continue
			}
			for _, term := range lowered {
				if term != "" && strings.Contains(hay, term) {
					return true
				}
			}
		}
		return false
	})
}

// ListVectorBusinessIDs lists ids with a vector for the given version,
// ascending.
func (s *MemoryStore) ListVectorBusinessIDs(ctx context.Context, version string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, versions := range s.vectors {
		if _, ok := versions[version]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetVector returns the stored vector for a business and version
func (s *MemoryStore) GetVector(ctx context.Context, businessID, version string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.vectors[businessID]
	if !ok {
		return nil, ErrNotFound
	}
	vec, ok := versions[version]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

// filter scans all businesses in id order and keeps those passing pred
func (s *MemoryStore) filter(limit int, pred func(*models.Business) bool) ([]*models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.businesses))
	for id := range s.businesses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*models.Business
	for _, id := range ids {
		b := s.businesses[id]
		if pred(b) {
			cp := *b
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
