// Package store persists tenant-scoped documents and their embeddings.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/seanblong/geoscore/pkg/models"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrTenantRequired = errors.New("tenant id is required")
)

// DocumentStore is implemented by Postgres and Memory. Every method is
// scoped to one tenant and never reads or writes another tenant's rows.
type DocumentStore interface {
	Insert(ctx context.Context, docs []models.Document) error
	Get(ctx context.Context, tenantID, id string) (models.Document, error)
	GetMany(ctx context.Context, tenantID string, ids []string) ([]models.Document, error)
	Search(ctx context.Context, tenantID string, vec []float32, q Query) ([]models.RankedDocument, error)
	HybridSearch(ctx context.Context, tenantID string, vec []float32, text string, semanticWeight float64, q Query) ([]models.RankedDocument, error)
	Delete(ctx context.Context, tenantID string, filters models.Filters) (int, error)
	DeleteTenant(ctx context.Context, tenantID string) (int, error)
	Ping(ctx context.Context) error
	Close()
}

// Query narrows a search.
type Query struct {
	Limit int
	// Threshold is the minimum cosine similarity; Search only.
	Threshold  float64
	Filters    models.Filters
	ExcludeIDs []string
}

const DefaultLimit = 10

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

func (q Query) excluded(id string) bool {
	for _, x := range q.ExcludeIDs {
		if x == id {
			return true
		}
	}
	return false
}

// prepare assigns ids and timestamps and checks every document belongs to a
// tenant.
func prepare(docs []models.Document, now time.Time) error {
	for i := range docs {
		if docs[i].TenantID == "" {
			return ErrTenantRequired
		}
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = now
		}
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
	}
	return nil
}
