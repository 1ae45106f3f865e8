package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"newsletter-go/internal/models"
)

// InMemoryContentRepository keeps one map per content store, keyed by the
// store table name from the content routing table.
type InMemoryContentRepository struct {
	mu     sync.RWMutex
	stores map[string]map[uuid.UUID]models.ContentItem
}

func NewInMemoryContentRepository() *InMemoryContentRepository {
	stores := make(map[string]map[uuid.UUID]models.ContentItem)
	for _, route := range models.ContentRoutes() {
		stores[route.Table] = make(map[uuid.UUID]models.ContentItem)
	}
	return &InMemoryContentRepository{stores: stores}
}

// Put stores or replaces an item. Content authoring lives outside the
// pipeline; this exists for seeding.
func (r *InMemoryContentRepository) Put(item models.ContentItem) error {
	route, ok := item.Type.Route()
	if !ok {
		return fmt.Errorf("%w: %q has no content store", models.ErrInvalidContentType, item.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[route.Table][item.ID] = item
	return nil
}

func (r *InMemoryContentRepository) Delete(contentType models.ContentType, id uuid.UUID) {
	route, ok := contentType.Route()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores[route.Table], id)
}

func (r *InMemoryContentRepository) FindContent(ctx context.Context, contentType models.ContentType, id uuid.UUID) (*models.ContentItem, error) {
	route, ok := contentType.Route()
	if !ok {
		return nil, fmt.Errorf("%w: %q has no content store", models.ErrInvalidContentType, contentType)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.stores[route.Table][id]
	if !exists {
		return nil, fmt.Errorf("%s %s: %w", route.Table, id, models.ErrContentNotFound)
	}
	return &item, nil
}
