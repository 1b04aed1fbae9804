package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/postsmith/postsmith/internal/models"
)

type memoryKey struct {
	account  uuid.UUID
	category string
}

// MemoryStore backs tests and dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[memoryKey]models.CategoryContext
	reviews  map[memoryKey][]models.Review
	consumed map[int64]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: map[memoryKey]models.CategoryContext{},
		reviews:  map[memoryKey][]models.Review{},
		consumed: map[int64]bool{},
	}
}

// SeedCategory registers a category context; its Reviews field seeds the pool.
func (m *MemoryStore) SeedCategory(accountID uuid.UUID, cc models.CategoryContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{accountID, cc.Name}
	reviews := append([]models.Review(nil), cc.Reviews...)
	cc.Reviews = nil
	m.contexts[key] = cc
	m.reviews[key] = reviews
}

func (m *MemoryStore) CategoryContext(ctx context.Context, accountID uuid.UUID, category string) (models.CategoryContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cc, ok := m.contexts[memoryKey{accountID, category}]
	if !ok {
		return models.CategoryContext{}, ErrNotFound
	}
	return cc, nil
}

func (m *MemoryStore) DrawReviews(ctx context.Context, accountID uuid.UUID, category string, max int) ([]models.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool := m.reviews[memoryKey{accountID, category}]
	var out []models.Review
	for _, r := range pool {
		if m.consumed[r.ID] {
			continue
		}
		out = append(out, r)
		if len(out) == max {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ConsumeReviews(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.consumed[id] = true
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
