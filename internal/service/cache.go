package service

import (
	"context"
	"sync"

	"github.com/tazhate/dosebot/internal/domain"
)

// MedicationCache is a read-through cache keyed by medication id. Callers
// get copies; every mutating workflow invalidates the entry it touched.
type MedicationCache struct {
	store MedicationStore

	mu    sync.RWMutex
	items map[string]*domain.Medication
}

func NewMedicationCache(store MedicationStore) *MedicationCache {
	return &MedicationCache{
		store: store,
		items: make(map[string]*domain.Medication),
	}
}

// Get returns nil, nil for unknown ids.
func (c *MedicationCache) Get(ctx context.Context, id string) (*domain.Medication, error) {
	c.mu.RLock()
	m, ok := c.items[id]
	c.mu.RUnlock()
	if ok {
		return m.Clone(), nil
	}

	m, err := c.store.GetMedication(ctx, id)
	if err != nil {
		return nil, persistenceError("get medication", err)
	}
	if m == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.items[id] = m
	c.mu.Unlock()
	return m.Clone(), nil
}

func (c *MedicationCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

func (c *MedicationCache) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[string]*domain.Medication)
	c.mu.Unlock()
}

func (c *MedicationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
