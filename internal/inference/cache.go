package inference

import (
	"sync"

	"github.com/cardionics/heartml/internal/training"
)

// ModelCache holds deserialized models so the hot path never touches the
// registry. Injected so tests can observe or replace caching behavior.
type ModelCache interface {
	Get(name string) (*training.TrainedModel, bool)
	Set(name string, model *training.TrainedModel)
	Invalidate(name string)
}

// singleSlotCache keeps the most recently served model. Serving traffic
// concentrates on one production model, so one slot covers the hot path; a
// different model name simply evicts the previous occupant.
type singleSlotCache struct {
	mu    sync.RWMutex
	name  string
	model *training.TrainedModel
}

// NewSingleSlotCache returns the default one-entry cache.
func NewSingleSlotCache() ModelCache {
	return &singleSlotCache{}
}

func (c *singleSlotCache) Get(name string) (*training.TrainedModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil || c.name != name {
		return nil, false
	}
	return c.model, true
}

func (c *singleSlotCache) Set(name string, model *training.TrainedModel) {
	c.mu.Lock()
	c.name = name
	c.model = model
	c.mu.Unlock()
}

func (c *singleSlotCache) Invalidate(name string) {
	c.mu.Lock()
	if c.name == name {
		c.model = nil
		c.name = ""
	}
	c.mu.Unlock()
}
