package registry

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cardionics/heartml/internal/training"
)

// MemoryStore is an in-memory BlobStore for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) PutBytes(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrModelNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

// MemoryRegistry is an in-memory Registry that counts Load calls, so tests
// can assert cache behavior.
type MemoryRegistry struct {
	mu       sync.Mutex
	models   map[string][]*training.TrainedModel
	stages   map[string]map[string]string // name -> version -> stage
	loads    map[string]int
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		models: make(map[string][]*training.TrainedModel),
		stages: make(map[string]map[string]string),
		loads:  make(map[string]int),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, model *training.TrainedModel) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version := strconv.Itoa(len(r.models[model.Name]) + 1)
	model.Version = version
	if model.TrainedAt.IsZero() {
		model.TrainedAt = time.Now().UTC()
	}
	r.models[model.Name] = append(r.models[model.Name], model)
	if r.stages[model.Name] == nil {
		r.stages[model.Name] = make(map[string]string)
	}
	r.stages[model.Name][version] = StageNone
	return version, nil
}

func (r *MemoryRegistry) Transition(_ context.Context, name, version, stage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.stages[name]
	if !ok {
		return ErrModelNotFound
	}
	if _, ok := versions[version]; !ok {
		return ErrModelNotFound
	}
	if stage == StageProduction {
		for v, s := range versions {
			if s == StageProduction {
				versions[v] = StageArchived
			}
		}
	}
	versions[version] = stage
	return nil
}

func (r *MemoryRegistry) Load(_ context.Context, name, selector string) (*training.TrainedModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[name]++
	versions := r.models[name]
	if len(versions) == 0 {
		return nil, ErrModelNotFound
	}
	if selector == "latest" {
		return versions[len(versions)-1], nil
	}
	if isNumeric(selector) {
		for _, m := range versions {
			if m.Version == selector {
				return m, nil
			}
		}
		return nil, ErrModelNotFound
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if r.stages[name][versions[i].Version] == selector {
			return versions[i], nil
		}
	}
	return nil, ErrModelNotFound
}

func (r *MemoryRegistry) Versions(_ context.Context, name string) ([]VersionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.models[name]
	if len(versions) == 0 {
		return nil, ErrModelNotFound
	}
	out := make([]VersionInfo, 0, len(versions))
	for _, m := range versions {
		out = append(out, VersionInfo{
			Version:   m.Version,
			Stage:     r.stages[name][m.Version],
			Algorithm: m.Algorithm,
			CreatedAt: m.TrainedAt,
		})
	}
	return out, nil
}

// LoadCount reports how many times Load was called for a model.
func (r *MemoryRegistry) LoadCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[name]
}
