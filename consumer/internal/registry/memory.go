package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is an in-process Admin used by tests and by the
// "memory" registry backend.
type MemoryRegistry struct {
	mu      sync.RWMutex
	sources map[uuid.UUID]SourceConfig
	types   map[uuid.UUID]DataType
	err     error
	now     func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sources: make(map[uuid.UUID]SourceConfig),
		types:   make(map[uuid.UUID]DataType),
		now:     time.Now,
	}
}

// FailWith makes every read return err until called again with nil.
func (m *MemoryRegistry) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryRegistry) ListActiveSources(ctx context.Context) ([]SourceConfig, error) {
	all, err := m.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (m *MemoryRegistry) GetSourceTypeMapping(ctx context.Context) (map[uuid.UUID]DataType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[uuid.UUID]DataType, len(m.types))
	for id, t := range m.types {
		out[id] = t
	}
	return out, nil
}

// ListSources returns every source ordered by creation time.
func (m *MemoryRegistry) ListSources(ctx context.Context) ([]SourceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]SourceConfig, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sortSources(out)
	return out, nil
}

func (m *MemoryRegistry) UpsertSource(ctx context.Context, src *SourceConfig) error {
	src.ApplyDefaults()
	if err := src.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.sources[src.ID]; ok {
		src.CreatedAt = existing.CreatedAt
	} else {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	m.sources[src.ID] = *src
	return nil
}

func (m *MemoryRegistry) SetDataType(ctx context.Context, id uuid.UUID, dataType DataType) error {
	if _, err := ParseDataType(string(dataType)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return ErrSourceNotFound
	}
	if dataType == DataTypeNone {
		delete(m.types, id)
		return nil
	}
	m.types[id] = dataType
	return nil
}

func (m *MemoryRegistry) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok {
		return ErrSourceNotFound
	}
	src.Active = active
	src.UpdatedAt = m.now()
	m.sources[id] = src
	return nil
}

// sortSources orders by creation time, then name, so listings are stable.
func sortSources(sources []SourceConfig) {
	sort.SliceStable(sources, func(i, j int) bool {
		if !sources[i].CreatedAt.Equal(sources[j].CreatedAt) {
			return sources[i].CreatedAt.Before(sources[j].CreatedAt)
		}
		return sources[i].Name < sources[j].Name
	})
}
