package rules

import (
	"context"
	"sync"
)

// Repository supplies rules to the engine. Implementations must be safe for
// concurrent readers. Snapshot returns a stable, ID-ordered copy: the engine
// takes one snapshot per simulation run so that matching stays a pure
// function of the state and that snapshot.
type Repository interface {
	// Snapshot returns every rule, sorted by ID.
	Snapshot(ctx context.Context) ([]Rule, error)

	// Get returns the rule with the given ID, or nil if absent.
	Get(ctx context.Context, id string) (*Rule, error)

	Close() error
}

// MemoryRepository implements Repository in memory, for tests, ad-hoc rule
// packs, and the CLI's --rules flag.
type MemoryRepository struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewMemoryRepository creates a repository pre-loaded with the given rules.
// Every rule is validated; the first invalid rule aborts construction.
func NewMemoryRepository(rs ...Rule) (*MemoryRepository, error) {
	repo := &MemoryRepository{rules: make(map[string]Rule, len(rs))}
	for _, r := range rs {
		if err := repo.Put(r); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Put validates and stores a rule, replacing any rule with the same ID.
func (m *MemoryRepository) Put(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

// Snapshot returns all rules sorted by ID.
func (m *MemoryRepository) Snapshot(ctx context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	SortByID(out)
	return out, nil
}

// Get returns the rule with the given ID, or nil if absent.
func (m *MemoryRepository) Get(ctx context.Context, id string) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Len returns the number of stored rules.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Close is a no-op for the in-memory repository.
func (m *MemoryRepository) Close() error { return nil }

// enforce interface conformance at compile time.
var _ Repository = (*MemoryRepository)(nil)
