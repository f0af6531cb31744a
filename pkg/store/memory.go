package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yurifrl/mizan/pkg/models"
)

type memoryKey struct {
	kind    models.Kind
	company string
	year    int
}

// Memory is an in-process Store, used by tests and dry runs.
type Memory struct {
	mu          sync.RWMutex
	snapshots   map[memoryKey]models.Snapshot
	companies   map[string]bool
	comparisons map[string][]models.Comparison
}

func NewMemory() *Memory {
	return &Memory{
		snapshots:   make(map[memoryKey]models.Snapshot),
		companies:   make(map[string]bool),
		comparisons: make(map[string][]models.Comparison),
	}
}

func (m *Memory) Fetch(ctx context.Context, kind models.Kind, company string, year int) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	company = strings.TrimSpace(company)
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[memoryKey{kind, company, year}]
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s %s %d", ErrNotFound, kind, company, year)
	}
	return clone(snap), nil
}

func (m *Memory) Save(ctx context.Context, kind models.Kind, company string, year int, snap models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	company, err := normalizeCompany(company)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.companies[company] = true
	m.snapshots[memoryKey{kind, company, year}] = clone(snap)
	return nil
}

func (m *Memory) Reset(ctx context.Context, kind models.Kind, company string, year int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	company = strings.TrimSpace(company)
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snapshots, memoryKey{kind, company, year})
	return nil
}

func (m *Memory) Companies(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.companies))
	for name := range m.companies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SaveComparison(ctx context.Context, c models.Comparison) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	company, _ := normalizeCompany(c.Company)
	c.Company = company

	m.mu.Lock()
	defer m.mu.Unlock()

	m.companies[company] = true
	list := m.comparisons[company]
	for i, existing := range list {
		if existing == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	m.comparisons[company] = append([]models.Comparison{c}, list...)
	return nil
}

func (m *Memory) Comparisons(ctx context.Context, company string) ([]models.Comparison, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	company = strings.TrimSpace(company)
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.comparisons[company]
	out := make([]models.Comparison, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
