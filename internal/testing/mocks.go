package testutil

import (
	"context"
	"sync"

	"renter-registry/internal/identity"
)

// MockProvider implements matching.CandidateProvider for tests. Rows are
// served from the maps; an entry in Err fails that lookup.
type MockProvider struct {
	Mu       sync.Mutex
	ByValue  map[string][]identity.CandidateData // key: KIND:value
	ByBucket map[string][]identity.CandidateData
	Err      map[string]error // key: KIND or "name_bucket"
	Calls    map[string]int
	Limits   []int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		ByValue:  map[string][]identity.CandidateData{},
		ByBucket: map[string][]identity.CandidateData{},
		Err:      map[string]error{},
		Calls:    map[string]int{},
	}
}

// Add serves c for kind/value lookups.
func (m *MockProvider) Add(kind identity.IdentifierKind, value string, c ...identity.CandidateData) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	key := string(kind) + ":" + value
	m.ByValue[key] = append(m.ByValue[key], c...)
}

func (m *MockProvider) FindByIdentifier(ctx context.Context, kind identity.IdentifierKind, normalized string, limit int) ([]identity.CandidateData, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls[string(kind)]++
	m.Limits = append(m.Limits, limit)
	if err, ok := m.Err[string(kind)]; ok {
		return nil, err
	}
	return capRows(m.ByValue[string(kind)+":"+normalized], limit), nil
}

func (m *MockProvider) FindByNameBucket(ctx context.Context, bucket string, limit int) ([]identity.CandidateData, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls["name_bucket"]++
	m.Limits = append(m.Limits, limit)
	if err, ok := m.Err["name_bucket"]; ok {
		return nil, err
	}
	return capRows(m.ByBucket[bucket], limit), nil
}

// CallCount returns how often a source was queried.
func (m *MockProvider) CallCount(source string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls[source]
}

func capRows(rows []identity.CandidateData, limit int) []identity.CandidateData {
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return append([]identity.CandidateData(nil), rows...)
}

// MockHints implements matching.GenericNameHints.
type MockHints struct {
	Generic map[string]bool
	Err     error
}

func (m *MockHints) IsGenericName(ctx context.Context, normalizedName string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Generic[normalizedName], nil
}
