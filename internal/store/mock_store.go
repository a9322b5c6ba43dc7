package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sebcib/codescope/pkg/models"
)

// MockStore is an in-memory Store implementation for testing. FailWith can
// be set to make every operation fail, which is how gateway tests simulate
// an unreachable remote backend.
type MockStore struct {
	mu         sync.RWMutex
	records    map[string]*models.AnalysisRecord
	credential *models.Credential

	// FailWith, when non-nil, is returned by every operation including Ping.
	FailWith error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string]*models.AnalysisRecord)}
}

// Fail makes every subsequent operation return err; Fail(nil) heals it.
func (m *MockStore) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWith = err
}

// Len reports the number of stored records.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MockStore) failing() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FailWith
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.failing()
}

func (m *MockStore) Put(ctx context.Context, rec *models.AnalysisRecord) error {
	if err := m.failing(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MockStore) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	if err := m.failing(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MockStore) List(ctx context.Context, filter ListFilter) ([]models.RecordSummary, error) {
	if err := m.failing(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.AnalysisRecord
	for _, rec := range m.records {
		if filter.SourceDigest != "" && rec.SourceDigest != filter.SourceDigest {
			continue
		}
		if filter.Origin != "" && rec.Origin != filter.Origin {
			continue
		}
		if !filter.Since.IsZero() && rec.CreatedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit := filter.normalizedLimit()
	offset := filter.normalizedOffset()
	if offset > len(matched) {
		matched = nil
	} else {
		matched = matched[offset:]
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]models.RecordSummary, 0, len(matched))
	for _, rec := range matched {
		out = append(out, rec.Summary())
	}
	return out, nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	if err := m.failing(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MockStore) UpdateOrigin(ctx context.Context, id string, origin models.Origin) error {
	if err := m.failing(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return models.ErrNotFound
	}
	rec.Origin = origin
	return nil
}

func (m *MockStore) PutCredential(ctx context.Context, cred *models.Credential) error {
	if err := m.failing(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cred
	c.Ciphertext = append([]byte(nil), cred.Ciphertext...)
	m.credential = &c
	return nil
}

func (m *MockStore) GetCredential(ctx context.Context) (*models.Credential, error) {
	if err := m.failing(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.credential == nil {
		return nil, models.ErrNotFound
	}
	c := *m.credential
	c.Ciphertext = append([]byte(nil), m.credential.Ciphertext...)
	return &c, nil
}

var _ Store = (*MockStore)(nil)
