package store

import (
	"context"
	"sync"

	"github.com/codebypatrickleung/cloudhop/internal/model"
)

// Memory keeps records in process memory. Records are copied on the way in
// and out.
type Memory struct {
	mu         sync.RWMutex
	assets     map[string]*model.Asset
	migrations map[string]*model.Migration
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		assets:     make(map[string]*model.Asset),
		migrations: make(map[string]*model.Migration),
	}
}

func (s *Memory) UpsertAsset(ctx context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a.Clone()
	return nil
}

func (s *Memory) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Memory) ListAssets(ctx context.Context, projectID string) ([]*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Asset
	for _, a := range s.assets {
		if projectID == "" || a.ProjectID == projectID {
			out = append(out, a.Clone())
		}
	}
	sortAssets(out)
	return out, nil
}

func (s *Memory) CreateMigration(ctx context.Context, m *model.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[m.ID]; ok {
		return ErrAlreadyExists
	}
	s.migrations[m.ID] = m.Clone()
	return nil
}

func (s *Memory) SaveMigration(ctx context.Context, m *model.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[m.ID]; !ok {
		return ErrNotFound
	}
	s.migrations[m.ID] = m.Clone()
	return nil
}

func (s *Memory) GetMigration(ctx context.Context, id string) (*model.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.migrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Memory) ListMigrations(ctx context.Context, f MigrationFilter) ([]*model.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Migration
	for _, m := range s.migrations {
		if f.Match(m) {
			out = append(out, m.Clone())
		}
	}
	sortMigrations(out)
	return out, nil
}

func (s *Memory) ActiveMigrationForAsset(ctx context.Context, assetID string) (*model.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []*model.Migration
	for _, m := range s.migrations {
		if m.AssetID == assetID {
			candidates = append(candidates, m)
		}
	}
	if m := latestActive(candidates); m != nil {
		return m.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *Memory) Close() error { return nil }
