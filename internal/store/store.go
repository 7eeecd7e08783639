// Package store persists assets and migration records.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codebypatrickleung/cloudhop/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Backends accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// AssetStore persists discovered assets keyed by their deterministic id.
type AssetStore interface {
	UpsertAsset(ctx context.Context, a *model.Asset) error
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	ListAssets(ctx context.Context, projectID string) ([]*model.Asset, error)
}

// MigrationFilter narrows ListMigrations. Empty fields match everything.
type MigrationFilter struct {
	ProjectID string
	WaveID    string
	AssetID   string
	Status    model.Status
}

// Match reports whether m passes the filter.
func (f MigrationFilter) Match(m *model.Migration) bool {
	return (f.ProjectID == "" || m.ProjectID == f.ProjectID) &&
		(f.WaveID == "" || m.WaveID == f.WaveID) &&
		(f.AssetID == "" || m.AssetID == f.AssetID) &&
		(f.Status == "" || m.Status == f.Status)
}

// MigrationStore persists migration records.
type MigrationStore interface {
	// CreateMigration stores a new record; ErrAlreadyExists if the id is taken.
	CreateMigration(ctx context.Context, m *model.Migration) error
	// SaveMigration replaces an existing record; ErrNotFound if missing.
	SaveMigration(ctx context.Context, m *model.Migration) error
	GetMigration(ctx context.Context, id string) (*model.Migration, error)
	ListMigrations(ctx context.Context, f MigrationFilter) ([]*model.Migration, error)
	// ActiveMigrationForAsset returns the pending or in-progress migration of
	// an asset, or ErrNotFound.
	ActiveMigrationForAsset(ctx context.Context, assetID string) (*model.Migration, error)
}

// Store is a complete persistence backend.
type Store interface {
	AssetStore
	MigrationStore
	Close() error
}

// Open returns the named backend. path is a file for sqlite and a directory
// for badger; memory ignores it.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite, "":
		return NewSQLite(path)
	case BackendBadger:
		return NewBadger(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q (expected memory, sqlite or badger)", backend)
	}
}

func active(s model.Status) bool {
	return s == model.StatusPending || s == model.StatusInProgress
}

func sortAssets(assets []*model.Asset) {
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Name != assets[j].Name {
			return assets[i].Name < assets[j].Name
		}
		return assets[i].ID < assets[j].ID
	})
}

func sortMigrations(ms []*model.Migration) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

// latestActive picks the newest active migration.
func latestActive(ms []*model.Migration) *model.Migration {
	var out *model.Migration
	for _, m := range ms {
		if active(m.Status) && (out == nil || m.CreatedAt.After(out.CreatedAt)) {
			out = m
		}
	}
	return out
}
