package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/codebypatrickleung/cloudhop/internal/model"
)

const (
	assetPrefix     = "asset:"
	migrationPrefix = "migration:"
)

// Badger stores JSON records in an embedded key-value database.
type Badger struct {
	db *badger.DB
}

// NewBadger opens (creating if needed) the database directory at dir.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 24)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the database.
func (s *Badger) Close() error {
	return s.db.Close()
}

func put(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func get(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

// scan decodes every value under prefix with decode.
func (s *Badger) scan(prefix string, decode func(data []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(decode); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Badger) UpsertAsset(ctx context.Context, a *model.Asset) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return put(txn, assetPrefix+a.ID, a)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.ID, err)
	}
	return nil
}

func (s *Badger) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var a model.Asset
	if err := s.db.View(func(txn *badger.Txn) error { return get(txn, assetPrefix+id, &a) }); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Badger) ListAssets(ctx context.Context, projectID string) ([]*model.Asset, error) {
	var out []*model.Asset
	err := s.scan(assetPrefix, func(data []byte) error {
		var a model.Asset
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		if projectID == "" || a.ProjectID == projectID {
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	sortAssets(out)
	return out, nil
}

func (s *Badger) CreateMigration(ctx context.Context, m *model.Migration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(migrationPrefix + m.ID))
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return put(txn, migrationPrefix+m.ID, m)
	})
}

func (s *Badger) SaveMigration(ctx context.Context, m *model.Migration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(migrationPrefix + m.ID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return put(txn, migrationPrefix+m.ID, m)
	})
}

func (s *Badger) GetMigration(ctx context.Context, id string) (*model.Migration, error) {
	var m model.Migration
	if err := s.db.View(func(txn *badger.Txn) error { return get(txn, migrationPrefix+id, &m) }); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Badger) ListMigrations(ctx context.Context, f MigrationFilter) ([]*model.Migration, error) {
	var out []*model.Migration
	err := s.scan(migrationPrefix, func(data []byte) error {
		var m model.Migration
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if f.Match(&m) {
			out = append(out, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sortMigrations(out)
	return out, nil
}

func (s *Badger) ActiveMigrationForAsset(ctx context.Context, assetID string) (*model.Migration, error) {
	ms, err := s.ListMigrations(ctx, MigrationFilter{AssetID: assetID})
	if err != nil {
		return nil, err
	}
	if m := latestActive(ms); m != nil {
		return m, nil
	}
	return nil, ErrNotFound
}
