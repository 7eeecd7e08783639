package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/codebypatrickleung/cloudhop/internal/model"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		BackendMemory: func(t *testing.T) Store { return NewMemory() },
		BackendSQLite: func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "cloudhop.db"))
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			return s
		},
		BackendBadger: func(t *testing.T) Store {
			s, err := NewBadger(t.TempDir())
			if err != nil {
				t.Fatalf("NewBadger: %v", err)
			}
			return s
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func asset(project, source, name string) *model.Asset {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Asset{
		ID:              model.AssetID(project, source),
		ProjectID:       project,
		Name:            name,
		Type:            model.AssetVM,
		SourceID:        source,
		CurrentProvider: "aws",
		Specs:           map[string]any{"cpu_cores": 2},
		Configuration:   map[string]any{},
		Tags:            map[string]string{"env": "prod"},
		DiscoveredAt:    now,
		UpdatedAt:       now,
	}
}

func migration(id, assetID string, status model.Status, created time.Time) *model.Migration {
	return &model.Migration{
		ID:         id,
		AssetID:    assetID,
		ProjectID:  "proj-1",
		WaveID:     "wave-1",
		Strategy:   "rehost",
		Status:     status,
		Checkpoint: map[string]string{},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestAssets(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := asset("proj-1", "i-1", "web")
		if err := s.UpsertAsset(ctx, a); err != nil {
			t.Fatalf("UpsertAsset: %v", err)
		}
		a.Tags["env"] = "staging"
		if err := s.UpsertAsset(ctx, a); err != nil {
			t.Fatalf("UpsertAsset: %v", err)
		}
		if err := s.UpsertAsset(ctx, asset("proj-1", "i-2", "api")); err != nil {
			t.Fatalf("UpsertAsset: %v", err)
		}
		if err := s.UpsertAsset(ctx, asset("proj-2", "i-1", "web")); err != nil {
			t.Fatalf("UpsertAsset: %v", err)
		}

		got, err := s.GetAsset(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAsset: %v", err)
		}
		if got.Tags["env"] != "staging" || got.SpecInt("cpu_cores", 0) != 2 {
			t.Errorf("Unexpected asset: %+v", got)
		}

		list, err := s.ListAssets(ctx, "proj-1")
		if err != nil {
			t.Fatalf("ListAssets: %v", err)
		}
		if len(list) != 2 || list[0].Name != "api" || list[1].Name != "web" {
			t.Errorf("Expected api and web in proj-1, got %d assets", len(list))
		}

		if _, err := s.GetAsset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestMigrations(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		m := migration("m-1", "a-1", model.StatusPending, base)

		if err := s.SaveMigration(ctx, m); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound saving an unknown migration, got %v", err)
		}
		if err := s.CreateMigration(ctx, m); err != nil {
			t.Fatalf("CreateMigration: %v", err)
		}
		if err := s.CreateMigration(ctx, m); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}

		m.Status = model.StatusInProgress
		m.Checkpoint["replication_id"] = "import-1"
		m.RollbackPoint = model.RollbackPoint{"snapshot_id": "snap-1"}
		if err := s.SaveMigration(ctx, m); err != nil {
			t.Fatalf("SaveMigration: %v", err)
		}
		got, err := s.GetMigration(ctx, "m-1")
		if err != nil {
			t.Fatalf("GetMigration: %v", err)
		}
		if got.Status != model.StatusInProgress || got.Checkpoint["replication_id"] != "import-1" || got.RollbackPoint["snapshot_id"] != "snap-1" {
			t.Errorf("Unexpected migration: %+v", got)
		}
		if _, err := s.GetMigration(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestListMigrationsAndActive(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		records := []*model.Migration{
			migration("m-1", "a-1", model.StatusFailed, base),
			migration("m-2", "a-1", model.StatusInProgress, base.Add(time.Minute)),
			migration("m-3", "a-2", model.StatusCompleted, base.Add(2*time.Minute)),
		}
		records[2].WaveID = "wave-2"
		for _, m := range records {
			if err := s.CreateMigration(ctx, m); err != nil {
				t.Fatalf("CreateMigration: %v", err)
			}
		}

		tests := []struct {
			name   string
			filter MigrationFilter
			want   []string
		}{
			{"all", MigrationFilter{}, []string{"m-1", "m-2", "m-3"}},
			{"project", MigrationFilter{ProjectID: "proj-1"}, []string{"m-1", "m-2", "m-3"}},
			{"wave", MigrationFilter{WaveID: "wave-1"}, []string{"m-1", "m-2"}},
			{"status", MigrationFilter{Status: model.StatusCompleted}, []string{"m-3"}},
			{"asset", MigrationFilter{AssetID: "a-1"}, []string{"m-1", "m-2"}},
			{"no match", MigrationFilter{ProjectID: "other"}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ListMigrations(ctx, tt.filter)
				if err != nil {
					t.Fatalf("ListMigrations: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("Expected %v, got %d migrations", tt.want, len(got))
				}
				for i, m := range got {
					if m.ID != tt.want[i] {
						t.Errorf("Expected %s at %d, got %s", tt.want[i], i, m.ID)
					}
				}
			})
		}

		active, err := s.ActiveMigrationForAsset(ctx, "a-1")
		if err != nil {
			t.Fatalf("ActiveMigrationForAsset: %v", err)
		}
		if active.ID != "m-2" {
			t.Errorf("Expected m-2, got %s", active.ID)
		}
		if _, err := s.ActiveMigrationForAsset(ctx, "a-2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected no active migration for a-2, got %v", err)
		}
	})
}

func TestMemoryDoesNotAlias(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	m := migration("m-1", "a-1", model.StatusPending, time.Now())
	if err := s.CreateMigration(ctx, m); err != nil {
		t.Fatalf("CreateMigration: %v", err)
	}
	m.Checkpoint["replication_id"] = "changed"

	got, _ := s.GetMigration(ctx, "m-1")
	if got.Checkpoint["replication_id"] != "" {
		t.Error("Expected stored migration to be isolated from the caller's copy")
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if _, err := Open("etcd", ""); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
