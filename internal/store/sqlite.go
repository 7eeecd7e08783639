package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebypatrickleung/cloudhop/internal/common"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite stores records as JSON documents with indexed lookup columns.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := common.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// One connection serialises writers and keeps :memory: a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *SQLite) UpsertAsset(ctx context.Context, a *model.Asset) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal asset %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (id, project_id, source_id, name, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			project_id = excluded.project_id,
			source_id = excluded.source_id,
			name = excluded.name,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, a.ID, a.ProjectID, a.SourceID, a.Name, string(data), stamp(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLite) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM assets WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", id, err)
	}
	var a model.Asset
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", id, err)
	}
	return &a, nil
}

func (s *SQLite) ListAssets(ctx context.Context, projectID string) ([]*model.Asset, error) {
	query := `SELECT data FROM assets`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var out []*model.Asset
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var a model.Asset
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("failed to decode asset: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateMigration(ctx context.Context, m *model.Migration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal migration %s: %w", m.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO migrations (id, asset_id, project_id, wave_id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.AssetID, m.ProjectID, m.WaveID, string(m.Status), string(data), stamp(m.CreatedAt), stamp(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create migration %s: %w", m.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLite) SaveMigration(ctx context.Context, m *model.Migration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal migration %s: %w", m.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE migrations SET
			asset_id = ?, project_id = ?, wave_id = ?, status = ?, data = ?, updated_at = ?
		WHERE id = ?
	`, m.AssetID, m.ProjectID, m.WaveID, string(m.Status), string(data), stamp(m.UpdatedAt), m.ID)
	if err != nil {
		return fmt.Errorf("failed to save migration %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) GetMigration(ctx context.Context, id string) (*model.Migration, error) {
	return s.queryMigration(ctx, `SELECT data FROM migrations WHERE id = ?`, id)
}

func (s *SQLite) ActiveMigrationForAsset(ctx context.Context, assetID string) (*model.Migration, error) {
	return s.queryMigration(ctx, `
		SELECT data FROM migrations
		WHERE asset_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, assetID, string(model.StatusPending), string(model.StatusInProgress))
}

func (s *SQLite) queryMigration(ctx context.Context, query string, args ...any) (*model.Migration, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query migration: %w", err)
	}
	var m model.Migration
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to decode migration: %w", err)
	}
	return &m, nil
}

func (s *SQLite) ListMigrations(ctx context.Context, f MigrationFilter) ([]*model.Migration, error) {
	var where []string
	var args []any
	for col, v := range map[string]string{
		"project_id": f.ProjectID,
		"wave_id":    f.WaveID,
		"asset_id":   f.AssetID,
		"status":     string(f.Status),
	} {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	query := `SELECT data FROM migrations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var out []*model.Migration
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m model.Migration
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("failed to decode migration: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
