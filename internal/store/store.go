// Package store persists the tracked-service set and per-service key/value
// configuration in SQLite. The monitor core consumes it only through
// ListTracked; everything else serves the management surface.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"svcwatch/internal/monitor"
	logx "svcwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrNotTracked = errors.New("service not tracked")

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TrackedService is one row of the tracked-service table.
type TrackedService struct {
	ID          int64
	Name        string
	DisplayName string
	Description string
	Category    string
	Enabled     bool
	AutoStart   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConfigEntry is one per-service key/value setting.
// Type is one of: string, number, boolean, json.
type ConfigEntry struct {
	ServiceName string
	Key         string
	Value       string
	Type        string
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store, creating the file and schema as needed.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ListTracked satisfies monitor.TrackedSource: the name and enabled flag of
// every tracked service.
func (s *Store) ListTracked(ctx context.Context) ([]monitor.TrackedRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, enabled FROM tracked_services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []monitor.TrackedRef
	for rows.Next() {
		var ref monitor.TrackedRef
		if err := rows.Scan(&ref.Name, &ref.Enabled); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// List returns full rows, ordered by display name.
func (s *Store) List(ctx context.Context) ([]TrackedService, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_name, COALESCE(description, ''), category, enabled, auto_start, created_at, updated_at
		 FROM tracked_services ORDER BY display_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []TrackedService
	for rows.Next() {
		ts, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, ts)
	}
	return services, rows.Err()
}

func scanTracked(rows *sql.Rows) (TrackedService, error) {
	var ts TrackedService
	var created, updated string
	if err := rows.Scan(&ts.ID, &ts.Name, &ts.DisplayName, &ts.Description, &ts.Category,
		&ts.Enabled, &ts.AutoStart, &created, &updated); err != nil {
		return TrackedService{}, err
	}
	ts.CreatedAt = parseTime(created)
	ts.UpdatedAt = parseTime(updated)
	return ts, nil
}

func parseTime(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	// datetime('now') default rows use SQLite's own format.
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// Add inserts a service into tracking, enabled by default.
func (s *Store) Add(ctx context.Context, name, displayName, description, category string) (TrackedService, error) {
	if category == "" {
		category = "Other"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_services (name, display_name, description, category, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, displayName, nullStr(description), category, now, now)
	if err != nil {
		return TrackedService{}, err
	}
	id, _ := res.LastInsertId()

	s.log.Info("service added to tracking", logx.String("service", name), logx.Int64("id", id))
	return TrackedService{
		ID:          id,
		Name:        name,
		DisplayName: displayName,
		Description: description,
		Category:    category,
		Enabled:     true,
		CreatedAt:   parseTime(now),
		UpdatedAt:   parseTime(now),
	}, nil
}

// Remove deletes a service and its config entries.
func (s *Store) Remove(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM service_configs WHERE service_name = ?`, name); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_services WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotTracked
	}
	s.log.Info("service removed from tracking", logx.String("service", name))
	return nil
}

func (s *Store) IsTracked(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_services WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetEnabled toggles whether the poller observes a tracked service.
func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_services SET enabled = ?, updated_at = ? WHERE name = ?`,
		enabled, now, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotTracked
	}
	return nil
}

// SetConfig upserts one per-service key/value setting.
func (s *Store) SetConfig(ctx context.Context, e ConfigEntry) error {
	if e.Type == "" {
		e.Type = "string"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_configs (service_name, config_key, config_value, config_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(service_name, config_key) DO UPDATE SET
		     config_value = excluded.config_value,
		     config_type = excluded.config_type,
		     updated_at = excluded.updated_at`,
		e.ServiceName, e.Key, e.Value, e.Type, now, now)
	return err
}

// Configs returns all settings for one service.
func (s *Store) Configs(ctx context.Context, serviceName string) ([]ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_name, config_key, config_value, config_type
		 FROM service_configs WHERE service_name = ? ORDER BY config_key`, serviceName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.ServiceName, &e.Key, &e.Value, &e.Type); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
