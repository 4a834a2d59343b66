// Package store persists the discovery registry snapshot to SQLite so
// the daemon's device inventory survives restarts. It is a pure
// consumer of lifecycle events; the reconciliation core never reads it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/travisghansen/chromecast-api/pkg/models"
)

// DeviceStore mirrors device records into a single SQLite table.
type DeviceStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies WAL pragmas
// and the schema.
func Open(path string, logger *zap.Logger) (*DeviceStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires pragmas as SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &DeviceStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("device store ready", zap.String("path", path))
	return s, nil
}

func (s *DeviceStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS devices (
			id             TEXT PRIMARY KEY,
			discovery_name TEXT NOT NULL DEFAULT '',
			friendly_name  TEXT NOT NULL DEFAULT '',
			host           TEXT NOT NULL DEFAULT '',
			manufacturer   TEXT NOT NULL DEFAULT '',
			model_name     TEXT NOT NULL DEFAULT '',
			last_seen      DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create devices table: %w", err)
	}
	return nil
}

// Upsert inserts or fully replaces the stored row for the device.
func (s *DeviceStore) Upsert(ctx context.Context, d *models.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, discovery_name, friendly_name, host, manufacturer, model_name, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			discovery_name = excluded.discovery_name,
			friendly_name  = excluded.friendly_name,
			host           = excluded.host,
			manufacturer   = excluded.manufacturer,
			model_name     = excluded.model_name,
			last_seen      = excluded.last_seen
	`, d.ID, d.DiscoveryName, d.FriendlyName, d.Host, d.Manufacturer, d.ModelName,
		d.LastSeen.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert device %q: %w", d.ID, err)
	}
	return nil
}

// Delete removes the stored row for the device, if any.
func (s *DeviceStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete device %q: %w", id, err)
	}
	return nil
}

// List returns all stored devices ordered by identifier.
func (s *DeviceStore) List(ctx context.Context) ([]*models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, discovery_name, friendly_name, host, manufacturer, model_name, last_seen
		FROM devices ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		var lastSeen string
		if err := rows.Scan(&d.ID, &d.DiscoveryName, &d.FriendlyName, &d.Host,
			&d.Manufacturer, &d.ModelName, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
			d.LastSeen = t
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

// Close closes the underlying database connection.
func (s *DeviceStore) Close() error {
	return s.db.Close()
}
