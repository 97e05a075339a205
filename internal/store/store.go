package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"irrisync/irrigation-server/internal/model"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pump_status (
			area_name TEXT PRIMARY KEY,
			pump_id TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			mode TEXT NOT NULL DEFAULT 'auto',
			last_updated TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS crop_settings (
			area_name TEXT PRIMARY KEY,
			crop_name TEXT NOT NULL,
			optimal_moisture REAL NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// GetStatus returns the persisted pump status for an area, or nil when the
// area has never been written.
func (s *Store) GetStatus(ctx context.Context, area string) (*model.PumpStatus, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	var (
		pumpID      string
		status      int
		mode        string
		lastUpdated string
	)

	err := s.db.QueryRowContext(
		ctx,
		`SELECT pump_id, status, mode, last_updated FROM pump_status WHERE area_name = ?;`,
		area,
	).Scan(&pumpID, &status, &mode, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pump status: %w", err)
	}

	updated, err := time.Parse(time.RFC3339Nano, lastUpdated)
	if err != nil {
		updated, _ = time.Parse(time.RFC3339, lastUpdated)
	}

	return &model.PumpStatus{
		AreaName:    area,
		PumpID:      pumpID,
		Status:      status != 0,
		Mode:        model.Mode(mode),
		LastUpdated: updated,
	}, nil
}

// UpsertStatus writes the pump status for an area, creating the row when
// absent. last_updated is set on every write.
func (s *Store) UpsertStatus(ctx context.Context, area, pumpID string, status bool, mode model.Mode) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	statusInt := 0
	if status {
		statusInt = 1
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pump_status (area_name, pump_id, status, mode, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(area_name)
		 DO UPDATE SET status = excluded.status,
				 mode = excluded.mode,
				 last_updated = excluded.last_updated;`,
		area,
		pumpID,
		statusInt,
		string(mode),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert pump status: %w", err)
	}
	return nil
}

// ListStatuses returns every pump status ordered by area name.
func (s *Store) ListStatuses(ctx context.Context) ([]model.PumpStatus, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT area_name, pump_id, status, mode, last_updated FROM pump_status ORDER BY area_name ASC;`)
	if err != nil {
		return nil, fmt.Errorf("query pump statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]model.PumpStatus, 0)
	for rows.Next() {
		var (
			area        string
			pumpID      string
			status      int
			mode        string
			lastUpdated string
		)
		if err := rows.Scan(&area, &pumpID, &status, &mode, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan pump status: %w", err)
		}

		updated, err := time.Parse(time.RFC3339Nano, lastUpdated)
		if err != nil {
			updated, _ = time.Parse(time.RFC3339, lastUpdated)
		}

		statuses = append(statuses, model.PumpStatus{
			AreaName:    area,
			PumpID:      pumpID,
			Status:      status != 0,
			Mode:        model.Mode(mode),
			LastUpdated: updated,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pump statuses: %w", err)
	}

	return statuses, nil
}

// GetCropSettings returns the crop reference data for an area, or nil when
// the area is unconfigured.
func (s *Store) GetCropSettings(ctx context.Context, area string) (*model.CropSettings, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	var (
		cropName        string
		optimalMoisture float64
	)

	err := s.db.QueryRowContext(
		ctx,
		`SELECT crop_name, optimal_moisture FROM crop_settings WHERE area_name = ?;`,
		area,
	).Scan(&cropName, &optimalMoisture)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get crop settings: %w", err)
	}

	return &model.CropSettings{
		AreaName:        area,
		CropName:        cropName,
		OptimalMoisture: optimalMoisture,
	}, nil
}

// UpsertCropSettings stores or updates the crop reference data for an area.
func (s *Store) UpsertCropSettings(ctx context.Context, cs model.CropSettings) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO crop_settings (area_name, crop_name, optimal_moisture)
		 VALUES (?, ?, ?)
		 ON CONFLICT(area_name)
		 DO UPDATE SET crop_name = excluded.crop_name,
				 optimal_moisture = excluded.optimal_moisture;`,
		cs.AreaName,
		cs.CropName,
		cs.OptimalMoisture,
	)
	if err != nil {
		return fmt.Errorf("upsert crop settings: %w", err)
	}
	return nil
}
