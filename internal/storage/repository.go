package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const readingColumns = `id,
        sensor_id,
        distance_cm,
        depth_cm,
        contact,
        status,
        weather_desc,
        temperature,
        humidity,
        wind_speed,
        cloud_cover,
        forecast_time,
        heavy_rain,
        created_at`

const alertColumns = `id, sensor_id, kind, status, previous_status, depth_cm, message, created_at`

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
        id            TEXT PRIMARY KEY,
        sensor_id     TEXT NOT NULL,
        distance_cm   INTEGER,
        depth_cm      INTEGER NOT NULL,
        contact       BOOLEAN NOT NULL,
        status        TEXT NOT NULL,
        weather_desc  TEXT,
        temperature   NUMERIC,
        humidity      NUMERIC,
        wind_speed    NUMERIC,
        cloud_cover   NUMERIC,
        forecast_time TEXT,
        heavy_rain    BOOLEAN NOT NULL DEFAULT FALSE,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_readings_created_at ON readings (created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_readings_sensor ON readings (sensor_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id              BIGSERIAL PRIMARY KEY,
        sensor_id       TEXT NOT NULL,
        kind            TEXT NOT NULL,
        status          TEXT NOT NULL,
        previous_status TEXT NOT NULL,
        depth_cm        INTEGER NOT NULL,
        message         TEXT NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts (created_at);`,
}

const (
	insertReadingSQL = `INSERT INTO readings (` + readingColumns + `) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    );`

	listRecentReadingsSQL = `SELECT ` + readingColumns + `
    FROM readings
    ORDER BY created_at DESC
    LIMIT $1;`

	listReadingsBetweenSQL = `SELECT ` + readingColumns + `
    FROM readings
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	latestReadingsSQL = `SELECT DISTINCT ON (sensor_id) ` + readingColumns + `
    FROM readings
    ORDER BY sensor_id, created_at DESC;`

	countReadingsSQL = `SELECT COUNT(*) FROM readings;`

	deleteReadingsBeforeSQL = `DELETE FROM readings WHERE created_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        sensor_id,
        kind,
        status,
        previous_status,
        depth_cm,
        message,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING ` + alertColumns + `;`

	listRecentAlertsSQL = `SELECT ` + alertColumns + `
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// ReadingStore defines operations for reading persistence.
type ReadingStore interface {
	InsertReading(ctx context.Context, rec ReadingRecord) error
	ListRecentReadings(ctx context.Context, limit int) ([]ReadingRecord, error)
	ListReadingsBetween(ctx context.Context, from, to time.Time) ([]ReadingRecord, error)
	LatestReadings(ctx context.Context) ([]ReadingRecord, error)
	CountReadings(ctx context.Context) (int64, error)
	DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Repository is a complete storage backend.
type Repository interface {
	ReadingStore
	AlertStore
	Close() error
}

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates tables and indexes when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range pgSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertReading persists a reading.
func (s *Store) InsertReading(ctx context.Context, rec ReadingRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertReadingSQL,
		rec.ID.String(),
		rec.SensorID,
		intArg(rec.Distance),
		rec.Depth,
		rec.Contact,
		string(rec.Status),
		stringArg(rec.WeatherDesc),
		decimalArg(rec.Temperature),
		decimalArg(rec.Humidity),
		decimalArg(rec.WindSpeed),
		decimalArg(rec.CloudCover),
		stringArg(rec.ForecastTime),
		rec.HeavyRain,
		rec.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert reading: %w", execErr)
	}
	return nil
}

// ListRecentReadings lists the most recent readings, newest first.
func (s *Store) ListRecentReadings(ctx context.Context, limit int) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReadingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent readings: %w", queryErr)
	}
	return collectReadings(rows)
}

// ListReadingsBetween lists readings within [from, to), oldest first.
func (s *Store) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	return collectReadings(rows)
}

// LatestReadings returns the newest reading of every sensor.
func (s *Store) LatestReadings(ctx context.Context) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestReadingsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("latest readings: %w", queryErr)
	}
	return collectReadings(rows)
}

// CountReadings counts stored readings.
func (s *Store) CountReadings(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countReadingsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count readings: %w", scanErr)
	}
	return count, nil
}

// DeleteReadingsBefore prunes historical readings.
func (s *Store) DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteReadingsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete readings before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SensorID,
		alert.Kind,
		string(alert.Status),
		string(alert.Previous),
		alert.Depth,
		alert.Message,
		alert.CreatedAt,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectReadings(rows pgx.Rows) ([]ReadingRecord, error) {
	defer rows.Close()

	readings := make([]ReadingRecord, 0)
	for rows.Next() {
		rec, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

var _ Repository = (*Store)(nil)
