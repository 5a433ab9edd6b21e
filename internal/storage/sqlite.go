package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS readings (
		id            TEXT PRIMARY KEY,
		sensor_id     TEXT NOT NULL,
		distance_cm   INTEGER,
		depth_cm      INTEGER NOT NULL,
		contact       BOOLEAN NOT NULL,
		status        TEXT NOT NULL,
		weather_desc  TEXT,
		temperature   TEXT,
		humidity      TEXT,
		wind_speed    TEXT,
		cloud_cover   TEXT,
		forecast_time TEXT,
		heavy_rain    BOOLEAN NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_created_at ON readings(created_at);
	CREATE INDEX IF NOT EXISTS idx_readings_sensor ON readings(sensor_id, created_at);
	CREATE TABLE IF NOT EXISTS alerts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		sensor_id       TEXT NOT NULL,
		kind            TEXT NOT NULL,
		status          TEXT NOT NULL,
		previous_status TEXT NOT NULL,
		depth_cm        INTEGER NOT NULL,
		message         TEXT NOT NULL,
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);`

// SQLiteStore implements Repository on a local SQLite file. Timestamps are
// written in UTC so text comparison matches chronological order.
type SQLiteStore struct {
	db     *sql.DB
	DBPath string
}

// NewSQLiteStore opens (and initialises) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "floodwatch.db")
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db, DBPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertReading persists a reading.
func (s *SQLiteStore) InsertReading(ctx context.Context, rec ReadingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings(`+readingColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListRecentReadings lists the most recent readings, newest first.
func (s *SQLiteStore) ListRecentReadings(ctx context.Context, limit int) ([]ReadingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+`
		FROM readings
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent readings: %w", err)
	}
	return collectSQLReadings(rows)
}

// ListReadingsBetween lists readings within [from, to), oldest first.
func (s *SQLiteStore) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]ReadingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+`
		FROM readings
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list readings between: %w", err)
	}
	return collectSQLReadings(rows)
}

// LatestReadings returns the newest reading of every sensor.
func (s *SQLiteStore) LatestReadings(ctx context.Context) ([]ReadingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+`
		FROM readings
		WHERE (sensor_id, created_at) IN (
			SELECT sensor_id, MAX(created_at)
			FROM readings
			GROUP BY sensor_id
		)
		ORDER BY sensor_id`)
	if err != nil {
		return nil, fmt.Errorf("latest readings: %w", err)
	}
	return collectSQLReadings(rows)
}

// CountReadings counts stored readings.
func (s *SQLiteStore) CountReadings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}

// DeleteReadingsBefore prunes historical readings.
func (s *SQLiteStore) DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete readings before: %w", err)
	}
	return res.RowsAffected()
}

// InsertAlert persists an alert emission.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	alert.CreatedAt = alert.CreatedAt.UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts(sensor_id, kind, status, previous_status, depth_cm, message, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		alert.SensorID,
		alert.Kind,
		string(alert.Status),
		string(alert.Previous),
		alert.Depth,
		alert.Message,
		alert.CreatedAt,
	)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert id: %w", err)
	}
	alert.ID = id
	return alert, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete alerts before: %w", err)
	}
	return res.RowsAffected()
}

func collectSQLReadings(rows *sql.Rows) ([]ReadingRecord, error) {
	defer rows.Close()

	var result []ReadingRecord
	for rows.Next() {
		rec, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return result, nil
}

var _ Repository = (*SQLiteStore)(nil)
