package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flood-alerts/internal/status"
)

// ReadingRecord is one persisted sensor reading with its classification and
// the forecast that was current when it arrived.
type ReadingRecord struct {
	ID           uuid.UUID
	SensorID     string
	Distance     *int
	Depth        int
	Contact      bool
	Status       status.Status
	WeatherDesc  *string
	Temperature  decimal.NullDecimal
	Humidity     decimal.NullDecimal
	WindSpeed    decimal.NullDecimal
	CloudCover   decimal.NullDecimal
	ForecastTime *string
	HeavyRain    bool
	CreatedAt    time.Time
}

// AlertRecord captures an emitted notification for auditing.
type AlertRecord struct {
	ID        int64
	SensorID  string
	Kind      string
	Status    status.Status
	Previous  status.Status
	Depth     int
	Message   string
	CreatedAt time.Time
}

func decimalArg(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func stringArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func intArg(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func parseNullDecimal(field string, v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid || v.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row rowScanner) (ReadingRecord, error) {
	var (
		id           string
		rec          ReadingRecord
		distance     sql.NullInt64
		statusStr    string
		weatherDesc  sql.NullString
		temperature  sql.NullString
		humidity     sql.NullString
		windSpeed    sql.NullString
		cloudCover   sql.NullString
		forecastTime sql.NullString
	)

	if err := row.Scan(
		&id,
		&rec.SensorID,
		&distance,
		&rec.Depth,
		&rec.Contact,
		&statusStr,
		&weatherDesc,
		&temperature,
		&humidity,
		&windSpeed,
		&cloudCover,
		&forecastTime,
		&rec.HeavyRain,
		&rec.CreatedAt,
	); err != nil {
		return ReadingRecord{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return ReadingRecord{}, fmt.Errorf("parse reading id: %w", err)
	}
	rec.ID = parsed
	rec.Distance = nullIntPtr(distance)
	rec.Status = status.Status(statusStr)
	rec.WeatherDesc = nullStringPtr(weatherDesc)
	rec.ForecastTime = nullStringPtr(forecastTime)

	if rec.Temperature, err = parseNullDecimal("temperature", temperature); err != nil {
		return ReadingRecord{}, err
	}
	if rec.Humidity, err = parseNullDecimal("humidity", humidity); err != nil {
		return ReadingRecord{}, err
	}
	if rec.WindSpeed, err = parseNullDecimal("wind speed", windSpeed); err != nil {
		return ReadingRecord{}, err
	}
	if rec.CloudCover, err = parseNullDecimal("cloud cover", cloudCover); err != nil {
		return ReadingRecord{}, err
	}
	return rec, nil
}

func scanAlert(row rowScanner) (AlertRecord, error) {
	var rec AlertRecord
	var statusStr, previousStr string
	if err := row.Scan(
		&rec.ID,
		&rec.SensorID,
		&rec.Kind,
		&statusStr,
		&previousStr,
		&rec.Depth,
		&rec.Message,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}
	rec.Status = status.Status(statusStr)
	rec.Previous = status.Status(previousStr)
	return rec, nil
}
