package weather

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Snapshot is the nearest forecast entry for the configured region. Numeric
// fields the API leaves out stay invalid rather than zero.
type Snapshot struct {
	ForecastTime string
	Description  string
	Temperature  decimal.NullDecimal
	Humidity     decimal.NullDecimal
	WindSpeed    decimal.NullDecimal
	CloudCover   decimal.NullDecimal
	HeavyRain    bool
}

// Fetcher retrieves the nearest forecast.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Display renders a forecast value for operator text, "N/A" when absent.
func Display(d decimal.NullDecimal) string {
	if !d.Valid {
		return "N/A"
	}
	return d.Decimal.String()
}

// IsHeavyRain reports whether a forecast description announces rain or thunder.
func IsHeavyRain(description string) bool {
	return strings.Contains(description, "Rain") || strings.Contains(description, "Thunder")
}
