package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"flood-alerts/internal/storage"
)

// Show prints recent readings, or recent alerts when opts.Alerts is set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	if opts.Alerts {
		alerts, err := repo.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return printAlerts(os.Stdout, alerts)
	}

	readings, err := repo.ListRecentReadings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return printReadings(os.Stdout, readings)
}

func printReadings(out io.Writer, readings []storage.ReadingRecord) error {
	if len(readings) == 0 {
		fmt.Fprintln(out, "no readings found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSensor\tJarak\tDepth\tContact\tStatus\tWeather\tTemp")

	for _, r := range readings {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%t\t%s\t%s\t%s\n",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.SensorID,
			formatOptionalInt(r.Distance),
			r.Depth,
			r.Contact,
			r.Status,
			sanitizeInline(valueOr(r.WeatherDesc, "-")),
			formatNullDecimal(r.Temperature, 1),
		)
	}

	return writer.Flush()
}

func printAlerts(out io.Writer, alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSensor\tKind\tFrom\tTo\tDepth\tMessage")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.SensorID,
			alert.Kind,
			alert.Previous,
			alert.Status,
			alert.Depth,
			sanitizeInline(alert.Message),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}
