package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/service"
	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	SensorID  string
	Distances []int
	// Weather replaces the live forecast when non-empty.
	Weather     string
	Temperature float64
	// Notify dispatches through the configured channels instead of only printing.
	Notify bool
}

// Simulate feeds a sequence of distances through classification and the alert
// state machine using an in-memory store, printing what the server would do.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Distances) == 0 {
		return errors.New("at least one distance is required")
	}

	var notifier alerting.Notifier
	if opts.Notify {
		if !a.Config.Alerting.Enabled {
			return errors.New("alerting is disabled")
		}
		notifier = a.newNotifier(nil)
		if notifier == nil {
			return errors.New("no alert channel configured")
		}
	}

	var fetcher weather.Fetcher
	if opts.Weather != "" {
		fetcher = &staticWeather{snapshot: weather.Snapshot{
			ForecastTime: "simulated",
			Description:  opts.Weather,
			Temperature:  decimal.NewNullDecimal(decimal.NewFromFloat(opts.Temperature)),
			HeavyRain:    weather.IsHeavyRain(opts.Weather),
		}}
	} else {
		fetcher = a.newWeather()
	}

	store := storage.NewMemoryStore(len(opts.Distances))
	svc := service.New(a.Config, fetcher, store, notifier, alerting.NewRegistry(), a.Logger)

	sensorID := opts.SensorID
	if sensorID == "" {
		sensorID = status.DefaultSensorID
	}

	for _, distance := range opts.Distances {
		reading := status.FromDistance(sensorID, distance, svc.ReferenceHeight())
		before, _ := store.ListRecentAlerts(ctx, 1)
		res := svc.Ingest(ctx, reading)
		after, _ := store.ListRecentAlerts(ctx, 1)

		printSimulation(os.Stdout, distance, res, newAlert(before, after))
	}

	svc.Wait()
	return nil
}

func newAlert(before, after []storage.AlertRecord) *storage.AlertRecord {
	if len(after) == 0 {
		return nil
	}
	if len(before) > 0 && before[0].ID == after[0].ID {
		return nil
	}
	return &after[0]
}

func printSimulation(out io.Writer, distance int, res service.Result, alert *storage.AlertRecord) {
	fmt.Fprintf(out, "jarak=%d ketinggian_air=%d sentuh_air=%t status=%s sirine=%t\n",
		distance, res.Depth, res.Contact, res.Status, res.Siren)
	if alert != nil {
		fmt.Fprintf(out, "  -> %s (%s -> %s)\n", alert.Kind, alert.Previous, alert.Status)
		fmt.Fprintf(out, "     %s\n", sanitizeInline(alert.Message))
	}
}

type staticWeather struct {
	snapshot weather.Snapshot
}

func (s *staticWeather) Fetch(context.Context) (*weather.Snapshot, error) {
	wx := s.snapshot
	return &wx, nil
}

var _ weather.Fetcher = (*staticWeather)(nil)
