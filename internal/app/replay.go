package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

// Replay runs stored readings from a window through a fresh alert state and
// prints the notifications that would have fired. Nothing is written or sent.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	from, to := opts.From.UTC(), opts.To.UTC()
	if !from.Before(to) {
		return errors.New("replay range is empty; check --from/--to")
	}

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	readings, err := repo.ListReadingsBetween(ctx, from, to)
	if err != nil {
		return err
	}

	notes := replayReadings(readings)
	a.Logger.Info().Int("readings", len(readings)).Int("notifications", len(notes)).Msg("replay finished")
	printReplay(os.Stdout, notes)
	return nil
}

// replayReadings expects readings in chronological order.
func replayReadings(readings []storage.ReadingRecord) []alerting.Notification {
	registry := alerting.NewRegistry()
	var notes []alerting.Notification
	for _, rec := range readings {
		note, ok := registry.State(rec.SensorID).Evaluate(rec.Status, rec.Depth, snapshotOf(rec))
		if !ok {
			continue
		}
		note.SensorID = rec.SensorID
		note.At = rec.CreatedAt
		notes = append(notes, note)
	}
	return notes
}

// snapshotOf rebuilds the forecast stored alongside a reading.
func snapshotOf(rec storage.ReadingRecord) *weather.Snapshot {
	if rec.WeatherDesc == nil {
		return nil
	}
	return &weather.Snapshot{
		ForecastTime: valueOr(rec.ForecastTime, ""),
		Description:  *rec.WeatherDesc,
		Temperature:  rec.Temperature,
		Humidity:     rec.Humidity,
		WindSpeed:    rec.WindSpeed,
		CloudCover:   rec.CloudCover,
		HeavyRain:    rec.HeavyRain,
	}
}

func printReplay(out io.Writer, notes []alerting.Notification) {
	if len(notes) == 0 {
		fmt.Fprintln(out, "no notifications in window")
		return
	}
	for _, note := range notes {
		fmt.Fprintf(out, "%s  %-10s %-16s %s -> %s (%d cm)\n",
			note.At.UTC().Format(time.RFC3339), note.SensorID, note.Kind, note.Previous, note.Status, note.Depth)
	}
}
