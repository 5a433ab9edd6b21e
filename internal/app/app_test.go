package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/config"
	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
)

func testApp(t *testing.T) *App {
	t.Helper()
	return NewApp(&config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "floodwatch.db"),
		},
		Sensor:   config.SensorConfig{ReferenceHeight: 300},
		Export:   config.ExportConfig{MaxDataPoints: 100},
		Alerting: config.AlertingConfig{Channels: []string{"telegram"}},
	}, zerolog.Nop())
}

func record(sensorID string, distance int, at time.Time) storage.ReadingRecord {
	return recordOf(status.FromDistance(sensorID, distance, 300), at)
}

// depthRecord builds a reading from the depth/contact payload shape, the only
// shape that can land in the WASPADA band.
func depthRecord(sensorID string, depth int, at time.Time) storage.ReadingRecord {
	return recordOf(status.FromDepth(sensorID, depth, false), at)
}

func recordOf(r status.Reading, at time.Time) storage.ReadingRecord {
	return storage.ReadingRecord{
		ID:        uuid.New(),
		SensorID:  r.SensorID,
		Distance:  r.Distance,
		Depth:     r.Depth,
		Contact:   r.Contact,
		Status:    status.Classify(r.Depth, r.Contact),
		CreatedAt: at,
	}
}

func TestDownsampleReadings(t *testing.T) {
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	readings := make([]storage.ReadingRecord, 10)
	for i := range readings {
		readings[i] = record("a", 300-i, base.Add(time.Duration(i)*time.Minute))
	}

	got := downsampleReadings(readings, 4)
	if len(got) != 4 {
		t.Fatalf("len = %d", len(got))
	}
	if !got[0].CreatedAt.Equal(readings[0].CreatedAt) || !got[3].CreatedAt.Equal(readings[9].CreatedAt) {
		t.Fatal("downsampling must keep both ends")
	}
	if len(downsampleReadings(readings, 20)) != 10 {
		t.Fatal("short input must be returned unchanged")
	}
}

func TestReplayReadingsFollowsAlertPolicy(t *testing.T) {
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	rain := "Heavy Rain"
	readings := []storage.ReadingRecord{
		record("a", 200, base),
		depthRecord("a", 260, base.Add(time.Minute)),
		depthRecord("a", 270, base.Add(2*time.Minute)),
		record("a", 0, base.Add(3*time.Minute)),
		record("a", 250, base.Add(4*time.Minute)),
	}
	wet := record("a", 200, base.Add(5*time.Minute))
	wet.WeatherDesc = &rain
	wet.HeavyRain = true
	wet.Temperature = decimal.NewNullDecimal(decimal.NewFromInt(24))
	readings = append(readings, wet)

	notes := replayReadings(readings)
	want := []struct {
		kind alerting.Kind
		to   status.Status
	}{
		{alerting.KindTransition, status.Waspada},
		{alerting.KindTransition, status.Bahaya},
		{alerting.KindTransition, status.Aman},
		{alerting.KindWeatherWarning, status.Aman},
	}
	if len(notes) != len(want) {
		t.Fatalf("notifications = %d, want %d", len(notes), len(want))
	}
	for i, w := range want {
		if notes[i].Kind != w.kind || notes[i].Status != w.to {
			t.Errorf("note %d = %s/%s, want %s/%s", i, notes[i].Kind, notes[i].Status, w.kind, w.to)
		}
	}
	if !notes[0].At.Equal(base.Add(time.Minute)) {
		t.Errorf("replayed notification should carry the reading time, got %s", notes[0].At)
	}
}

func TestReplayDistanceReadingsSkipWaspada(t *testing.T) {
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	// jarak 40 is depth 260; the derived contact flag lifts it straight to BAHAYA.
	notes := replayReadings([]storage.ReadingRecord{
		record("a", 200, base),
		record("a", 40, base.Add(time.Minute)),
		record("a", 30, base.Add(2*time.Minute)),
		record("a", 250, base.Add(3*time.Minute)),
	})
	if len(notes) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notes))
	}
	if notes[0].Status != status.Bahaya || notes[0].Previous != status.Aman {
		t.Errorf("first note = %s -> %s, want AMAN -> BAHAYA", notes[0].Previous, notes[0].Status)
	}
	if notes[1].Status != status.Aman {
		t.Errorf("second note = %s, want AMAN", notes[1].Status)
	}

	for distance := 10; distance < 50; distance++ {
		if got := record("a", distance, base).Status; got != status.Bahaya {
			t.Fatalf("jarak %d classified %s, want BAHAYA", distance, got)
		}
	}
}

func TestPrintReadingsAndAlerts(t *testing.T) {
	var buf bytes.Buffer
	if err := printReadings(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no readings found") {
		t.Fatalf("output = %q", buf.String())
	}

	buf.Reset()
	rec := depthRecord("river-1", 260, time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC))
	if err := printReadings(&buf, []storage.ReadingRecord{rec}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Sensor", "river-1", "WASPADA", "260"} {
		if !strings.Contains(out, want) {
			t.Errorf("readings output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	alerts := []storage.AlertRecord{{
		SensorID: "river-1", Kind: "transition", Status: status.Bahaya, Previous: status.Waspada,
		Depth: 310, Message: "line one\nline two", CreatedAt: time.Now(),
	}}
	if err := printAlerts(&buf, alerts); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "line one line two") {
		t.Errorf("alert message should be flattened:\n%s", buf.String())
	}
}

func TestNewNotifierHonoursChannels(t *testing.T) {
	a := testApp(t)
	if n := a.newNotifier(nil); n != nil {
		t.Fatalf("telegram disabled should yield no notifier, got %T", n)
	}

	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1"}
	if _, ok := a.newNotifier(nil).(*alerting.TelegramNotifier); !ok {
		t.Fatal("expected telegram notifier")
	}

	a.Config.Alerting.Channels = []string{"mqtt"}
	if n := a.newNotifier(nil); n != nil {
		t.Fatalf("mqtt channel without a broker should yield nothing, got %T", n)
	}
}

func TestExportWritesCSVAndPNG(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)

	store, err := storage.NewSQLiteStore(a.Config.Database.Path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	for i, distance := range []int{120, 60, 40, 0} {
		if err := store.InsertReading(ctx, record("a", distance, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "readings.csv")
	pngPath := filepath.Join(dir, "out", "readings.png")
	from, to := base.Add(-time.Hour), base.Add(time.Hour)

	err = a.Export(ctx, ExportOptions{From: &from, To: &to, CSVPath: csvPath, PNGPath: pngPath})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("csv rows = %d, want header + 4", len(rows))
	}
	if rows[4][3] != "300" || rows[4][5] != "BAHAYA" {
		t.Errorf("last row = %v", rows[4])
	}

	info, err := os.Stat(pngPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}

func TestExportRequiresOutput(t *testing.T) {
	if err := testApp(t).Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("export without --csv or --png should fail")
	}
}

func TestSimulateRejectsNotifyWithoutChannel(t *testing.T) {
	a := testApp(t)
	a.Config.Alerting.Enabled = true
	err := a.Simulate(context.Background(), SimulateOptions{Distances: []int{10}, Notify: true})
	if err == nil {
		t.Fatal("notify without a configured channel should fail")
	}
}
