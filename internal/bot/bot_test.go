package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

type fakeSource struct {
	latest []storage.ReadingRecord
	err    error
	wx     *weather.Snapshot
}

func (f fakeSource) LatestReadings(context.Context) ([]storage.ReadingRecord, error) {
	return f.latest, f.err
}

func (f fakeSource) CurrentWeather(context.Context) *weather.Snapshot {
	return f.wx
}

func newTestBot(src Source) *Bot {
	return &Bot{source: src, logger: zerolog.Nop()}
}

func TestReplyStatus(t *testing.T) {
	b := newTestBot(fakeSource{latest: []storage.ReadingRecord{
		{SensorID: "hilir", Depth: 310, Status: status.Bahaya, CreatedAt: time.Now()},
		{SensorID: "hulu", Depth: 90, Status: status.Aman, CreatedAt: time.Now()},
	}})

	got := b.Reply(context.Background(), "status")
	if !strings.Contains(got, "hilir: BAHAYA (310 cm)") || !strings.Contains(got, "hulu: AMAN (90 cm)") {
		t.Fatalf("reply = %q", got)
	}
}

func TestReplyStatusErrors(t *testing.T) {
	if got := newTestBot(fakeSource{}).Reply(context.Background(), "status"); got != "Belum ada data sensor." {
		t.Fatalf("empty reply = %q", got)
	}
	got := newTestBot(fakeSource{err: errors.New("db down")}).Reply(context.Background(), "status")
	if !strings.HasPrefix(got, "Gagal") {
		t.Fatalf("error reply = %q", got)
	}
}

func TestReplyWeather(t *testing.T) {
	b := newTestBot(fakeSource{wx: &weather.Snapshot{
		ForecastTime: "2025-01-10 09:00:00",
		Description:  "Heavy Rain",
		Temperature:  decimal.NewNullDecimal(decimal.NewFromInt(24)),
		Humidity:     decimal.NewNullDecimal(decimal.NewFromInt(95)),
		WindSpeed:    decimal.NewNullDecimal(decimal.RequireFromString("7.5")),
		HeavyRain:    true,
	}})

	got := b.Reply(context.Background(), "cuaca")
	for _, want := range []string{"Heavy Rain", "Suhu: 24°C", "Angin: 7.5 km/j", "Tutupan awan: N/A", "hujan deras"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing from %q", want, got)
		}
	}

	if got := newTestBot(fakeSource{}).Reply(context.Background(), "cuaca"); !strings.Contains(got, "tidak tersedia") {
		t.Fatalf("no-weather reply = %q", got)
	}
}

func TestReplyUnknownCommand(t *testing.T) {
	got := newTestBot(fakeSource{}).Reply(context.Background(), "rivers")
	if !strings.Contains(got, "/help") {
		t.Fatalf("reply = %q", got)
	}
}
