package alerting

import (
	"fmt"
	"time"

	"flood-alerts/internal/status"
	"flood-alerts/internal/weather"
)

// Kind distinguishes the two notification branches.
type Kind string

const (
	KindWeatherWarning Kind = "weather_warning"
	KindTransition     Kind = "transition"
)

// Notification is one outbound operator message and the context it was built from.
type Notification struct {
	SensorID string
	Kind     Kind
	Status   status.Status
	Previous status.Status
	Depth    int
	Weather  *weather.Snapshot
	At       time.Time
	Text     string
}

// Render builds the operator-facing text. Wording is Indonesian; the
// recipients are local flood wardens.
func Render(note Notification) string {
	if note.Kind == KindWeatherWarning && note.Weather != nil {
		return fmt.Sprintf("🌧️ PERINGATAN DINI CUACA 🌧️\nDiprediksi %s (Suhu: %s°C) dalam waktu dekat.\nKetinggian air saat ini %d cm (Masih AMAN), namun potensi banjir meningkat.",
			note.Weather.Description, weather.Display(note.Weather.Temperature), note.Depth)
	}

	info := ""
	if note.Weather != nil {
		info = fmt.Sprintf("\n\nCuaca Terdekat: %s (Suhu: %s°C)", note.Weather.Description, weather.Display(note.Weather.Temperature))
	}

	switch note.Status {
	case status.Waspada:
		return fmt.Sprintf("⚠️ WASPADA BANJIR! ⚠️\nKetinggian air mencapai: %d cm.\nHarap waspada!%s", note.Depth, info)
	case status.Bahaya:
		return fmt.Sprintf("🚨 ALERT BANJIR! 🚨\nKetinggian air mencapai: %d cm.\nSegera ambil tindakan darurat!%s", note.Depth, info)
	default:
		return fmt.Sprintf("✅ Kondisi kembali AMAN.\nKetinggian air saat ini: %d cm. \n%s", note.Depth, info)
	}
}
