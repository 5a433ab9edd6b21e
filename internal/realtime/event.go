package realtime

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

// Event types pushed to dashboards.
const (
	TypeSensorUpdate  = "sensor_update"
	TypeWeatherUpdate = "weather_update"
	TypeAlert         = "alert"
	TypeHistory       = "history"
)

// Event is the envelope every websocket and MQTT message uses.
type Event struct {
	Type     string `json:"type"`
	SensorID string `json:"-"`
	Payload  any    `json:"payload"`
}

// SensorUpdate is the dashboard view of one reading.
type SensorUpdate struct {
	ID             string       `json:"id"`
	SensorID       string       `json:"sensor_id"`
	Kedalaman      int          `json:"kedalaman"`
	Kontak         int          `json:"kontak"`
	Status         string       `json:"status"`
	Waktu          string       `json:"waktu"`
	CuacaDesc      string       `json:"cuaca_desc"`
	Suhu           *json.Number `json:"suhu"`
	Kelembaban     *json.Number `json:"kelembaban"`
	KecepatanAngin *json.Number `json:"kecepatan_angin"`
	TutupanAwan    *json.Number `json:"tutupan_awan"`
	WaktuPrakiraan *string      `json:"waktu_prakiraan"`
	IsHujanDeras   bool         `json:"is_hujan_deras"`
}

// WeatherUpdate is the periodic forecast broadcast.
type WeatherUpdate struct {
	Deskripsi      string       `json:"cuaca_desc"`
	Suhu           *json.Number `json:"suhu"`
	Kelembaban     *json.Number `json:"kelembaban"`
	KecepatanAngin *json.Number `json:"kecepatan_angin"`
	TutupanAwan    *json.Number `json:"tutupan_awan"`
	WaktuPrakiraan string       `json:"waktu_prakiraan"`
	IsHujanDeras   bool         `json:"is_hujan_deras"`
}

// AlertUpdate mirrors an emitted notification.
type AlertUpdate struct {
	SensorID string `json:"sensor_id"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Previous string `json:"previous"`
	Depth    int    `json:"kedalaman"`
	Message  string `json:"message"`
	Waktu    string `json:"waktu"`
}

// NewSensorUpdate builds the sensor_update event for a stored reading.
func NewSensorUpdate(rec storage.ReadingRecord) Event {
	update := SensorUpdate{
		ID:             rec.ID.String(),
		SensorID:       rec.SensorID,
		Kedalaman:      rec.Depth,
		Status:         rec.Status.String(),
		Waktu:          rec.CreatedAt.Local().Format(time.TimeOnly),
		CuacaDesc:      "N/A",
		Suhu:           number(rec.Temperature),
		Kelembaban:     number(rec.Humidity),
		KecepatanAngin: number(rec.WindSpeed),
		TutupanAwan:    number(rec.CloudCover),
		WaktuPrakiraan: rec.ForecastTime,
		IsHujanDeras:   rec.HeavyRain,
	}
	if rec.Contact {
		update.Kontak = 1
	}
	if rec.WeatherDesc != nil && *rec.WeatherDesc != "" {
		update.CuacaDesc = *rec.WeatherDesc
	}
	return Event{Type: TypeSensorUpdate, SensorID: rec.SensorID, Payload: update}
}

// NewWeatherUpdate builds the weather_update event for a forecast snapshot.
func NewWeatherUpdate(wx weather.Snapshot) Event {
	return Event{
		Type: TypeWeatherUpdate,
		Payload: WeatherUpdate{
			Deskripsi:      wx.Description,
			Suhu:           number(wx.Temperature),
			Kelembaban:     number(wx.Humidity),
			KecepatanAngin: number(wx.WindSpeed),
			TutupanAwan:    number(wx.CloudCover),
			WaktuPrakiraan: wx.ForecastTime,
			IsHujanDeras:   wx.HeavyRain,
		},
	}
}

// NewAlertUpdate builds the alert event for an audited notification.
func NewAlertUpdate(rec storage.AlertRecord) Event {
	return Event{
		Type:     TypeAlert,
		SensorID: rec.SensorID,
		Payload: AlertUpdate{
			SensorID: rec.SensorID,
			Kind:     rec.Kind,
			Status:   rec.Status.String(),
			Previous: rec.Previous.String(),
			Depth:    rec.Depth,
			Message:  rec.Message,
			Waktu:    rec.CreatedAt.Local().Format(time.TimeOnly),
		},
	}
}

func number(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}
