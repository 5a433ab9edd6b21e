package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/storage"
)

const (
	maxBodyBytes = 1 << 16
	defaultLimit = 50
	maxLimit     = 1000
)

type ingestResponse struct {
	Message      string `json:"message"`
	CommandSiren bool   `json:"command_siren"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type readingView struct {
	ID           string  `json:"id"`
	SensorID     string  `json:"sensor_id"`
	Distance     *int    `json:"jarak"`
	Depth        int     `json:"kedalaman"`
	Contact      bool    `json:"kontak"`
	Status       string  `json:"status"`
	WeatherDesc  *string `json:"cuaca_desc"`
	Temperature  *string `json:"suhu"`
	Humidity     *string `json:"kelembaban"`
	WindSpeed    *string `json:"kecepatan_angin"`
	CloudCover   *string `json:"tutupan_awan"`
	ForecastTime *string `json:"waktu_prakiraan"`
	HeavyRain    bool    `json:"is_hujan_deras"`
	CreatedAt    string  `json:"created_at"`
}

type alertView struct {
	ID        int64  `json:"id"`
	SensorID  string `json:"sensor_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Previous  string `json:"previous_status"`
	Depth     int    `json:"kedalaman"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type statusResponse struct {
	Sensors []alerting.SensorStatus `json:"sensors"`
	Latest  []readingView           `json:"latest"`
	Clients int                     `json:"clients"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read body"})
		return
	}

	result, err := s.ingester.IngestPayload(r.Context(), body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejected reading")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Message:      "Data aggregated and saved",
		CommandSiren: result.Siren,
	})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if s.readings == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: storage.ErrNotConfigured.Error()})
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	records, err := s.readings.ListRecentReadings(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list readings failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list readings failed"})
		return
	}
	writeJSON(w, http.StatusOK, toReadingViews(records))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: storage.ErrNotConfigured.Error()})
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	records, err := s.alerts.ListRecentAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list alerts failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list alerts failed"})
		return
	}

	views := make([]alertView, 0, len(records))
	for _, rec := range records {
		views = append(views, alertView{
			ID:        rec.ID,
			SensorID:  rec.SensorID,
			Kind:      rec.Kind,
			Status:    rec.Status.String(),
			Previous:  rec.Previous.String(),
			Depth:     rec.Depth,
			Message:   rec.Message,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sensors: []alerting.SensorStatus{}, Latest: []readingView{}}
	if s.registry != nil {
		resp.Sensors = s.registry.Snapshot()
	}
	if s.readings != nil {
		latest, err := s.readings.LatestReadings(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("latest readings failed")
		} else {
			resp.Latest = toReadingViews(latest)
		}
	}
	if s.clients != nil {
		resp.Clients = s.clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func toReadingViews(records []storage.ReadingRecord) []readingView {
	views := make([]readingView, 0, len(records))
	for _, rec := range records {
		views = append(views, readingView{
			ID:           rec.ID.String(),
			SensorID:     rec.SensorID,
			Distance:     rec.Distance,
			Depth:        rec.Depth,
			Contact:      rec.Contact,
			Status:       rec.Status.String(),
			WeatherDesc:  rec.WeatherDesc,
			Temperature:  decimalString(rec.Temperature.Valid, rec.Temperature.Decimal.String()),
			Humidity:     decimalString(rec.Humidity.Valid, rec.Humidity.Decimal.String()),
			WindSpeed:    decimalString(rec.WindSpeed.Valid, rec.WindSpeed.Decimal.String()),
			CloudCover:   decimalString(rec.CloudCover.Valid, rec.CloudCover.Decimal.String()),
			ForecastTime: rec.ForecastTime,
			HeavyRain:    rec.HeavyRain,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		})
	}
	return views
}

func decimalString(valid bool, value string) *string {
	if !valid {
		return nil
	}
	return &value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
