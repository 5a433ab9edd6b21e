package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/config"
	"flood-alerts/internal/realtime"
	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

const (
	defaultWeatherTimeout  = 5 * time.Second
	defaultDispatchTimeout = 10 * time.Second
)

// Broadcaster pushes events to live consumers. Implementations must not block
// for long; the ingestion path calls them inline.
type Broadcaster interface {
	Broadcast(event realtime.Event)
}

// Result is what the ingestion endpoint reports back to the sensor.
type Result struct {
	Status  status.Status
	Depth   int
	Contact bool
	Siren   bool
	Record  storage.ReadingRecord
}

// Service orchestrates classification, weather enrichment, persistence,
// broadcasting, and alerting for every incoming reading.
type Service struct {
	weather      weather.Fetcher
	readings     storage.ReadingStore
	alerts       storage.AlertStore
	notifier     alerting.Notifier
	registry     *alerting.Registry
	broadcasters []Broadcaster
	logger       zerolog.Logger

	referenceHeight int
	weatherTimeout  time.Duration
	dispatchTimeout time.Duration
	alertsOn        bool

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
	now      func() time.Time
}

// New constructs the ingestion service. Any dependency except registry may be
// nil, in which case that side channel is skipped.
func New(cfg *config.Config, fetcher weather.Fetcher, repo storage.Repository, notifier alerting.Notifier, registry *alerting.Registry, logger zerolog.Logger, broadcasters ...Broadcaster) *Service {
	if registry == nil {
		registry = alerting.NewRegistry()
	}

	svc := &Service{
		weather:         fetcher,
		notifier:        notifier,
		registry:        registry,
		logger:          logger.With().Str("component", "service").Logger(),
		referenceHeight: status.DefaultReferenceHeight,
		weatherTimeout:  defaultWeatherTimeout,
		dispatchTimeout: defaultDispatchTimeout,
		alertsOn:        true,
		now:             time.Now,
	}
	if repo != nil {
		svc.readings = repo
		svc.alerts = repo
	}
	for _, b := range broadcasters {
		if b != nil {
			svc.broadcasters = append(svc.broadcasters, b)
		}
	}

	if cfg != nil {
		if cfg.Sensor.ReferenceHeight > 0 {
			svc.referenceHeight = cfg.Sensor.ReferenceHeight
		}
		if cfg.Weather.Timeout > 0 {
			svc.weatherTimeout = cfg.Weather.Timeout
		}
		if cfg.Alerting.DispatchTimeout > 0 {
			svc.dispatchTimeout = cfg.Alerting.DispatchTimeout
		}
		svc.alertsOn = cfg.Alerting.Enabled
	}
	return svc
}

// ReferenceHeight is the mounting height used to derive depth from distance.
func (s *Service) ReferenceHeight() int {
	return s.referenceHeight
}

// Registry exposes the per-sensor alert state.
func (s *Service) Registry() *alerting.Registry {
	return s.registry
}

// IngestPayload decodes a raw JSON body and ingests it. Only decoding errors
// are returned.
func (s *Service) IngestPayload(ctx context.Context, body []byte) (Result, error) {
	reading, err := status.DecodePayload(body, s.referenceHeight)
	if err != nil {
		return Result{}, err
	}
	return s.Ingest(ctx, reading), nil
}

// Ingest classifies a reading and fans it out. Persistence, weather, and
// notification failures are logged and never change the result.
func (s *Service) Ingest(ctx context.Context, reading status.Reading) Result {
	current := status.Classify(reading.Depth, reading.Contact)
	wx := s.CurrentWeather(ctx)

	rec := s.buildRecord(reading, current, wx)
	if s.readings != nil {
		if err := s.readings.InsertReading(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("sensor_id", rec.SensorID).Msg("failed to persist reading")
		}
	}

	s.broadcast(realtime.NewSensorUpdate(rec))

	s.logger.Info().
		Str("sensor_id", rec.SensorID).
		Int("depth", rec.Depth).
		Bool("contact", rec.Contact).
		Str("status", current.String()).
		Msg("reading ingested")

	note, ok := s.registry.State(reading.SensorID).Evaluate(current, reading.Depth, wx)
	if ok {
		note.SensorID = reading.SensorID
		s.handleNotification(ctx, note)
	}

	return Result{
		Status:  current,
		Depth:   reading.Depth,
		Contact: reading.Contact,
		Siren:   current.Siren(),
		Record:  rec,
	}
}

// CurrentWeather fetches the nearest forecast within the weather timeout.
// It returns nil when no fetcher is configured or the fetch fails.
func (s *Service) CurrentWeather(ctx context.Context) *weather.Snapshot {
	if s.weather == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, s.weatherTimeout)
	defer cancel()

	wx, err := s.weather.Fetch(wctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("weather unavailable")
		return nil
	}
	return wx
}

// WeatherTick fetches the forecast and pushes a weather_update event. It has
// the scheduler.TickFunc signature.
func (s *Service) WeatherTick(ctx context.Context, _ time.Time) error {
	if s.weather == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, s.weatherTimeout)
	defer cancel()

	wx, err := s.weather.Fetch(wctx)
	if err != nil {
		return fmt.Errorf("fetch weather: %w", err)
	}
	s.broadcast(realtime.NewWeatherUpdate(*wx))
	s.logger.Debug().Str("desc", wx.Description).Bool("heavy_rain", wx.HeavyRain).Msg("weather broadcast")
	return nil
}

// LatestReadings returns the newest stored reading per sensor.
func (s *Service) LatestReadings(ctx context.Context) ([]storage.ReadingRecord, error) {
	if s.readings == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.readings.LatestReadings(ctx)
}

// Wait blocks until in-flight notification dispatches finish. Notifications
// raised after Wait is called are recorded but not dispatched.
func (s *Service) Wait() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.inflight.Wait()
}

func (s *Service) handleNotification(ctx context.Context, note alerting.Notification) {
	record := storage.AlertRecord{
		SensorID:  note.SensorID,
		Kind:      string(note.Kind),
		Status:    note.Status,
		Previous:  note.Previous,
		Depth:     note.Depth,
		Message:   note.Text,
		CreatedAt: note.At,
	}
	if s.alerts != nil {
		saved, err := s.alerts.InsertAlert(ctx, record)
		if err != nil {
			s.logger.Error().Err(err).Str("sensor_id", note.SensorID).Msg("failed to persist alert record")
		} else {
			record = saved
		}
	}
	s.broadcast(realtime.NewAlertUpdate(record))

	if !s.alertsOn || s.notifier == nil {
		s.logger.Debug().Str("sensor_id", note.SensorID).Str("kind", string(note.Kind)).Msg("alert dispatch disabled")
		return
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		s.logger.Warn().Str("sensor_id", note.SensorID).Str("kind", string(note.Kind)).Msg("shutting down; alert not dispatched")
		return
	}
	// Dispatch is not awaited by the caller; the slot is already updated.
	s.inflight.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.inflight.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.dispatchTimeout)
		defer cancel()

		if err := s.notifier.Notify(dctx, note); err != nil {
			s.logger.Error().Err(err).
				Str("sensor_id", note.SensorID).
				Str("status", note.Status.String()).
				Msg("failed to dispatch alert")
		}
	}()
}

func (s *Service) broadcast(event realtime.Event) {
	for _, b := range s.broadcasters {
		b.Broadcast(event)
	}
}

func (s *Service) buildRecord(reading status.Reading, current status.Status, wx *weather.Snapshot) storage.ReadingRecord {
	rec := storage.ReadingRecord{
		ID:        uuid.New(),
		SensorID:  reading.SensorID,
		Distance:  reading.Distance,
		Depth:     reading.Depth,
		Contact:   reading.Contact,
		Status:    current,
		CreatedAt: s.now().UTC(),
	}
	if wx == nil {
		return rec
	}

	desc := wx.Description
	forecast := wx.ForecastTime
	rec.WeatherDesc = &desc
	rec.ForecastTime = &forecast
	rec.Temperature = wx.Temperature
	rec.Humidity = wx.Humidity
	rec.WindSpeed = wx.WindSpeed
	rec.CloudCover = wx.CloudCover
	rec.HeavyRain = wx.HeavyRain
	return rec
}
