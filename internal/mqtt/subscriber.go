package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"flood-alerts/internal/service"
	"flood-alerts/internal/status"
)

// Ingester is the part of the service the subscriber feeds.
type Ingester interface {
	Ingest(ctx context.Context, reading status.Reading) service.Result
	ReferenceHeight() int
}

// Subscriber feeds readings published by networked sensors into the service.
type Subscriber struct {
	client   paho.Client
	topics   Topics
	qos      byte
	timeout  time.Duration
	ingester Ingester
	ctx      context.Context
	logger   zerolog.Logger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// NewSubscriber constructs a Subscriber. ctx bounds every ingestion it triggers.
func NewSubscriber(ctx context.Context, client paho.Client, topics Topics, qos byte, ingester Ingester, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		client:   client,
		topics:   topics,
		qos:      qos,
		timeout:  5 * time.Second,
		ingester: ingester,
		ctx:      ctx,
		logger:   logger.With().Str("component", "mqtt_subscriber").Logger(),
	}
}

// Subscribe registers the reading wildcard.
func (s *Subscriber) Subscribe() error {
	topic := s.topics.Readings()
	token := s.client.Subscribe(topic, s.qos, s.handleReading)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	s.logger.Info().Str("topic", topic).Msg("subscribed to sensor readings")
	return nil
}

// Run blocks until ctx is cancelled, then unsubscribes. It returns once no
// message handler is still ingesting; a broker error at that point is only
// logged since the process is already shutting down.
func (s *Subscriber) Run(ctx context.Context) error {
	<-ctx.Done()
	if err := s.Unsubscribe(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unsubscribe from sensor readings")
	}
	return nil
}

// Unsubscribe stops ingestion: later deliveries are dropped, and it waits for
// handlers already running.
func (s *Subscriber) Unsubscribe() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	topic := s.topics.Readings()
	token := s.client.Unsubscribe(topic)
	var err error
	if !token.WaitTimeout(s.timeout) {
		err = fmt.Errorf("unsubscribe %s: timed out after %s", topic, s.timeout)
	} else if token.Error() != nil {
		err = fmt.Errorf("unsubscribe %s: %w", topic, token.Error())
	}

	s.inflight.Wait()
	s.logger.Info().Str("topic", topic).Msg("unsubscribed from sensor readings")
	return err
}

func (s *Subscriber) handleReading(_ paho.Client, msg paho.Message) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	sensorID := s.topics.SensorFromReading(msg.Topic())
	if sensorID == "" {
		s.logger.Warn().Str("topic", msg.Topic()).Msg("cannot extract sensor id from topic")
		return
	}

	reading, err := decodeMessage(msg.Payload(), sensorID, s.ingester.ReferenceHeight())
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid reading payload")
		return
	}

	res := s.ingester.Ingest(s.ctx, reading)
	s.logger.Debug().
		Str("sensor_id", sensorID).
		Str("status", res.Status.String()).
		Bool("siren", res.Siren).
		Msg("mqtt reading ingested")
}

// decodeMessage accepts the JSON shapes of the HTTP endpoint or a bare
// distance such as "42". The topic's sensor ID wins over the payload's.
func decodeMessage(payload []byte, sensorID string, referenceHeight int) (status.Reading, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return status.Reading{}, errors.New("empty payload")
	}

	if distance, err := strconv.Atoi(trimmed); err == nil {
		return status.FromDistance(sensorID, distance, referenceHeight), nil
	}

	reading, err := status.DecodePayload([]byte(trimmed), referenceHeight)
	if err != nil {
		return status.Reading{}, err
	}
	reading.SensorID = sensorID
	return reading, nil
}
