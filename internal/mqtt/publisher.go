package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/realtime"
)

// Publisher mirrors dashboard events onto the broker.
type Publisher struct {
	client  paho.Client
	topics  Topics
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(client paho.Client, topics Topics, qos byte, timeout time.Duration, logger zerolog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		client:  client,
		topics:  topics,
		qos:     qos,
		timeout: timeout,
		logger:  logger.With().Str("component", "mqtt_publisher").Logger(),
	}
}

// Broadcast publishes sensor and weather updates. Alert events are left to
// the Notifier. It does not wait for the broker acknowledgement.
func (p *Publisher) Broadcast(event realtime.Event) {
	var topic string
	retained := false
	switch event.Type {
	case realtime.TypeSensorUpdate:
		topic = p.topics.Status(event.SensorID)
		retained = true
	case realtime.TypeWeatherUpdate:
		topic = p.topics.Weather()
		retained = true
	default:
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	token := p.client.Publish(topic, p.qos, retained, payload)
	go func() {
		if !token.WaitTimeout(p.timeout) {
			p.logger.Warn().Str("topic", topic).Msg("mqtt publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Error().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

// Notifier is an alert channel that publishes the alert text.
type Notifier struct {
	client paho.Client
	topics Topics
	qos    byte
	logger zerolog.Logger
}

// NewNotifier constructs an MQTT alert channel.
func NewNotifier(client paho.Client, topics Topics, qos byte, logger zerolog.Logger) *Notifier {
	return &Notifier{
		client: client,
		topics: topics,
		qos:    qos,
		logger: logger.With().Str("component", "alert_mqtt").Logger(),
	}
}

// Notify publishes note.Text and waits for the broker or ctx.
func (n *Notifier) Notify(ctx context.Context, note alerting.Notification) error {
	text := note.Text
	if text == "" {
		text = alerting.Render(note)
	}

	topic := n.topics.Alert(note.SensorID)
	token := n.client.Publish(topic, n.qos, false, text)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish alert to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alert to %s: %w", topic, err)
	}

	n.logger.Info().
		Str("sensor_id", note.SensorID).
		Str("kind", string(note.Kind)).
		Str("status", note.Status.String()).
		Msg("alert sent (mqtt)")
	return nil
}

var _ alerting.Notifier = (*Notifier)(nil)
