package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"flood-alerts/internal/config"
)

const disconnectQuiesce = 250

// Client owns the broker connection. Publisher, Subscriber and Notifier share it.
type Client struct {
	client paho.Client
	cfg    config.MQTTConfig
	logger zerolog.Logger
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig, logger zerolog.Logger) (*Client, error) {
	log := logger.With().Str("component", "mqtt").Logger()

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out after %s", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	return &Client{client: client, cfg: cfg, logger: log}, nil
}

// Native returns the underlying paho client.
func (c *Client) Native() paho.Client {
	return c.client
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Info().Msg("mqtt disconnected")
}

// Topics builds the topic names under one prefix.
type Topics struct {
	Prefix string
}

// Status is where sensor_update events for sensorID are published.
func (t Topics) Status(sensorID string) string { return t.join(sensorID, "status") }

// Alert is where alert texts for sensorID are published.
func (t Topics) Alert(sensorID string) string { return t.join(sensorID, "alert") }

// Weather is where forecast broadcasts are published.
func (t Topics) Weather() string { return t.join("weather") }

// Readings is the wildcard filter sensors publish readings to.
func (t Topics) Readings() string { return t.join("+", "reading") }

// SensorFromReading extracts the sensor ID from a reading topic.
// "floodwatch/hulu/reading" -> "hulu".
func (t Topics) SensorFromReading(topic string) string {
	rest := strings.TrimPrefix(topic, t.prefix()+"/")
	if rest == topic && t.prefix() != "" {
		return ""
	}
	sensor, ok := strings.CutSuffix(rest, "/reading")
	if !ok || sensor == "" || strings.Contains(sensor, "/") {
		return ""
	}
	return sensor
}

func (t Topics) prefix() string {
	return strings.Trim(t.Prefix, "/")
}

func (t Topics) join(parts ...string) string {
	if p := t.prefix(); p != "" {
		parts = append([]string{p}, parts...)
	}
	return strings.Join(parts, "/")
}
