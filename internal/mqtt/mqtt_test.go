package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/realtime"
	"flood-alerts/internal/service"
	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient implements only the paho.Client methods the package uses.
type fakeClient struct {
	paho.Client
	mu        sync.Mutex
	published []published
	err       error
	handler   paho.MessageHandler
	filter    string

	unsubscribed []string
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var body []byte
	switch v := payload.(type) {
	case []byte:
		body = v
	case string:
		body = []byte(v)
	}
	c.published = append(c.published, published{topic: topic, retained: retained, payload: body})
	return newToken(c.err)
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler paho.MessageHandler) paho.Token {
	c.filter = topic
	c.handler = handler
	return newToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return newToken(nil)
}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type fakeIngester struct {
	readings []status.Reading
}

func (f *fakeIngester) Ingest(_ context.Context, r status.Reading) service.Result {
	f.readings = append(f.readings, r)
	st := status.Classify(r.Depth, r.Contact)
	return service.Result{Status: st, Depth: r.Depth, Contact: r.Contact, Siren: st.Siren()}
}

func (f *fakeIngester) ReferenceHeight() int { return 300 }

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "floodwatch/"}
	if got := topics.Status("hulu"); got != "floodwatch/hulu/status" {
		t.Fatalf("status topic = %s", got)
	}
	if got := topics.Readings(); got != "floodwatch/+/reading" {
		t.Fatalf("readings filter = %s", got)
	}

	cases := map[string]string{
		"floodwatch/hulu/reading":      "hulu",
		"floodwatch/hulu/status":       "",
		"other/hulu/reading":           "",
		"floodwatch/a/b/reading":       "",
		"floodwatch//reading":          "",
		"floodwatch/sensor-01/reading": "sensor-01",
	}
	for topic, want := range cases {
		if got := topics.SensorFromReading(topic); got != want {
			t.Errorf("SensorFromReading(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestPublisherRoutesEvents(t *testing.T) {
	client := &fakeClient{}
	pub := NewPublisher(client, Topics{Prefix: "fw"}, 1, time.Second, zerolog.Nop())

	rec := storage.ReadingRecord{ID: uuid.New(), SensorID: "hulu", Depth: 270, Status: status.Waspada, CreatedAt: time.Now()}
	pub.Broadcast(realtime.NewSensorUpdate(rec))
	pub.Broadcast(realtime.Event{Type: realtime.TypeAlert, SensorID: "hulu"})

	msgs := client.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "fw/hulu/status" || !msgs[0].retained {
		t.Fatalf("unexpected publish %+v", msgs[0])
	}
	var env struct {
		Type    string                `json:"type"`
		Payload realtime.SensorUpdate `json:"payload"`
	}
	if err := json.Unmarshal(msgs[0].payload, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != realtime.TypeSensorUpdate || env.Payload.Status != "WASPADA" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestNotifierPublishesText(t *testing.T) {
	client := &fakeClient{}
	n := NewNotifier(client, Topics{Prefix: "fw"}, 1, zerolog.Nop())

	note := alerting.Notification{SensorID: "hilir", Kind: alerting.KindTransition, Status: status.Bahaya, Text: "banjir"}
	if err := n.Notify(context.Background(), note); err != nil {
		t.Fatalf("notify: %v", err)
	}
	msgs := client.messages()
	if len(msgs) != 1 || msgs[0].topic != "fw/hilir/alert" || string(msgs[0].payload) != "banjir" {
		t.Fatalf("published %+v", msgs)
	}

	client.err = errors.New("not connected")
	if err := n.Notify(context.Background(), note); err == nil {
		t.Fatal("publish failure should surface")
	}
}

func TestSubscriberIngestsReadings(t *testing.T) {
	client := &fakeClient{}
	ing := &fakeIngester{}
	sub := NewSubscriber(context.Background(), client, Topics{Prefix: "fw"}, 1, ing, zerolog.Nop())

	if err := sub.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if client.filter != "fw/+/reading" {
		t.Fatalf("filter = %s", client.filter)
	}

	client.handler(client, fakeMessage{topic: "fw/hulu/reading", payload: []byte(`{"jarak": 20, "sensor_id": "ignored"}`)})
	client.handler(client, fakeMessage{topic: "fw/hilir/reading", payload: []byte("  150\n")})
	client.handler(client, fakeMessage{topic: "fw/hilir/reading", payload: []byte("abc")})
	client.handler(client, fakeMessage{topic: "fw/reading", payload: []byte("10")})

	if len(ing.readings) != 2 {
		t.Fatalf("ingested %d readings, want 2", len(ing.readings))
	}
	if ing.readings[0].SensorID != "hulu" || ing.readings[0].Depth != 280 {
		t.Fatalf("first reading = %+v", ing.readings[0])
	}
	if ing.readings[1].SensorID != "hilir" || ing.readings[1].Depth != 150 {
		t.Fatalf("second reading = %+v", ing.readings[1])
	}
}

func TestSubscriberStopsIngestingAfterCancel(t *testing.T) {
	client := &fakeClient{}
	ing := &fakeIngester{}
	ctx, cancel := context.WithCancel(context.Background())
	sub := NewSubscriber(ctx, client, Topics{Prefix: "fw"}, 1, ing, zerolog.Nop())
	if err := sub.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	client.handler(client, fakeMessage{topic: "fw/hulu/reading", payload: []byte("100")})

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}

	if len(client.unsubscribed) != 1 || client.unsubscribed[0] != "fw/+/reading" {
		t.Fatalf("unsubscribed = %v", client.unsubscribed)
	}

	// A delivery paho had already queued must not reach the service.
	client.handler(client, fakeMessage{topic: "fw/hulu/reading", payload: []byte("20")})
	if len(ing.readings) != 1 {
		t.Fatalf("ingested %d readings after stop, want 1", len(ing.readings))
	}
}
