package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
	"flood-alerts/internal/weather"
)

func testRecord(depth int) storage.ReadingRecord {
	return storage.ReadingRecord{
		ID:        uuid.New(),
		SensorID:  "default",
		Depth:     depth,
		Contact:   depth > 250,
		Status:    status.Classify(depth, depth > 250),
		CreatedAt: time.Now(),
	}
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env.Type, env.Payload
}

func TestHubBroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(10, zerolog.Nop())
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	hub.Broadcast(NewSensorUpdate(testRecord(310)))

	typ, payload := readEnvelope(t, conn)
	if typ != TypeSensorUpdate {
		t.Fatalf("type = %s", typ)
	}
	var update map[string]any
	if err := json.Unmarshal(payload, &update); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if update["status"] != "BAHAYA" || update["kontak"] != float64(1) || update["cuaca_desc"] != "N/A" {
		t.Fatalf("unexpected payload %v", update)
	}
	if update["suhu"] != nil || update["waktu_prakiraan"] != nil {
		t.Fatalf("absent weather should be null: %v", update)
	}
}

func TestHubReplaysHistoryOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(2, zerolog.Nop())
	hub.Seed([]Event{
		NewSensorUpdate(testRecord(100)),
		NewSensorUpdate(testRecord(200)),
		NewSensorUpdate(testRecord(260)),
	})
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	typ, payload := readEnvelope(t, conn)
	if typ != TypeHistory {
		t.Fatalf("type = %s", typ)
	}
	var items []SensorUpdate
	if err := json.Unmarshal(payload, &items); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(items) != 2 || items[0].Kedalaman != 200 || items[1].Kedalaman != 260 {
		t.Fatalf("history = %+v", items)
	}
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(0, zerolog.Nop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Broadcast(NewSensorUpdate(testRecord(10)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after hub stopped")
	}
}

func TestSensorUpdateWeatherFields(t *testing.T) {
	rec := testRecord(120)
	desc := "Light Rain"
	forecast := "2025-01-10 09:00:00"
	rec.WeatherDesc = &desc
	rec.ForecastTime = &forecast
	rec.Temperature = decimal.NewNullDecimal(decimal.RequireFromString("26.5"))

	data, err := json.Marshal(NewSensorUpdate(rec))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{`"cuaca_desc":"Light Rain"`, `"suhu":26.5`, `"waktu_prakiraan":"2025-01-10 09:00:00"`, `"kontak":0`} {
		if !strings.Contains(body, want) {
			t.Fatalf("%s missing from %s", want, body)
		}
	}
}

func TestWeatherUpdateKeepsMissingFieldsNull(t *testing.T) {
	data, err := json.Marshal(NewWeatherUpdate(weather.Snapshot{
		ForecastTime: "2025-01-10 09:00:00",
		Description:  "Cloudy",
		Temperature:  decimal.NewNullDecimal(decimal.NewFromInt(27)),
	}).Payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{`"suhu":27`, `"kelembaban":null`, `"kecepatan_angin":null`, `"tutupan_awan":null`} {
		if !strings.Contains(body, want) {
			t.Fatalf("%s missing from %s", want, body)
		}
	}
}
