package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLeadingInt(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "42", want: 42},
		{in: "  17\r", want: 17},
		{in: "12abc", want: 12},
		{in: "12.9", want: 12},
		{in: "-5", want: -5},
		{in: "+8", want: 8},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "-", wantErr: true},
		{in: "Jarak: 40", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseLeadingInt(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidLine) {
				t.Errorf("ParseLeadingInt(%q) err = %v, want ErrInvalidLine", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseLeadingInt(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
}

func TestForwardPostsValidLines(t *testing.T) {
	var mu sync.Mutex
	var got []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			t.Errorf("api key header missing")
		}
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, body["jarak"])
		mu.Unlock()
		_, _ = w.Write([]byte(`{"message":"Data aggregated and saved","command_siren":false}`))
	}))
	defer srv.Close()

	fwd := NewForwarder(srv.URL, "k", time.Second, zerolog.Nop())
	input := "120\nnoise\n\n35cm\n  7 \n"
	if err := fwd.Forward(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("forward: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != 120 || got[1] != 35 || got[2] != 7 {
		t.Fatalf("posted %v", got)
	}
}

func TestSendReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	err := NewForwarder(srv.URL, "", time.Second, zerolog.Nop()).Send(context.Background(), 10)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want StatusError 400", err)
	}
}

func TestForwardContinuesWhenServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	fwd := NewForwarder(url, "", 200*time.Millisecond, zerolog.Nop())
	if err := fwd.Forward(context.Background(), strings.NewReader("1\n2\n")); err != nil {
		t.Fatalf("send failures must not stop forwarding: %v", err)
	}
}
