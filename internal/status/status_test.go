package status

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		depth   int
		contact bool
		want    Status
	}{
		{"dry", 0, false, Aman},
		{"negative depth", -40, false, Aman},
		{"just below advisory", 249, false, Aman},
		{"advisory bound is exclusive", 250, false, Aman},
		{"advisory", 251, false, Waspada},
		{"top of advisory", 299, false, Waspada},
		{"danger bound is inclusive", 300, false, Bahaya},
		{"above range", 1000, false, Bahaya},
		{"contact overrides depth", 0, true, Bahaya},
		{"contact with negative depth", -5, true, Bahaya},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.depth, tc.contact); got != tc.want {
				t.Fatalf("Classify(%d, %v) = %s, want %s", tc.depth, tc.contact, got, tc.want)
			}
		})
	}
}

func TestClassifySweep(t *testing.T) {
	for depth := -500; depth < WaspadaMin; depth++ {
		if got := Classify(depth, false); got != Aman {
			t.Fatalf("depth %d: got %s, want AMAN", depth, got)
		}
	}
	for depth := WaspadaMin + 1; depth < BahayaMin; depth++ {
		if got := Classify(depth, false); got != Waspada {
			t.Fatalf("depth %d: got %s, want WASPADA", depth, got)
		}
	}
	for depth := -500; depth < 1000; depth++ {
		if got := Classify(depth, true); got != Bahaya {
			t.Fatalf("depth %d with contact: got %s, want BAHAYA", depth, got)
		}
	}
}

func TestSeverityOrder(t *testing.T) {
	if !(Aman.Severity() < Waspada.Severity() && Waspada.Severity() < Bahaya.Severity()) {
		t.Fatal("severity must order AMAN < WASPADA < BAHAYA")
	}
	if WeatherWarned.Valid() {
		t.Fatal("weather marker must not be a valid status")
	}
	if !Bahaya.Siren() || Waspada.Siren() || Aman.Siren() {
		t.Fatal("siren only sounds for BAHAYA")
	}
}

func TestDecodePayloadDistance(t *testing.T) {
	r, err := DecodePayload([]byte(`{"jarak": 0}`), DefaultReferenceHeight)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Depth != 300 || !r.Contact {
		t.Fatalf("jarak 0: got depth=%d contact=%v", r.Depth, r.Contact)
	}
	if got := Classify(r.Depth, r.Contact); got != Bahaya {
		t.Fatalf("jarak 0 should classify BAHAYA, got %s", got)
	}
	if r.SensorID != DefaultSensorID {
		t.Fatalf("sensor id should default, got %q", r.SensorID)
	}

	r, err = DecodePayload([]byte(`{"jarak": 100, "sensor_id": "kali-1"}`), DefaultReferenceHeight)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Depth != 200 || r.Contact {
		t.Fatalf("jarak 100: got depth=%d contact=%v", r.Depth, r.Contact)
	}
	if got := Classify(r.Depth, r.Contact); got != Aman {
		t.Fatalf("jarak 100 should classify AMAN, got %s", got)
	}
	if r.SensorID != "kali-1" || r.Distance == nil || *r.Distance != 100 {
		t.Fatalf("unexpected reading %+v", r)
	}
}

func TestDecodePayloadDerivedContactMakesAdvisoryBandDanger(t *testing.T) {
	// Derived contact fires above 250, so the distance path never yields WASPADA.
	r, err := DecodePayload([]byte(`{"jarak": 40}`), DefaultReferenceHeight)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Depth != 260 || !r.Contact {
		t.Fatalf("got depth=%d contact=%v", r.Depth, r.Contact)
	}
	if got := Classify(r.Depth, r.Contact); got != Bahaya {
		t.Fatalf("got %s, want BAHAYA", got)
	}
}

func TestFromDistanceNeverYieldsWaspada(t *testing.T) {
	for distance := 0; distance <= DefaultReferenceHeight; distance++ {
		r := FromDistance("", distance, DefaultReferenceHeight)
		got := Classify(r.Depth, r.Contact)
		if got == Waspada {
			t.Fatalf("jarak %d classified WASPADA", distance)
		}
		if distance < 50 && got != Bahaya {
			t.Fatalf("jarak %d classified %s, want BAHAYA", distance, got)
		}
	}
}

func TestDecodePayloadDepthPair(t *testing.T) {
	r, err := DecodePayload([]byte(`{"kedalaman": 270, "kontak_air": 0}`), DefaultReferenceHeight)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Depth != 270 || r.Contact || r.Distance != nil {
		t.Fatalf("unexpected reading %+v", r)
	}
	if got := Classify(r.Depth, r.Contact); got != Waspada {
		t.Fatalf("got %s, want WASPADA", got)
	}

	r, err = DecodePayload([]byte(`{"kedalaman": 10, "kontak_air": 1}`), DefaultReferenceHeight)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !r.Contact {
		t.Fatal("kontak_air=1 should set contact")
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	if _, err := DecodePayload([]byte(`{}`), DefaultReferenceHeight); !errors.Is(err, ErrNoDistance) {
		t.Fatalf("empty payload should return ErrNoDistance, got %v", err)
	}
	if _, err := DecodePayload([]byte(`not json`), DefaultReferenceHeight); err == nil {
		t.Fatal("invalid JSON should fail")
	}
	if _, err := DecodePayload([]byte(`{"jarak": "abc"}`), DefaultReferenceHeight); err == nil {
		t.Fatal("non-numeric jarak should fail")
	}
}
