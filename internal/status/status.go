package status

// Status is the flood threat level derived from a single reading.
type Status string

const (
	// Aman means the water level is safe.
	Aman Status = "AMAN"
	// Waspada means the water level is in the advisory band.
	Waspada Status = "WASPADA"
	// Bahaya means the water level is dangerous or the contact sensor fired.
	Bahaya Status = "BAHAYA"

	// WeatherWarned is a notification-only marker stored in the alert state slot
	// after a heavy-rain pre-warning. It has no severity and Classify never returns it.
	WeatherWarned Status = "PERINGATAN_CUACA"
)

const (
	// WaspadaMin is the exclusive lower bound of the WASPADA band, in cm.
	WaspadaMin = 250
	// BahayaMin is the inclusive lower bound of the BAHAYA band, in cm.
	BahayaMin = 300
)

// Classify maps a depth and contact flag to a status. Rules are checked in order
// and the first match wins; there is no hysteresis and no clamping.
func Classify(depth int, contact bool) Status {
	if contact || depth >= BahayaMin {
		return Bahaya
	}
	if depth > WaspadaMin {
		return Waspada
	}
	return Aman
}

// Severity orders the three real levels. WeatherWarned and unknown values return -1.
func (s Status) Severity() int {
	switch s {
	case Aman:
		return 0
	case Waspada:
		return 1
	case Bahaya:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of AMAN, WASPADA or BAHAYA.
func (s Status) Valid() bool {
	return s.Severity() >= 0
}

// Siren reports whether the sensor-side siren should sound.
func (s Status) Siren() bool {
	return s == Bahaya
}

func (s Status) String() string {
	return string(s)
}
