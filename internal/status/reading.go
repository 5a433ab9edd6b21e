package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultReferenceHeight is the mounting height of the distance sensor above the
// channel bed, in cm.
const DefaultReferenceHeight = 300

// DefaultSensorID is used when a payload does not name its sensor.
const DefaultSensorID = "default"

// ErrNoDistance is returned when a payload carries neither jarak nor kedalaman.
var ErrNoDistance = errors.New("payload has neither jarak nor kedalaman")

// Payload is the inbound JSON body. Sensors either send the raw distance
// (jarak) or a pre-computed depth and contact pair.
type Payload struct {
	SensorID  string `json:"sensor_id,omitempty"`
	Jarak     *int   `json:"jarak,omitempty"`
	Kedalaman *int   `json:"kedalaman,omitempty"`
	KontakAir *int   `json:"kontak_air,omitempty"`
}

// Reading is the normalised input to the classifier.
type Reading struct {
	SensorID string
	// Distance is the raw sensor-to-surface distance; nil when the sensor sent depth directly.
	Distance *int
	Depth    int
	Contact  bool
}

// FromDistance derives depth and contact from a raw distance. Contact is a proxy:
// true when the derived depth exceeds WaspadaMin.
func FromDistance(sensorID string, distance, referenceHeight int) Reading {
	depth := referenceHeight - distance
	d := distance
	return Reading{
		SensorID: normaliseSensorID(sensorID),
		Distance: &d,
		Depth:    depth,
		Contact:  depth > WaspadaMin,
	}
}

// FromDepth builds a reading from a pre-computed depth and contact flag.
func FromDepth(sensorID string, depth int, contact bool) Reading {
	return Reading{
		SensorID: normaliseSensorID(sensorID),
		Depth:    depth,
		Contact:  contact,
	}
}

// Reading converts the payload. jarak wins when both shapes are present.
func (p Payload) Reading(referenceHeight int) (Reading, error) {
	switch {
	case p.Jarak != nil:
		return FromDistance(p.SensorID, *p.Jarak, referenceHeight), nil
	case p.Kedalaman != nil:
		contact := p.KontakAir != nil && *p.KontakAir != 0
		return FromDepth(p.SensorID, *p.Kedalaman, contact), nil
	default:
		return Reading{}, ErrNoDistance
	}
}

// DecodePayload parses a JSON body into a Reading.
func DecodePayload(body []byte, referenceHeight int) (Reading, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Reading{}, fmt.Errorf("decode reading payload: %w", err)
	}
	return p.Reading(referenceHeight)
}

func normaliseSensorID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSensorID
	}
	return id
}
