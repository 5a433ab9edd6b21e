package alerting

import (
	"sort"
	"sync"
	"time"

	"flood-alerts/internal/status"
	"flood-alerts/internal/weather"
)

// State remembers the last communicated status of one sensor. The zero value is
// not ready for use; call NewState.
type State struct {
	mu   sync.Mutex
	last status.Status
}

// NewState returns a state that assumes the sensor was last reported AMAN.
func NewState() *State {
	return &State{last: status.Aman}
}

// Last returns the stored slot value. It may be status.WeatherWarned.
func (s *State) Last() status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Evaluate applies the notification policy to a freshly classified reading and
// updates the slot when a notification is produced. wx may be nil.
//
// A heavy-rain forecast while the depth is AMAN issues a pre-warning once and
// parks the slot on status.WeatherWarned. The marker is never reconciled back to
// AMAN: later AMAN readings leave it in place and stay silent, and only a rise to
// WASPADA or BAHAYA replaces it.
func (s *State) Evaluate(current status.Status, depth int, wx *weather.Snapshot) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.last
	note := Notification{
		Status:   current,
		Previous: previous,
		Depth:    depth,
		Weather:  wx,
		At:       time.Now().UTC(),
	}

	switch {
	case wx != nil && wx.HeavyRain && current == status.Aman && previous != status.WeatherWarned:
		s.last = status.WeatherWarned
		note.Kind = KindWeatherWarning
	case current != slotLevel(previous):
		s.last = current
		note.Kind = KindTransition
	default:
		return Notification{}, false
	}

	note.Text = Render(note)
	return note, true
}

// slotLevel maps the weather marker onto the level it was issued at, so an
// AMAN reading after a pre-warning stays silent. Comparing the raw slot
// instead would send "kembali AMAN" on the next reading and then alternate
// with a fresh pre-warning for as long as the rain forecast holds.
func slotLevel(s status.Status) status.Status {
	if s == status.WeatherWarned {
		return status.Aman
	}
	return s
}

// Registry owns one State per sensor ID.
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*State)}
}

// State returns the state for sensorID, creating it on first use.
func (r *Registry) State(sensorID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[sensorID]
	if !ok {
		st = NewState()
		r.states[sensorID] = st
	}
	return st
}

// SensorStatus pairs a sensor with its stored slot value.
type SensorStatus struct {
	SensorID string        `json:"sensor_id"`
	Last     status.Status `json:"last_status"`
}

// Snapshot lists every known sensor ordered by ID.
func (r *Registry) Snapshot() []SensorStatus {
	r.mu.Lock()
	ids := make([]string, 0, len(r.states))
	states := make(map[string]*State, len(r.states))
	for id, st := range r.states {
		ids = append(ids, id)
		states[id] = st
	}
	r.mu.Unlock()

	sort.Strings(ids)
	out := make([]SensorStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, SensorStatus{SensorID: id, Last: states[id].Last()})
	}
	return out
}
