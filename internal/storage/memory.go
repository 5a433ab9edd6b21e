package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds how many readings and alerts a MemoryStore keeps.
const DefaultMemoryCapacity = 1000

// MemoryStore is a bounded in-process Repository. The oldest entries are
// evicted once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	readings []ReadingRecord
	alerts   []AlertRecord
	nextID   int64
	capacity int
}

// NewMemoryStore constructs a store that keeps at most capacity entries of each kind.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		readings: make([]ReadingRecord, 0, capacity),
		alerts:   make([]AlertRecord, 0, capacity),
		capacity: capacity,
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) InsertReading(_ context.Context, rec ReadingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.readings) >= s.capacity {
		s.readings = s.readings[1:]
	}
	s.readings = append(s.readings, rec)
	return nil
}

func (s *MemoryStore) ListRecentReadings(_ context.Context, limit int) ([]ReadingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.readings) {
		limit = len(s.readings)
	}
	result := make([]ReadingRecord, 0, limit)
	for i := len(s.readings) - 1; i >= len(s.readings)-limit; i-- {
		result = append(result, s.readings[i])
	}
	return result, nil
}

func (s *MemoryStore) ListReadingsBetween(_ context.Context, from, to time.Time) ([]ReadingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ReadingRecord
	for _, rec := range s.readings {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (s *MemoryStore) LatestReadings(_ context.Context) ([]ReadingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]ReadingRecord)
	for _, rec := range s.readings {
		if cur, ok := latest[rec.SensorID]; !ok || !rec.CreatedAt.Before(cur.CreatedAt) {
			latest[rec.SensorID] = rec
		}
	}

	result := make([]ReadingRecord, 0, len(latest))
	for _, rec := range latest {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SensorID < result[j].SensorID })
	return result, nil
}

func (s *MemoryStore) CountReadings(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.readings)), nil
}

func (s *MemoryStore) DeleteReadingsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.readings[:0]
	var removed int64
	for _, rec := range s.readings {
		if rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.readings = kept
	return removed, nil
}

func (s *MemoryStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	alert.ID = s.nextID
	if len(s.alerts) >= s.capacity {
		s.alerts = s.alerts[1:]
	}
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

func (s *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}
	result := make([]AlertRecord, 0, limit)
	for i := len(s.alerts) - 1; i >= len(s.alerts)-limit; i-- {
		result = append(result, s.alerts[i])
	}
	return result, nil
}

func (s *MemoryStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.alerts[:0]
	var removed int64
	for _, rec := range s.alerts {
		if rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.alerts = kept
	return removed, nil
}

var _ Repository = (*MemoryStore)(nil)
