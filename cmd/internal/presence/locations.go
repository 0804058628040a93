package presence

import (
	"errors"
	"sync"

	"vicinity/cmd/internal/geo"
)

// ErrInvalidLocation rejects a single update carrying out-of-range or
// malformed coordinates. The session stays alive; storing such a value would
// poison every future distance computation.
var ErrInvalidLocation = errors.New("presence: invalid location")

// LocationRecord is the latest known position for one identifier.
// TimestampMS is wall-clock milliseconds, assigned server-side at ingest.
type LocationRecord struct {
	Latitude    float64
	Longitude   float64
	TimestampMS int64
}

// Point converts the record into a geo coordinate.
func (rec LocationRecord) Point() geo.Point {
	return geo.Point{Latitude: rec.Latitude, Longitude: rec.Longitude}
}

// LocationStore maps identifiers to their latest known position.
// Reads during broadcast computation always go through Snapshot so concurrent
// updates can never produce a torn record.
type LocationStore struct {
	mu        sync.RWMutex
	locations map[string]LocationRecord
}

// NewLocationStore constructs an empty store.
func NewLocationStore() *LocationStore {
	return &LocationStore{
		locations: make(map[string]LocationRecord),
	}
}

// Update overwrites any prior record for uuid. Coordinates outside the valid
// ranges are rejected with ErrInvalidLocation.
func (s *LocationStore) Update(uuid string, rec LocationRecord) error {
	if uuid == "" {
		return errors.New("presence: empty uuid")
	}
	if !rec.Point().Valid() {
		return ErrInvalidLocation
	}

	s.mu.Lock()
	s.locations[uuid] = rec
	s.mu.Unlock()
	return nil
}

// Restore seeds a record without validation side effects beyond the same
// range check; persisted data that no longer passes is dropped silently.
func (s *LocationStore) Restore(uuid string, rec LocationRecord) bool {
	if uuid == "" || !rec.Point().Valid() {
		return false
	}

	s.mu.Lock()
	s.locations[uuid] = rec
	s.mu.Unlock()
	return true
}

// Get returns the record for uuid.
func (s *LocationStore) Get(uuid string) (LocationRecord, bool) {
	s.mu.RLock()
	rec, ok := s.locations[uuid]
	s.mu.RUnlock()
	return rec, ok
}

// Remove evicts the record for uuid. Absent entries are a no-op.
func (s *LocationStore) Remove(uuid string) {
	s.mu.Lock()
	delete(s.locations, uuid)
	s.mu.Unlock()
}

// Len reports the number of tracked records.
func (s *LocationStore) Len() int {
	s.mu.RLock()
	n := len(s.locations)
	s.mu.RUnlock()
	return n
}

// Snapshot returns a point-in-time copy of all records. Callers iterate the
// copy without holding any lock, so an O(n) distance pass never stalls
// concurrent updates.
func (s *LocationStore) Snapshot() map[string]LocationRecord {
	s.mu.RLock()
	out := make(map[string]LocationRecord, len(s.locations))
	for uuid, rec := range s.locations {
		out[uuid] = rec
	}
	s.mu.RUnlock()
	return out
}
