package presence

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InMemoryLastLocationStore is a dev/test fallback when DB is not configured.
// It honors the TTL contract so expiry behavior is testable without Postgres.
type InMemoryLastLocationStore struct {
	mu      sync.Mutex
	entries map[string]memLastLocation

	// now is swappable in tests.
	now func() time.Time
}

type memLastLocation struct {
	rec       LocationRecord
	expiresAt time.Time
}

// NewInMemoryLastLocationStore constructs an in-memory LastLocationStore implementation.
func NewInMemoryLastLocationStore() *InMemoryLastLocationStore {
	return &InMemoryLastLocationStore{
		entries: make(map[string]memLastLocation),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryLastLocationStore) Close() error { return nil }

// Save upserts the record for uuid with the given TTL.
func (s *InMemoryLastLocationStore) Save(ctx context.Context, uuid string, rec LocationRecord, ttl time.Duration) error {
	if uuid == "" {
		return errors.New("presence: empty uuid")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultLocationTTL
	}

	s.mu.Lock()
	s.entries[uuid] = memLastLocation{
		rec:       rec,
		expiresAt: s.now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Restore returns the persisted record for uuid. Expired entries are evicted
// and reported as absent.
func (s *InMemoryLastLocationStore) Restore(ctx context.Context, uuid string) (LocationRecord, bool, error) {
	if uuid == "" {
		return LocationRecord{}, false, errors.New("presence: empty uuid")
	}
	if err := ctx.Err(); err != nil {
		return LocationRecord{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[uuid]
	if !ok {
		return LocationRecord{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, uuid)
		return LocationRecord{}, false, nil
	}
	return e.rec, true, nil
}
