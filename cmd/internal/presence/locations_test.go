package presence

import (
	"errors"
	"testing"
)

func TestLocationStoreUpdateRejectsInvalidCoordinates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		lat, lon float64
	}{
		{name: "lat high", lat: 90.01, lon: 0},
		{name: "lat low", lat: -90.01, lon: 0},
		{name: "lon high", lat: 0, lon: 180.01},
		{name: "lon low", lat: 0, lon: -180.01},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := NewLocationStore()
			err := s.Update("u1", LocationRecord{Latitude: tc.lat, Longitude: tc.lon, TimestampMS: 1})
			if !errors.Is(err, ErrInvalidLocation) {
				t.Fatalf("Update err=%v want ErrInvalidLocation", err)
			}
			if _, ok := s.Get("u1"); ok {
				t.Fatalf("invalid record was stored")
			}
		})
	}
}

func TestLocationStoreLastWriteWins(t *testing.T) {
	t.Parallel()

	s := NewLocationStore()

	if err := s.Update("u1", LocationRecord{Latitude: 1, Longitude: 2, TimestampMS: 10}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := s.Update("u1", LocationRecord{Latitude: 3, Longitude: 4, TimestampMS: 20}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	rec, ok := s.Get("u1")
	if !ok {
		t.Fatalf("record absent")
	}
	if rec.Latitude != 3 || rec.Longitude != 4 || rec.TimestampMS != 20 {
		t.Fatalf("got %+v want latest write", rec)
	}
}

func TestLocationStoreSnapshotIsPointInTimeCopy(t *testing.T) {
	t.Parallel()

	s := NewLocationStore()
	if err := s.Update("u1", LocationRecord{Latitude: 1, Longitude: 1, TimestampMS: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}

	snap := s.Snapshot()

	// Mutations after the snapshot must not leak into it.
	if err := s.Update("u1", LocationRecord{Latitude: 9, Longitude: 9, TimestampMS: 9}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.Remove("u1")

	rec, ok := snap["u1"]
	if !ok {
		t.Fatalf("snapshot missing u1")
	}
	if rec.Latitude != 1 || rec.Longitude != 1 || rec.TimestampMS != 1 {
		t.Fatalf("snapshot mutated: %+v", rec)
	}
}

func TestLocationStoreRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewLocationStore()
	s.Remove("ghost")
	s.Remove("ghost")

	if err := s.Update("u1", LocationRecord{Latitude: 1, Longitude: 1, TimestampMS: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.Remove("u1")
	s.Remove("u1")
	if _, ok := s.Get("u1"); ok {
		t.Fatalf("record still present after Remove")
	}
}

func TestLocationStoreRestoreDropsInvalidPersistedData(t *testing.T) {
	t.Parallel()

	s := NewLocationStore()
	if s.Restore("u1", LocationRecord{Latitude: 120, Longitude: 0, TimestampMS: 1}) {
		t.Fatalf("Restore accepted out-of-range record")
	}
	if _, ok := s.Get("u1"); ok {
		t.Fatalf("invalid restored record was stored")
	}
}
