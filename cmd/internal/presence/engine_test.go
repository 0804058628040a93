package presence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	v1 "vicinity/shared/contracts/presence/v1"
)

// failingStore simulates a fully unavailable durable store.
type failingStore struct{}

func (failingStore) Save(context.Context, string, LocationRecord, time.Duration) error {
	return errors.New("store down")
}

func (failingStore) Restore(context.Context, string) (LocationRecord, bool, error) {
	return LocationRecord{}, false, errors.New("store down")
}

func (failingStore) Close() error { return nil }

func newTestEngine(store LastLocationStore) *Engine {
	return NewEngine(testLogger(), store, nil)
}

func connect(t *testing.T, e *Engine, uuid, connID string) *Client {
	t.Helper()
	c := NewClient(uuid, connID, 16)
	e.Connect(context.Background(), c)
	return c
}

func recvEnvelope(t *testing.T, c *Client, wantType string) v1.Envelope {
	t.Helper()
	select {
	case env := <-c.Send:
		if env.Type != wantType {
			t.Fatalf("received type=%q want=%q", env.Type, wantType)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", wantType)
		return v1.Envelope{}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func TestEngineConnectBroadcastsOnlineStatus(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil)
	a := connect(t, e, "alice", "conn-a")
	_ = connect(t, e, "bob", "conn-b")

	env := recvEnvelope(t, a, v1.TypeUserStatus)

	var p v1.UserStatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.UUID != "bob" || !p.IsOnline {
		t.Fatalf("got %+v want bob online", p)
	}
}

func TestEngineNearbyDistancesTargetedAndSelfExcluded(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil)
	alice := connect(t, e, "alice", "conn-a")
	bob := connect(t, e, "bob", "conn-b")
	drain(alice)
	drain(bob)

	// Seoul City Hall and Namsan Tower, roughly 1.9-2.0 km apart.
	if err := e.UpdateLocation(context.Background(), "bob", 37.5512, 126.9882); err != nil {
		t.Fatalf("bob update: %v", err)
	}
	drain(bob)
	if err := e.UpdateLocation(context.Background(), "alice", 37.5665, 126.9780); err != nil {
		t.Fatalf("alice update: %v", err)
	}

	env := recvEnvelope(t, alice, v1.TypeNearbyDistances)

	var distances v1.NearbyDistancesPayload
	if err := json.Unmarshal(env.Payload, &distances); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if _, ok := distances["alice"]; ok {
		t.Fatalf("distance map contains the originator's own identifier")
	}
	info, ok := distances["bob"]
	if !ok {
		t.Fatalf("distance map missing bob: %v", distances)
	}
	if info.Distance < 1900 || info.Distance > 2000 {
		t.Fatalf("distance=%v want within [1900, 2000]", info.Distance)
	}
	if info.FormattedDistance == "" || info.FormattedDistance[len(info.FormattedDistance)-2:] != "km" {
		t.Fatalf("formatted=%q want kilometers", info.FormattedDistance)
	}

	// The reply is targeted: bob receives nothing from alice's update.
	select {
	case got := <-bob.Send:
		t.Fatalf("bob received %q from alice's update", got.Type)
	default:
	}
}

func TestEngineUpdateLocationRejectsInvalid(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil)
	_ = connect(t, e, "alice", "conn-a")

	err := e.UpdateLocation(context.Background(), "alice", 123.4, 0)
	if !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("err=%v want ErrInvalidLocation", err)
	}
	if _, ok := e.locations.Get("alice"); ok {
		t.Fatalf("invalid location was stored")
	}

	// The session survives the rejected update.
	if _, ok := e.sessions.Lookup("alice"); !ok {
		t.Fatalf("session gone after a rejected update")
	}
}

func TestEngineDisconnectCleansUpAndPersists(t *testing.T) {
	t.Parallel()

	store := NewInMemoryLastLocationStore()
	e := newTestEngine(store)

	alice := connect(t, e, "alice", "conn-a")
	if err := e.UpdateLocation(context.Background(), "alice", 37.5665, 126.9780); err != nil {
		t.Fatalf("update: %v", err)
	}

	e.Disconnect(context.Background(), alice)

	if _, ok := e.sessions.Lookup("alice"); ok {
		t.Fatalf("session still registered after disconnect")
	}
	if _, ok := e.locations.Get("alice"); ok {
		t.Fatalf("location still tracked after disconnect")
	}

	rec, ok, err := store.Restore(context.Background(), "alice")
	if err != nil || !ok {
		t.Fatalf("persisted record: ok=%v err=%v", ok, err)
	}
	if rec.Latitude != 37.5665 || rec.Longitude != 126.9780 {
		t.Fatalf("persisted %+v want last reported coordinates", rec)
	}
}

func TestEngineReconnectRestoresPersistedLocation(t *testing.T) {
	t.Parallel()

	store := NewInMemoryLastLocationStore()
	e := newTestEngine(store)

	first := connect(t, e, "alice", "conn-1")
	if err := e.UpdateLocation(context.Background(), "alice", 10, 20); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Disconnect(context.Background(), first)

	// Reconnect restores the shadow copy before any new update arrives.
	_ = connect(t, e, "alice", "conn-2")

	rec, ok := e.locations.Get("alice")
	if !ok {
		t.Fatalf("location not restored on reconnect")
	}
	if rec.Latitude != 10 || rec.Longitude != 20 {
		t.Fatalf("restored %+v want persisted coordinates", rec)
	}
}

func TestEngineDuplicateConnectClosesPriorHandle(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil)

	first := connect(t, e, "alice", "conn-1")
	second := connect(t, e, "alice", "conn-2")

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatalf("displaced handle was not closed")
	}

	// The displaced handle's late disconnect must not evict the replacement
	// and must not broadcast an offline status.
	bob := connect(t, e, "bob", "conn-b")
	drain(bob)
	e.Disconnect(context.Background(), first)

	if got, ok := e.sessions.Lookup("alice"); !ok || got != second {
		t.Fatalf("replacement session disturbed by stale disconnect")
	}
	select {
	case env := <-bob.Send:
		t.Fatalf("stale disconnect broadcast %q", env.Type)
	default:
	}
}

func TestEngineUpdateAfterDisconnectLeavesNoOrphanLocation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil)

	alice := connect(t, e, "alice", "conn-a")
	bob := connect(t, e, "bob", "conn-b")
	drain(alice)
	drain(bob)

	e.Disconnect(context.Background(), alice)
	drain(bob)

	// An update decoded by alice's read loop can land after her eviction.
	// It must not leave a record behind for a session that no longer exists.
	if err := e.UpdateLocation(context.Background(), "alice", 37.5665, 126.9780); err != nil {
		t.Fatalf("racing update: %v", err)
	}
	if _, ok := e.locations.Get("alice"); ok {
		t.Fatalf("location stored for an evicted session")
	}

	if err := e.UpdateLocation(context.Background(), "bob", 37.5512, 126.9882); err != nil {
		t.Fatalf("bob update: %v", err)
	}
	env := recvEnvelope(t, bob, v1.TypeNearbyDistances)

	var distances v1.NearbyDistancesPayload
	if err := json.Unmarshal(env.Payload, &distances); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := distances["alice"]; ok {
		t.Fatalf("distance map contains the offline peer")
	}
	if len(distances) != 0 {
		t.Fatalf("distance map not empty: %v", distances)
	}
}

func TestEngineSurvivesUnavailablePersistence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(failingStore{})

	alice := connect(t, e, "alice", "conn-a")
	if err := e.UpdateLocation(context.Background(), "alice", 1, 2); err != nil {
		t.Fatalf("update with dead store: %v", err)
	}
	e.Disconnect(context.Background(), alice)

	if _, ok := e.sessions.Lookup("alice"); ok {
		t.Fatalf("session left behind when store failed")
	}
}

func TestEngineOnlineUsersSortedSnapshot(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil)
	_ = connect(t, e, "charlie", "conn-c")
	_ = connect(t, e, "alice", "conn-a")
	_ = connect(t, e, "bob", "conn-b")

	got := e.OnlineUsers()
	want := []string{"alice", "bob", "charlie"}
	if len(got) != len(want) {
		t.Fatalf("OnlineUsers=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OnlineUsers=%v want=%v", got, want)
		}
	}
}

func TestEngineDisconnectWithoutLocationSkipsPersist(t *testing.T) {
	t.Parallel()

	store := NewInMemoryLastLocationStore()
	e := newTestEngine(store)

	alice := connect(t, e, "alice", "conn-a")
	e.Disconnect(context.Background(), alice)

	if _, ok, _ := store.Restore(context.Background(), "alice"); ok {
		t.Fatalf("persisted a record for a session that never reported a location")
	}
}
