package presence

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	v1 "vicinity/shared/contracts/presence/v1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryRegisterReplacesDuplicate(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(testLogger())

	first := NewClient("u1", "conn-1", 8)
	second := NewClient("u1", "conn-2", 8)

	if prior := r.Register(first); prior != nil {
		t.Fatalf("first register: expected no displaced client, got %v", prior.ConnID)
	}
	prior := r.Register(second)
	if prior != first {
		t.Fatalf("second register: expected displaced first client")
	}

	got, ok := r.Lookup("u1")
	if !ok || got != second {
		t.Fatalf("Lookup after replace: got=%v ok=%v want second", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len=%d want=1 (replace must not duplicate)", r.Len())
	}
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(testLogger())

	if r.Remove("ghost", nil) {
		t.Fatalf("Remove of absent uuid reported true")
	}

	c := NewClient("u1", "conn-1", 8)
	r.Register(c)
	if !r.Remove("u1", c) {
		t.Fatalf("Remove of present uuid reported false")
	}
	if r.Remove("u1", c) {
		t.Fatalf("second Remove reported true")
	}
}

func TestRegistryRemoveRespectsOwner(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(testLogger())

	old := NewClient("u1", "conn-1", 8)
	replacement := NewClient("u1", "conn-2", 8)

	r.Register(old)
	r.Register(replacement)

	// A late disconnect of the displaced handle must not evict the replacement.
	if r.Remove("u1", old) {
		t.Fatalf("Remove with stale owner evicted the replacement session")
	}
	if _, ok := r.Lookup("u1"); !ok {
		t.Fatalf("replacement session gone after stale Remove")
	}
}

func TestRegistryIdentifiersSnapshot(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(testLogger())
	for _, id := range []string{"a", "b", "c"} {
		r.Register(NewClient(id, "conn-"+id, 8))
	}

	ids := r.Identifiers()
	sort.Strings(ids)
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("Identifiers len=%d want=%d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Identifiers[%d]=%q want=%q", i, ids[i], want[i])
		}
	}
}

func TestRegistryBroadcastExcludesSubjectAndClosedClients(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(testLogger())

	subject := NewClient("subject", "conn-s", 8)
	peer := NewClient("peer", "conn-p", 8)
	closed := NewClient("closed", "conn-c", 8)

	r.Register(subject)
	r.Register(peer)
	r.Register(closed)
	closed.Close()

	payload, _ := json.Marshal(v1.UserStatusPayload{UUID: "subject", IsOnline: true})
	env := NewEnvelope(v1.TypeUserStatus, payload, time.Now().UTC())

	r.Broadcast(env, "subject")

	select {
	case got := <-peer.Send:
		if got.Type != v1.TypeUserStatus {
			t.Fatalf("peer received type=%q want=%q", got.Type, v1.TypeUserStatus)
		}
	default:
		t.Fatalf("peer received nothing")
	}

	select {
	case got := <-subject.Send:
		t.Fatalf("subject received its own broadcast: %v", got.Type)
	default:
	}

	select {
	case got := <-closed.Send:
		t.Fatalf("closed client received broadcast: %v", got.Type)
	default:
	}
}

func TestRegistryBroadcastDropsUnderBackpressure(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(testLogger())

	// Queue size is clamped to a minimum inside NewClient only when <= 0,
	// so a size of 1 gives a fillable queue.
	slow := NewClient("slow", "conn-slow", 1)
	r.Register(slow)

	env := NewEnvelope(v1.TypeUserStatus, nil, time.Now().UTC())
	r.Broadcast(env, "")
	// Queue now full; this must not block.
	r.Broadcast(env, "")

	if len(slow.Send) != 1 {
		t.Fatalf("queue len=%d want=1 (second envelope dropped)", len(slow.Send))
	}
}
