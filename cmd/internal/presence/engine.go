package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"time"

	"vicinity/cmd/internal/geo"
	v1 "vicinity/shared/contracts/presence/v1"
)

const persistTimeout = 2 * time.Second

// Engine is the broadcast dispatcher: it owns the session registry and the
// location store, orchestrates connect/disconnect/update handling, and pushes
// presence and proximity traffic to the right channels.
//
// Failure policy: nothing in here terminates a connection or the process.
// A failed persistence call degrades to "no persisted location"; a vanished
// target channel degrades to a skipped send.
type Engine struct {
	log       *slog.Logger
	sessions  *SessionRegistry
	locations *LocationStore
	store     LastLocationStore
	metrics   *Metrics

	locationTTL time.Duration
}

// NewEngine constructs the process-wide engine instance.
// When store is nil, an in-memory last-location store is used (dev mode).
// Metrics may be nil; the engine then records nothing.
func NewEngine(log *slog.Logger, store LastLocationStore, metrics *Metrics) *Engine {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if store == nil {
		store = NewInMemoryLastLocationStore()
	}
	return &Engine{
		log:         log,
		sessions:    NewSessionRegistry(log),
		locations:   NewLocationStore(),
		store:       store,
		metrics:     metrics,
		locationTTL: defaultLocationTTL,
	}
}

// Sessions exposes the registry for targeted delivery by the gateway.
func (e *Engine) Sessions() *SessionRegistry { return e.sessions }

// SetLocationTTL overrides the retention applied to persisted locations.
// Call before serving traffic; the engine does not guard this field.
func (e *Engine) SetLocationTTL(ttl time.Duration) {
	if ttl > 0 {
		e.locationTTL = ttl
	}
}

// Connect admits a registered client: registry insert, best-effort restore of
// the last persisted location, then a presence broadcast to everyone else.
// The displaced handle from a duplicate connect is closed, never silently lost.
func (e *Engine) Connect(ctx context.Context, client *Client) {
	if client == nil || client.UUID == "" {
		return
	}

	prior := e.sessions.Register(client)
	if prior != nil {
		prior.Close()
	}
	e.metrics.sessionGaugeSet(e.sessions.Len())

	e.restoreLastLocation(ctx, client.UUID)

	e.broadcastUserStatus(client.UUID, true)
	e.log.Info("presence.connect", "uuid", client.UUID, "conn_id", client.ConnID)
}

// Disconnect tears a session down: best-effort persist of the last-known
// location, eviction from both maps, then an offline broadcast.
//
// A stale handle (already replaced by a newer connection for the same uuid)
// is ignored entirely so the replacement's state stays intact.
func (e *Engine) Disconnect(ctx context.Context, client *Client) {
	if client == nil || client.UUID == "" {
		return
	}

	if cur, ok := e.sessions.Lookup(client.UUID); !ok || cur != client {
		e.log.Debug("presence.disconnect.stale", "uuid", client.UUID, "conn_id", client.ConnID)
		return
	}

	// Persist before eviction, outside any lock over the shared maps.
	if rec, ok := e.locations.Get(client.UUID); ok {
		e.saveLastLocation(ctx, client.UUID, rec)
	}

	e.sessions.Remove(client.UUID, client)
	e.locations.Remove(client.UUID)
	e.metrics.sessionGaugeSet(e.sessions.Len())

	e.broadcastUserStatus(client.UUID, false)
	e.log.Info("presence.disconnect", "uuid", client.UUID, "conn_id", client.ConnID)
}

// UpdateLocation validates and stores a position fix, then recomputes this
// client's distances to every other tracked peer and pushes the result to the
// originating session only.
func (e *Engine) UpdateLocation(ctx context.Context, uuid string, latitude, longitude float64) error {
	now := time.Now().UTC()
	rec := LocationRecord{
		Latitude:    latitude,
		Longitude:   longitude,
		TimestampMS: now.UnixMilli(),
	}

	if err := e.locations.Update(uuid, rec); err != nil {
		e.metrics.incInvalidLocations()
		return err
	}

	// An update can race a concurrent disconnect: the read loop decodes the
	// event while Disconnect evicts both maps. Disconnect removes the session
	// entry first, so a session still present here means any in-flight
	// eviction will also sweep the record just written. Absent session means
	// the write above may have landed after the sweep; undo it so no offline
	// peer lingers in other clients' distance maps.
	if _, ok := e.sessions.Lookup(uuid); !ok {
		e.locations.Remove(uuid)
		e.log.Debug("presence.location.orphan_discarded", "uuid", uuid)
		return nil
	}
	e.metrics.incLocationUpdates()
	e.log.Info("presence.location.update", "uuid", uuid, "lat", latitude, "lon", longitude)

	e.pushNearbyDistances(uuid, rec, now)
	return nil
}

// Heartbeat records an application-level keepalive. It feeds no liveness
// timer; transport pings own eviction of unresponsive connections.
func (e *Engine) Heartbeat(uuid, payload string) {
	e.log.Debug("presence.heartbeat", "uuid", uuid, "payload_len", len(payload))
}

// OnlineUsers returns a sorted point-in-time snapshot of online identifiers.
func (e *Engine) OnlineUsers() []string {
	ids := e.sessions.Identifiers()
	sort.Strings(ids)
	return ids
}

// ---- fanout ----

func (e *Engine) pushNearbyDistances(uuid string, mine LocationRecord, now time.Time) {
	// Snapshot first, then compute with no lock held. The result reflects
	// whichever state the snapshot captured; per-uuid last-write-wins.
	snapshot := e.locations.Snapshot()

	distances := make(v1.NearbyDistancesPayload, len(snapshot))
	for peer, rec := range snapshot {
		if peer == uuid {
			continue
		}
		meters := geo.Distance(mine.Point(), rec.Point())
		distances[peer] = v1.DistanceInfo{
			Distance:          meters,
			FormattedDistance: geo.FormatDistance(meters),
		}
	}

	client, ok := e.sessions.Lookup(uuid)
	if !ok {
		// Disconnected between computation and delivery. Skip, never retry.
		e.log.Debug("presence.distances.channel_gone", "uuid", uuid)
		return
	}

	payload, _ := json.Marshal(distances)
	env := NewEnvelope(v1.TypeNearbyDistances, payload, now)

	select {
	case <-client.Done():
		e.log.Debug("presence.distances.channel_gone", "uuid", uuid)
	case client.Send <- env:
		e.metrics.incDistancePushes()
	default:
		e.log.Debug("presence.distances.backpressure_drop", "uuid", uuid)
	}
}

func (e *Engine) broadcastUserStatus(uuid string, online bool) {
	payload, _ := json.Marshal(v1.UserStatusPayload{UUID: uuid, IsOnline: online})
	env := NewEnvelope(v1.TypeUserStatus, payload, time.Now().UTC())

	e.sessions.Broadcast(env, uuid)
	e.metrics.incStatusBroadcasts()
}

// ---- persistence glue ----

func (e *Engine) saveLastLocation(ctx context.Context, uuid string, rec LocationRecord) {
	saveCtx, cancel := context.WithTimeout(withoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := e.store.Save(saveCtx, uuid, rec, e.locationTTL); err != nil {
		e.metrics.incPersistenceFailures()
		e.log.Warn("presence.persist.save_fail", "uuid", uuid, "err", err)
		return
	}
	e.log.Info("presence.persist.saved", "uuid", uuid, "lat", rec.Latitude, "lon", rec.Longitude)
}

func (e *Engine) restoreLastLocation(ctx context.Context, uuid string) {
	restoreCtx, cancel := context.WithTimeout(withoutCancel(ctx), persistTimeout)
	defer cancel()

	rec, ok, err := e.store.Restore(restoreCtx, uuid)
	if err != nil {
		e.metrics.incPersistenceFailures()
		e.log.Warn("presence.persist.restore_fail", "uuid", uuid, "err", err)
		return
	}
	if !ok {
		return
	}
	if e.locations.Restore(uuid, rec) {
		e.log.Info("presence.persist.restored", "uuid", uuid, "lat", rec.Latitude, "lon", rec.Longitude)
	}
}

// withoutCancel detaches persistence calls from the connection's lifecycle:
// a disconnect cancels the request context, but the save must still run.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

// ---- envelope construction ----

// NewEnvelope wraps a payload in the canonical wire envelope with a
// server-assigned ULID id.
func NewEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	id, err := NewEnvelopeID(ts)
	if err != nil {
		id = NewRandomHex(10)
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: payload,
	}
}
