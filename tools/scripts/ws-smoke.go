// Package main provides a CI-friendly WebSocket smoke test for the Vicinity presence server.
//
// It validates:
//   - handshake + subprotocol selection
//   - presence broadcast on connect (userStatus online)
//   - heartbeat acceptance
//   - updateLocation -> targeted nearbyDistances with formatted values
//   - getOnlineUsers -> onlineUsersList roster
//   - presence broadcast on disconnect (userStatus offline)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "vicinity/shared/contracts/presence/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "vicinity.presence.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	uuid string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	uuidA := fmt.Sprintf("smoke-a-%d", time.Now().UnixNano())
	uuidB := fmt.Sprintf("smoke-b-%d", time.Now().UnixNano())

	a := mustConnect(root, "A", *wsURL, *origin, uuidA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, uuidB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", uuidA, uuidB, *origin)
	}

	// A observes B coming online.
	mustAssertUserStatus(root, a, uuidB, true, *timeout)

	mustHeartbeat(root, a, *timeout)

	// Seoul City Hall and Namsan, roughly 1.9km apart.
	mustUpdateLocation(root, a, 37.5665, 126.9780, *timeout)
	mustUpdateLocation(root, b, 37.5512, 126.9882, *timeout)

	// B is the originator of the second update, so B gets the distance map.
	dist := mustAssertNearbyDistances(root, b, uuidA, *timeout)
	if dist < 1500 || dist > 2500 {
		fatalf("distance out of plausible range: %.1fm", dist)
	}

	roster := mustOnlineUsers(root, a, *timeout)
	if !containsAll(roster, uuidA, uuidB) {
		fatalf("online roster missing smoke users: %v", roster)
	}

	closeWS(b.conn)

	// A observes B going offline.
	mustAssertUserStatus(root, a, uuidB, false, *timeout)

	fmt.Printf("OK: A=%s B=%s distance=%.1fm roster=%d\n", uuidA, uuidB, dist, len(roster))
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, uuid string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url (%s): %v", name, err)
	}
	q := u.Query()
	q.Set("uuid", uuid)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		uuid:  uuid,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustHeartbeat(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHeartbeat,
		ID:      fmt.Sprintf("%s-hb", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON("ping"),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustUpdateLocation(parent context.Context, c *smokeClient, lat, lon float64, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeUpdateLocation,
		ID:   fmt.Sprintf("%s-loc-%d", c.name, time.Now().UnixNano()),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.UpdateLocationPayload{
			Latitude:  lat,
			Longitude: lon,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func mustAssertUserStatus(parent context.Context, c *smokeClient, wantUUID string, wantOnline bool, stepTimeout time.Duration) {
	skip := map[string]struct{}{
		v1.TypeNearbyDistances: {},
	}
	for {
		env := c.mustReadUntilType(parent, v1.TypeUserStatus, stepTimeout, skip)

		var p v1.UserStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal userStatus payload (%s): %v", c.name, err)
		}
		if p.UUID != wantUUID {
			// Presence of unrelated users is fine on a shared dev server.
			continue
		}
		if p.IsOnline != wantOnline {
			fatalf("userStatus online mismatch (%s): uuid=%q got=%t want=%t", c.name, p.UUID, p.IsOnline, wantOnline)
		}
		return
	}
}

func mustAssertNearbyDistances(parent context.Context, c *smokeClient, wantUUID string, stepTimeout time.Duration) float64 {
	skip := map[string]struct{}{
		v1.TypeUserStatus: {},
	}
	env := c.mustReadUntilType(parent, v1.TypeNearbyDistances, stepTimeout, skip)

	var p v1.NearbyDistancesPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal nearbyDistances payload (%s): %v", c.name, err)
	}

	if _, ok := p[c.uuid]; ok {
		fatalf("nearbyDistances contains originator (%s)", c.name)
	}

	info, ok := p[wantUUID]
	if !ok {
		fatalf("nearbyDistances missing %q (%s): %v", wantUUID, c.name, p)
	}
	if info.Distance < 0 || math.IsNaN(info.Distance) {
		fatalf("nearbyDistances invalid distance (%s): %v", c.name, info.Distance)
	}
	if strings.TrimSpace(info.FormattedDistance) == "" {
		fatalf("nearbyDistances missing formatted distance (%s)", c.name)
	}
	return info.Distance
}

func mustOnlineUsers(parent context.Context, c *smokeClient, stepTimeout time.Duration) []string {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeGetOnlineUsers,
		ID:   fmt.Sprintf("%s-roster", c.name),
		TS:   time.Now().UTC(),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	skip := map[string]struct{}{
		v1.TypeUserStatus:      {},
		v1.TypeNearbyDistances: {},
	}
	resp := c.mustReadUntilType(parent, v1.TypeOnlineUsersList, stepTimeout, skip)

	var p v1.OnlineUsersListPayload
	if err := json.Unmarshal(resp.Payload, &p); err != nil {
		fatalf("unmarshal onlineUsersList payload (%s): %v", c.name, err)
	}
	return p.Users
}

func containsAll(haystack []string, needles ...string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, s := range haystack {
		set[s] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	data, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		fatalf("write envelope: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal payload: %v", err)
	}
	return data
}

func closeWS(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "SMOKE FAIL: "+format+"\n", args...)
	os.Exit(1)
}
