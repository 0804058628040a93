// Package v1 defines the Vicinity Presence Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHeartbeat is an application-level keepalive (client -> server).
	// The payload is an opaque string; the server only logs it.
	TypeHeartbeat = "heartbeat"

	// TypeUpdateLocation reports the client's current position (client -> server).
	TypeUpdateLocation = "updateLocation"

	// TypeGetOnlineUsers requests the current set of online identifiers (client -> server).
	TypeGetOnlineUsers = "getOnlineUsers"

	// TypeUserStatus announces a presence change (server -> all other sessions).
	TypeUserStatus = "userStatus"

	// TypeNearbyDistances carries the per-peer distance map (server -> originating session).
	TypeNearbyDistances = "nearbyDistances"

	// TypeOnlineUsersList answers a getOnlineUsers request (server -> originating session).
	TypeOnlineUsersList = "onlineUsersList"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHeartbeat,
		TypeUpdateLocation,
		TypeGetOnlineUsers,
		TypeUserStatus,
		TypeNearbyDistances,
		TypeOnlineUsersList,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// UpdateLocationPayload reports a position fix. The timestamp is always
// assigned server-side at ingest; clients cannot supply one.
type UpdateLocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UserStatusPayload announces that an identifier went online or offline.
type UserStatusPayload struct {
	UUID     string `json:"uuid"`
	IsOnline bool   `json:"isOnline"`
}

// DistanceInfo is one entry of a nearbyDistances map.
type DistanceInfo struct {
	Distance          float64 `json:"distance"`
	FormattedDistance string  `json:"formattedDistance"`
}

// NearbyDistancesPayload maps peer identifier to its distance from the
// originating session. The originator's own identifier never appears.
type NearbyDistancesPayload map[string]DistanceInfo

// OnlineUsersListPayload answers a getOnlineUsers request.
type OnlineUsersListPayload struct {
	Users []string `json:"users"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
