package presence

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 16 << 10 // 16 KiB

	// Max bytes accepted for an opaque heartbeat payload.
	maxHeartbeatBytes = 256
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	// These drive transport-level pings; application heartbeat events are
	// log-only and never reset this timer.
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second

	// Default shadow-copy lifetime for last-known locations.
	defaultLocationTTL = 7 * 24 * time.Hour
)
