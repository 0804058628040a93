package presence

import (
	"context"
	"time"
)

// LastLocationStore persists the last-known position of an identifier across
// disconnects and process restarts.
//
// Requirements:
//   - Save upserts per identifier and applies the given TTL.
//   - Restore treats an expired or missing record as absence, not an error.
//   - The engine treats every call as best-effort: a failing store degrades
//     to "no persisted location" and never blocks session handling.
type LastLocationStore interface {
	Save(ctx context.Context, uuid string, rec LocationRecord, ttl time.Duration) error
	Restore(ctx context.Context, uuid string) (LocationRecord, bool, error)
	Close() error
}
