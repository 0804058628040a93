package presence

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewConnID returns a ULID naming one websocket connection.
// ULIDs are lexicographically sortable, which keeps log correlation cheap.
func NewConnID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewEnvelopeID returns a ULID used as an outbound envelope id.
func NewEnvelopeID(now time.Time) (string, error) {
	return NewConnID(now)
}
