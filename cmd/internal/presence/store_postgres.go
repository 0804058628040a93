// Package presence contains Vicinity's presence engine: session registry,
// location tracking, proximity fanout, and last-location persistence.
package presence

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLastLocationStore is a LastLocationStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresLastLocationStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Row layout is self-describing columns (latitude, longitude, recorded_at_ms,
// expires_at) rather than a packed text value; expiry is enforced on read so
// no background reaper is required for correctness.
type PostgresLastLocationStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresLastLocationStore behavior.
type PostgresOption func(*PostgresLastLocationStore) error

// WithSchema sets the DB schema used by this store (default: "vicinity").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresLastLocationStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("presence: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("presence: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresLastLocationStore constructs a Postgres-backed LastLocationStore.
func NewPostgresLastLocationStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresLastLocationStore, error) {
	st := &PostgresLastLocationStore{
		pool:   pool,
		schema: "vicinity",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("presence: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresLastLocationStore) Close() error { return nil }

// Save upserts the last-known position for uuid with the given TTL.
func (s *PostgresLastLocationStore) Save(ctx context.Context, uuid string, rec LocationRecord, ttl time.Duration) error {
	if s == nil || s.pool == nil {
		return errors.New("presence: nil store")
	}
	if uuid == "" {
		return errors.New("presence: empty uuid")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultLocationTTL
	}

	table := pgIdent(s.schema, "last_locations")
	expiresAt := time.Now().UTC().Add(ttl)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (uuid, latitude, longitude, recorded_at_ms, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (uuid) DO UPDATE
		   SET latitude = EXCLUDED.latitude,
		       longitude = EXCLUDED.longitude,
		       recorded_at_ms = EXCLUDED.recorded_at_ms,
		       expires_at = EXCLUDED.expires_at`,
		uuid, rec.Latitude, rec.Longitude, rec.TimestampMS, expiresAt,
	)
	return err
}

// Restore returns the persisted position for uuid. Expired rows report absence.
func (s *PostgresLastLocationStore) Restore(ctx context.Context, uuid string) (LocationRecord, bool, error) {
	if s == nil || s.pool == nil {
		return LocationRecord{}, false, errors.New("presence: nil store")
	}
	if uuid == "" {
		return LocationRecord{}, false, errors.New("presence: empty uuid")
	}
	if err := ctx.Err(); err != nil {
		return LocationRecord{}, false, err
	}

	table := pgIdent(s.schema, "last_locations")

	var rec LocationRecord
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude, recorded_at_ms
		   FROM `+table+`
		  WHERE uuid = $1 AND expires_at > now()`,
		uuid,
	).Scan(&rec.Latitude, &rec.Longitude, &rec.TimestampMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return LocationRecord{}, false, nil
	}
	if err != nil {
		return LocationRecord{}, false, err
	}
	return rec, true, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
