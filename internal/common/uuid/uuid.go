// Package uuid provides time-ordered UUIDv7 identifiers. It wraps github.com/google/uuid
// and is used to tag upload sessions so their log lines can be correlated.
package uuid

import (
	"time"

	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// New returns a new UUIDv7. Panics if UUID generation fails.
func New() UUID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

// Timestamp returns the creation time encoded in a UUIDv7, with millisecond precision.
func Timestamp(id UUID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec)
}
