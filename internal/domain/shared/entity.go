package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and audit timestamps of a persisted entity
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity returns an entity with a fresh ID. Timestamps are UTC and
// truncated to microseconds, the precision PostgreSQL stores, so a value
// read back compares equal to the one written.
func NewBaseEntity() BaseEntity {
	now := Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Now returns the current time in the form entities store it
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
