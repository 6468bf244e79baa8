package integration

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/shared"
)

// MaxErrorMessageLength caps stored error messages, in runes.
const MaxErrorMessageLength = 500

// SyncRecordStatus is the reconciliation outcome for one (store, SKU)
type SyncRecordStatus string

const (
	SyncRecordStatusPending SyncRecordStatus = "pending"
	SyncRecordStatusSynced  SyncRecordStatus = "synced"
	SyncRecordStatusError   SyncRecordStatus = "error"
)

// IsValid returns true if the status is valid
func (s SyncRecordStatus) IsValid() bool {
	switch s {
	case SyncRecordStatusPending, SyncRecordStatusSynced, SyncRecordStatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncRecordStatus
func (s SyncRecordStatus) String() string {
	return string(s)
}

// SyncRecord is the ledger row for one SKU on one destination store.
type SyncRecord struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	SKU               string
	SourceItemID      int64
	DestinationItemID *string
	Status            SyncRecordStatus
	LastSyncedAt      *time.Time
	ErrorMessage      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasDestination reports whether the SKU already exists on the store.
func (r *SyncRecord) HasDestination() bool {
	return r.DestinationItemID != nil && *r.DestinationItemID != ""
}

// UpsertInput carries the fields of one ledger write.
// A nil DestinationID keeps whatever destination id is already stored.
type UpsertInput struct {
	SourceItemID  int64
	DestinationID *string
	Status        SyncRecordStatus
	Error         *string
}

// Validate checks the input before it reaches storage.
func (in UpsertInput) Validate(sku string) error {
	if sku == "" {
		return ErrEmptySKU
	}
	if !in.Status.IsValid() {
		return shared.InvalidInputf("unknown sync record status: %s", in.Status)
	}
	return nil
}

// TruncateMessage caps msg at MaxErrorMessageLength runes.
func TruncateMessage(msg string) string {
	return TruncateRunes(msg, MaxErrorMessageLength)
}

// TruncateRunes cuts s to at most n runes, appending an ellipsis when cut.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// StatusCounts holds ledger counts per status.
type StatusCounts struct {
	Pending int64 `json:"pending"`
	Synced  int64 `json:"synced"`
	Error   int64 `json:"error"`
}

// Total returns the sum of all counts.
func (c StatusCounts) Total() int64 {
	return c.Pending + c.Synced + c.Error
}

// Add adds other to c.
func (c *StatusCounts) Add(other StatusCounts) {
	c.Pending += other.Pending
	c.Synced += other.Synced
	c.Error += other.Error
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// LedgerReader provides read access to sync records
type LedgerReader interface {
	// Get returns ErrSyncRecordNotFound when there is no record
	Get(ctx context.Context, storeID uuid.UUID, sku string) (*SyncRecord, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, filter LedgerFilter) ([]SyncRecord, int64, error)
	CountByStatus(ctx context.Context, storeID *uuid.UUID) (StatusCounts, error)
	// FailedSourceItems returns source item ids with an error record on any of the stores
	FailedSourceItems(ctx context.Context, storeIDs []uuid.UUID, itemIDs []int64) ([]int64, error)
}

// LedgerWriter provides write access to sync records
type LedgerWriter interface {
	// Upsert updates the (storeID, sku) record or inserts it
	Upsert(ctx context.Context, storeID uuid.UUID, sku string, in UpsertInput) (*SyncRecord, error)
}

// LedgerRepository combines ledger reads and writes
type LedgerRepository interface {
	LedgerReader
	LedgerWriter
}

// LedgerFilter narrows ListByStore
type LedgerFilter struct {
	shared.Filter
	Status *SyncRecordStatus
}
