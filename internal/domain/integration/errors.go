package integration

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Transport errors
	ErrTransport       = errors.New("integration: storefront request failed")
	ErrInvalidResponse = errors.New("integration: invalid storefront response")

	// ErrResourceBudgetExceeded stops a slice early. It never reaches operators.
	ErrResourceBudgetExceeded = errors.New("integration: slice resource budget exceeded")

	// Store errors
	ErrStoreNotFound      = errors.New("integration: store not found")
	ErrStoreInactive      = errors.New("integration: store is inactive")
	ErrInvalidStoreURL    = errors.New("integration: invalid store base URL")
	ErrMissingCredentials = errors.New("integration: store credentials are required")

	// Ledger errors
	ErrSyncRecordNotFound = errors.New("integration: sync record not found")
	ErrEmptySKU           = errors.New("integration: sync record requires a SKU")

	// Job errors
	ErrJobNotFound       = errors.New("integration: batch job not found")
	ErrInvalidTransition = errors.New("integration: invalid batch job status transition")
	ErrJobLeased         = errors.New("integration: batch job is leased by another worker")
	ErrStaleFencingToken = errors.New("integration: batch job fencing token is stale")
	ErrNothingToRetry    = errors.New("integration: batch job has no failed items to retry")
	ErrInvalidJobInput   = errors.New("integration: invalid batch job input")
)

// ---------------------------------------------------------------------------
// Typed errors
// ---------------------------------------------------------------------------

// FormatError reports a source item that cannot be turned into a transfer
// representation. The item is skipped; the slice continues.
type FormatError struct {
	ItemID int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("integration: cannot format item %d: %s", e.ItemID, e.Reason)
}

// NewFormatError creates a FormatError
func NewFormatError(itemID int64, format string, args ...any) *FormatError {
	return &FormatError{ItemID: itemID, Reason: fmt.Sprintf(format, args...)}
}

// TransportError is a failed call against a destination storefront:
// a network failure, a timeout, an unexpected status or an unreadable body.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the cause and the ErrTransport sentinel.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// CredentialError is raised when a store rejects its credentials at job
// creation time.
type CredentialError struct {
	StoreID uuid.UUID
	Err     error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("integration: credentials rejected for store %s: %v", e.StoreID, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// IsItemLevel reports whether err is a per-item failure that should be
// recorded and skipped rather than aborting the slice.
func IsItemLevel(err error) bool {
	var fe *FormatError
	var te *TransportError
	return errors.As(err, &fe) || errors.As(err, &te)
}
