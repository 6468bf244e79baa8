package integration

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/shared"
)

// StoreStatus is whether a destination takes part in syncs
type StoreStatus string

const (
	StoreStatusActive   StoreStatus = "active"
	StoreStatusInactive StoreStatus = "inactive"
)

// IsValid returns true if the status is valid
func (s StoreStatus) IsValid() bool {
	return s == StoreStatusActive || s == StoreStatusInactive
}

// StoreProfile is a destination storefront.
type StoreProfile struct {
	shared.BaseEntity
	Name           string
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Status         StoreStatus
	LastSyncAt     *time.Time
}

// NewStoreProfile validates and creates an active store profile.
func NewStoreProfile(name, baseURL, key, secret string) (*StoreProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.InvalidInputf("store name is required")
	}
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" || strings.TrimSpace(secret) == "" {
		return nil, ErrMissingCredentials
	}

	return &StoreProfile{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           name,
		BaseURL:        normalized,
		ConsumerKey:    key,
		ConsumerSecret: secret,
		Status:         StoreStatusActive,
	}, nil
}

// NormalizeBaseURL checks an absolute http(s) URL and strips a trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", ErrInvalidStoreURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidStoreURL
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// IsActive reports whether the store takes part in syncs.
func (s *StoreProfile) IsActive() bool {
	return s.Status == StoreStatusActive
}

// MarkSynced stamps the last time the engine touched this store.
func (s *StoreProfile) MarkSynced(at time.Time) {
	s.LastSyncAt = &at
	s.UpdatedAt = at
}

// Deactivate removes the store from future syncs.
func (s *StoreProfile) Deactivate() {
	s.Status = StoreStatusInactive
	s.UpdatedAt = shared.Now()
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// StoreReader provides read access to store profiles
type StoreReader interface {
	// FindByID returns ErrStoreNotFound when missing
	FindByID(ctx context.Context, id uuid.UUID) (*StoreProfile, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]StoreProfile, error)
	FindActive(ctx context.Context) ([]StoreProfile, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]StoreProfile, int64, error)
}

// StoreWriter provides write access to store profiles
type StoreWriter interface {
	Save(ctx context.Context, store *StoreProfile) error
	UpdateLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes the store and cascades to its sync and sales records
	Delete(ctx context.Context, id uuid.UUID) error
}

// StoreRepository combines store reads and writes
type StoreRepository interface {
	StoreReader
	StoreWriter
}
