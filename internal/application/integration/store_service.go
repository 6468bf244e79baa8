package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MaxPageSize caps list requests
const MaxPageSize = 100

// StoreInvalidator drops cached views derived from a store
type StoreInvalidator interface {
	InvalidateStore(ctx context.Context, storeID uuid.UUID) error
}

// StoreService manages destination store profiles and exposes their ledgers.
type StoreService struct {
	stores   integration.StoreRepository
	ledger   integration.LedgerReader
	clients  integration.StorefrontClientFactory
	cache    StoreInvalidator
	validate *validator.Validate
	logger   *zap.Logger
}

// NewStoreService creates a new StoreService. clients and cache may be nil.
func NewStoreService(
	stores integration.StoreRepository,
	ledger integration.LedgerReader,
	clients integration.StorefrontClientFactory,
	cache StoreInvalidator,
	logger *zap.Logger,
) *StoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreService{
		stores:   stores,
		ledger:   ledger,
		clients:  clients,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create registers a destination store
func (s *StoreService) Create(ctx context.Context, req CreateStoreRequest) (*StoreResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.InvalidInputf("%s", err)
	}

	store, err := integration.NewStoreProfile(req.Name, req.BaseURL, req.ConsumerKey, req.ConsumerSecret)
	if err != nil {
		if errors.Is(err, integration.ErrInvalidStoreURL) || errors.Is(err, integration.ErrMissingCredentials) {
			return nil, shared.InvalidInputf("%s", err)
		}
		return nil, err
	}
	if err := s.stores.Save(ctx, store); err != nil {
		return nil, fmt.Errorf("save store: %w", err)
	}

	s.logger.Info("Store registered",
		zap.String("store_id", store.ID.String()),
		zap.String("base_url", store.BaseURL),
	)
	s.invalidate(ctx, store.ID)
	resp := ToStoreResponse(store)
	return &resp, nil
}

// Get returns one store profile
func (s *StoreService) Get(ctx context.Context, id uuid.UUID) (*StoreResponse, error) {
	store, err := s.stores.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToStoreResponse(store)
	return &resp, nil
}

// List returns a page of stores and the total count
func (s *StoreService) List(ctx context.Context, q ListStoresQuery) ([]StoreResponse, int64, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, 0, shared.InvalidInputf("%s", err)
	}

	filter := pageFilter(q.Page, q.PageSize, q.OrderBy, q.OrderDir, "name")
	if q.Search != "" {
		filter.Filters["search"] = q.Search
	}
	if q.Status != "" {
		filter.Filters["status"] = q.Status
	}

	stores, total, err := s.stores.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list stores: %w", err)
	}
	out := make([]StoreResponse, 0, len(stores))
	for i := range stores {
		out = append(out, ToStoreResponse(&stores[i]))
	}
	return out, total, nil
}

// Delete removes a store together with its sync and sales records
func (s *StoreService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.stores.Delete(ctx, id); err != nil {
		return err
	}
	if s.clients != nil {
		s.clients.Forget(id)
	}
	s.logger.Info("Store deleted", zap.String("store_id", id.String()))
	s.invalidate(ctx, id)
	return nil
}

// ListSyncRecords returns a page of a store's ledger
func (s *StoreService) ListSyncRecords(ctx context.Context, storeID uuid.UUID, q ListSyncRecordsQuery) ([]SyncRecordResponse, int64, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, 0, shared.InvalidInputf("%s", err)
	}
	if _, err := s.stores.FindByID(ctx, storeID); err != nil {
		return nil, 0, err
	}

	filter := integration.LedgerFilter{
		Filter: pageFilter(q.Page, q.PageSize, q.OrderBy, q.OrderDir, "updated_at"),
	}
	if q.Status != "" {
		status := integration.SyncRecordStatus(q.Status)
		filter.Status = &status
	}

	records, total, err := s.ledger.ListByStore(ctx, storeID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list sync records: %w", err)
	}
	out := make([]SyncRecordResponse, 0, len(records))
	for i := range records {
		out = append(out, ToSyncRecordResponse(&records[i]))
	}
	return out, total, nil
}

func (s *StoreService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStore(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate store stats",
			zap.String("store_id", id.String()),
			zap.Error(err),
		)
	}
}

// pageFilter builds a repository filter, clamping the page to sane bounds
func pageFilter(page, pageSize int, orderBy, orderDir, defaultOrder string) shared.Filter {
	filter := shared.DefaultFilter()
	if page > 0 {
		filter.Page = page
	}
	if pageSize > 0 {
		filter.PageSize = min(pageSize, MaxPageSize)
	}
	filter.OrderBy = defaultOrder
	if orderBy != "" {
		filter.OrderBy = orderBy
	}
	if orderDir == "asc" || orderDir == "desc" {
		filter.OrderDir = orderDir
	}
	return filter
}
