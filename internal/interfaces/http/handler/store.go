package handler

import (
	"github.com/gin-gonic/gin"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// StoreHandler handles destination store endpoints
type StoreHandler struct {
	BaseHandler
	stores StoreService
}

// NewStoreHandler creates a new StoreHandler
func NewStoreHandler(stores StoreService) *StoreHandler {
	return &StoreHandler{stores: stores}
}

// CreateStoreRequest registers a destination store
//
//	@Description	Request body for registering a destination store
type CreateStoreRequest struct {
	Name           string `json:"name" binding:"required,min=1,max=200" example:"EU Storefront"`
	BaseURL        string `json:"base_url" binding:"required,storefront_url" example:"https://eu.shop.example"`
	ConsumerKey    string `json:"consumer_key" binding:"required" example:"ck_0123"`
	ConsumerSecret string `json:"consumer_secret" binding:"required" example:"cs_0123"`
}

// ListStoresRequest pages and filters the store list
type ListStoresRequest struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=active inactive"`
}

// ListSyncRecordsRequest pages and filters a store's ledger
type ListSyncRecordsRequest struct {
	dto.PageRequest
	Status string `form:"status" binding:"omitempty,oneof=pending synced error"`
}

// Create godoc
// @ID           createStore
//
//	@Summary		Register a destination store
//	@Description	Stores the credentials of a storefront and makes it available as a sync target
//	@Tags			stores
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateStoreRequest	true	"Store registration"
//	@Success		201		{object}	APIResponse[syncapp.StoreResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores [post]
func (h *StoreHandler) Create(c *gin.Context) {
	var req CreateStoreRequest
	if !h.BindJSON(c, &req) {
		return
	}

	store, err := h.stores.Create(c.Request.Context(), syncapp.CreateStoreRequest{
		Name:           req.Name,
		BaseURL:        req.BaseURL,
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Store registered", zap.String("store_id", store.ID.String()))
	h.Created(c, store)
}

// GetByID godoc
// @ID           getStore
//
//	@Summary		Get a destination store
//	@Tags			stores
//	@Produce		json
//	@Param			id	path		string	true	"Store ID"	format(uuid)
//	@Success		200	{object}	APIResponse[syncapp.StoreResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores/{id} [get]
func (h *StoreHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	store, err := h.stores.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, store)
}

// List godoc
// @ID           listStores
//
//	@Summary		List destination stores
//	@Tags			stores
//	@Produce		json
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			page_size	query		int		false	"Page size"		default(20)	maximum(100)
//	@Param			search		query		string	false	"Name search"
//	@Param			status		query		string	false	"Store status"	Enums(active, inactive)
//	@Success		200			{object}	APIResponse[[]syncapp.StoreResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores [get]
func (h *StoreHandler) List(c *gin.Context) {
	var req ListStoresRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, pageSize := req.Normalized()

	stores, total, err := h.stores.List(c.Request.Context(), syncapp.ListStoresQuery{
		Page:     page,
		PageSize: pageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Search:   req.Search,
		Status:   req.Status,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, stores, total, page, pageSize)
}

// Delete godoc
// @ID           deleteStore
//
//	@Summary		Delete a destination store
//	@Description	Removes the store together with its sync ledger and sales records
//	@Tags			stores
//	@Param			id	path	string	true	"Store ID"	format(uuid)
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores/{id} [delete]
func (h *StoreHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.stores.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Store deleted", zap.String("store_id", id.String()))
	h.NoContent(c)
}

// ListSyncRecords godoc
// @ID           listStoreSyncRecords
//
//	@Summary		List a store's sync ledger
//	@Tags			stores
//	@Produce		json
//	@Param			id			path		string	true	"Store ID"	format(uuid)
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			page_size	query		int		false	"Page size"		default(20)	maximum(100)
//	@Param			status		query		string	false	"Record status"	Enums(pending, synced, error)
//	@Success		200			{object}	APIResponse[[]syncapp.SyncRecordResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores/{id}/sync-records [get]
func (h *StoreHandler) ListSyncRecords(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req ListSyncRecordsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page, pageSize := req.Normalized()

	records, total, err := h.stores.ListSyncRecords(c.Request.Context(), id, syncapp.ListSyncRecordsQuery{
		Page:     page,
		PageSize: pageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Status:   req.Status,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, records, total, page, pageSize)
}
