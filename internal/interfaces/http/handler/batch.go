package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BatchHandler handles batch sync job endpoints
type BatchHandler struct {
	BaseHandler
	batches BatchService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batches BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// BatchOptionsRequest holds the per-job switches
//
//	@Description	Options applied to every item of a batch job
type BatchOptionsRequest struct {
	IncludeVariations bool  `json:"include_variations" example:"true"`
	IncludeImages     bool  `json:"include_images" example:"true"`
	IncludeCategories bool  `json:"include_categories" example:"false"`
	PreservePrices    bool  `json:"preserve_prices" example:"false"`
	UpdateStock       *bool `json:"update_stock" example:"true"`
	BatchSize         int   `json:"batch_size" binding:"omitempty,min=0,max=500" example:"50"`
	Priority          int   `json:"priority" binding:"omitempty,min=0,max=10" example:"5"`
}

// StartBatchRequest requests a sync of work items to destination stores
//
//	@Description	Request body for starting a batch sync job
type StartBatchRequest struct {
	WorkItemIDs         []int64             `json:"work_item_ids" binding:"omitempty,dive,gt=0"`
	AllSyncable         bool                `json:"all_syncable" example:"false"`
	DestinationStoreIDs []string            `json:"destination_store_ids" binding:"required,min=1,dive,uuid"`
	Options             BatchOptionsRequest `json:"options"`
}

func (r StartBatchRequest) toCommand() syncapp.StartBatchCommand {
	storeIDs := make([]uuid.UUID, 0, len(r.DestinationStoreIDs))
	for _, raw := range r.DestinationStoreIDs {
		// binding already checked the format
		storeIDs = append(storeIDs, uuid.MustParse(raw))
	}
	return syncapp.StartBatchCommand{
		WorkItemIDs:         r.WorkItemIDs,
		AllSyncable:         r.AllSyncable,
		DestinationStoreIDs: storeIDs,
		Options: syncapp.BatchOptionsInput{
			IncludeVariations: r.Options.IncludeVariations,
			IncludeImages:     r.Options.IncludeImages,
			IncludeCategories: r.Options.IncludeCategories,
			PreservePrices:    r.Options.PreservePrices,
			UpdateStock:       r.Options.UpdateStock,
			BatchSize:         r.Options.BatchSize,
			Priority:          r.Options.Priority,
		},
	}
}

// Start godoc
// @ID           startBatch
//
//	@Summary		Start a batch sync job
//	@Description	Probes every destination store and enqueues the first slice of a new job
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			request	body		StartBatchRequest	true	"Batch request"
//	@Success		201		{object}	APIResponse[syncapp.StartBatchResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/sync/batches [post]
func (h *BatchHandler) Start(c *gin.Context) {
	var req StartBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	resp, err := h.batches.StartBatch(c.Request.Context(), req.toCommand())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Batch started",
		zap.String("job_id", resp.JobID.String()),
		zap.String("operator", middleware.GetOperator(c)),
	)
	h.Created(c, resp)
}

// GetStatus godoc
// @ID           getBatchStatus
//
//	@Summary		Get batch job status
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"	format(uuid)
//	@Success		200	{object}	APIResponse[syncapp.BatchStatusResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/sync/batches/{id} [get]
func (h *BatchHandler) GetStatus(c *gin.Context) {
	h.statusAction(c, h.batches.GetStatus)
}

// Pause godoc
// @ID           pauseBatch
//
//	@Summary		Pause a processing job
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"	format(uuid)
//	@Success		200	{object}	APIResponse[syncapp.BatchStatusResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/sync/batches/{id}/pause [post]
func (h *BatchHandler) Pause(c *gin.Context) {
	h.statusAction(c, h.batches.Pause)
}

// Resume godoc
// @ID           resumeBatch
//
//	@Summary		Resume a paused job
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"	format(uuid)
//	@Success		200	{object}	APIResponse[syncapp.BatchStatusResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/sync/batches/{id}/resume [post]
func (h *BatchHandler) Resume(c *gin.Context) {
	h.statusAction(c, h.batches.Resume)
}

// Stop godoc
// @ID           stopBatch
//
//	@Summary		Stop a job for good
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"	format(uuid)
//	@Success		200	{object}	APIResponse[syncapp.BatchStatusResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/sync/batches/{id}/stop [post]
func (h *BatchHandler) Stop(c *gin.Context) {
	h.statusAction(c, h.batches.Stop)
}

// Retry godoc
// @ID           retryBatch
//
//	@Summary		Retry the failed items of a finished job
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"	format(uuid)
//	@Success		201	{object}	APIResponse[syncapp.StartBatchResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/sync/batches/{id}/retry [post]
func (h *BatchHandler) Retry(c *gin.Context) {
	jobID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.batches.Retry(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Batch retried",
		zap.String("job_id", jobID.String()),
		zap.String("retry_job_id", resp.JobID.String()),
	)
	h.Created(c, resp)
}

type statusFunc func(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error)

func (h *BatchHandler) statusAction(c *gin.Context, fn statusFunc) {
	jobID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := fn(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
