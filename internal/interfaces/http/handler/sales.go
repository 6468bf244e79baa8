package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// MaxPullWindow bounds the look-back of an on-demand sales pull
const MaxPullWindow = 31 * 24 * time.Hour

// SalesHandler triggers on-demand sales pulls
type SalesHandler struct {
	BaseHandler
	puller        SalesPuller
	defaultWindow time.Duration
}

// NewSalesHandler creates a new SalesHandler. defaultWindow applies when the
// request names no window.
func NewSalesHandler(puller SalesPuller, defaultWindow time.Duration) *SalesHandler {
	if defaultWindow <= 0 {
		defaultWindow = 24 * time.Hour
	}
	return &SalesHandler{puller: puller, defaultWindow: defaultWindow}
}

// Pull godoc
// @ID           pullStoreSales
//
//	@Summary		Pull a store's recent orders
//	@Description	Ingests completed orders placed within the window; lines already ingested are skipped
//	@Tags			sales
//	@Produce		json
//	@Param			id		path		string	true	"Store ID"	format(uuid)
//	@Param			window	query		string	false	"Look-back window as a Go duration"	default(24h)
//	@Success		200		{object}	APIResponse[syncapp.PullResult]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores/{id}/sales/pull [post]
func (h *SalesHandler) Pull(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	window := h.defaultWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > MaxPullWindow {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput,
				"window must be a positive duration no longer than "+MaxPullWindow.String())
			return
		}
		window = d
	}

	result, err := h.puller.PullStore(c.Request.Context(), id, window)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Sales pulled on demand",
		zap.String("store_id", id.String()),
		zap.Duration("window", window),
		zap.Int("upserted", result.Upserted),
	)
	h.Success(c, result)
}
