package handler

import (
	"github.com/gin-gonic/gin"
	syncapp "github.com/storesync/backend/internal/application/integration"
)

// StatsHandler handles the cached summary endpoints
type StatsHandler struct {
	BaseHandler
	stats StatsService
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(stats StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// StoreStats godoc
// @ID           getStoreStats
//
//	@Summary		Get a store's sync and sales summary
//	@Tags			stats
//	@Produce		json
//	@Param			id	path		string	true	"Store ID"	format(uuid)
//	@Success		200	{object}	APIResponse[syncapp.StoreStats]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores/{id}/stats [get]
func (h *StatsHandler) StoreStats(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.stats.StoreStats(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// TopProducts godoc
// @ID           getStoreTopProducts
//
//	@Summary		Get a store's best sellers
//	@Tags			stats
//	@Produce		json
//	@Param			id	path		string	true	"Store ID"	format(uuid)
//	@Param			n	query		int		false	"Number of products"	default(10)	maximum(100)
//	@Success		200	{object}	APIResponse[[]integration.TopProduct]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/stores/{id}/top-products [get]
func (h *StatsHandler) TopProducts(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	n, ok := h.queryInt(c, "n", syncapp.DefaultTopProducts)
	if !ok {
		return
	}

	top, err := h.stats.TopProducts(c.Request.Context(), id, n)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, top)
}

// Overview godoc
// @ID           getStatsOverview
//
//	@Summary		Get the cross-store summary
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	APIResponse[syncapp.GlobalOverview]
//	@Security		BearerAuth
//	@Router			/stats/overview [get]
func (h *StatsHandler) Overview(c *gin.Context) {
	overview, err := h.stats.GlobalOverview(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, overview)
}
