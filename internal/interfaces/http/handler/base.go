// Package handler implements the operator HTTP API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/interfaces/http/dto"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(logger.GinRequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDKey)
}

// parseUUIDParam reads a uuid path parameter, writing a 400 when it is malformed
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an integer query parameter, returning def when absent
func (h *BaseHandler) queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": must be an integer")
		return 0, false
	}
	return v, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	code = dto.NormalizeErrorCode(code)
	h.Error(c, dto.HTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindJSON binds the request body, writing a validation or JSON error when it fails
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		middleware.HandleValidationError(c, err)
		return false
	case middleware.IsBodyTooLarge(err):
		middleware.AbortBodyTooLarge(c)
		return false
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
	return false
}

// BindQuery binds query parameters, writing a validation or bad request error when it fails
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	err := c.ShouldBindQuery(obj)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.HandleValidationError(c, err)
		return false
	}
	h.BadRequest(c, "Invalid query parameters")
	return false
}

// HandleError maps application and domain errors onto HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var credErr *integration.CredentialError
	var domainErr *shared.DomainError

	switch {
	case errors.As(err, &credErr):
		h.ErrorWithCode(c, dto.ErrCodeCredentialRejected, "Store "+credErr.StoreID.String()+" rejected its credentials")
	case errors.Is(err, integration.ErrJobNotFound),
		errors.Is(err, integration.ErrStoreNotFound),
		errors.Is(err, integration.ErrSyncRecordNotFound):
		h.NotFound(c, err.Error())
	case errors.Is(err, integration.ErrNothingToRetry):
		h.ErrorWithCode(c, dto.ErrCodeNothingToRetry, "Job has no failed items to retry")
	case errors.Is(err, integration.ErrInvalidTransition):
		h.ErrorWithCode(c, dto.ErrCodeInvalidState, err.Error())
	case errors.Is(err, integration.ErrJobLeased), errors.Is(err, integration.ErrStaleFencingToken):
		h.ErrorWithCode(c, dto.ErrCodeConcurrencyConflict, "Job is being processed, try again")
	case errors.Is(err, integration.ErrStoreInactive):
		h.ErrorWithCode(c, dto.ErrCodeStoreInactive, err.Error())
	case errors.Is(err, integration.ErrInvalidJobInput):
		h.ErrorWithCode(c, dto.ErrCodeInvalidInput, err.Error())
	case errors.As(err, &domainErr):
		h.ErrorWithCode(c, domainErr.Code, domainErr.Message)
	case errors.Is(err, integration.ErrTransport):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnavailable, "Destination store is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		h.ErrorWithCode(c, dto.ErrCodeTimeout, "Request timed out")
	default:
		logger.GetGinLogger(c).Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		h.InternalError(c, "An unexpected error occurred")
	}
}
