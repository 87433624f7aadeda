package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"omnistock/internal"
	"omnistock/internal/pipeline"
	"omnistock/internal/stock"
)

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
	Data    any      `json:"data,omitempty"`
}

type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	SKUs    []string `json:"skus,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func okJSON(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// classify maps domain errors to a status and a stable code. Wrapper errors are
// checked first since they carry the causes of their failed steps.
func classify(err error) (int, string) {
	var se *pipeline.StorageError
	var re *pipeline.StockReconciliationError
	switch {
	case errors.As(err, &re):
		return http.StatusInternalServerError, "STOCK_RECONCILIATION_FAILED"
	case errors.As(err, &se):
		return http.StatusInternalServerError, "STORAGE_ERROR"
	case errors.Is(err, internal.ErrEmptyFile):
		return http.StatusBadRequest, "EMPTY_FILE"
	case errors.Is(err, internal.ErrUnreadableFile):
		return http.StatusBadRequest, "UNREADABLE_FILE"
	case errors.Is(err, internal.ErrUnsupportedPlatform):
		return http.StatusBadRequest, "UNSUPPORTED_PLATFORM"
	case errors.Is(err, stock.ErrInvalidAdjustment):
		return http.StatusBadRequest, "INVALID_ADJUSTMENT"
	case errors.Is(err, internal.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity, "EMPTY_CATALOG"
	case errors.Is(err, internal.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"
	case errors.Is(err, internal.ErrVariantNotFound):
		return http.StatusNotFound, "VARIANT_NOT_FOUND"
	case errors.Is(err, internal.ErrIngestionInProgress):
		return http.StatusConflict, "INGESTION_IN_PROGRESS"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (s *Server) fail(c *gin.Context, err error, data any) {
	status, code := classify(err)
	body := ErrorResponse{Error: APIError{Code: code, Message: err.Error()}, Data: data}
	var re *pipeline.StockReconciliationError
	if errors.As(err, &re) {
		body.Error.SKUs = re.SKUs()
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		var se *pipeline.StorageError
		if errors.As(err, &se) {
			body.Error.Message = "storage failure during " + se.Stage
		}
	}
	c.JSON(status, body)
}
