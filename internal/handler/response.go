package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hypercopy/internal/models"
	"hypercopy/internal/repository"
	"hypercopy/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// statusFor maps lifecycle and store errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidIntent):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPlanTerminal),
		errors.Is(err, models.ErrIllegalTransition),
		errors.Is(err, service.ErrClaimLost),
		errors.Is(err, repository.ErrStatusConflict):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeError(c *gin.Context, err error, meta map[string]any) {
	Error(c, statusFor(err), err.Error(), meta)
}
