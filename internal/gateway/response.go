package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsync/internal/cache"
	"marketsync/internal/engine"
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

// fail maps layer errors onto HTTP responses so the presentation layer can
// show a specific message per failure class.
func fail(c *gin.Context, err error) {
	if errors.Is(err, cache.ErrUnauthenticated) {
		Error(c, http.StatusUnauthorized, "not logged in", nil)
		return
	}
	var reqErr *engine.RequestError
	if errors.As(err, &reqErr) {
		status := reqErr.Status
		if reqErr.IsTransport() {
			status = http.StatusBadGateway
		}
		Error(c, status, reqErr.Message, map[string]any{"code": reqErr.Code})
		return
	}
	Error(c, http.StatusInternalServerError, err.Error(), nil)
}
