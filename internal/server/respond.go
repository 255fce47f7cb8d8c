package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errx "github.com/legal-assist-poc/server/internal/core/error"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// errorBody is the JSON error object returned by every REST endpoint.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func respondError(c *gin.Context, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).
			Str("request_id", requestIDFrom(c)).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		Code:    errorCode(status),
		Message: errx.MessageOf(err),
	}})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}
