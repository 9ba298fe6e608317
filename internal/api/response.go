package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tmalldedede/agentbox/internal/apperr"
	"github.com/tmalldedede/agentbox/internal/logger"
)

var log = logger.Module("api")

// Response is the envelope every endpoint responds with
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Type    string      `json:"type,omitempty"`
}

// Success writes a 200 with the given payload.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// Created writes a 201 with the given payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// Error writes a plain status/message response.
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{Code: code, Message: message})
}

// HandleError dispatches an AppError to its declared HTTP code, or falls
// back to 500 for anything else
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	if appErr, ok := err.(*apperr.AppError); ok {
		c.JSON(appErr.Code, Response{
			Code:    appErr.Code,
			Message: appErr.Message,
			Type:    string(appErr.Type),
		})
		return
	}
	log.Error("unhandled error (500)", "error", err.Error(), "path", c.Request.URL.Path, "method", c.Request.Method)
	c.JSON(http.StatusInternalServerError, Response{
		Code:    http.StatusInternalServerError,
		Message: err.Error(),
		Type:    string(apperr.TypeInternal),
	})
}
