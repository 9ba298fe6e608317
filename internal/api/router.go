package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter builds the Gin engine for the Control API
func NewRouter(handler *OptimizeHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	handler.RegisterRoutes(r.Group("/"))

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			log.Warn("request error", "path", c.Request.URL.Path, "errors", c.Errors.String())
		}
	}
}
