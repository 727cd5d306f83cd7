// internal/handler/router.go
package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/rmbg-service/internal/middleware"
)

// NewRouter builds the API engine with request id, access log, metrics and CORS middleware
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.MaxMultipartMemory = h.opts.MaxUploadBytes
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHTTPHeader}
	config.ExposeHeaders = []string{middleware.RequestIDHTTPHeader}
	config.MaxAge = 12 * time.Hour
	r.Use(cors.New(config))

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/remove-background", h.RemoveBackground)
		api.POST("/remove-background/base64", h.RemoveBackgroundBase64)
		api.GET("/model-info", h.ModelInfo)
		api.GET("/info", h.Info)
	}

	return r
}
