package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterOptions configures NewRouter
type RouterOptions struct {
	CORSOrigins []string
	JWTSecret   string
	Log         zerolog.Logger
}

// NewRouter wires middleware and routes
func NewRouter(h *VideoHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(opts.Log))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.CORSOrigins) == 0 || (len(opts.CORSOrigins) == 1 && opts.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	protected := router.Group("")
	if opts.JWTSecret != "" {
		protected.Use(AuthJWT(opts.JWTSecret))
	}

	protected.POST("/upload", h.Upload)
	protected.POST("/delete", h.DeleteFiles)

	api := protected.Group("/api")
	{
		api.POST("/upload", h.Upload)
		api.GET("/assets/:id", h.GetAsset)
		api.GET("/assets/:id/download", h.Download)
		api.DELETE("/assets/:id", h.Delete)
		api.POST("/delete", h.DeleteFiles)
	}

	return router
}
