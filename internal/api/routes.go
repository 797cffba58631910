// Package api wires the HTTP router.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/akulikov/statement-import/internal/api/handlers"
	"github.com/akulikov/statement-import/internal/api/middleware"
)

// NewRouter builds the gin engine with the shared middleware chain and the
// import routes.
func NewRouter(h *handlers.ImportHandler, log zerolog.Logger) *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-User-ID"}

	r.Use(
		middleware.Recovery(log),
		middleware.RequestLogger(log),
		cors.New(corsConfig),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api", middleware.Auth())

	imports := apiGroup.Group("/imports")
	imports.POST("", h.Upload)
	imports.GET("/:id", h.Get)
	imports.POST("/:id/extract", h.Extract)
	imports.POST("/:id/categorize", h.Categorize)
	imports.GET("/:id/candidates", h.Candidates)
	imports.POST("/:id/commit", h.Commit)
	imports.DELETE("/:id", h.Cancel)

	apiGroup.GET("/categories", h.ListCategories)

	return r
}
