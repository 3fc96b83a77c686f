package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-tables/api/handlers"
	"github.com/feichai0017/document-tables/api/middleware"
	"github.com/feichai0017/document-tables/pkg/logger"
)

// Options carries the cross-cutting pieces the router needs besides handlers.
type Options struct {
	Auth           *middleware.Authenticator
	AllowedOrigins []string
	Logger         logger.Logger
}

// SetupRoutes registers the /api/v1 surface on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(opts.Logger),
		middleware.Recovery(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	secured := v1.Group("")
	secured.Use(opts.Auth.Middleware())

	docs := secured.Group("/documents")
	{
		docs.POST("/upload", h.Document.Upload)
		docs.GET("", h.Document.List)
		docs.GET("/stats", h.Document.Stats)
		docs.GET("/:id", h.Document.Get)
		docs.DELETE("/:id", h.Document.Delete)
		docs.POST("/:id/process", h.Document.Process)
		docs.POST("/:id/reprocess", h.Document.Reprocess)
		docs.GET("/:id/status", h.Document.Status)
	}

	tables := secured.Group("/tables")
	{
		tables.GET("/search", h.Table.Search)
		tables.GET("/export", h.Table.ExportAll)
		tables.GET("/:documentId", h.Table.ByDocument)
		tables.GET("/:documentId/export", h.Table.Export)
	}

	depts := secured.Group("/departments")
	{
		depts.GET("", h.Department.List)
		depts.POST("", h.Department.Create)
		depts.GET("/stats/summary", h.Department.Summary)
		depts.GET("/:id", h.Department.Get)
		depts.PUT("/:id", h.Department.Update)
		depts.DELETE("/:id", h.Department.Delete)
		depts.GET("/:id/stats", h.Department.Stats)
	}

	secured.GET("/users/me", h.User.Me)
}
