package server

import (
	"docgraph/internal/server/middleware"
	"docgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document routes
	apiRoutes.GET("/documents", routes.GetDocumentsHandler)
	apiRoutes.GET("/documents/:name", routes.GetDocumentHandler)
	apiRoutes.POST("/documents", routes.CreateDocumentsHandler)
	apiRoutes.DELETE("/documents", routes.DeleteDocumentsHandler)

	// Processing routes
	apiRoutes.POST("/documents/extract", routes.ExtractDocumentsHandler)
	apiRoutes.POST("/documents/cancel", routes.CancelDocumentsHandler)
	apiRoutes.POST("/documents/retry", routes.RetryDocumentHandler)
}
