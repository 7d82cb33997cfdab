package routes

import (
	"errors"
	"net/http"
	"net/url"

	"docgraph/internal/server/middleware"
	"docgraph/internal/server/util"
	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

type documentView struct {
	common.Document
	Progress util.DocumentProgress `json:"progress"`
}

func viewOf(doc common.Document) documentView {
	return documentView{Document: doc, Progress: util.ProgressOf(doc)}
}

// GetDocumentsHandler lists all documents with their processing state.
func GetDocumentsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	docs, err := app.Store.ListDocuments(c.Request().Context())
	if err != nil {
		logger.Error("[Server] Failed to list documents", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, viewOf(d))
	}
	return c.JSON(http.StatusOK, views)
}

// GetDocumentHandler returns one document. The name is path-escaped.
func GetDocumentHandler(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil || name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid document name"})
	}

	app := c.(*middleware.AppContext).App
	doc, err := app.Store.GetDocument(c.Request().Context(), name)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Document not found"})
	}
	if err != nil {
		logger.Error("[Server] Failed to load document", "document", name, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, viewOf(doc))
}
