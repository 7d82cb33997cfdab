package routes

import (
	"errors"
	"net/http"

	"docgraph/internal/queue"
	"docgraph/internal/server/middleware"
	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// ExtractDocumentsHandler queues an extraction for every named document
// that is New. Other documents are reported with their status and skipped.
func ExtractDocumentsHandler(c echo.Context) error {
	type extractBody struct {
		FileNames []string `json:"file_names" validate:"required,min=1,dive,required"`
	}

	data := new(extractBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	results := make([]documentResult, 0, len(data.FileNames))
	for _, name := range store.DedupeStrings(data.FileNames) {
		res := documentResult{FileName: name}
		doc, err := app.Store.GetDocument(ctx, name)
		switch {
		case errors.Is(err, store.ErrDocumentNotFound):
			res.Error = err.Error()
		case err != nil:
			logger.Error("[Server] Failed to load document", "document", name, "err", err)
			res.Error = "failed to load document"
		case doc.Status != common.StatusNew:
			res.Status = doc.Status
			res.Error = "document is not new; retry or re-upload it first"
		default:
			res.Status = doc.Status
			id, err := queue.PublishExtract(ctx, app.Publisher, name, requestID(c), "Extraction requested")
			if err != nil {
				logger.Error("[Server] Failed to queue extraction", "document", name, "err", err)
				res.Error = "failed to queue extraction"
				break
			}
			res.Queued = true
			res.CorrelationID = id
		}
		results = append(results, res)
	}

	return c.JSON(http.StatusAccepted, documentsResponse{
		Message:   "Extraction requested",
		Documents: results,
	})
}
