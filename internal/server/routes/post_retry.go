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

// RetryDocumentHandler resets a document according to retry_condition and
// queues a new extraction.
func RetryDocumentHandler(c echo.Context) error {
	type retryBody struct {
		FileName       string `json:"file_name" validate:"required"`
		RetryCondition string `json:"retry_condition" validate:"required"`
	}

	data := new(retryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}
	cond := common.RetryCondition(data.RetryCondition)
	if !cond.Valid() {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Unknown retry condition"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	current, err := app.Store.GetDocument(ctx, data.FileName)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return c.JSON(http.StatusNotFound, documentsResponse{Message: "Document not found"})
	}
	if err != nil {
		logger.Error("[Server] Failed to load document", "document", data.FileName, "err", err)
		return c.JSON(http.StatusInternalServerError, documentsResponse{Message: "Internal server error"})
	}
	// Completed and cancelled runs remove the staged upload.
	if current.FileSource == common.SourceLocal && current.Status != common.StatusProcessing && !app.Uploads.Exists(current.FileName) {
		return c.JSON(http.StatusConflict, documentsResponse{
			Message:   "Uploaded file is no longer staged, upload it again",
			Documents: []documentResult{{FileName: current.FileName, Status: current.Status, Error: "staged upload missing"}},
		})
	}

	doc, err := app.Store.ResetForRetry(ctx, data.FileName, cond)
	switch {
	case errors.Is(err, store.ErrDocumentNotFound):
		return c.JSON(http.StatusNotFound, documentsResponse{Message: "Document not found"})
	case errors.Is(err, store.ErrAlreadyProcessing):
		return c.JSON(http.StatusConflict, documentsResponse{
			Message:   "Document is processing",
			Documents: []documentResult{{FileName: data.FileName, Status: doc.Status}},
		})
	case err != nil:
		logger.Error("[Server] Failed to reset document", "document", data.FileName, "err", err)
		return c.JSON(http.StatusInternalServerError, documentsResponse{Message: "Internal server error"})
	}

	res := documentResult{FileName: doc.FileName, Status: doc.Status}
	id, err := queue.PublishExtract(ctx, app.Publisher, doc.FileName, requestID(c), "Retry requested")
	if err != nil {
		logger.Error("[Server] Failed to queue extraction", "document", doc.FileName, "err", err)
		res.Error = "failed to queue extraction"
		return c.JSON(http.StatusInternalServerError, documentsResponse{Message: "Internal server error", Documents: []documentResult{res}})
	}
	res.Queued = true
	res.CorrelationID = id

	return c.JSON(http.StatusAccepted, documentsResponse{
		Message:   "Retry queued",
		Documents: []documentResult{res},
	})
}
