package routes

import (
	"net/http"

	"docgraph/internal/queue"
	"docgraph/internal/server/middleware"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// DeleteDocumentsHandler queues the deletion of documents. Running
// documents are cancelled first; the worker deletes them once they stop.
func DeleteDocumentsHandler(c echo.Context) error {
	type deleteBody struct {
		FileNames      []string `json:"file_names" validate:"required,min=1,dive,required"`
		DeleteEntities bool     `json:"delete_entities"`
	}

	type deleteResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(deleteBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, deleteResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, deleteResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	names := store.DedupeStrings(data.FileNames)

	if _, err := app.Store.CancelDocuments(ctx, names); err != nil {
		logger.Error("[Server] Failed to cancel documents before delete", "err", err)
		return c.JSON(http.StatusInternalServerError, deleteResponse{Message: "Internal server error"})
	}

	id, err := queue.PublishDelete(ctx, app.Publisher, names, data.DeleteEntities, requestID(c))
	if err != nil {
		logger.Error("[Server] Failed to queue deletion", "err", err)
		return c.JSON(http.StatusInternalServerError, deleteResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, deleteResponse{
		Message:       "Deletion queued",
		CorrelationID: id,
	})
}
