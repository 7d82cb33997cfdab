package routes

import (
	"net/http"

	"docgraph/internal/server/middleware"
	"docgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CancelDocumentsHandler flags documents as cancelled. Running documents
// stop at the next batch boundary; documents that have not started are
// cancelled immediately.
func CancelDocumentsHandler(c echo.Context) error {
	type cancelBody struct {
		FileNames []string `json:"file_names" validate:"required,min=1,dive,required"`
	}

	type cancelResponse struct {
		Message   string   `json:"message"`
		Cancelled []string `json:"cancelled"`
	}

	data := new(cancelBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, cancelResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, cancelResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	names, err := app.Store.CancelDocuments(c.Request().Context(), data.FileNames)
	if err != nil {
		logger.Error("[Server] Failed to cancel documents", "err", err)
		return c.JSON(http.StatusInternalServerError, cancelResponse{Message: "Internal server error"})
	}
	if names == nil {
		names = []string{}
	}

	return c.JSON(http.StatusOK, cancelResponse{
		Message:   "Cancellation requested",
		Cancelled: names,
	})
}
