package middleware

import (
	"docgraph/internal/queue"
	"docgraph/internal/storage"
	"docgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// App holds the dependencies shared by all handlers.
type App struct {
	Store     store.GraphStore
	Publisher queue.Publisher
	Uploads   *storage.Uploads
	S3        storage.ObjectHeader
	S3Bucket  string
	APIKey    string
}

// AppContext is the echo.Context passed to handlers.
type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware wraps every request context in an AppContext.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
