package routes

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"docgraph/internal/queue"
	"docgraph/internal/server/middleware"
	"docgraph/internal/storage"
	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

type documentResult struct {
	FileName      string                `json:"fileName"`
	Status        common.DocumentStatus `json:"status,omitempty"`
	Queued        bool                  `json:"queued"`
	CorrelationID string                `json:"correlation_id,omitempty"`
	Error         string                `json:"error,omitempty"`
}

type documentsResponse struct {
	Message   string           `json:"message"`
	Documents []documentResult `json:"documents,omitempty"`
}

// CreateDocumentsHandler registers documents. A multipart/form-data body
// uploads the files in the "files" field to the staging directory. A JSON
// body registers an S3 object or a web page. Existing documents are reset
// to New unless they are processing. With extract set, an extraction is
// queued for every registered document.
func CreateDocumentsHandler(c echo.Context) error {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return uploadDocuments(c)
	}
	return registerSource(c)
}

func uploadDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "No files uploaded"})
	}
	extract := c.FormValue("extract") == "true"

	app := c.(*middleware.AppContext).App
	results := make([]documentResult, 0, len(uploads))
	for _, file := range uploads {
		results = append(results, uploadDocument(c, app, file, extract))
	}

	return c.JSON(statusFor(results), documentsResponse{
		Message:   "Documents registered",
		Documents: results,
	})
}

func uploadDocument(c echo.Context, app *middleware.App, file *multipart.FileHeader, extract bool) documentResult {
	ctx := c.Request().Context()
	name := filepath.Base(file.Filename)
	res := documentResult{FileName: name}

	// the staged file of a running document must not be replaced
	if existing, err := app.Store.GetDocument(ctx, name); err == nil && existing.Status == common.StatusProcessing {
		res.Status = existing.Status
		res.Error = store.ErrAlreadyProcessing.Error()
		return res
	}

	src, err := file.Open()
	if err != nil {
		res.Error = "failed to read upload"
		return res
	}
	defer src.Close()

	size, err := app.Uploads.Save(name, src)
	if err != nil {
		logger.Error("[Server] Failed to stage upload", "file", name, "err", err)
		res.Error = "failed to stage upload"
		if errors.Is(err, storage.ErrInvalidName) {
			res.Error = err.Error()
		}
		return res
	}

	return createDocument(c, app, common.Document{
		FileName:   name,
		FileSize:   size,
		FileType:   fileType(name),
		FileSource: common.SourceLocal,
	}, extract)
}

func registerSource(c echo.Context) error {
	type registerSourceBody struct {
		FileName string `json:"file_name"`
		Source   string `json:"source" validate:"required,oneof=s3 web"`
		URL      string `json:"url" validate:"required"`
		Extract  bool   `json:"extract"`
	}

	data := new(registerSourceBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	doc := common.Document{
		FileName:   data.FileName,
		FileSource: common.SourceKind(data.Source),
		URL:        data.URL,
	}

	switch doc.FileSource {
	case common.SourceWeb:
		u, err := url.Parse(data.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return c.JSON(http.StatusBadRequest, documentsResponse{Message: "Invalid url"})
		}
		if doc.FileName == "" {
			doc.FileName = u.Host + u.EscapedPath()
		}
		doc.FileType = "html"
	case common.SourceS3:
		if app.S3 == nil {
			return c.JSON(http.StatusBadRequest, documentsResponse{Message: "S3 sources are not configured"})
		}
		size, err := storage.ObjectSize(ctx, app.S3, app.S3Bucket, data.URL)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return c.JSON(http.StatusNotFound, documentsResponse{Message: "Object not found"})
		}
		if err != nil {
			logger.Error("[Server] Failed to inspect S3 object", "key", data.URL, "err", err)
			return c.JSON(http.StatusBadGateway, documentsResponse{Message: "Failed to reach S3"})
		}
		if doc.FileName == "" {
			doc.FileName = path.Base(data.URL)
		}
		doc.FileSize = size
		doc.FileType = fileType(doc.FileName)
	}

	res := createDocument(c, app, doc, data.Extract)
	return c.JSON(statusFor([]documentResult{res}), documentsResponse{
		Message:   "Document registered",
		Documents: []documentResult{res},
	})
}

func createDocument(c echo.Context, app *middleware.App, doc common.Document, extract bool) documentResult {
	ctx := c.Request().Context()
	res := documentResult{FileName: doc.FileName}

	created, err := app.Store.CreateDocument(ctx, doc)
	if err != nil {
		res.Status = created.Status
		res.Error = err.Error()
		if !errors.Is(err, store.ErrAlreadyProcessing) {
			logger.Error("[Server] Failed to create document", "document", doc.FileName, "err", err)
			res.Error = "failed to create document"
		}
		return res
	}
	res.Status = created.Status

	if extract {
		id, err := queue.PublishExtract(ctx, app.Publisher, created.FileName, requestID(c), "Document uploaded")
		if err != nil {
			logger.Error("[Server] Failed to queue extraction", "document", created.FileName, "err", err)
			res.Error = "failed to queue extraction"
			return res
		}
		res.Queued = true
		res.CorrelationID = id
	}
	return res
}

func fileType(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// statusFor is 201 when every document was registered and 207 when only
// some were. When none was it is 409 if all of them are processing, else
// 422.
func statusFor(results []documentResult) int {
	failed, conflicts := 0, 0
	for _, r := range results {
		if r.Error == "" {
			continue
		}
		failed++
		if r.Status == common.StatusProcessing {
			conflicts++
		}
	}
	switch {
	case failed == 0:
		return http.StatusCreated
	case failed < len(results):
		return http.StatusMultiStatus
	case conflicts == len(results):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
