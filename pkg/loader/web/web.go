package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docgraph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

const (
	userAgent      = "docgraph-loader/1.0"
	maxBodySize    = 32 << 20
	defaultTimeout = time.Minute
)

// ErrUnsupportedContent is returned for responses that are not text.
var ErrUnsupportedContent = errors.New("unsupported content type")

// WebGraphLoader loads the readable text of web pages. HTML is reduced to
// its main article with readability; other text responses are returned
// as they are. Concurrent loads of the same URL share one request.
type WebGraphLoader struct {
	client *http.Client
	group  singleflight.Group
}

// NewWebGraphLoader creates a web loader with a one minute request timeout.
func NewWebGraphLoader() *WebGraphLoader {
	return NewWebGraphLoaderWithClient(&http.Client{Timeout: defaultTimeout})
}

// NewWebGraphLoaderWithClient creates a web loader with a custom HTTP client.
func NewWebGraphLoaderWithClient(client *http.Client) *WebGraphLoader {
	return &WebGraphLoader{client: client}
}

// GetFileText fetches src.Path and returns its text.
func (l *WebGraphLoader) GetFileText(ctx context.Context, src loader.Source) ([]byte, error) {
	result, err, _ := l.group.Do(loader.CacheKey(src), func() (any, error) {
		return l.fetch(ctx, src.Path)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (l *WebGraphLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodySize)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		article, err := readability.FromReader(body, u)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return nil, fmt.Errorf("failed to render article text: %w", err)
		}
		return []byte(builder.String()), nil
	case mediaType == "" || strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json" || mediaType == "application/xml":
		text, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return text, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}
}
