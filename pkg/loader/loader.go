package loader

import (
	"context"
	"fmt"

	"docgraph/internal/util"
	"docgraph/pkg/common"
)

// Page is one unit of loaded text. Number is 1-based for paged sources and 0
// when the source has no page structure. StartTime/EndTime are set for timed
// sources such as transcripts.
type Page struct {
	Number    int
	Text      string
	StartTime *float64
	EndTime   *float64
}

// Source describes where a document is loaded from. Path is a filesystem
// path for local sources, an object key for S3 and a URL for web sources.
type Source struct {
	Name string
	Kind common.SourceKind
	Path string
}

// SourceFromDocument builds the Source a Document was registered with.
func SourceFromDocument(doc common.Document) Source {
	path := doc.URL
	if path == "" {
		path = doc.FileName
	}
	return Source{
		Name: doc.FileName,
		Kind: doc.FileSource,
		Path: path,
	}
}

// GraphFileLoader fetches the raw content of a source.
// Implementations may load files from disk, cloud storage, or the web.
type GraphFileLoader interface {
	GetFileText(ctx context.Context, src Source) ([]byte, error)
}

// Cleaner is implemented by loaders that stage their input locally and can
// remove it once the document no longer needs it.
type Cleaner interface {
	Cleanup(ctx context.Context, src Source) error
}

// Loader turns a source into ordered pages.
type Loader interface {
	Load(ctx context.Context, src Source) ([]Page, error)
}

// PageLoader adapts a GraphFileLoader into a Loader by splitting the fetched
// text into pages.
type PageLoader struct {
	files GraphFileLoader
}

// NewPageLoader wraps files so its content is returned as pages.
func NewPageLoader(files GraphFileLoader) *PageLoader {
	return &PageLoader{files: files}
}

// Load fetches src and splits it into pages.
func (l *PageLoader) Load(ctx context.Context, src Source) ([]Page, error) {
	content, err := l.files.GetFileText(ctx, src)
	if err != nil {
		return nil, err
	}
	return SplitPages(util.SanitizeText(string(content))), nil
}

// Cleanup forwards to the wrapped loader when it stages files.
func (l *PageLoader) Cleanup(ctx context.Context, src Source) error {
	if c, ok := l.files.(Cleaner); ok {
		return c.Cleanup(ctx, src)
	}
	return nil
}

// MultiLoader dispatches to a Loader per source kind.
type MultiLoader struct {
	loaders map[common.SourceKind]Loader
}

// NewMultiLoader creates a loader that picks the implementation registered
// for a source's kind.
//
// Example:
//
//	l := loader.NewMultiLoader(map[common.SourceKind]loader.Loader{
//		common.SourceLocal: loader.NewPageLoader(io.NewIOGraphFileLoader(dir)),
//		common.SourceWeb:   loader.NewPageLoader(web.NewWebGraphLoader()),
//	})
func NewMultiLoader(loaders map[common.SourceKind]Loader) *MultiLoader {
	return &MultiLoader{loaders: loaders}
}

// Load implements Loader.
func (m *MultiLoader) Load(ctx context.Context, src Source) ([]Page, error) {
	l, ok := m.loaders[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no loader registered for source %q", src.Kind)
	}
	return l.Load(ctx, src)
}

// Cleanup implements Cleaner for the loader registered for src.Kind.
func (m *MultiLoader) Cleanup(ctx context.Context, src Source) error {
	l, ok := m.loaders[src.Kind]
	if !ok {
		return nil
	}
	if c, ok := l.(Cleaner); ok {
		return c.Cleanup(ctx, src)
	}
	return nil
}
