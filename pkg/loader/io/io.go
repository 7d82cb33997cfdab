package io

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"docgraph/pkg/loader"
	"docgraph/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// IOGraphFileLoader loads staged uploads from a local directory.
type IOGraphFileLoader struct {
	baseDir string
	group   singleflight.Group
}

// NewIOGraphFileLoader creates a new filesystem-based file loader rooted at
// baseDir. Source paths are resolved inside baseDir.
func NewIOGraphFileLoader(baseDir string) *IOGraphFileLoader {
	return &IOGraphFileLoader{baseDir: baseDir}
}

// Path returns the absolute location of src inside the base directory.
func (l *IOGraphFileLoader) Path(src loader.Source) string {
	return filepath.Join(l.baseDir, filepath.Clean("/"+src.Path))
}

// GetFileText reads the file content from the filesystem. Concurrent reads
// of the same source share one read; nothing is kept afterwards, since a
// re-upload replaces the staged file under the same name.
func (l *IOGraphFileLoader) GetFileText(ctx context.Context, src loader.Source) ([]byte, error) {
	result, err, _ := l.group.Do(loader.CacheKey(src), func() (any, error) {
		return os.ReadFile(l.Path(src))
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Cleanup removes the staged file. A file that is already gone is not an
// error.
func (l *IOGraphFileLoader) Cleanup(ctx context.Context, src loader.Source) error {
	err := os.Remove(l.Path(src))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	logger.Debug("[Loader] Removed staged file", "file", src.Name)
	return nil
}
