package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for upload names that cannot be stored as a
// single file inside the upload directory.
var ErrInvalidName = errors.New("invalid upload name")

// Uploads stages uploaded files in one directory until a worker has
// processed them. File names are document names.
type Uploads struct {
	dir string
}

// NewUploads creates dir if needed.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &Uploads{dir: dir}, nil
}

// Dir returns the staging directory.
func (u *Uploads) Dir() string {
	return u.dir
}

func (u *Uploads) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(u.dir, name), nil
}

// Save writes r to the staging file for name and returns the number of
// bytes written. The file is replaced atomically, so a worker never reads
// a partial upload.
func (u *Uploads) Save(name string, r io.Reader) (int64, error) {
	dst, err := u.path(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write upload %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close upload %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("failed to move upload %s into place: %w", name, err)
	}
	return n, nil
}

// Remove deletes the staged file for name. A missing file is not an error.
func (u *Uploads) Remove(name string) error {
	p, err := u.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether a staged file for name is present.
func (u *Uploads) Exists(name string) bool {
	p, err := u.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}
