// Package tempfile manages the short-lived on-disk copy of a document while it
// is being processed.
package tempfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spherical/qr-detector/internal/domain"
)

// DefaultExt is appended to every temporary file name.
const DefaultExt = ".pdf"

// Handler owns one uniquely named file under a base directory. The file name
// is reserved on Acquire and removed on Release.
type Handler struct {
	dir  string
	root string
	ext  string
	path string
}

// New creates a handler with a random UUID file root.
func New(dir string) *Handler {
	return NewWithRoot(dir, uuid.NewString())
}

// NewWithRoot creates a handler with a caller-chosen file root.
func NewWithRoot(dir, root string) *Handler {
	return &Handler{dir: dir, root: root, ext: DefaultExt}
}

// Path is the reserved file path, empty before Acquire.
func (h *Handler) Path() string {
	return h.path
}

// Acquire creates the base directory if needed and reserves the file path by
// creating it exclusively. It fails if another handler holds the same path.
func (h *Handler) Acquire() (string, error) {
	if h.path != "" {
		return h.path, nil
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to create temp directory %s", h.dir), err)
	}

	path := filepath.Join(h.dir, h.root+h.ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to reserve temp file %s", path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", domain.IOError(fmt.Sprintf("failed to reserve temp file %s", path), err)
	}

	h.path = path
	return path, nil
}

// Release removes the file. It is safe to call more than once and tolerates
// the file having been removed already.
func (h *Handler) Release() error {
	if h.path == "" {
		return nil
	}
	err := os.Remove(h.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.IOError(fmt.Sprintf("failed to remove temp file %s", h.path), err)
	}
	h.path = ""
	return nil
}

// With runs fn with a fresh temporary path under dir and removes the file
// afterwards, whether fn returns an error, succeeds, or panics.
func With(dir string, fn func(path string) error) (err error) {
	h := New(dir)
	path, err := h.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		if relErr := h.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()

	return fn(path)
}
