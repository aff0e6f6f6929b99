package pdf

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spherical/qr-detector/internal/domain"
)

// pdfHeader must appear within the first headerWindow bytes of a PDF file.
var pdfHeader = []byte("%PDF-")

const headerWindow = 1024

var disableConfigDir sync.Once

// Validator provides input validation for PDF documents
type Validator struct {
	conf *model.Configuration
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Validator{conf: conf}
}

// ValidatePDFPath validates that a file path is valid and points to a readable file
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateDPI validates the rasterization resolution
func (v *Validator) ValidateDPI(dpi float64) error {
	if dpi < 36 || dpi > 1200 {
		return domain.ValidationError(fmt.Sprintf("dpi must be between 36 and 1200, got %v", dpi), nil)
	}
	return nil
}

// ValidateHeader checks that data looks like a PDF at all.
func (v *Validator) ValidateHeader(data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("document is empty", nil)
	}

	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, pdfHeader) {
		return domain.ValidationError("document has no PDF header", nil)
	}
	return nil
}

// Preflight parses the document structure and returns its page count.
// A parser panic on malformed input is reported as a validation error.
func (v *Validator) Preflight(data []byte) (pages int, err error) {
	if err := v.ValidateHeader(data); err != nil {
		return 0, err
	}

	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = domain.ValidationError("document structure is not readable", fmt.Errorf("parser panic: %v", r))
		}
	}()

	pages, err = api.PageCount(bytes.NewReader(data), v.conf)
	if err != nil {
		return 0, domain.ValidationError("document structure is not readable", err)
	}
	if pages == 0 {
		return 0, domain.ValidationError("PDF has no pages", nil)
	}
	return pages, nil
}
