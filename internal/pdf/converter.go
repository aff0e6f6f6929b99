package pdf

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/observability"
)

// DefaultDPI is the default rasterization resolution.
const DefaultDPI = 200

var _ domain.Rasterizer = (*Converter)(nil)

// Converter implements PDF to image conversion using go-fitz
type Converter struct {
	dpi       float64
	preflight bool
	validator *Validator
	logger    *observability.Logger
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithDPI sets the rasterization resolution.
func WithDPI(dpi float64) ConverterOption {
	return func(c *Converter) { c.dpi = dpi }
}

// WithPreflight toggles the pdfcpu structural check that runs before MuPDF
// opens the document. Its outcome is logged and never rejects a document.
func WithPreflight(enabled bool) ConverterOption {
	return func(c *Converter) { c.preflight = enabled }
}

// WithLogger sets the converter logger.
func WithLogger(logger *observability.Logger) ConverterOption {
	return func(c *Converter) { c.logger = logger }
}

// NewConverter creates a new PDF converter instance
func NewConverter(opts ...ConverterOption) *Converter {
	c := &Converter{
		dpi:       DefaultDPI,
		preflight: true,
		validator: NewValidator(),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rasterize converts an in-memory PDF into one RGBA image per page, in page order.
func (c *Converter) Rasterize(ctx context.Context, data []byte) ([]image.Image, error) {
	if err := c.validator.ValidateDPI(c.dpi); err != nil {
		return nil, err
	}

	if err := c.validator.ValidateHeader(data); err != nil {
		return nil, err
	}

	// MuPDF repairs damaged cross-reference tables that pdfcpu rejects, so a
	// failed preflight is only reported.
	if c.preflight {
		pages, err := c.validator.Preflight(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Preflight failed, continuing with renderer")
		} else {
			c.logger.Debug().Int("pages", pages).Msg("Preflight passed")
		}
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	images := make([]image.Image, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, c.dpi)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to convert page %d", pageNum+1), err)
		}

		images = append(images, img)
	}

	c.logger.Debug().Int("pages", len(images)).Msg("Rasterized document")

	return images, nil
}
