// Package qrdetect is the entry point for scanning PDF documents for QR codes.
package qrdetect

import (
	"context"
	"io"
	"os"

	"github.com/spherical/qr-detector/internal/config"
	"github.com/spherical/qr-detector/internal/detect"
	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/fetch"
	"github.com/spherical/qr-detector/internal/observability"
	"github.com/spherical/qr-detector/internal/pdf"
	"github.com/spherical/qr-detector/internal/scan"
	"github.com/spherical/qr-detector/internal/tempfile"
)

// Re-export result types for public API
type (
	DocumentResult = domain.DocumentResult
	PageResult     = domain.PageResult
	ProgressEvent  = domain.ProgressEvent
	EventType      = domain.EventType
)

// Event type constants
const (
	EventStart        = domain.EventStart
	EventRasterized   = domain.EventRasterized
	EventPageComplete = domain.EventPageComplete
	EventComplete     = domain.EventComplete
)

type pipeline interface {
	ProcessWithEvents(ctx context.Context, data []byte, eventCh chan<- domain.ProgressEvent) (*domain.DocumentResult, error)
}

type downloader interface {
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Client is the main entry point for the QR detector library
type Client struct {
	pipeline  pipeline
	fetcher   downloader
	validator *pdf.Validator
	objects   *fetch.GCSSource
	tempDir   string
	logger    *observability.Logger
}

// NewClient creates a client from the default configuration, with .env and
// environment overrides applied.
func NewClient() (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, domain.ConfigError("failed to load configuration", err)
	}
	return NewClientWithConfig(cfg, nil)
}

// NewClientWithConfig creates a client with custom configuration
func NewClientWithConfig(cfg *config.Config, logger *observability.Logger) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("invalid configuration", err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	converter := pdf.NewConverter(
		pdf.WithDPI(cfg.Processing.DPI),
		pdf.WithPreflight(cfg.Processing.Preflight),
		pdf.WithLogger(logger.WithOperation("rasterize")),
	)
	detector := detect.NewQRDetector(true)
	service := scan.NewService(converter, detector,
		scan.WithWorkers(cfg.Processing.Workers),
		scan.WithLogger(logger.WithOperation("scan")),
	)

	objects := fetch.NewGCSSource()
	fetcher := fetch.NewClient(fetch.Config{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		Retry: fetch.RetryConfig{
			MaxRetries:     cfg.Fetch.MaxRetries,
			InitialBackoff: cfg.Fetch.InitialBackoff,
			MaxBackoff:     cfg.Fetch.MaxBackoff,
		},
	}, logger, fetch.WithObjectOpener(objects))

	return &Client{
		pipeline:  service,
		fetcher:   fetcher,
		validator: pdf.NewValidator(),
		objects:   objects,
		tempDir:   cfg.Processing.TempDir,
		logger:    logger,
	}, nil
}

// ProcessFile scans the PDF at path.
func (c *Client) ProcessFile(ctx context.Context, path string) (*DocumentResult, error) {
	return c.ProcessFileWithEvents(ctx, path, nil)
}

// ProcessFileWithEvents is ProcessFile with progress notifications sent to eventCh.
func (c *Client) ProcessFileWithEvents(ctx context.Context, path string, eventCh chan<- ProgressEvent) (*DocumentResult, error) {
	if err := c.validator.ValidatePDFPath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError("failed to read document", err)
	}

	c.logger.WithContext(ctx).WithDocument(path).Debug().Int("bytes", len(data)).Msg("Document loaded")
	return c.pipeline.ProcessWithEvents(ctx, data, eventCh)
}

// ProcessBytes scans an in-memory PDF.
func (c *Client) ProcessBytes(ctx context.Context, data []byte) (*DocumentResult, error) {
	return c.pipeline.ProcessWithEvents(ctx, data, nil)
}

// ProcessUpload copies r into a temporary file and scans it. The temporary
// file is removed before ProcessUpload returns.
func (c *Client) ProcessUpload(ctx context.Context, r io.Reader) (*DocumentResult, error) {
	var result *DocumentResult
	err := tempfile.With(c.tempDir, func(path string) error {
		if err := writeFile(path, func(w io.Writer) error {
			if _, err := io.Copy(w, r); err != nil {
				return domain.IOError("failed to store upload", err)
			}
			return nil
		}); err != nil {
			return err
		}

		var err error
		result, err = c.ProcessFile(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessURL downloads the document at rawURL into a temporary file and scans
// it. Retrieval failures are returned as fetch errors; the temporary file is
// removed before ProcessURL returns.
func (c *Client) ProcessURL(ctx context.Context, rawURL string) (*DocumentResult, error) {
	return c.ProcessURLWithEvents(ctx, rawURL, nil)
}

// ProcessURLWithEvents is ProcessURL with progress notifications sent to eventCh.
func (c *Client) ProcessURLWithEvents(ctx context.Context, rawURL string, eventCh chan<- ProgressEvent) (*DocumentResult, error) {
	var result *DocumentResult
	err := tempfile.With(c.tempDir, func(path string) error {
		if err := writeFile(path, func(w io.Writer) error {
			_, err := c.fetcher.Download(ctx, rawURL, w)
			if err == nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if domain.IsType(err, domain.ErrorTypeFetch) {
				return err
			}
			return domain.FetchError("document could not be retrieved", err)
		}); err != nil {
			return err
		}

		c.logger.WithContext(ctx).Info().Str("url", rawURL).Msg("Document retrieved")

		var err error
		result, err = c.ProcessFileWithEvents(ctx, path, eventCh)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases the object store client, if one was created.
func (c *Client) Close() error {
	if c.objects != nil {
		return c.objects.Close()
	}
	return nil
}

func writeFile(path string, fill func(w io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return domain.IOError("failed to open temp file", err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return domain.IOError("failed to write temp file", err)
	}
	return nil
}
