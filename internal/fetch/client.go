// Package fetch retrieves documents from remote locations.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/observability"
)

// Config holds retrieval settings.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	Retry     RetryConfig
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   60 * time.Second,
		MaxBytes:  50 << 20,
		UserAgent: "qr-detector/1.0",
		Retry:     DefaultRetryConfig(),
	}
}

// ObjectOpener opens objects in a bucket-addressed store.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// Client downloads documents over HTTP(S) and from gs:// locations.
type Client struct {
	httpClient *http.Client
	objects    ObjectOpener
	maxBytes   int64
	userAgent  string
	retry      RetryConfig
	logger     *observability.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithObjectOpener sets the opener used for gs:// URLs.
func WithObjectOpener(o ObjectOpener) ClientOption {
	return func(c *Client) { c.objects = o }
}

// NewClient creates a new download client
func NewClient(cfg Config, logger *observability.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxBytes:   cfg.MaxBytes,
		userAgent:  cfg.UserAgent,
		retry:      cfg.Retry,
		logger:     logger.WithOperation("fetch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download copies the document at rawURL into w and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := parseSource(rawURL)
	if err != nil {
		return 0, err
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = c.openHTTP(ctx, u.String())
	case "gs":
		body, err = c.openObject(ctx, u)
	}
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(w, io.LimitReader(body, c.maxBytes+1))
	if err != nil {
		return n, domain.FetchError("failed to read document body", err)
	}
	if n > c.maxBytes {
		return n, domain.ValidationError(fmt.Sprintf("document exceeds %d bytes", c.maxBytes), nil)
	}

	c.logger.Debug().Str("url", u.Redacted()).Int64("bytes", n).Msg("Document downloaded")
	return n, nil
}

func (c *Client) openHTTP(ctx context.Context, target string) (io.ReadCloser, error) {
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		req.Header.Set("Accept", "application/pdf, */*")
		return c.httpClient.Do(req)
	})
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeFetch) {
			return nil, err
		}
		return nil, domain.FetchError("URL cannot be resolved", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, domain.FetchError(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode), nil)
	}

	return resp.Body, nil
}

func (c *Client) openObject(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if c.objects == nil {
		return nil, domain.ValidationError("gs:// URLs are not enabled", nil)
	}

	bucket := u.Host
	object := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return nil, domain.ValidationError(fmt.Sprintf("invalid object URL: %s", u), nil)
	}

	r, err := c.objects.Open(ctx, bucket, object)
	if err != nil {
		return nil, domain.FetchError(fmt.Sprintf("failed to open gs://%s/%s", bucket, object), err)
	}
	return r, nil
}

func parseSource(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, domain.ValidationError("URL cannot be empty", nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.ValidationError("URL cannot be parsed", err)
	}

	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, domain.ValidationError(fmt.Sprintf("URL has no host: %s", rawURL), nil)
		}
	case "gs":
	default:
		return nil, domain.ValidationError(fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}

	return u, nil
}
