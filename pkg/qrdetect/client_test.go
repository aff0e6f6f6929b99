package qrdetect

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/qr-detector/internal/config"
	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/observability"
	"github.com/spherical/qr-detector/internal/pdf"
)

type recordingPipeline struct {
	data []byte
	err  error
}

func (p *recordingPipeline) ProcessWithEvents(_ context.Context, data []byte, _ chan<- domain.ProgressEvent) (*domain.DocumentResult, error) {
	p.data = append([]byte(nil), data...)
	if p.err != nil {
		return nil, p.err
	}
	return &domain.DocumentResult{PagesProcessed: 1, PageData: []domain.PageResult{{PageIndex: 0}}}, nil
}

type stubDownloader struct {
	body string
	err  error
	url  string
}

func (d *stubDownloader) Download(_ context.Context, rawURL string, w io.Writer) (int64, error) {
	d.url = rawURL
	if d.err != nil {
		return 0, d.err
	}
	n, err := io.Copy(w, strings.NewReader(d.body))
	return n, err
}

func newTestClient(t *testing.T, p pipeline, d downloader) (*Client, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tmp_data")
	return &Client{
		pipeline:  p,
		fetcher:   d,
		validator: pdf.NewValidator(),
		tempDir:   dir,
		logger:    observability.NopLogger(),
	}, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestNewClientWithConfig(t *testing.T) {
	_, err := NewClientWithConfig(nil, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	bad := config.DefaultConfig()
	bad.Server.Port = 0
	_, err = NewClientWithConfig(bad, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	client, err := NewClientWithConfig(config.DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "./tmp_data/", client.tempDir)
	assert.NoError(t, client.Close())
}

func TestProcessUpload_StoresAndCleansUp(t *testing.T) {
	p := &recordingPipeline{}
	client, dir := newTestClient(t, p, nil)

	result, err := client.ProcessUpload(context.Background(), strings.NewReader("%PDF-1.4 upload"))

	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesProcessed)
	assert.Equal(t, "%PDF-1.4 upload", string(p.data))
	assertDirEmpty(t, dir)
}

func TestProcessUpload_PipelineFailureStillCleansUp(t *testing.T) {
	p := &recordingPipeline{err: domain.ProcessingError("document could not be rasterized", errors.New("bad xref"))}
	client, dir := newTestClient(t, p, nil)

	result, err := client.ProcessUpload(context.Background(), strings.NewReader("garbage"))

	assert.Nil(t, result)
	assert.True(t, domain.IsProcessingError(err))
	assertDirEmpty(t, dir)
}

func TestProcessURL_DownloadsAndCleansUp(t *testing.T) {
	p := &recordingPipeline{}
	d := &stubDownloader{body: "%PDF-1.5 remote"}
	client, dir := newTestClient(t, p, d)

	result, err := client.ProcessURL(context.Background(), "https://example.com/doc.pdf")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "https://example.com/doc.pdf", d.url)
	assert.Equal(t, "%PDF-1.5 remote", string(p.data))
	assertDirEmpty(t, dir)
}

func TestProcessURL_RetrievalFailuresAreFetchErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"fetch error", domain.FetchError("unexpected HTTP status 404", nil)},
		{"validation error", domain.ValidationError("unsupported URL scheme \"ftp\"", nil)},
		{"plain error", errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &recordingPipeline{}
			client, dir := newTestClient(t, p, &stubDownloader{err: tt.err})

			_, err := client.ProcessURL(context.Background(), "ftp://example.com/doc.pdf")

			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeFetch))
			assert.Nil(t, p.data, "pipeline must not run")
			assertDirEmpty(t, dir)
		})
	}
}

func TestProcessURL_DocumentFailureIsNotAFetchError(t *testing.T) {
	p := &recordingPipeline{err: domain.ProcessingError("document could not be rasterized", nil)}
	client, _ := newTestClient(t, p, &stubDownloader{body: "not a pdf"})

	_, err := client.ProcessURL(context.Background(), "https://example.com/doc.pdf")

	assert.True(t, domain.IsProcessingError(err))
	assert.False(t, domain.IsType(err, domain.ErrorTypeFetch))
}

func TestProcessFile_MissingFile(t *testing.T) {
	client, _ := newTestClient(t, &recordingPipeline{}, nil)

	_, err := client.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestProcessBytes(t *testing.T) {
	p := &recordingPipeline{}
	client, _ := newTestClient(t, p, nil)

	_, err := client.ProcessBytes(context.Background(), []byte("%PDF-"))

	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(p.data))
}
