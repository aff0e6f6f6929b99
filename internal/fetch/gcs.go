package fetch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
)

// GCSSource opens Cloud Storage objects. The storage client is created on
// first use so that deployments without gs:// traffic never need credentials.
type GCSSource struct {
	once   sync.Once
	client *storage.Client
	err    error
}

// NewGCSSource creates a lazily initialized Cloud Storage opener.
func NewGCSSource() *GCSSource {
	return &GCSSource{}
}

// Open returns a reader for gs://bucket/object.
func (g *GCSSource) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	g.once.Do(func() {
		g.client, g.err = storage.NewClient(context.Background())
	})
	if g.err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", g.err)
	}

	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}

// Close releases the storage client if one was created.
func (g *GCSSource) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
