package domain

import (
	"context"
	"image"
)

// Rasterizer turns a paginated document into one image per page, in page order
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) ([]image.Image, error)
}

// Detector finds optical codes in a single page image
type Detector interface {
	Detect(img image.Image) (Detection, error)
}
