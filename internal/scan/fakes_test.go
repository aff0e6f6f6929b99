package scan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/spherical/qr-detector/internal/domain"
)

// markedPage is a tiny image whose top-left pixel encodes a page marker the
// fake detector reads back.
func markedPage(marker uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(0, 0, color.Gray{Y: marker})
	return img
}

func pageMarker(img image.Image) uint8 {
	return img.(*image.Gray).GrayAt(0, 0).Y
}

// fakeRasterizer returns canned pages, or err when set. It panics with
// panicValue when that is set.
type fakeRasterizer struct {
	pages      []image.Image
	err        error
	panicValue any
	calls      int
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, data []byte) ([]image.Image, error) {
	f.calls++
	if f.panicValue != nil {
		panic(f.panicValue)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// fakeDetector reports counts[marker] codes on each page and fails on pages
// whose marker is listed in failures.
type fakeDetector struct {
	mu       sync.Mutex
	counts   map[uint8]int
	failures map[uint8]error
	panics   map[uint8]bool
	nilLocs  map[uint8]bool
	seen     []uint8
}

func (f *fakeDetector) Detect(img image.Image) (domain.Detection, error) {
	marker := pageMarker(img)

	f.mu.Lock()
	f.seen = append(f.seen, marker)
	f.mu.Unlock()

	if f.panics[marker] {
		panic("corrupt scanline")
	}
	if err, ok := f.failures[marker]; ok {
		return domain.Detection{}, err
	}
	if f.nilLocs[marker] {
		return domain.Detection{Found: true}, nil
	}

	n := f.counts[marker]
	det := domain.Detection{
		Found:     n > 0,
		Decoded:   make([]string, 0, n),
		Locations: make([]domain.Polygon, 0, n),
	}
	for i := 0; i < n; i++ {
		x := float64(10 * (i + 1))
		det.Locations = append(det.Locations, domain.Polygon{{x, x}, {x + 5, x}, {x + 5, x + 5}, {x, x + 5}})
		det.Decoded = append(det.Decoded, string(rune('a'+i)))
	}
	return det, nil
}

var errCorruptPage = errors.New("corrupt page data")

func pagesWithMarkers(n int) []image.Image {
	pages := make([]image.Image, n)
	for i := range pages {
		pages[i] = markedPage(uint8(i + 1))
	}
	return pages
}
