package pdf

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/spherical/qr-detector/internal/pdf/pdftest"
)

func TestConverter_RasterizesEveryPageInOrder(t *testing.T) {
	doc := pdftest.Build(
		pdftest.Blank(200, 200),
		pdftest.Blank(300, 200),
		pdftest.Blank(150, 250),
	)
	want := []image.Point{{200, 200}, {300, 200}, {150, 250}}

	for _, preflight := range []bool{true, false} {
		images, err := NewConverter(WithDPI(72), WithPreflight(preflight)).Rasterize(context.Background(), doc)
		if err != nil {
			t.Fatalf("preflight=%v: Rasterize() error = %v", preflight, err)
		}
		if len(images) != len(want) {
			t.Fatalf("preflight=%v: got %d images, want %d", preflight, len(images), len(want))
		}
		for i, img := range images {
			if got := img.Bounds().Size(); got != want[i] {
				t.Errorf("preflight=%v: page %d size = %v, want %v", preflight, i, got, want[i])
			}
		}
	}
}

func TestConverter_ScalesWithDPI(t *testing.T) {
	doc := pdftest.Build(pdftest.Blank(72, 144))

	images, err := NewConverter(WithDPI(144)).Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if got := images[0].Bounds().Size(); got != (image.Point{X: 144, Y: 288}) {
		t.Errorf("size = %v, want 144x288", got)
	}
}

func TestConverter_RendersPageContent(t *testing.T) {
	doc := pdftest.Build(
		pdftest.Filled(200, 200, 0, 0, 100, 100),
		pdftest.Filled(200, 200, 100, 100, 100, 100),
	)

	images, err := NewConverter(WithDPI(72)).Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}

	// The first page is dark top-left, the second bottom-right.
	if !isDark(images[0], 50, 50) || isDark(images[0], 150, 150) {
		t.Error("page 0 does not carry its top-left block")
	}
	if isDark(images[1], 50, 50) || !isDark(images[1], 150, 150) {
		t.Error("page 1 does not carry its bottom-right block")
	}
}

func TestConverter_RepairsDamagedTrailer(t *testing.T) {
	doc := pdftest.Build(pdftest.Blank(200, 200), pdftest.Blank(200, 200))

	tests := []struct {
		name string
		data []byte
	}{
		{"missing eof marker", pdftest.WithoutEOF(doc)},
		{"missing xref table", pdftest.WithoutXRef(doc)},
	}

	for _, tt := range tests {
		for _, preflight := range []bool{true, false} {
			images, err := NewConverter(WithDPI(72), WithPreflight(preflight)).Rasterize(context.Background(), tt.data)
			if err != nil {
				t.Errorf("%s, preflight=%v: Rasterize() error = %v", tt.name, preflight, err)
				continue
			}
			if len(images) != 2 {
				t.Errorf("%s, preflight=%v: got %d images, want 2", tt.name, preflight, len(images))
			}
		}
	}
}

func TestConverter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConverter(WithDPI(72)).Rasterize(ctx, pdftest.Build(pdftest.Blank(200, 200)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func isDark(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
	return (r+g+b)/3 < 0x4000
}
