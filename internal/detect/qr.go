// Package detect finds and decodes QR codes in page images.
package detect

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/spherical/qr-detector/internal/domain"
)

var _ domain.Detector = (*QRDetector)(nil)

type multiReader interface {
	DecodeMultiple(image *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error)
}

// QRDetector detects and decodes every QR code on a page using gozxing.
// A fresh reader is built per call, so one detector may serve concurrent pages.
type QRDetector struct {
	tryHarder bool
	newReader func() multiReader
}

// NewQRDetector creates a detector. tryHarder trades speed for recall.
func NewQRDetector(tryHarder bool) *QRDetector {
	return &QRDetector{
		tryHarder: tryHarder,
		newReader: func() multiReader { return multiqr.NewQRCodeMultiReader() },
	}
}

// Detect scans img. When nothing is found it returns Found=false and nil
// Locations; the caller is responsible for normalizing that.
func (d *QRDetector) Detect(img image.Image) (domain.Detection, error) {
	if img == nil {
		return domain.Detection{}, errors.New("no image data")
	}
	if img.Bounds().Empty() {
		return domain.Detection{}, fmt.Errorf("image has empty bounds %v", img.Bounds())
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return domain.Detection{}, fmt.Errorf("binarize image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if d.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	results, err := d.newReader().DecodeMultiple(bmp, hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return domain.Detection{}, nil
		}
		return domain.Detection{}, fmt.Errorf("decode QR codes: %w", err)
	}
	if len(results) == 0 {
		return domain.Detection{}, nil
	}

	detection := domain.Detection{
		Found:     true,
		Decoded:   make([]string, 0, len(results)),
		Locations: make([]domain.Polygon, 0, len(results)),
	}
	for _, r := range results {
		detection.Locations = append(detection.Locations, toPolygon(r.GetResultPoints()))
		detection.Decoded = append(detection.Decoded, r.GetText())
	}

	return detection, nil
}

func toPolygon(points []gozxing.ResultPoint) domain.Polygon {
	poly := make(domain.Polygon, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		poly = append(poly, domain.Point{p.GetX(), p.GetY()})
	}
	return poly
}
