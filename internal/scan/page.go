package scan

import (
	"fmt"
	"image"

	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/observability"
)

// pageErrorFlag is the value stored in PageResult.Error for a failed page.
const pageErrorFlag = 1

// PageProcessor runs the detector on one page and turns whatever happens into
// a PageResult. It never returns an error and never panics.
type PageProcessor struct {
	detector domain.Detector
	logger   *observability.Logger
}

// NewPageProcessor creates a page processor around detector.
func NewPageProcessor(detector domain.Detector, logger *observability.Logger) *PageProcessor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &PageProcessor{
		detector: detector,
		logger:   logger,
	}
}

// ProcessPage detects codes on img, the page at index idx.
func (p *PageProcessor) ProcessPage(img image.Image, idx int) domain.PageResult {
	logger := p.logger.WithPage(idx)
	logger.Debug().Msg("Processing page")

	detection, err := p.detect(img)
	if err != nil {
		logger.Warn().Err(err).Msg("Page handling failed")
		return failedPage(idx, err)
	}

	locations := detection.Locations
	if locations == nil {
		locations = []domain.Polygon{}
	}

	// The location list is authoritative; decoded strings are padded or cut to match it.
	decoded := make([]string, len(locations))
	copy(decoded, detection.Decoded)

	logger.Debug().
		Int("qr_count", len(locations)).
		Strs("decoded", decoded).
		Msg("Page processed")

	return domain.PageResult{
		PageIndex:    idx,
		QRFound:      detection.Found,
		QRCount:      len(locations),
		LocationData: locations,
		DecodedInfo:  decoded,
	}
}

// detect calls the detector and converts panics into page errors.
func (p *PageProcessor) detect(img image.Image) (detection domain.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.PageError("detector panicked", fmt.Errorf("%v", r))
		}
	}()

	if img == nil {
		return detection, domain.PageError("page is not a valid image", nil)
	}
	if img.Bounds().Empty() {
		return detection, domain.PageError("page is not a valid image", fmt.Errorf("empty bounds %v", img.Bounds()))
	}

	detection, err = p.detector.Detect(img)
	if err != nil {
		return detection, domain.PageError("detection failed", err)
	}
	return detection, nil
}

func failedPage(idx int, err error) domain.PageResult {
	flag := pageErrorFlag
	cause := err.Error()
	if de, ok := err.(*domain.DomainError); ok {
		cause = de.Cause()
	}
	msg := fmt.Sprintf("Page handling error: %s.", cause)

	return domain.PageResult{
		PageIndex: idx,
		QRFound:   false,
		QRCount:   0,
		Error:     &flag,
		ErrorStr:  &msg,
	}
}
