package scan

import "github.com/spherical/qr-detector/internal/domain"

// Merge folds ordered page results into the document-level summary.
// ProcessingTime is left for the caller to stamp.
func Merge(pages []domain.PageResult) domain.DocumentResult {
	if pages == nil {
		pages = []domain.PageResult{}
	}

	result := domain.DocumentResult{
		PagesProcessed: len(pages),
		PageData:       pages,
	}

	for _, page := range pages {
		if page.Error != nil {
			result.ErrorCount += *page.Error
			continue
		}
		result.QRFound = result.QRFound || page.QRFound
		result.QRCount += page.QRCount
	}

	return result
}
