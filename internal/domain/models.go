package domain

import (
	"encoding/json"
	"time"
)

// Point is an (x, y) coordinate pair in page pixel space.
type Point [2]float64

// X returns the horizontal coordinate.
func (p Point) X() float64 { return p[0] }

// Y returns the vertical coordinate.
func (p Point) Y() float64 { return p[1] }

// Polygon is the ordered outline of one detected code.
type Polygon []Point

// Detection is the raw output of a Detector for a single page image.
// Locations may be nil when the detector reports nothing at all; callers must
// normalize it before use.
type Detection struct {
	Found     bool
	Decoded   []string
	Locations []Polygon
}

// PageResult is the canonical per-page record.
type PageResult struct {
	PageIndex    int       `json:"page_idx"`
	QRFound      bool      `json:"qr_found"`
	QRCount      int       `json:"qr_count"`
	LocationData []Polygon `json:"location_data"`
	DecodedInfo  []string  `json:"decoded_info"`
	Error        *int      `json:"error,omitempty"`
	ErrorStr     *string   `json:"error_str,omitempty"`
}

// Failed reports whether detection did not run successfully on this page.
func (p PageResult) Failed() bool {
	return p.Error != nil
}

// MarshalJSON drops location_data and decoded_info from failed pages so that
// they stay distinguishable from pages with an empty detection.
func (p PageResult) MarshalJSON() ([]byte, error) {
	type plain PageResult
	if !p.Failed() {
		return json.Marshal(plain(p))
	}
	return json.Marshal(struct {
		PageIndex int     `json:"page_idx"`
		QRFound   bool    `json:"qr_found"`
		QRCount   int     `json:"qr_count"`
		Error     *int    `json:"error"`
		ErrorStr  *string `json:"error_str"`
	}{p.PageIndex, p.QRFound, p.QRCount, p.Error, p.ErrorStr})
}

// DocumentResult is the document-level summary returned to callers.
type DocumentResult struct {
	QRFound        bool         `json:"qr_found"`
	QRCount        int          `json:"qr_count"`
	PagesProcessed int          `json:"pages_processed"`
	ErrorCount     int          `json:"error_count"`
	PageData       []PageResult `json:"page_data"`
	ProcessingTime float64      `json:"processing_time"`
}

// EventType represents the type of progress event
type EventType string

const (
	EventStart        EventType = "start"
	EventRasterized   EventType = "rasterized"
	EventPageComplete EventType = "page_complete"
	EventComplete     EventType = "complete"
)

// ProgressEvent reports pipeline progress. It carries counts only, never
// partial results.
type ProgressEvent struct {
	Type       EventType `json:"type"`
	PageIndex  int       `json:"page_idx,omitempty"`
	TotalPages int       `json:"total_pages,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
