// Package api exposes QR detection over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/qr-detector/internal/config"
	"github.com/spherical/qr-detector/internal/observability"
)

// Service metadata reported by GET /.
const (
	ServiceTitle   = "QR code detection from pdf-files"
	ServiceVersion = "0.5.0"
	serviceSummary = "Detects QR codes in every page of a PDF document and reports their locations and decoded contents."
)

// Route paths.
const (
	UploadPath = "/QR-detection-via-file-upload/"
	URLPath    = "/QR-detection-via-URL/"
)

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, proc Processor, cfg config.ServerConfig) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors([]string{"*"}))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"qr-detector"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, serviceInfo{
			Title:       ServiceTitle,
			Version:     ServiceVersion,
			Description: serviceSummary,
			Endpoints: []endpointInfo{
				{Method: http.MethodPost, Path: UploadPath, Tag: "QR code detection"},
				{Method: http.MethodPost, Path: URLPath, Tag: "QR code detection"},
				{Method: http.MethodGet, Path: "/health", Tag: "Operations"},
			},
		})
	})

	detection := NewDetectionHandler(logger, proc, cfg.MaxUploadBytes)
	r.Post(UploadPath, detection.Upload)
	r.Post(URLPath, detection.FromURL)

	return r
}

type serviceInfo struct {
	Title       string         `json:"title"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

type endpointInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Tag    string `json:"tag"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
