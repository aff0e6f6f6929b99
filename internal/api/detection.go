package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/observability"
)

// DefaultURLSource is scanned when a URL request names no document.
const DefaultURLSource = "https://github.com/ramiluisto/QR-test-documents/blob/main/Increasing_qr_count.pdf?raw=true"

// Error detail prefixes. The underlying error text follows on the next line.
const (
	uploadFailurePrefix   = "Failed in processing. Did you upload a proper pdf file? Error details:\n"
	fetchFailurePrefix    = "Failed in processing. URL cannot be resolved. Details:\n"
	documentFailurePrefix = "Failed in processing. Is the file a proper pdf? Error details:\n"
)

// maxFormMemory bounds the in-memory part of multipart parsing; larger parts spill to disk.
const maxFormMemory = 8 << 20

// Processor scans documents on behalf of the HTTP handlers.
type Processor interface {
	ProcessUpload(ctx context.Context, r io.Reader) (*domain.DocumentResult, error)
	ProcessURL(ctx context.Context, rawURL string) (*domain.DocumentResult, error)
}

// DetectionHandler handles QR detection requests.
type DetectionHandler struct {
	logger         *observability.Logger
	proc           Processor
	maxUploadBytes int64
}

// NewDetectionHandler creates a new detection handler.
func NewDetectionHandler(logger *observability.Logger, proc Processor, maxUploadBytes int64) *DetectionHandler {
	return &DetectionHandler{
		logger:         logger,
		proc:           proc,
		maxUploadBytes: maxUploadBytes,
	}
}

// URLRequestDTO represents the API request for URL detection.
type URLRequestDTO struct {
	URLSource string `json:"urlSource"`
}

type errorDTO struct {
	Detail string `json:"detail"`
}

// Upload handles POST /QR-detection-via-file-upload/.
func (h *DetectionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	err := r.ParseMultipartForm(maxFormMemory)
	if err == nil {
		defer r.MultipartForm.RemoveAll()
	}
	file, header, err := formFile(r, err)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, http.ErrMissingFile):
			h.writeError(w, http.StatusUnprocessableEntity, "field 'file' is required")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		}
		return
	}
	defer file.Close()

	logger.Info().Str("filename", header.Filename).Int64("size", header.Size).Msg("Upload received")

	result, err := h.proc.ProcessUpload(ctx, file)
	if err != nil {
		h.handleFailure(ctx, w, err, uploadFailurePrefix)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// FromURL handles POST /QR-detection-via-URL/.
func (h *DetectionHandler) FromURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req URLRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	source := strings.TrimSpace(req.URLSource)
	if source == "" {
		source = DefaultURLSource
	}

	h.logger.WithContext(ctx).Info().Str("url", source).Msg("URL detection requested")

	result, err := h.proc.ProcessURL(ctx, source)
	if err != nil {
		prefix := documentFailurePrefix
		if domain.IsType(err, domain.ErrorTypeFetch) {
			prefix = fetchFailurePrefix
		}
		h.handleFailure(ctx, w, err, prefix)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleFailure maps a processing error to a response. Failures of the
// document or its retrieval are the caller's problem and get 400.
func (h *DetectionHandler) handleFailure(ctx context.Context, w http.ResponseWriter, err error, prefix string) {
	logger := h.logger.WithContext(ctx)

	switch {
	case ctx.Err() != nil:
		// The Timeout middleware answers an expired request itself, and a
		// cancelled client is no longer reading.
		logger.Warn().Err(err).Msg("Request ended before processing finished")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Msg("Processing timed out")
		h.writeError(w, http.StatusGatewayTimeout, "processing timed out")
	case errors.Is(err, context.Canceled):
		logger.Warn().Msg("Request cancelled by client")
		h.writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case domain.IsProcessingError(err),
		domain.IsType(err, domain.ErrorTypeValidation),
		domain.IsType(err, domain.ErrorTypeFetch):
		logger.Warn().Err(err).Msg("Document rejected")
		h.writeError(w, http.StatusBadRequest, prefix+errorDetail(err))
	default:
		logger.Error().Err(err).Msg("Processing failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *DetectionHandler) writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorDTO{Detail: detail})
}

func formFile(r *http.Request, parseErr error) (multipart.File, *multipart.FileHeader, error) {
	if parseErr != nil {
		return nil, nil, parseErr
	}
	return r.FormFile("file")
}

// errorDetail strips the type tag from domain errors.
func errorDetail(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Cause()
	}
	return err.Error()
}
