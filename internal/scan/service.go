// Package scan implements the page pipeline: rasterize a document, detect
// codes page by page, and merge the page results into one report.
package scan

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/spherical/qr-detector/internal/domain"
	"github.com/spherical/qr-detector/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Service orchestrates the document processing pipeline
type Service struct {
	rasterizer domain.Rasterizer
	pages      *PageProcessor
	workers    int
	logger     *observability.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers sets how many pages may be scanned at once. Values below 1 mean sequential.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for timing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new document processing service
func NewService(rasterizer domain.Rasterizer, detector domain.Detector, opts ...Option) *Service {
	s := &Service{
		rasterizer: rasterizer,
		workers:    1,
		logger:     observability.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pages = NewPageProcessor(detector, s.logger.WithOperation("page"))
	return s
}

// Process runs the whole pipeline on one document.
func (s *Service) Process(ctx context.Context, data []byte) (*domain.DocumentResult, error) {
	return s.ProcessWithEvents(ctx, data, nil)
}

// rasterize calls the rasterizer and converts panics into conversion errors.
func (s *Service) rasterize(ctx context.Context, data []byte) (images []image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			images = nil
			err = domain.ConversionError("rasterizer panicked", fmt.Errorf("%v", r))
		}
	}()
	return s.rasterizer.Rasterize(ctx, data)
}

// ProcessWithEvents is Process with progress notifications sent to eventCh.
// Sends never block; events are dropped when eventCh is full.
func (s *Service) ProcessWithEvents(ctx context.Context, data []byte, eventCh chan<- domain.ProgressEvent) (*domain.DocumentResult, error) {
	startTime := s.now()
	logger := s.logger.WithContext(ctx)

	s.emitEvent(eventCh, domain.ProgressEvent{Type: domain.EventStart, Timestamp: startTime})
	logger.Info().Int("bytes", len(data)).Msg("Processing of document started")

	images, err := s.rasterize(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error().Err(err).Msg("Document could not be rasterized")
		return nil, domain.ProcessingError("document could not be rasterized", err)
	}

	s.emitEvent(eventCh, domain.ProgressEvent{
		Type:       domain.EventRasterized,
		TotalPages: len(images),
		Timestamp:  s.now(),
	})

	pages, err := s.processPages(ctx, images, eventCh)
	if err != nil {
		return nil, err
	}

	result := Merge(pages)

	elapsed := s.now().Sub(startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	result.ProcessingTime = float64(int64(elapsed / time.Second))

	s.emitEvent(eventCh, domain.ProgressEvent{
		Type:       domain.EventComplete,
		TotalPages: len(images),
		Timestamp:  s.now(),
	})

	logger.Info().
		Int("pages_processed", result.PagesProcessed).
		Int("qr_count", result.QRCount).
		Bool("qr_found", result.QRFound).
		Int("error_count", result.ErrorCount).
		Dur("duration", elapsed).
		Msg("Processing of document finished")

	return &result, nil
}

// processPages produces exactly one result per image, stored at the image's index.
func (s *Service) processPages(ctx context.Context, images []image.Image, eventCh chan<- domain.ProgressEvent) ([]domain.PageResult, error) {
	results := make([]domain.PageResult, len(images))

	if s.workers <= 1 {
		for idx, img := range images {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			results[idx] = s.processPage(img, idx, eventCh)
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for idx, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[idx] = s.processPage(img, idx, eventCh)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *Service) processPage(img image.Image, idx int, eventCh chan<- domain.ProgressEvent) domain.PageResult {
	result := s.pages.ProcessPage(img, idx)
	s.emitEvent(eventCh, domain.ProgressEvent{
		Type:      domain.EventPageComplete,
		PageIndex: idx,
		Failed:    result.Failed(),
		Timestamp: s.now(),
	})
	return result
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.ProgressEvent, event domain.ProgressEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Debug().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}
