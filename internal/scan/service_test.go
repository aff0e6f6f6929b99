package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/spherical/qr-detector/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docBytes = []byte("%PDF-1.7 fake document")

func TestProcess_ScenarioA_CodesOnEveryPageButOne(t *testing.T) {
	raster := &fakeRasterizer{pages: pagesWithMarkers(4)}
	det := &fakeDetector{counts: map[uint8]int{1: 2, 2: 0, 3: 1, 4: 3}}
	svc := NewService(raster, det)

	got, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)

	assert.True(t, got.QRFound)
	assert.Equal(t, 6, got.QRCount)
	assert.Equal(t, 4, got.PagesProcessed)
	assert.Equal(t, 0, got.ErrorCount)
	require.Len(t, got.PageData, 4)
	for i, want := range []int{2, 0, 1, 3} {
		assert.Equal(t, i, got.PageData[i].PageIndex)
		assert.Equal(t, want, got.PageData[i].QRCount)
	}
}

func TestProcess_ScenarioB_CorruptPageIsContained(t *testing.T) {
	raster := &fakeRasterizer{pages: pagesWithMarkers(3)}
	det := &fakeDetector{failures: map[uint8]error{2: errCorruptPage}}
	svc := NewService(raster, det)

	got, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)

	assert.False(t, got.QRFound)
	assert.Equal(t, 0, got.QRCount)
	assert.Equal(t, 3, got.PagesProcessed)
	assert.Equal(t, 1, got.ErrorCount)
	require.NotNil(t, got.PageData[1].Error)
	assert.Equal(t, 1, *got.PageData[1].Error)
	assert.Equal(t, []uint8{1, 2, 3}, det.seen, "pages after the failure are still scanned")
	assert.False(t, got.PageData[2].Failed())
}

func TestProcess_ScenarioC_UnreadableDocument(t *testing.T) {
	raster := &fakeRasterizer{err: domain.ConversionError("Failed to open PDF", errors.New("no objects found"))}
	det := &fakeDetector{}
	svc := NewService(raster, det)

	got, err := svc.Process(context.Background(), []byte("not a pdf"))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, domain.IsProcessingError(err))
	assert.True(t, domain.IsType(err, domain.ErrorTypeConversion), "cause is kept")
	assert.Empty(t, det.seen)
}

func TestProcess_PanickingRasterizerIsAProcessingError(t *testing.T) {
	raster := &fakeRasterizer{panicValue: "runtime error: invalid memory address or nil pointer dereference"}
	det := &fakeDetector{}
	svc := NewService(raster, det)

	var (
		got *domain.DocumentResult
		err error
	)
	require.NotPanics(t, func() {
		got, err = svc.Process(context.Background(), []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"))
	})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, domain.IsProcessingError(err))
	assert.True(t, domain.IsType(err, domain.ErrorTypeConversion))
	assert.Contains(t, err.Error(), "invalid memory address")
	assert.Empty(t, det.seen)
}

func TestProcess_PanickingDetectorDoesNotAbortDocument(t *testing.T) {
	raster := &fakeRasterizer{pages: pagesWithMarkers(3)}
	det := &fakeDetector{counts: map[uint8]int{3: 1}, panics: map[uint8]bool{1: true}}
	svc := NewService(raster, det)

	got, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Equal(t, 1, got.QRCount)
	assert.True(t, got.QRFound)
}

func TestProcess_InvalidPageImages(t *testing.T) {
	raster := &fakeRasterizer{pages: []image.Image{nil, markedPage(1)}}
	svc := NewService(raster, &fakeDetector{counts: map[uint8]int{1: 1}})

	got, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PagesProcessed)
	assert.Equal(t, 1, got.ErrorCount)
	assert.True(t, got.PageData[0].Failed())
	assert.Equal(t, 1, got.PageData[1].QRCount)
}

func TestProcess_Idempotent(t *testing.T) {
	raster := &fakeRasterizer{pages: pagesWithMarkers(4)}
	det := &fakeDetector{counts: map[uint8]int{1: 1, 3: 2}, failures: map[uint8]error{4: errCorruptPage}}
	svc := NewService(raster, det)

	first, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)
	second, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)

	first.ProcessingTime, second.ProcessingTime = 0, 0
	assert.Equal(t, first, second)
}

func TestProcess_ConcurrentWorkersKeepPageOrder(t *testing.T) {
	const n = 25
	counts := make(map[uint8]int, n)
	for i := 1; i <= n; i++ {
		counts[uint8(i)] = i % 4
	}
	det := &fakeDetector{counts: counts, failures: map[uint8]error{7: errCorruptPage}}

	sequential, err := NewService(&fakeRasterizer{pages: pagesWithMarkers(n)}, det).Process(context.Background(), docBytes)
	require.NoError(t, err)

	concurrent, err := NewService(&fakeRasterizer{pages: pagesWithMarkers(n)}, det, WithWorkers(6)).Process(context.Background(), docBytes)
	require.NoError(t, err)

	sequential.ProcessingTime, concurrent.ProcessingTime = 0, 0
	assert.Equal(t, sequential, concurrent)
	for i, p := range concurrent.PageData {
		assert.Equal(t, i, p.PageIndex)
	}
}

func TestProcess_ProcessingTimeTruncatesToWholeSeconds(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(2900 * time.Millisecond)
	}

	svc := NewService(&fakeRasterizer{pages: pagesWithMarkers(2)}, &fakeDetector{}, WithClock(clock))
	got, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.ProcessingTime)
}

func TestProcess_ZeroPagesDocument(t *testing.T) {
	svc := NewService(&fakeRasterizer{pages: []image.Image{}}, &fakeDetector{})

	got, err := svc.Process(context.Background(), docBytes)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PagesProcessed)
	assert.NotNil(t, got.PageData)
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		svc := NewService(&fakeRasterizer{pages: pagesWithMarkers(3)}, &fakeDetector{}, WithWorkers(workers))
		got, err := svc.Process(ctx, docBytes)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, got)
	}
}

func TestProcessWithEvents(t *testing.T) {
	raster := &fakeRasterizer{pages: pagesWithMarkers(3)}
	det := &fakeDetector{failures: map[uint8]error{2: errCorruptPage}}
	svc := NewService(raster, det)

	eventCh := make(chan domain.ProgressEvent, 16)
	_, err := svc.ProcessWithEvents(context.Background(), docBytes, eventCh)
	require.NoError(t, err)
	close(eventCh)

	var types []domain.EventType
	var failed []int
	for ev := range eventCh {
		types = append(types, ev.Type)
		if ev.Type == domain.EventRasterized {
			assert.Equal(t, 3, ev.TotalPages)
		}
		if ev.Failed {
			failed = append(failed, ev.PageIndex)
		}
	}

	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventRasterized,
		domain.EventPageComplete,
		domain.EventPageComplete,
		domain.EventPageComplete,
		domain.EventComplete,
	}, types)
	assert.Equal(t, []int{1}, failed)
}

func TestProcessWithEvents_FullChannelDoesNotBlock(t *testing.T) {
	svc := NewService(&fakeRasterizer{pages: pagesWithMarkers(5)}, &fakeDetector{})

	eventCh := make(chan domain.ProgressEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.ProcessWithEvents(context.Background(), docBytes, eventCh)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processing blocked on an unread event channel")
	}
}
