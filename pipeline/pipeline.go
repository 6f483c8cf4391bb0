package pipeline

import (
	"context"
	"errors"
	"net/http"

	"LayoutOcrServer/engine"
	iface "LayoutOcrServer/interface"
	"LayoutOcrServer/logger"
	"LayoutOcrServer/monitor"

	"go.uber.org/zap"
)

// Pipeline sequences detection and text extraction for one request and
// shapes every outcome into an envelope plus an outward status. It
// holds no per-request state; a failure at any stage terminates the
// run immediately with no retries and no partial results.
type Pipeline struct {
	detector  iface.Detector
	extractor iface.TextExtractor
}

func New(detector iface.Detector, extractor iface.TextExtractor) *Pipeline {
	return &Pipeline{detector: detector, extractor: extractor}
}

// RunDetect performs detection only.
func (p *Pipeline) RunDetect(ctx context.Context, frame iface.Frame, modelID string) (int, iface.ApiResponse) {
	monitor.DetectTotal.Inc()
	regions, serr := p.detect(ctx, frame, modelID)
	if serr != nil {
		return fail(modelID, serr)
	}
	return http.StatusOK, iface.OkResponse(regions)
}

// RunBatchDetect performs detection over a batch of frames with the
// same model, preserving frame order. The batch fails as a whole on
// the first frame that fails.
func (p *Pipeline) RunBatchDetect(ctx context.Context, frames []iface.Frame, modelID string) (int, iface.ApiResponse) {
	monitor.DetectTotal.Inc()
	batch := make([][]iface.Region, 0, len(frames))
	for _, frame := range frames {
		regions, serr := p.detect(ctx, frame, modelID)
		if serr != nil {
			return fail(modelID, serr)
		}
		batch = append(batch, regions)
	}
	return http.StatusOK, iface.OkResponse(batch)
}

// RunLayoutOcr is the one-shot flow: detect regions with the named
// model, then extract text from exactly those regions. Extraction is
// invoked even when detection found nothing; an empty extraction
// result is a client error by policy, not valid emptiness.
func (p *Pipeline) RunLayoutOcr(ctx context.Context, frame iface.Frame, modelID string) (int, iface.ApiResponse) {
	monitor.OcrTotal.Inc()
	regions, serr := p.detect(ctx, frame, modelID)
	if serr != nil {
		return fail(modelID, serr)
	}

	fields, err := p.extractor.ExtractFromRegions(ctx, frame, regions)
	if err != nil {
		return fail(modelID, &StageError{Kind: KindExtraction, Err: err})
	}
	if len(fields) == 0 {
		return fail(modelID, &StageError{Kind: KindEmptyResult})
	}
	return http.StatusOK, iface.OkResponse(fields)
}

// RunWholeImageOcr extracts text from the full frame without a
// detection stage. The empty-result policy matches RunLayoutOcr.
func (p *Pipeline) RunWholeImageOcr(ctx context.Context, frame iface.Frame) (int, iface.ApiResponse) {
	monitor.OcrTotal.Inc()
	fields, err := p.extractor.ExtractWholeImage(ctx, frame)
	if err != nil {
		return fail("", &StageError{Kind: KindExtraction, Err: err})
	}
	if len(fields) == 0 {
		return fail("", &StageError{Kind: KindEmptyResult})
	}
	return http.StatusOK, iface.OkResponse(fields)
}

func (p *Pipeline) detect(ctx context.Context, frame iface.Frame, modelID string) ([]iface.Region, *StageError) {
	regions, err := p.detector.Detect(ctx, frame, modelID)
	if err != nil {
		if errors.Is(err, engine.ErrModelNotFound) {
			return nil, &StageError{Kind: KindModelResolution, Err: err}
		}
		return nil, &StageError{Kind: KindDetection, Err: err}
	}
	return regions, nil
}

// fail logs the cause with the originating model and returns the
// outward classification. The cause itself never reaches the caller.
func fail(modelID string, serr *StageError) (int, iface.ApiResponse) {
	monitor.ErrorTotal.Inc()
	logger.Log().Warn("pipeline failed",
		zap.String("model", modelID),
		zap.Int("status", serr.Status()),
		zap.Error(serr))
	return serr.Status(), iface.ErrResponse(serr.Detail())
}
