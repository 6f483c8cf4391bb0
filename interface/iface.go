package iface

import "context"

// Detector locates labeled regions in a frame using a named model.
// Implementations must be safe for concurrent use and side-effect free
// from the caller's point of view.
type Detector interface {
	Detect(ctx context.Context, frame Frame, modelID string) ([]Region, error)
}

// TextExtractor turns image pixels into text fields.
//
// ExtractFromRegions crops the frame to each region, in region order,
// and recognizes each crop separately. Both methods return an empty
// slice, never nil, when no text is found.
type TextExtractor interface {
	ExtractWholeImage(ctx context.Context, frame Frame) ([]TextField, error)
	ExtractFromRegions(ctx context.Context, frame Frame, regions []Region) ([]TextField, error)
}
