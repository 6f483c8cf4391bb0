package pipeline

import (
	"fmt"
	"net/http"
)

// Kind tags a pipeline failure with the stage and policy that produced
// it. Every failure is mapped to exactly one outward classification;
// internal causes are logged, never returned to the caller.
type Kind int

const (
	// KindModelResolution: the caller named a model that is not registered.
	KindModelResolution Kind = iota + 1
	// KindDetection: the detection backend failed internally.
	KindDetection
	// KindExtraction: text extraction failed internally.
	KindExtraction
	// KindEmptyResult: extraction completed but produced no text.
	// Treated as a client error, not as valid emptiness.
	KindEmptyResult
)

// StageError is the tagged error value carried through the pipeline.
type StageError struct {
	Kind Kind
	Err  error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline stage failed (kind %d): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pipeline stage failed (kind %d)", e.Kind)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Status maps the error kind to its outward HTTP status.
func (e *StageError) Status() int {
	switch e.Kind {
	case KindModelResolution:
		return http.StatusNotFound
	case KindEmptyResult:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Detail is the client-facing message for the error kind. The wording
// is part of the API contract and must not change.
func (e *StageError) Detail() string {
	switch e.Kind {
	case KindModelResolution:
		return "Invalid Model"
	case KindDetection:
		return "Unexpected Error during Inference"
	case KindExtraction:
		return "Unexpected Error during Inference (Determination of Texts)"
	case KindEmptyResult:
		return "Inference (Determination of Texts) is not Possible with the Specified Model"
	default:
		return "unexpected server error"
	}
}
