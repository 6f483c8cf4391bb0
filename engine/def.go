package engine

import "errors"

// Model resolution states.
const (
	UNRESOLVED = 0x0001
	READY      = 0x0002
	FAILED     = 0x0003
)

// ErrModelNotFound reports a model identifier that is not registered.
// The orchestration layer maps it to the invalid-model classification.
var ErrModelNotFound = errors.New("model not found")

// ModelConfig describes one registered detection model: where its
// backend lives, the labels its class indices map to and the
// thresholds the backend is asked to apply.
type ModelConfig struct {
	Name       string   `yaml:"name" json:"name"`
	BackendURL string   `yaml:"backendURL" json:"backend_url"`
	Labels     []string `yaml:"labels" json:"labels"`
	Confidence float32  `yaml:"confidence" json:"confidence"`
	Iou        float32  `yaml:"iou" json:"iou"`
}
