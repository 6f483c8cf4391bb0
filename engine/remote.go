package engine

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	iface "LayoutOcrServer/interface"

	"github.com/go-resty/resty/v2"
)

// backendClient talks to the inference backends that actually hold the
// model weights and run the tensors. One client is shared across all
// models; the per-model endpoint comes from ModelConfig.
type backendClient struct {
	http *resty.Client
}

func newBackendClient(timeout time.Duration) *backendClient {
	return &backendClient{
		http: resty.New().SetTimeout(timeout),
	}
}

type backendDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        [4]int  `json:"box"` // x_min, y_min, x_max, y_max
}

type predictResponse struct {
	Success    bool               `json:"success"`
	Detections []backendDetection `json:"detections"`
	Error      string             `json:"error"`
}

func (b *backendClient) predict(ctx context.Context, cfg ModelConfig, frame iface.Frame) ([]backendDetection, error) {
	var out predictResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetFileReader("image", "image", bytes.NewReader(frame.Bytes)).
		SetFormData(map[string]string{
			"confidence": strconv.FormatFloat(float64(cfg.Confidence), 'f', -1, 32),
			"iou":        strconv.FormatFloat(float64(cfg.Iou), 'f', -1, 32),
		}).
		SetResult(&out).
		Post(cfg.BackendURL + "/predict")
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("backend returned %s", resp.Status())
	}
	if !out.Success {
		return nil, fmt.Errorf("backend inference failed: %s", out.Error)
	}
	return out.Detections, nil
}

// ping checks that the backend serving cfg is reachable.
func (b *backendClient) ping(ctx context.Context, cfg ModelConfig) error {
	resp, err := b.http.R().SetContext(ctx).Get(cfg.BackendURL + "/health")
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("backend unhealthy: %s", resp.Status())
	}
	return nil
}
