package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	iface "LayoutOcrServer/interface"
	"LayoutOcrServer/logger"

	"go.uber.org/zap"
)

const defaultBackendTimeout = 30 * time.Second

type model struct {
	cfg       ModelConfig
	state     int
	lastError string
}

// Service is the detection side of the pipeline: it resolves model
// names to backends and forwards frames for inference. It implements
// iface.Detector.
type Service struct {
	mu      sync.RWMutex
	models  map[string]*model
	backend *backendClient
}

func NewService(configs []ModelConfig) *Service {
	s := &Service{
		models:  make(map[string]*model, len(configs)),
		backend: newBackendClient(defaultBackendTimeout),
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			logger.Log().Warn("skipping model with empty name", zap.String("backend", cfg.BackendURL))
			continue
		}
		if cfg.Confidence == 0 {
			cfg.Confidence = 0.5
		}
		if cfg.Iou == 0 {
			cfg.Iou = 0.5
		}
		s.models[cfg.Name] = &model{cfg: cfg, state: UNRESOLVED}
	}
	return s
}

// ListModels returns the registered model names, sorted.
func (s *Service) ListModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load checks that the named model's backend is reachable. With force
// the check is repeated even for a model already marked ready.
func (s *Service) Load(ctx context.Context, name string, force bool) error {
	s.mu.RLock()
	m, ok := s.models[name]
	state := 0
	if ok {
		state = m.state
	}
	s.mu.RUnlock()
	if !ok {
		return ErrModelNotFound
	}
	if state == READY && !force {
		return nil
	}
	err := s.backend.ping(ctx, m.cfg)
	s.mu.Lock()
	if err != nil {
		m.state = FAILED
		m.lastError = err.Error()
	} else {
		m.state = READY
		m.lastError = ""
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("load model %s: %w", name, err)
	}
	return nil
}

// LoadAll resolves every registered model and reports per-model status
// from the registry state.
func (s *Service) LoadAll(ctx context.Context) map[string]string {
	status := make(map[string]string)
	for _, name := range s.ListModels() {
		_ = s.Load(ctx, name, true)
		s.mu.RLock()
		m := s.models[name]
		if m.state == READY {
			status[name] = "loaded"
		} else {
			status[name] = m.lastError
		}
		s.mu.RUnlock()
	}
	return status
}

// Labels returns the label set of the named model.
func (s *Service) Labels(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	if !ok {
		return nil, ErrModelNotFound
	}
	labels := make([]string, len(m.cfg.Labels))
	copy(labels, m.cfg.Labels)
	return labels, nil
}

// Config returns the configuration of the named model.
func (s *Service) Config(name string) (ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	if !ok {
		return ModelConfig{}, ErrModelNotFound
	}
	return m.cfg, nil
}

// Detect forwards the frame to the model's backend and maps class
// indices back to labels. Detections below the model's confidence
// threshold or with a class index outside the label set are dropped.
// An empty result is a valid outcome, not an error.
func (s *Service) Detect(ctx context.Context, frame iface.Frame, modelID string) ([]iface.Region, error) {
	s.mu.RLock()
	m, ok := s.models[modelID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrModelNotFound
	}

	detections, err := s.backend.predict(ctx, m.cfg, frame)
	if err != nil {
		return nil, err
	}

	regions := make([]iface.Region, 0, len(detections))
	for _, det := range detections {
		if det.Class < 0 || det.Class >= len(m.cfg.Labels) {
			logger.Log().Warn("dropping detection with unknown class",
				zap.String("model", modelID), zap.Int("class", det.Class))
			continue
		}
		if det.Confidence < m.cfg.Confidence {
			continue
		}
		box := iface.Box{
			XMin: det.Box[0],
			YMin: det.Box[1],
			XMax: det.Box[2],
			YMax: det.Box[3],
		}
		if box.Width() <= 0 || box.Height() <= 0 {
			logger.Log().Warn("dropping detection with degenerate box",
				zap.String("model", modelID), zap.String("label", m.cfg.Labels[det.Class]))
			continue
		}
		regions = append(regions, iface.Region{
			Label:      m.cfg.Labels[det.Class],
			Confidence: det.Confidence,
			Box:        box,
		})
	}
	return regions, nil
}
