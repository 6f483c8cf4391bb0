package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	iface "LayoutOcrServer/interface"

	"github.com/stretchr/testify/assert"
)

func fakeBackend(t *testing.T, detections []backendDetection) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict":
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if _, _, err := r.FormFile("image"); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			assert.NotEmpty(t, r.FormValue("confidence"))
			assert.NotEmpty(t, r.FormValue("iou"))
			_ = json.NewEncoder(w).Encode(predictResponse{
				Success:    true,
				Detections: detections,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testConfigs(backendURL string) []ModelConfig {
	return []ModelConfig{
		{
			Name:       "invoice_layout",
			BackendURL: backendURL,
			Labels:     []string{"invoice_number", "vendor", "total_amount"},
			Confidence: 0.5,
			Iou:        0.45,
		},
		{
			Name:       "id_card_layout",
			BackendURL: backendURL,
			Labels:     []string{"name"},
			Confidence: 0.6,
			Iou:        0.45,
		},
	}
}

var testFrame = iface.Frame{Bytes: []byte{0xff, 0xd8, 0xff}, ContentType: "image/jpeg"}

func TestServiceCatalog(t *testing.T) {
	backend := fakeBackend(t, nil)
	defer backend.Close()
	svc := NewService(testConfigs(backend.URL))

	t.Run("ListModels sorted", func(t *testing.T) {
		assert.Equal(t, []string{"id_card_layout", "invoice_layout"}, svc.ListModels())
	})

	t.Run("Labels", func(t *testing.T) {
		labels, err := svc.Labels("invoice_layout")
		assert.NoError(t, err)
		assert.Equal(t, []string{"invoice_number", "vendor", "total_amount"}, labels)

		_, err = svc.Labels("missing")
		assert.True(t, errors.Is(err, ErrModelNotFound))
	})

	t.Run("Config", func(t *testing.T) {
		cfg, err := svc.Config("id_card_layout")
		assert.NoError(t, err)
		assert.Equal(t, float32(0.6), cfg.Confidence)

		_, err = svc.Config("missing")
		assert.True(t, errors.Is(err, ErrModelNotFound))
	})

	t.Run("Load and LoadAll", func(t *testing.T) {
		assert.NoError(t, svc.Load(context.Background(), "invoice_layout", false))
		assert.True(t, errors.Is(svc.Load(context.Background(), "missing", false), ErrModelNotFound))

		status := svc.LoadAll(context.Background())
		assert.Equal(t, "loaded", status["invoice_layout"])
		assert.Equal(t, "loaded", status["id_card_layout"])
	})

	t.Run("Load against a dead backend", func(t *testing.T) {
		dead := NewService([]ModelConfig{{
			Name:       "broken",
			BackendURL: "http://127.0.0.1:1",
			Labels:     []string{"x"},
		}})
		assert.Error(t, dead.Load(context.Background(), "broken", false))

		// LoadAll reports the recorded failure reason, not just a blank.
		status := dead.LoadAll(context.Background())
		assert.NotEqual(t, "loaded", status["broken"])
		assert.NotEmpty(t, status["broken"])
	})
}

func TestServiceDetect(t *testing.T) {
	t.Run("maps classes to labels and filters", func(t *testing.T) {
		backend := fakeBackend(t, []backendDetection{
			{Class: 0, Confidence: 0.9, Box: [4]int{10, 10, 50, 50}},
			{Class: 2, Confidence: 0.55, Box: [4]int{60, 60, 120, 90}},
			{Class: 1, Confidence: 0.2, Box: [4]int{0, 0, 5, 5}},    // below threshold
			{Class: 99, Confidence: 0.9, Box: [4]int{0, 0, 5, 5}},   // unknown class
			{Class: -1, Confidence: 0.9, Box: [4]int{0, 0, 5, 5}},   // unknown class
			{Class: 0, Confidence: 0.9, Box: [4]int{30, 30, 30, 60}}, // zero-width box
		})
		defer backend.Close()
		svc := NewService(testConfigs(backend.URL))

		regions, err := svc.Detect(context.Background(), testFrame, "invoice_layout")
		assert.NoError(t, err)
		if assert.Len(t, regions, 2) {
			assert.Equal(t, "invoice_number", regions[0].Label)
			assert.Equal(t, iface.Box{XMin: 10, YMin: 10, XMax: 50, YMax: 50}, regions[0].Box)
			assert.Equal(t, "total_amount", regions[1].Label)
		}
	})

	t.Run("empty detection is a valid success", func(t *testing.T) {
		backend := fakeBackend(t, []backendDetection{})
		defer backend.Close()
		svc := NewService(testConfigs(backend.URL))

		regions, err := svc.Detect(context.Background(), testFrame, "invoice_layout")
		assert.NoError(t, err)
		assert.NotNil(t, regions)
		assert.Len(t, regions, 0)
	})

	t.Run("unknown model", func(t *testing.T) {
		backend := fakeBackend(t, nil)
		defer backend.Close()
		svc := NewService(testConfigs(backend.URL))

		_, err := svc.Detect(context.Background(), testFrame, "missing")
		assert.True(t, errors.Is(err, ErrModelNotFound))
	})

	t.Run("backend failure surfaces as error", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer failing.Close()
		svc := NewService(testConfigs(failing.URL))

		_, err := svc.Detect(context.Background(), testFrame, "invoice_layout")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrModelNotFound))
	})

	t.Run("backend reported failure surfaces as error", func(t *testing.T) {
		reported := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(predictResponse{Success: false, Error: "session crashed"})
		}))
		defer reported.Close()
		svc := NewService(testConfigs(reported.URL))

		_, err := svc.Detect(context.Background(), testFrame, "invoice_layout")
		assert.Error(t, err)
	})
}
