package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"LayoutOcrServer/engine"
	iface "LayoutOcrServer/interface"
	"LayoutOcrServer/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// runner is the pipeline surface the routes depend on.
type runner interface {
	RunDetect(ctx context.Context, frame iface.Frame, modelID string) (int, iface.ApiResponse)
	RunBatchDetect(ctx context.Context, frames []iface.Frame, modelID string) (int, iface.ApiResponse)
	RunLayoutOcr(ctx context.Context, frame iface.Frame, modelID string) (int, iface.ApiResponse)
	RunWholeImageOcr(ctx context.Context, frame iface.Frame) (int, iface.ApiResponse)
}

// catalog is the model-registry surface the routes depend on.
type catalog interface {
	ListModels() []string
	Load(ctx context.Context, name string, force bool) error
	LoadAll(ctx context.Context) map[string]string
	Labels(name string) ([]string, error)
	Config(name string) (engine.ModelConfig, error)
	Detect(ctx context.Context, frame iface.Frame, modelID string) ([]iface.Region, error)
}

type handler struct {
	pipe     runner
	models   catalog
	sessions *sessionManager
}

func newRouter(h *handler) *gin.Engine {
	r := gin.Default()
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/models", h.listModels)
	r.GET("/load", h.loadAll)
	r.GET("/models/:model_name/load", h.loadModel)
	r.GET("/models/:model_name/labels", h.modelLabels)
	r.GET("/models/:model_name/config", h.modelConfig)
	r.POST("/models/:model_name/predict", h.predict)
	r.POST("/models/:model_name/predict_batch", h.predictBatch)
	r.POST("/models/:model_name/predict_image", h.predictImage)
	r.POST("/models/:model_name/one_shot_ocr", h.oneShotOcr)
	r.POST("/models/:model_name/ocr", h.wholeImageOcr)
	if h.sessions != nil {
		r.POST("/api/sessions/alloc", h.sessions.alloc)
		r.POST("/api/sessions/:sessionID/release", h.sessions.releaseHandler)
		r.GET("/ws/:sessionID", h.sessions.serveWS)
	}
	return r
}

// readFrame pulls the required multipart image field off the request.
func readFrame(c *gin.Context) (iface.Frame, bool) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, iface.ErrResponse("image file is required"))
		return iface.Frame{}, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, iface.ErrResponse("unexpected server error"))
		return iface.Frame{}, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, iface.ErrResponse("unexpected server error"))
		return iface.Frame{}, false
	}
	return iface.Frame{
		Bytes:       data,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, true
}

func (h *handler) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, iface.OkResponse(gin.H{"models": h.models.ListModels()}))
}

func (h *handler) loadAll(c *gin.Context) {
	c.JSON(http.StatusOK, iface.OkResponse(h.models.LoadAll(c.Request.Context())))
}

func (h *handler) loadModel(c *gin.Context) {
	force := c.Query("force") == "true"
	err := h.models.Load(c.Request.Context(), c.Param("model_name"), force)
	if err != nil {
		h.modelError(c, err)
		return
	}
	c.JSON(http.StatusOK, iface.OkResponse(gin.H{"loaded": true}))
}

func (h *handler) modelLabels(c *gin.Context) {
	labels, err := h.models.Labels(c.Param("model_name"))
	if err != nil {
		h.modelError(c, err)
		return
	}
	c.JSON(http.StatusOK, iface.OkResponse(labels))
}

func (h *handler) modelConfig(c *gin.Context) {
	cfg, err := h.models.Config(c.Param("model_name"))
	if err != nil {
		h.modelError(c, err)
		return
	}
	c.JSON(http.StatusOK, iface.OkResponse(cfg))
}

func (h *handler) predict(c *gin.Context) {
	frame, ok := readFrame(c)
	if !ok {
		return
	}
	status, resp := h.pipe.RunDetect(c.Request.Context(), frame, c.Param("model_name"))
	c.JSON(status, resp)
}

func (h *handler) predictBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["images"]) == 0 {
		c.JSON(http.StatusBadRequest, iface.ErrResponse("at least one image file is required"))
		return
	}
	frames := make([]iface.Frame, 0, len(form.File["images"]))
	for _, fileHeader := range form.File["images"] {
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, iface.ErrResponse("unexpected server error"))
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, iface.ErrResponse("unexpected server error"))
			return
		}
		frames = append(frames, iface.Frame{
			Bytes:       data,
			ContentType: fileHeader.Header.Get("Content-Type"),
		})
	}
	status, resp := h.pipe.RunBatchDetect(c.Request.Context(), frames, c.Param("model_name"))
	c.JSON(status, resp)
}

func (h *handler) predictImage(c *gin.Context) {
	frame, ok := readFrame(c)
	if !ok {
		return
	}
	modelID := c.Param("model_name")
	regions, err := h.models.Detect(c.Request.Context(), frame, modelID)
	if err != nil {
		h.modelError(c, err)
		return
	}
	annotated, err := engine.Annotate(frame, regions)
	if err != nil {
		logger.Log().Error("annotate failed", zap.String("model", modelID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, iface.ErrResponse("unexpected server error"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", annotated)
}

func (h *handler) oneShotOcr(c *gin.Context) {
	frame, ok := readFrame(c)
	if !ok {
		return
	}
	status, resp := h.pipe.RunLayoutOcr(c.Request.Context(), frame, c.Param("model_name"))
	c.JSON(status, resp)
}

func (h *handler) wholeImageOcr(c *gin.Context) {
	frame, ok := readFrame(c)
	if !ok {
		return
	}
	status, resp := h.pipe.RunWholeImageOcr(c.Request.Context(), frame)
	c.JSON(status, resp)
}

// modelError maps registry errors at the HTTP boundary. Anything that
// is not a resolution failure stays a generic server error; the cause
// is logged, not returned.
func (h *handler) modelError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrModelNotFound) {
		c.JSON(http.StatusNotFound, iface.ErrResponse("Invalid Model"))
		return
	}
	logger.Log().Error("model operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, iface.ErrResponse("unexpected server error"))
}
