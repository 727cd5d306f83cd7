// internal/handler/handler.go
package handler

import (
	"context"
	"encoding/base64"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/rmbg-service/internal/cache"
	"github.com/SyedDaiam9101/rmbg-service/internal/colors"
	"github.com/SyedDaiam9101/rmbg-service/internal/imgcodec"
	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
	"github.com/SyedDaiam9101/rmbg-service/internal/metrics"
	"github.com/SyedDaiam9101/rmbg-service/internal/middleware"
	"github.com/SyedDaiam9101/rmbg-service/internal/segmentation"
	"github.com/SyedDaiam9101/rmbg-service/internal/sizing"
)

const (
	bgTypeTransparent = "transparent"
	bgTypeColor       = "color"
	defaultBgColor    = "#00000000"
)

// Options holds request limits and the metadata reported by /api/info
type Options struct {
	MaxUploadBytes int64
	MaxImageWidth  int
	MaxImageHeight int
	// MaxImagePixels bounds width*height of a decoded upload
	MaxImagePixels int64

	AppName     string
	AppVersion  string
	RMBGVersion string
}

// Handler serves the background removal API
type Handler struct {
	pipeline *segmentation.Pipeline
	cache    *cache.Cache
	opts     Options
	logger   *zap.Logger
}

// New creates a Handler. A nil pipeline makes all processing endpoints
// answer 503; a nil cache disables result caching.
func New(pipeline *segmentation.Pipeline, c *cache.Cache, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxImageWidth <= 0 {
		opts.MaxImageWidth = 3000
	}
	if opts.MaxImageHeight <= 0 {
		opts.MaxImageHeight = 3000
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = imgcodec.DefaultMaxPixels
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{pipeline: pipeline, cache: c, opts: opts, logger: logger}
}

// RemoveBackgroundResponse is the JSON result of both processing endpoints
type RemoveBackgroundResponse struct {
	ImageBase64    string               `json:"image_base64"`
	OriginalBase64 string               `json:"original_base64"`
	Metrics        segmentation.Metrics `json:"metrics"`
	BgColorInfo    string               `json:"bg_color_info"`
	Cached         bool                 `json:"cached"`
}

// Base64Request is the body of POST /api/remove-background/base64
type Base64Request struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	BgColor     string `json:"bg_color"`
}

// RemoveBackground handles a multipart upload
func (h *Handler) RemoveBackground(c *gin.Context) {
	if h.pipeline == nil {
		abortWithDetail(c, http.StatusServiceUnavailable, "segmentation service is not initialized")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, "a file field is required")
		return
	}
	if file.Size > h.opts.MaxUploadBytes {
		abortWithDetail(c, http.StatusRequestEntityTooLarge, "uploaded file is too large")
		return
	}
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		abortWithDetail(c, http.StatusBadRequest, "uploaded file must be an image")
		return
	}

	var bg string
	if c.DefaultPostForm("bg_type", bgTypeTransparent) == bgTypeColor {
		bg = c.DefaultPostForm("bg_color", defaultBgColor)
		if _, err := colors.ParseStrict(bg); err != nil {
			abortWithError(c, err)
			return
		}
	}

	f, err := file.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.opts.MaxUploadBytes+1))
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.process(c, data, bg)
}

// RemoveBackgroundBase64 handles a JSON body with a base64 or data-URI image
func (h *Handler) RemoveBackgroundBase64(c *gin.Context) {
	if h.pipeline == nil {
		abortWithDetail(c, http.StatusServiceUnavailable, "segmentation service is not initialized")
		return
	}

	var req Base64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, "image_base64 is required")
		return
	}
	if req.BgColor != "" {
		if _, err := colors.ParseStrict(req.BgColor); err != nil {
			abortWithError(c, err)
			return
		}
	}

	data, err := imgcodec.DecodeBase64(req.ImageBase64)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		abortWithDetail(c, http.StatusRequestEntityTooLarge, "uploaded file is too large")
		return
	}

	h.process(c, data, req.BgColor)
}

// process decodes, caps, segments and writes the response. bg is a
// validated color string or empty for transparent.
func (h *Handler) process(c *gin.Context, data []byte, bg string) {
	ctx := c.Request.Context()
	requestID := middleware.GetRequestID(ctx)

	img, format, err := imgcodec.DecodeWithLimit(data, h.opts.MaxImagePixels)
	if err != nil {
		abortWithError(c, err)
		return
	}
	img = sizing.CapToBounds(img, h.opts.MaxImageWidth, h.opts.MaxImageHeight)

	var bgColor *colors.Color
	bgKey := ""
	if bg != "" {
		parsed, _ := colors.ParseStrict(bg)
		bgColor = &parsed
		bgKey = colors.ToHex(parsed)
	}

	h.logger.Info("processing image",
		zap.String("request_id", requestID),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.String("background", colors.Describe(bgColor)))

	key := cache.Key(data, bgKey)
	if entry := h.lookup(ctx, key, requestID); entry != nil {
		h.respond(c, img, entry.Image, entry.Metrics, bgColor, true)
		return
	}

	res, err := h.pipeline.Segment(ctx, img, bg)
	if err != nil {
		h.logger.Error("segmentation failed", zap.String("request_id", requestID), zap.Error(err))
		abortWithError(c, err)
		return
	}

	out, err := imgcodec.EncodePNG(res.Image)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.cache.Set(ctx, key, &cache.Entry{Image: out, Background: bgKey, Metrics: res.Metrics}); err != nil {
		metrics.RecordCacheError()
		h.logger.Warn("failed to set cache", zap.String("request_id", requestID), zap.Error(err))
	}

	h.respond(c, img, out, res.Metrics, res.Background, false)
}

func (h *Handler) lookup(ctx context.Context, key, requestID string) *cache.Entry {
	if h.cache == nil {
		return nil
	}
	entry, err := h.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheError()
		h.logger.Warn("failed to get cache", zap.String("request_id", requestID), zap.Error(err))
		return nil
	case entry == nil:
		metrics.RecordCacheMiss()
		return nil
	}
	metrics.RecordCacheHit()
	h.logger.Info("cache hit", zap.String("request_id", requestID), zap.String("cache_key", key))
	return entry
}

func (h *Handler) respond(c *gin.Context, original image.Image, out []byte, m segmentation.Metrics, bg *colors.Color, cached bool) {
	if c.Query("format") == "png" {
		c.Data(http.StatusOK, "image/png", out)
		return
	}

	orig, err := imgcodec.ImageToBase64(original)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, RemoveBackgroundResponse{
		ImageBase64:    base64.StdEncoding.EncodeToString(out),
		OriginalBase64: orig,
		Metrics:        m,
		BgColorInfo:    colors.Describe(bg),
		Cached:         cached,
	})
}

// ModelInfo reports the engine's load status and tensor signature
func (h *Handler) ModelInfo(c *gin.Context) {
	if h.pipeline == nil {
		abortWithDetail(c, http.StatusServiceUnavailable, "model manager is not initialized")
		return
	}
	c.JSON(http.StatusOK, h.pipeline.Engine().Describe())
}

// Info reports application metadata
func (h *Handler) Info(c *gin.Context) {
	resp := gin.H{
		"app_name":     h.opts.AppName,
		"app_version":  h.opts.AppVersion,
		"rmbg_version": h.opts.RMBGVersion,
	}
	if h.pipeline != nil {
		w, ht := h.pipeline.Engine().InputSize()
		resp["model_input_size"] = []int{w, ht}
	}
	c.JSON(http.StatusOK, resp)
}

// Health reports liveness and whether the model is loaded
func (h *Handler) Health(c *gin.Context) {
	model := inference.StatusNotLoaded
	if h.pipeline != nil {
		model = h.pipeline.Engine().Describe().Status
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": model})
}
