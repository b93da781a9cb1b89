package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"satnorm/internal/config"
	"satnorm/internal/domain"
	"satnorm/internal/service"
)

type Handler struct {
	service service.NormalizeService
	cfg     *config.Config
	log     *zap.Logger
}

func NewHandler(service service.NormalizeService, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

func (h *Handler) Normalize(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.App.MaxUploadSize+1<<20)

	file, err := c.FormFile("file")
	if err != nil {
		h.log.Error("Failed to get file from form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "No archive file provided"})
		return
	}

	if file.Size > h.cfg.App.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	if strings.ToLower(filepath.Ext(file.Filename)) != ".zip" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File type not allowed. Please upload a ZIP file"})
		return
	}

	var target *float64
	if raw := strings.TrimSpace(c.PostForm("target_intensity")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target intensity value"})
			return
		}
		if v < 0 || v > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Target intensity must be between 0 and 255"})
			return
		}
		target = &v
	}

	f, err := file.Open()
	if err != nil {
		h.log.Error("Failed to open file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.log.Error("Failed to read file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	run, err := h.service.Normalize(c.Request.Context(), data, target)
	if err != nil {
		h.log.Error("Failed to normalize archive",
			zap.String("filename", file.Filename),
			zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (h *Handler) ListResults(c *gin.Context) {
	names, err := h.service.ListResults(c.Request.Context(), c.Param("run"))
	if err != nil {
		h.log.Error("Failed to list results", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if len(names) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": c.Param("run"), "images": names})
}

func (h *Handler) DownloadResult(c *gin.Context) {
	name := c.Param("name")
	rc, err := h.service.OpenResult(c.Request.Context(), c.Param("run"), name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.log.Error("Failed to open result", zap.String("name", name), zap.Error(err))
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.DataFromReader(http.StatusOK, -1, "image/png", rc, nil)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyBatch), errors.Is(err, domain.ErrInvalidArchive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
