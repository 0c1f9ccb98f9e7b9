package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"voicecaption/models"
	"voicecaption/repository"
	"voicecaption/storage"
)

// Pipeline runs one caption request
type Pipeline interface {
	Run(ctx context.Context, req models.CaptionRequest) (models.CompositionResult, error)
}

// multipart overhead allowed on top of the video size limit
const formOverhead = 1 << 20

// VideoHandler serves uploads and the assets they produce
type VideoHandler struct {
	pipeline  Pipeline
	catalog   repository.AssetCatalog
	store     *storage.Store
	timeout   time.Duration
	maxUpload int64
	log       zerolog.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(pipeline Pipeline, catalog repository.AssetCatalog, store *storage.Store, timeout time.Duration, maxUpload int64, log zerolog.Logger) *VideoHandler {
	return &VideoHandler{
		pipeline:  pipeline,
		catalog:   catalog,
		store:     store,
		timeout:   timeout,
		maxUpload: maxUpload,
		log:       log.With().Str("component", "http").Logger(),
	}
}

// Upload handles POST /api/upload
func (h *VideoHandler) Upload(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)
	}

	fileHeader, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Video file too large", RequestID: requestID})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No video file provided", RequestID: requestID})
		return
	}

	text := c.PostForm("text")
	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Subtitle text is required", RequestID: requestID})
		return
	}
	gender := c.PostForm("gender")
	if strings.TrimSpace(gender) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Gender is required", RequestID: requestID})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Str("request_id", requestID).Msg("open uploaded file")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:     models.StageVideoIngest.PublicMessage(),
			Stage:     string(models.StageVideoIngest),
			RequestID: requestID,
		})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.pipeline.Run(ctx, models.CaptionRequest{
		RequestID: requestID,
		Video:     file,
		Text:      text,
		Voice:     models.VoiceStyleFromSelector(gender),
	})
	if err != nil {
		h.writeFailure(c, requestID, err)
		return
	}

	resp := models.UploadResponse{
		RequestID: result.RequestID,
		VideoID:   result.Asset.ID,
		VideoURL:  downloadURL(result.Asset.ID),
	}
	if result.Raw != nil {
		resp.RawVideoID = result.Raw.ID
	}
	if result.Speech != nil {
		resp.VoiceID = result.Speech.ID
	}
	c.JSON(http.StatusOK, resp)
}

// writeFailure maps a pipeline error to a response without internal detail
func (h *VideoHandler) writeFailure(c *gin.Context, requestID string, err error) {
	if errors.Is(err, models.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", RequestID: requestID})
		return
	}

	var failure *models.FailureReason
	if errors.As(err, &failure) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, models.ErrUploadTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, models.ErrUnsupportedMedia), errors.Is(err, models.ErrEmptyUpload):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, models.ErrorResponse{
			Error:     failure.Message,
			Stage:     string(failure.Stage),
			RequestID: requestID,
		})
		return
	}

	h.log.Error().Err(err).Str("request_id", requestID).Msg("unexpected pipeline error")
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:     "An internal error occurred. Please try again.",
		RequestID: requestID,
	})
}

// GetAsset handles GET /api/assets/:id
func (h *VideoHandler) GetAsset(c *gin.Context) {
	asset, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, asset.Response(downloadURL(asset.ID)))
}

// Download handles GET /api/assets/:id/download
func (h *VideoHandler) Download(c *gin.Context) {
	asset, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.store.Exists(asset.Path) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "File not found", RequestID: c.GetString(requestIDKey)})
		return
	}
	c.FileAttachment(asset.Path, filepath.Base(asset.Path))
}

// Delete handles DELETE /api/assets/:id
func (h *VideoHandler) Delete(c *gin.Context) {
	asset, ok := h.lookup(c)
	if !ok {
		return
	}
	requestID := c.GetString(requestIDKey)

	if err := h.remove(c.Request.Context(), asset); err != nil {
		h.log.Error().Err(err).Str("request_id", requestID).Str("asset_id", asset.ID).Msg("delete asset")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to delete file", RequestID: requestID})
		return
	}

	h.log.Info().Str("request_id", requestID).Str("asset_id", asset.ID).Msg("asset deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": asset.ID})
}

// DeleteFiles handles POST /delete: removes the raw, speech and composed assets of an upload.
// Unknown IDs are skipped.
func (h *VideoHandler) DeleteFiles(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	var req models.DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs()) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No files to delete", RequestID: requestID})
		return
	}

	deleted := []string{}
	for _, id := range req.IDs() {
		asset, err := h.catalog.Get(c.Request.Context(), id)
		if errors.Is(err, models.ErrAssetNotFound) {
			continue
		}
		if err == nil {
			err = h.remove(c.Request.Context(), asset)
		}
		if err != nil {
			h.log.Error().Err(err).Str("request_id", requestID).Str("asset_id", id).Msg("delete asset")
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to delete files", RequestID: requestID})
			return
		}
		deleted = append(deleted, id)
	}

	h.log.Info().Str("request_id", requestID).Strs("asset_ids", deleted).Msg("assets deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Files deleted successfully", "deleted": deleted})
}

// remove deletes the stored file, then the catalog entry
func (h *VideoHandler) remove(ctx context.Context, asset models.MediaAsset) error {
	if err := h.store.Delete(asset.Path); err != nil {
		return err
	}
	if err := h.catalog.Delete(ctx, asset.ID); err != nil && !errors.Is(err, models.ErrAssetNotFound) {
		return err
	}
	return nil
}

func (h *VideoHandler) lookup(c *gin.Context) (models.MediaAsset, bool) {
	asset, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Asset not found", RequestID: c.GetString(requestIDKey)})
			return models.MediaAsset{}, false
		}
		h.log.Error().Err(err).Str("asset_id", c.Param("id")).Msg("lookup asset")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "An internal error occurred. Please try again.", RequestID: c.GetString(requestIDKey)})
		return models.MediaAsset{}, false
	}
	return asset, true
}

func downloadURL(id string) string {
	return fmt.Sprintf("/api/assets/%s/download", id)
}
