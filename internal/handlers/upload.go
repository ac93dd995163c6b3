package handlers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// UploadHandler handles file uploads
type UploadHandler struct {
	pool      Submitter
	catalog   *transcription.Catalog
	tempDir   string
	maxSizeMB int
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(pool Submitter, catalog *transcription.Catalog, tempDir string, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		pool:      pool,
		catalog:   catalog,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
	}
}

// Handle accepts a multipart form with "file", optional "tier" and "name",
// saves the media and queues a transcription job.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "No file uploaded", "ERR_NO_FILE")
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
	}

	if !transcription.ValidateMediaFormat(file.Filename) {
		return errorJSON(c, fiber.StatusBadRequest,
			"Unsupported media format (accepted: "+strings.Join(transcription.SupportedFormats, ", ")+")",
			"ERR_INVALID_FORMAT")
	}

	tier, err := h.catalog.Resolve(c.FormValue("tier"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error(), "ERR_UNKNOWN_TIER")
	}

	src, err := file.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Failed to read uploaded file", "ERR_READ_FAILED")
	}
	defer src.Close()

	jobID := uuid.New().String()
	path, contentID, size, err := saveMedia(h.tempDir, jobID, strings.ToLower(filepath.Ext(file.Filename)), func(w io.Writer) (int64, error) {
		return io.Copy(w, src)
	})
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to save uploaded file")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save file", "ERR_SAVE_FAILED")
	}
	log.Info().Str("job_id", jobID).Str("file", file.Filename).Int64("bytes", size).Msg("Upload saved")

	job := queue.NewJob(jobID, c.FormValue("name"), types.SourceUpload, filepath.Base(file.Filename), path, tier)
	job.ContentID = contentID
	if err := h.pool.Submit(c.UserContext(), job); err != nil {
		return submitError(c, jobID, err)
	}

	return queuedJSON(c, job, "File uploaded successfully, processing started")
}
