package handlers

import (
	"errors"
	"io"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// GDriveHandler handles Google Drive link processing
type GDriveHandler struct {
	pool     Submitter
	catalog  *transcription.Catalog
	fetcher  storage.Fetcher
	tempDir  string
	maxBytes int64
}

// NewGDriveHandler creates a new Google Drive handler
func NewGDriveHandler(pool Submitter, catalog *transcription.Catalog, fetcher storage.Fetcher, tempDir string, maxSizeMB int) *GDriveHandler {
	return &GDriveHandler{
		pool:     pool,
		catalog:  catalog,
		fetcher:  fetcher,
		tempDir:  tempDir,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL  string `json:"url" form:"url"`
	Name string `json:"name" form:"name"`
	Tier string `json:"tier" form:"tier"`
	// Filename names the download; the media container is sniffed by ffmpeg.
	Filename string `json:"filename" form:"filename"`
}

// Handle downloads a shared Drive file and queues it for transcription.
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}

	if req.URL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "URL is required", "ERR_NO_URL")
	}

	fileID, err := storage.ExtractDriveFileID(req.URL)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid Google Drive URL", "ERR_INVALID_URL")
	}

	tier, err := h.catalog.Resolve(req.Tier)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error(), "ERR_UNKNOWN_TIER")
	}

	if req.Name == "" {
		req.Name = "gdrive_file"
	}
	filename := path.Base(req.Filename)
	if req.Filename == "" || !transcription.ValidateMediaFormat(filename) {
		filename = req.Name + ".mp3"
	}

	jobID := uuid.New().String()
	log.Info().Str("job_id", jobID).Str("file_id", fileID).Msg("Downloading from Google Drive")

	ctx := c.UserContext()
	tempPath, contentID, size, err := saveMedia(h.tempDir, jobID, strings.ToLower(path.Ext(filename)), func(w io.Writer) (int64, error) {
		return h.fetcher.Fetch(ctx, fileID, w, h.maxBytes)
	})
	if err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("Failed to download from Google Drive")
		switch {
		case errors.Is(err, storage.ErrNotAccessible):
			return errorJSON(c, fiber.StatusBadRequest, storage.ErrNotAccessible.Error(), "ERR_FILE_NOT_ACCESSIBLE")
		case errors.Is(err, storage.ErrTooLarge):
			return errorJSON(c, fiber.StatusBadRequest, "File too large", "ERR_FILE_TOO_LARGE")
		default:
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to download file from Google Drive", "ERR_DOWNLOAD_FAILED")
		}
	}
	log.Info().Str("job_id", jobID).Int64("bytes", size).Msg("Google Drive file saved")

	job := queue.NewJob(jobID, req.Name, types.SourceGDrive, filename, tempPath, tier)
	job.ContentID = contentID
	if err := h.pool.Submit(ctx, job); err != nil {
		return submitError(c, jobID, err)
	}

	return queuedJSON(c, job, "Google Drive file downloaded, processing started")
}
