package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// VideoFetcher downloads the audio track of an online video.
type VideoFetcher interface {
	storage.Fetcher
	// AudioExt is the extension of the fetched audio, e.g. ".opus".
	AudioExt() string
}

// YouTubeHandler handles YouTube video audio capture
type YouTubeHandler struct {
	pool     Submitter
	catalog  *transcription.Catalog
	videos   VideoFetcher
	tempDir  string
	maxBytes int64
}

// NewYouTubeHandler creates a new YouTube handler. A nil fetcher disables the route.
func NewYouTubeHandler(pool Submitter, catalog *transcription.Catalog, videos VideoFetcher, tempDir string, maxSizeMB int) *YouTubeHandler {
	return &YouTubeHandler{
		pool:     pool,
		catalog:  catalog,
		videos:   videos,
		tempDir:  tempDir,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// YouTubeRequest represents the request body
type YouTubeRequest struct {
	URL  string `json:"url" form:"url"`
	Name string `json:"name" form:"name"`
	Tier string `json:"tier" form:"tier"`
}

// Handle extracts the audio of a YouTube video and queues it for transcription.
func (h *YouTubeHandler) Handle(c *fiber.Ctx) error {
	if h.videos == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "YouTube import is not enabled", "ERR_SOURCE_DISABLED")
	}

	var req YouTubeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}

	if req.URL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "URL is required", "ERR_NO_URL")
	}

	videoID, err := storage.ExtractVideoID(req.URL)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid YouTube URL", "ERR_INVALID_URL")
	}

	tier, err := h.catalog.Resolve(req.Tier)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error(), "ERR_UNKNOWN_TIER")
	}

	if req.Name == "" {
		req.Name = "youtube_video"
	}
	ext := h.videos.AudioExt()

	jobID := uuid.New().String()
	log.Info().Str("job_id", jobID).Str("video_id", videoID).Msg("Capturing YouTube audio")

	ctx := c.UserContext()
	tempPath, contentID, size, err := saveMedia(h.tempDir, jobID, ext, func(w io.Writer) (int64, error) {
		return h.videos.Fetch(ctx, videoID, w, h.maxBytes)
	})
	if err != nil {
		log.Error().Err(err).Str("video_id", videoID).Msg("Failed to capture YouTube audio")
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			return errorJSON(c, fiber.StatusBadRequest, "File too large", "ERR_FILE_TOO_LARGE")
		case errors.Is(err, storage.ErrNotAccessible):
			return errorJSON(c, fiber.StatusBadRequest, "Video not accessible (may be private or doesn't exist)", "ERR_FILE_NOT_ACCESSIBLE")
		default:
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to capture YouTube audio", "ERR_DOWNLOAD_FAILED")
		}
	}
	log.Info().Str("job_id", jobID).Int64("bytes", size).Msg("YouTube audio saved")

	job := queue.NewJob(jobID, req.Name, types.SourceYouTube, req.Name+ext, tempPath, tier)
	job.ContentID = contentID
	if err := h.pool.Submit(ctx, job); err != nil {
		return submitError(c, jobID, err)
	}

	return queuedJSON(c, job, "YouTube audio captured, processing started")
}
