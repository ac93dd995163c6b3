package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobReader reads persisted jobs.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*types.JobRecord, error)
	ListJobs(ctx context.Context, limit int) ([]types.JobRecord, error)
}

// TranscriptReader returns stored subtitle documents.
type TranscriptReader interface {
	ReadTranscript(path string) ([]byte, error)
}

// JobsHandler serves job status, history and .srt downloads.
type JobsHandler struct {
	jobs        JobReader
	transcripts TranscriptReader
}

func NewJobsHandler(jobs JobReader, transcripts TranscriptReader) *JobsHandler {
	return &JobsHandler{jobs: jobs, transcripts: transcripts}
}

type jobResponse struct {
	types.JobRecord
	PreviewMessage string `json:"preview_message,omitempty"`
	DownloadURL    string `json:"download_url,omitempty"`
}

func newJobResponse(rec types.JobRecord) jobResponse {
	resp := jobResponse{JobRecord: rec}
	if rec.Status == types.StatusCompleted {
		resp.DownloadURL = "/transcripts/" + rec.JobID + "/srt"
		if rec.PreviewCount > 0 {
			resp.PreviewMessage = fmt.Sprintf("Previewing first %d segments of transcript.", rec.PreviewCount)
		}
	}
	return resp
}

// Get returns one job with its preview once completed.
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	rec, err := h.jobs.GetJob(c.UserContext(), c.Params("id"))
	if errors.Is(err, storage.ErrJobNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Job not found", "ERR_NOT_FOUND")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read job")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read job", "ERR_INTERNAL")
	}
	return c.JSON(newJobResponse(*rec))
}

// List returns the most recent jobs, newest first.
func (h *JobsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), "ERR_INVALID_LIMIT")
	}

	recs, err := h.jobs.ListJobs(c.UserContext(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list transcripts", "ERR_INTERNAL")
	}

	out := make([]jobResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newJobResponse(rec))
	}
	return c.JSON(out)
}

// Download sends the full subtitle document as an attachment named after
// the submitted file.
func (h *JobsHandler) Download(c *fiber.Ctx) error {
	rec, err := h.jobs.GetJob(c.UserContext(), c.Params("id"))
	if errors.Is(err, storage.ErrJobNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Transcript not found", "ERR_NOT_FOUND")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read job")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read job", "ERR_INTERNAL")
	}
	if rec.Status != types.StatusCompleted || rec.LocalPath == "" {
		return errorJSON(c, fiber.StatusConflict, "Transcript is not ready (status "+rec.Status+")", "ERR_NOT_READY")
	}

	content, err := h.transcripts.ReadTranscript(rec.LocalPath)
	if err != nil {
		log.Error().Err(err).Str("job_id", rec.JobID).Msg("Failed to read transcript file")
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to read transcript file", "ERR_READ_FAILED")
	}

	c.Attachment(subtitle.SRTFilename(rec.Filename))
	c.Set(fiber.HeaderContentType, subtitle.MIMEType)
	return c.Send(content)
}

// TiersHandler lists the selectable tiers.
type TiersHandler struct {
	catalog *transcription.Catalog
}

func NewTiersHandler(catalog *transcription.Catalog) *TiersHandler {
	return &TiersHandler{catalog: catalog}
}

func (h *TiersHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tiers":   h.catalog.Offered(),
		"default": h.catalog.Default().Label,
	})
}
