package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/cache"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
)

// Submitter queues transcription jobs.
type Submitter interface {
	Submit(ctx context.Context, job *queue.Job) error
}

func errorJSON(c *fiber.Ctx, status int, msg, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

// submitError maps a Submit failure to a response.
func submitError(c *fiber.Ctx, jobID string, err error) error {
	log.Error().Err(err).Str("job_id", jobID).Msg("Failed to queue job")
	if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrPoolStopped) {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Server is busy, try again later", "ERR_QUEUE_FULL")
	}
	return errorJSON(c, fiber.StatusInternalServerError, "Failed to queue job", "ERR_QUEUE_FAILED")
}

func queuedJSON(c *fiber.Ctx, job *queue.Job, message string) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":     job.ID,
		"status":     "queued",
		"tier":       job.Tier.Label,
		"message":    message,
		"status_url": "/jobs/" + job.ID,
	})
}

// saveMedia creates tempDir/<jobID><ext>, lets fill write the media into it
// and returns the path and the content identity of the bytes written.
func saveMedia(tempDir, jobID, ext string, fill func(w io.Writer) (int64, error)) (string, string, int64, error) {
	path := filepath.Join(tempDir, fmt.Sprintf("%s%s", jobID, ext))
	out, err := os.Create(path)
	if err != nil {
		return "", "", 0, err
	}

	id := cache.NewIdentityWriter()
	n, err := fill(io.MultiWriter(out, id))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", "", n, err
	}
	return path, id.ID(), n, nil
}
