package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

const (
	streamEnd        = "END"
	streamTierPrefix = "tier="
	streamExt        = ".webm"
)

// StreamHandler handles WebSocket audio streaming
type StreamHandler struct {
	pool     Submitter
	catalog  *transcription.Catalog
	tempDir  string
	maxBytes int
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(pool Submitter, catalog *transcription.Catalog, tempDir string, maxSizeMB int) *StreamHandler {
	return &StreamHandler{
		pool:     pool,
		catalog:  catalog,
		tempDir:  tempDir,
		maxBytes: maxSizeMB * 1024 * 1024,
	}
}

// Upgrade rejects plain HTTP requests to the stream endpoint.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle reads one recording per connection. Text frames are control
// messages: "tier=<label>" picks the tier, "END" finishes the recording and
// anything else names it. Binary frames carry the media bytes. The tier may
// also be given as the "tier" query parameter.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer      bytes.Buffer
		requestName string
		tierLabel   = c.Query("tier")
		jobID       = uuid.New().String()
	)
	logger := log.With().Str("job_id", jobID).Logger()
	logger.Info().Msg("WebSocket connection established")

read:
	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.Warn().Err(err).Msg("WebSocket closed before END")
			return
		}

		if messageType == websocket.TextMessage {
			msg := strings.TrimSpace(string(message))
			switch {
			case msg == streamEnd:
				logger.Info().Int("bytes", buffer.Len()).Msg("Received END signal")
				break read
			case strings.HasPrefix(msg, streamTierPrefix):
				tierLabel = strings.TrimPrefix(msg, streamTierPrefix)
			case len(msg) > 0 && len(msg) < 200:
				requestName = msg
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if buffer.Len()+len(message) > h.maxBytes {
				h.reply(c, fiber.Map{"error": "File too large", "code": "ERR_FILE_TOO_LARGE"})
				return
			}
			buffer.Write(message)
		}
	}

	if buffer.Len() == 0 {
		h.reply(c, fiber.Map{"error": "No audio data received", "code": "ERR_NO_DATA"})
		return
	}

	tier, err := h.catalog.Resolve(tierLabel)
	if err != nil {
		h.reply(c, fiber.Map{"error": err.Error(), "code": "ERR_UNKNOWN_TIER"})
		return
	}

	if requestName == "" {
		requestName = "stream_recording"
	}

	path, contentID, _, err := saveMedia(h.tempDir, jobID, streamExt, buffer.WriteTo)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save stream buffer")
		h.reply(c, fiber.Map{"error": "Failed to save stream", "code": "ERR_SAVE_FAILED"})
		return
	}

	job := queue.NewJob(jobID, requestName, types.SourceStream, requestName+streamExt, path, tier)
	job.ContentID = contentID
	if err := h.pool.Submit(context.Background(), job); err != nil {
		logger.Error().Err(err).Msg("Failed to queue stream job")
		h.reply(c, fiber.Map{"error": "Failed to queue job", "code": "ERR_QUEUE_FAILED"})
		return
	}

	h.reply(c, fiber.Map{
		"job_id":     jobID,
		"status":     "queued",
		"tier":       tier.Label,
		"status_url": "/jobs/" + jobID,
	})
}

func (h *StreamHandler) reply(c *websocket.Conn, body fiber.Map) {
	msg, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Warn().Err(err).Msg("Failed to write WebSocket reply")
	}
}
