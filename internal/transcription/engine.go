package transcription

import (
	"context"
	"errors"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

var (
	// ErrRecognitionFailed marks any failure of the recognition step.
	ErrRecognitionFailed = errors.New("recognition failed")
	// ErrUnsupportedFormat is returned for media the service does not accept.
	ErrUnsupportedFormat = errors.New("unsupported media format")
	// ErrTooLong is returned when normalized audio exceeds the configured duration limit.
	ErrTooLong = errors.New("audio exceeds maximum duration")
)

// Engine turns an audio file into recognition segments using the model of the given tier.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, tier Tier) ([]types.Segment, error)
}

// Prober is implemented by engines that can report backend availability.
type Prober interface {
	IsAvailable(ctx context.Context) bool
}
