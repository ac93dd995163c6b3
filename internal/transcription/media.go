package transcription

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// Normalizer converts an uploaded media file into a WAV file the backend can read.
type Normalizer func(ctx context.Context, inputPath string) (string, error)

// MediaEngine normalizes uploaded media, enforces the duration limit and
// delegates recognition to a backend engine.
type MediaEngine struct {
	backend     Engine
	normalize   Normalizer
	maxDuration time.Duration
}

// MediaOption configures a MediaEngine.
type MediaOption func(*MediaEngine)

// WithNormalizer replaces the ffmpeg normalizer.
func WithNormalizer(n Normalizer) MediaOption {
	return func(m *MediaEngine) { m.normalize = n }
}

// WithMaxDuration rejects audio longer than d. Zero disables the check.
func WithMaxDuration(d time.Duration) MediaOption {
	return func(m *MediaEngine) { m.maxDuration = d }
}

// NewMediaEngine wraps backend. Normalized files are written to tempDir.
func NewMediaEngine(backend Engine, tempDir string, opts ...MediaOption) *MediaEngine {
	m := &MediaEngine{
		backend: backend,
		normalize: func(ctx context.Context, inputPath string) (string, error) {
			return NormalizeAudio(ctx, tempDir, inputPath)
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Transcribe implements Engine.
func (m *MediaEngine) Transcribe(ctx context.Context, mediaPath string, tier Tier) ([]types.Segment, error) {
	normalizedPath, err := m.normalize(ctx, mediaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: audio normalization failed: %w", ErrUnsupportedFormat, err)
	}
	defer func() {
		if err := os.Remove(normalizedPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", normalizedPath).Msg("Failed to remove normalized audio")
		}
	}()

	if m.maxDuration > 0 {
		d, err := WAVDuration(normalizedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read audio duration: %w", err)
		}
		if d > m.maxDuration {
			return nil, fmt.Errorf("%w: %s is longer than %s", ErrTooLong, d.Round(time.Second), m.maxDuration)
		}
	}

	return m.backend.Transcribe(ctx, normalizedPath, tier)
}

// IsAvailable reports the backend's availability when it can be probed.
func (m *MediaEngine) IsAvailable(ctx context.Context) bool {
	if p, ok := m.backend.(Prober); ok {
		return p.IsAvailable(ctx)
	}
	return true
}
