package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

const (
	defaultWhisperURL     = "http://localhost:8387"
	defaultWhisperTimeout = 30 * time.Minute
)

// WhisperHTTPConfig configures the faster-whisper sidecar client.
type WhisperHTTPConfig struct {
	URL      string
	Language string
	Timeout  time.Duration
}

// WhisperHTTP posts audio to a faster-whisper HTTP sidecar.
type WhisperHTTP struct {
	cfg    WhisperHTTPConfig
	client *http.Client
}

// NewWhisperHTTP creates a sidecar-backed engine.
func NewWhisperHTTP(cfg WhisperHTTPConfig) *WhisperHTTP {
	if cfg.URL == "" {
		cfg.URL = defaultWhisperURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultWhisperTimeout
	}
	return &WhisperHTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// IsAvailable checks if the sidecar is reachable.
func (p *WhisperHTTP) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe uploads audioPath and returns the sidecar's segments.
func (p *WhisperHTTP) Transcribe(ctx context.Context, audioPath string, tier Tier) ([]types.Segment, error) {
	body, contentType, err := p.buildForm(audioPath, tier)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("whisper error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result whisperOutput
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	return result.toSegments(), nil
}

func (p *WhisperHTTP) buildForm(audioPath string, tier Tier) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("read audio file: %w", err)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer f.Close()
		part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		_ = writer.WriteField("model", tier.Model)
		if p.cfg.Language != "" {
			_ = writer.WriteField("language", p.cfg.Language)
		}
		pw.CloseWithError(writer.Close())
	}()

	return pr, writer.FormDataContentType(), nil
}
