package transcription

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// SupportedFormats lists the accepted upload extensions, audio and video.
var SupportedFormats = []string{
	".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".opus",
	".mp4", ".mkv", ".mov", ".avi",
}

// ValidateMediaFormat checks if the file extension is supported
func ValidateMediaFormat(filename string) bool {
	return slices.Contains(SupportedFormats, strings.ToLower(filepath.Ext(filename)))
}

// NormalizeAudio extracts the audio track of inputPath into a 16kHz mono WAV file in tempDir.
func NormalizeAudio(ctx context.Context, tempDir, inputPath string) (string, error) {
	outputPath := filepath.Join(tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vn",               // Drop video
		"-ar", "16000",      // 16kHz sample rate
		"-ac", "1",          // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}

	return outputPath, nil
}

// WAVDuration reads the playback length from a WAV header.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid WAV file", filepath.Base(path))
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("failed to locate PCM data: %w", err)
	}
	if d.AvgBytesPerSec == 0 {
		return 0, fmt.Errorf("%s reports a zero byte rate", filepath.Base(path))
	}
	return time.Duration(float64(d.PCMSize) / float64(d.AvgBytesPerSec) * float64(time.Second)), nil
}
