package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// DefaultWhisperCommand invokes the openai-whisper package.
var DefaultWhisperCommand = []string{"python", "-m", "whisper"}

// WhisperCLI runs Python Whisper as a subprocess and reads its JSON output.
type WhisperCLI struct {
	command  []string
	language string
	threads  int
	mu       sync.Mutex // one model in memory at a time
}

// NewWhisperCLI creates a CLI-backed engine. An empty command uses DefaultWhisperCommand.
func NewWhisperCLI(command []string, language string, threads int) *WhisperCLI {
	if len(command) == 0 {
		command = DefaultWhisperCommand
	}
	log.Info().Strs("command", command).Msg("Whisper CLI engine configured")
	return &WhisperCLI{
		command:  command,
		language: language,
		threads:  threads,
	}
}

// Transcribe runs Whisper with the tier's model on audioPath.
func (wt *WhisperCLI) Transcribe(ctx context.Context, audioPath string, tier Tier) ([]types.Segment, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	outDir, err := os.MkdirTemp("", "whisper-out-")
	if err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := append([]string{}, wt.command[1:]...)
	args = append(args,
		absAudioPath,
		"--model", tier.Model,
		"--output_dir", outDir,
		"--output_format", "json",
		"--fp16", "False",
		"--verbose", "False",
	)
	if wt.language != "" {
		args = append(args, "--language", wt.language)
	}
	if wt.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(wt.threads))
	}

	log.Info().Str("model", tier.Model).Str("audio", filepath.Base(audioPath)).Msg("Transcribing with Whisper CLI")

	cmd := exec.CommandContext(ctx, wt.command[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper exited: %w\nOutput: %s", err, string(output))
	}

	baseName := strings.TrimSuffix(filepath.Base(absAudioPath), filepath.Ext(absAudioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	segments, err := parseWhisperJSON(jsonData)
	if err != nil {
		return nil, err
	}

	log.Info().Int("segments", len(segments)).Str("model", tier.Model).Msg("Whisper CLI transcription completed")
	return segments, nil
}

// whisperOutput matches the JSON written by Whisper and returned by the sidecar.
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	ID    *int    `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// parseWhisperJSON converts Whisper output into segments. Segments without an
// id are numbered by position. Text is kept verbatim, leading space included.
func parseWhisperJSON(data []byte) ([]types.Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper JSON: %w", err)
	}
	return out.toSegments(), nil
}

func (o *whisperOutput) toSegments() []types.Segment {
	segments := make([]types.Segment, len(o.Segments))
	for i, seg := range o.Segments {
		id := i
		if seg.ID != nil {
			id = *seg.ID
		}
		segments[i] = types.Segment{
			ID:    id,
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		}
	}
	return segments
}
