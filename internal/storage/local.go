package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

const maxNameLength = 100

// LocalStorage handles saving transcripts to the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// transcriptMeta is written next to every .srt file.
type transcriptMeta struct {
	JobID        string    `json:"job_id"`
	RequestName  string    `json:"request_name"`
	SourceType   string    `json:"source_type"`
	Filename     string    `json:"filename"`
	ContentID    string    `json:"content_id"`
	Tier         string    `json:"tier"`
	Model        string    `json:"model"`
	SegmentCount int       `json:"segment_count"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"created_at"`
	LocalPath    string    `json:"local_path"`
}

// SaveTranscript writes the full subtitle document and a metadata sidecar
// under outputs/YYYY/MM/DD/ and returns the .srt path.
func (ls *LocalStorage) SaveTranscript(rec *types.JobRecord, tr subtitle.Transcript) (string, error) {
	now := ls.now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	// 20250123_143022_<job>_podcast_episode.srt
	baseFilename := fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), shortJobID(rec.JobID), sanitizeFilename(rec.RequestName))
	srtPath := filepath.Join(dateDir, baseFilename+subtitle.Extension)
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(srtPath, []byte(tr.Full), 0o644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}

	meta := transcriptMeta{
		JobID:        rec.JobID,
		RequestName:  rec.RequestName,
		SourceType:   rec.SourceType,
		Filename:     rec.Filename,
		ContentID:    rec.ContentID,
		Tier:         rec.Tier,
		Model:        rec.Model,
		SegmentCount: tr.Blocks,
		Cached:       rec.Cached,
		CreatedAt:    now,
		LocalPath:    srtPath,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return srtPath, nil
}

// ReadTranscript returns the subtitle document stored at path. Only files
// below the output directory are served.
func (ls *LocalStorage) ReadTranscript(path string) ([]byte, error) {
	root, err := filepath.Abs(ls.outputDir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if rel, err := filepath.Rel(root, abs); err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("transcript %s is outside %s", path, ls.outputDir)
	}
	return os.ReadFile(abs)
}

// sanitizeFilename replaces characters that are unsafe in file names and
// bounds the length.
func sanitizeFilename(name string) string {
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	result = strings.Trim(result, "._")
	if result == "" {
		result = "transcript"
	}
	for len(result) > maxNameLength {
		_, size := utf8.DecodeLastRuneInString(result)
		result = result[:len(result)-size]
	}
	return result
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
