package queue

import (
	"errors"
	"time"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Job represents a transcription job
type Job struct {
	ID          string
	RequestName string
	SourceType  string
	// Filename is the name the media was submitted under; the download is
	// named after it.
	Filename string
	// FilePath is the saved media in the temp directory. The worker removes it.
	FilePath  string
	ContentID string
	Tier      transcription.Tier
	CreatedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(id, requestName, sourceType, filename, filePath string, tier transcription.Tier) *Job {
	if requestName == "" {
		requestName = "untitled"
	}
	return &Job{
		ID:          id,
		RequestName: requestName,
		SourceType:  sourceType,
		Filename:    filename,
		FilePath:    filePath,
		Tier:        tier,
		CreatedAt:   time.Now(),
	}
}

// Record returns the persisted view of the job.
func (j *Job) Record() *types.JobRecord {
	return &types.JobRecord{
		JobID:       j.ID,
		RequestName: j.RequestName,
		SourceType:  j.SourceType,
		Filename:    j.Filename,
		ContentID:   j.ContentID,
		Tier:        j.Tier.Label,
		Model:       j.Tier.Model,
		Status:      types.StatusQueued,
		CreatedAt:   j.CreatedAt,
	}
}
