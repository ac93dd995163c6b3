package types

import "time"

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceUpload  = "upload"
	SourceGDrive  = "gdrive"
	SourceStream  = "stream"
	SourceYouTube = "youtube"
)

// Segment is one recognized utterance as produced by the recognition engine,
// in detection order.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JobRecord is the persisted view of a transcription job
type JobRecord struct {
	JobID        string    `json:"job_id"`
	RequestName  string    `json:"request_name"`
	SourceType   string    `json:"source_type"`
	Filename     string    `json:"filename"`
	ContentID    string    `json:"content_id"`
	Tier         string    `json:"tier"`
	Model        string    `json:"model"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Preview      string    `json:"preview,omitempty"`
	PreviewCount int       `json:"preview_count"`
	SegmentCount int       `json:"segment_count"`
	Cached       bool      `json:"cached"`
	LocalPath    string    `json:"-"`
	GDriveURL    string    `json:"gdrive_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
