package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/cache"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// Transcriber produces rendered transcripts, normally the cache.
type Transcriber interface {
	GetOrCompute(ctx context.Context, in cache.Input, tier transcription.Tier, ttl time.Duration) (cache.Result, error)
}

// JobStore persists job state.
type JobStore interface {
	CreateJob(ctx context.Context, rec *types.JobRecord) error
	MarkProcessing(ctx context.Context, jobID string) error
	SetContentID(ctx context.Context, jobID, contentID string) error
	CompleteJob(ctx context.Context, rec *types.JobRecord) error
	FailJob(ctx context.Context, jobID, reason string) error
	SetGDriveURL(ctx context.Context, jobID, url string) error
}

// TranscriptStore keeps finished subtitle documents.
type TranscriptStore interface {
	SaveTranscript(rec *types.JobRecord, tr subtitle.Transcript) (string, error)
}

// Exporter copies finished subtitle documents somewhere else, e.g. Google Drive.
type Exporter interface {
	Export(ctx context.Context, rec *types.JobRecord, content string) (string, error)
}

// Config sizes the pool.
type Config struct {
	Workers   int
	QueueSize int
	// CacheTTL is passed to the transcriber for every job.
	CacheTTL       time.Duration
	ExportAttempts int
	// ExportBackoff returns the wait after a failed export attempt.
	ExportBackoff func(attempt int) time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.ExportAttempts <= 0 {
		c.ExportAttempts = 3
	}
	if c.ExportBackoff == nil {
		c.ExportBackoff = func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		}
	}
}

// WorkerPool manages a pool of workers processing transcription jobs
type WorkerPool struct {
	cfg         Config
	jobQueue    chan *Job
	transcriber Transcriber
	jobs        JobStore
	local       TranscriptStore
	exporter    Exporter
	metrics     *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. exporter and m may be nil.
func NewWorkerPool(cfg Config, transcriber Transcriber, jobs JobStore, local TranscriptStore, exporter Exporter, m *metrics.Metrics) *WorkerPool {
	cfg.applyDefaults()
	return &WorkerPool{
		cfg:         cfg,
		jobQueue:    make(chan *Job, cfg.QueueSize),
		transcriber: transcriber,
		jobs:        jobs,
		local:       local,
		exporter:    exporter,
		metrics:     m,
	}
}

// Start launches the workers. Jobs run with ctx.
func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Int("workers", wp.cfg.Workers).Int("queue_size", wp.cfg.QueueSize).Msg("Starting worker pool")
	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop stops accepting jobs and waits for the queued ones to finish.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	log.Info().Msg("Worker pool stopped")
}

// Pending returns the number of queued jobs not yet picked up.
func (wp *WorkerPool) Pending() int {
	return len(wp.jobQueue)
}

// Submit records the job as QUEUED and hands it to a worker. The media file
// is removed when the job cannot be queued.
func (wp *WorkerPool) Submit(ctx context.Context, job *Job) error {
	if err := wp.jobs.CreateJob(ctx, job.Record()); err != nil {
		removeTempFile(job.FilePath)
		return err
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()

	var reason error
	if wp.stopped {
		reason = ErrPoolStopped
	} else {
		select {
		case wp.jobQueue <- job:
			log.Info().
				Str("job_id", job.ID).
				Str("source", job.SourceType).
				Str("name", job.RequestName).
				Str("tier", job.Tier.Label).
				Msg("Job enqueued")
			return nil
		default:
			reason = ErrQueueFull
		}
	}

	removeTempFile(job.FilePath)
	if err := wp.jobs.FailJob(ctx, job.ID, reason.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record rejected job")
	}
	return reason
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	logger := log.With().Int("worker", id).Logger()
	logger.Debug().Msg("Worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("job_id", job.ID).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("Panic processing job")
					wp.fail(ctx, job, fmt.Sprintf("Worker panic: %v", r))
					removeTempFile(job.FilePath)
				}
			}()

			wp.processJob(ctx, id, job)
		}()
	}
}

// processJob runs one job: transcribe through the cache, save the .srt,
// record the result and export it.
func (wp *WorkerPool) processJob(ctx context.Context, workerID int, job *Job) {
	logger := log.With().Int("worker", workerID).Str("job_id", job.ID).Logger()
	started := time.Now()
	defer removeTempFile(job.FilePath)

	if err := wp.jobs.MarkProcessing(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job processing")
	}

	if job.ContentID == "" {
		id, err := identify(job.FilePath)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read media")
			wp.finish(ctx, job, started, "Failed to read uploaded media")
			return
		}
		job.ContentID = id
		if err := wp.jobs.SetContentID(ctx, job.ID, id); err != nil {
			logger.Warn().Err(err).Msg("Failed to record content id")
		}
	}

	res, err := wp.transcriber.GetOrCompute(ctx, cache.Input{ContentID: job.ContentID, AudioPath: job.FilePath}, job.Tier, wp.cfg.CacheTTL)
	if err != nil {
		logger.Error().Err(err).Str("tier", job.Tier.Label).Msg("Transcription failed")
		wp.finish(ctx, job, started, FailureReason(err))
		return
	}

	rec := job.Record()
	rec.Preview = res.Transcript.Preview
	rec.PreviewCount = res.Transcript.PreviewBlocks
	rec.SegmentCount = res.Transcript.Blocks
	rec.Cached = res.Cached

	localPath, err := wp.local.SaveTranscript(rec, res.Transcript)
	if err != nil {
		logger.Error().Err(err).Msg("Local save failed")
		wp.finish(ctx, job, started, "Failed to save transcript")
		return
	}
	rec.LocalPath = localPath

	if err := wp.jobs.CompleteJob(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("Failed to record completed job")
	}
	wp.metrics.JobFinished(job.SourceType, types.StatusCompleted, time.Since(started).Seconds())
	logger.Info().
		Bool("cached", res.Cached).
		Int("segments", rec.SegmentCount).
		Str("local", localPath).
		Dur("took", time.Since(started)).
		Msg("Job completed")

	wp.export(ctx, logger, rec, res.Transcript.Full)
}

// export retries the exporter and keeps the local copy when it keeps failing.
func (wp *WorkerPool) export(ctx context.Context, logger zerolog.Logger, rec *types.JobRecord, content string) {
	if wp.exporter == nil {
		return
	}

	var err error
	for attempt := 1; attempt <= wp.cfg.ExportAttempts; attempt++ {
		var url string
		url, err = wp.exporter.Export(ctx, rec, content)
		if err == nil {
			if err := wp.jobs.SetGDriveURL(ctx, rec.JobID, url); err != nil {
				logger.Error().Err(err).Msg("Failed to record export link")
			}
			logger.Info().Str("url", url).Msg("Transcript exported")
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Int("of", wp.cfg.ExportAttempts).Msg("Export attempt failed")

		if attempt < wp.cfg.ExportAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wp.cfg.ExportBackoff(attempt)):
			}
		}
	}
	logger.Warn().Err(err).Msg("Export failed, transcript kept locally only")
}

func (wp *WorkerPool) finish(ctx context.Context, job *Job, started time.Time, reason string) {
	wp.fail(ctx, job, reason)
	wp.metrics.JobFinished(job.SourceType, types.StatusFailed, time.Since(started).Seconds())
}

func (wp *WorkerPool) fail(ctx context.Context, job *Job, reason string) {
	if err := wp.jobs.FailJob(ctx, job.ID, reason); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
	}
}

// FailureReason maps a pipeline error to the message shown to the user.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, transcription.ErrUnsupportedFormat):
		return "Unsupported media format"
	case errors.Is(err, transcription.ErrTooLong):
		return "Media is longer than the allowed maximum duration"
	case errors.Is(err, subtitle.ErrInvalidSegment):
		return "Recognition returned an invalid segment"
	case errors.Is(err, transcription.ErrRecognitionFailed):
		return "Recognition failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Transcription was cancelled"
	default:
		return "Transcription failed"
	}
}

func identify(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return cache.IdentityOf(f)
}

// removeTempFile removes a temporary file
func removeTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", filePath).Msg("Failed to remove temp file")
	}
}
