package cleanup

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// Reaper drops expired in-memory entries, e.g. the transcript cache.
type Reaper interface {
	Reap() int
}

// Scheduler periodically removes stale temp files and expired cache entries
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	reapers  []Reaper
	clock    clock.Clock

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, interval, maxAge time.Duration, reapers ...Reaper) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		reapers:  reapers,
		clock:    clock.New(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithClock replaces the time source.
func (s *Scheduler) WithClock(c clock.Clock) *Scheduler {
	s.clock = c
	return s
}

// Start runs one sweep immediately and then one per interval.
func (s *Scheduler) Start() {
	log.Info().Str("dir", s.tempDir).Msg("Running initial temp file cleanup")
	s.RunOnce()

	ticker := s.clock.Ticker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Info().Dur("interval", s.interval).Dur("max_age", s.maxAge).Msg("Cleanup scheduler started")
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		log.Info().Msg("Cleanup scheduler stopped")
	})
}

// RunOnce performs a single sweep and returns the number of files deleted.
func (s *Scheduler) RunOnce() int {
	reaped := 0
	for _, r := range s.reapers {
		reaped += r.Reap()
	}
	if reaped > 0 {
		log.Debug().Int("entries", reaped).Msg("Expired cache entries dropped")
	}
	return s.cleanOldFiles()
}

// cleanOldFiles removes files older than maxAge from the temp directory
func (s *Scheduler) cleanOldFiles() int {
	now := s.clock.Now()

	var deletedCount int
	var deletedSize int64

	err := filepath.WalkDir(s.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to delete old file")
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		log.Debug().
			Str("file", filepath.Base(path)).
			Dur("age", age.Round(time.Minute)).
			Int64("size_kb", info.Size()/1024).
			Msg("Deleted old temp file")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Error during cleanup")
	}

	if deletedCount > 0 {
		log.Info().
			Int("files", deletedCount).
			Float64("freed_mb", float64(deletedSize)/(1024*1024)).
			Msg("Cleanup complete")
	}
	return deletedCount
}

// EnsureDirs creates the given directories if they don't exist
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
