package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/cache"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/config"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/handlers"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/logging"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd runs the HTTP service.
type ServeCmd struct{}

func (s *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config, g.EnvFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logBuffer := logging.NewBuffer(logging.DefaultCapacity)
	logging.Init(cfg.Logging.Level, cfg.Logging.Format, logBuffer)
	log.Info().Str("config", g.Config).Msg("Initializing components")

	if err := cleanup.EnsureDirs(cfg.Storage.TempDir, cfg.Storage.OutputDir, filepath.Dir(cfg.Storage.Database)); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	engine := transcription.NewMediaEngine(newBackend(cfg), cfg.Storage.TempDir,
		transcription.WithMaxDuration(time.Duration(cfg.Limits.MaxDurationMinutes)*time.Minute))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	transcripts := cache.New(engine,
		cache.WithFormatOptions(cfg.SubtitleOptions()),
		cache.WithMetrics(m),
	)

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	localStorage := storage.NewLocalStorage(cfg.Storage.OutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		exporter queue.Exporter
		fetcher  storage.Fetcher = storage.NewPublicLinkFetcher()
	)
	if driveClient := connectDrive(ctx, cfg); driveClient != nil {
		exporter, fetcher = driveClient, driveClient
	}

	var videos handlers.VideoFetcher
	if cfg.YouTube.Enabled {
		yt := storage.NewYouTubeFetcher(cfg.Storage.TempDir, time.Duration(cfg.YouTube.TimeoutMinutes)*time.Minute)
		if cfg.YouTube.AutoInstall {
			go func() {
				if err := yt.Install(ctx); err != nil {
					log.Warn().Err(err).Msg("yt-dlp not available - YouTube jobs will fail")
				}
			}()
		}
		videos = yt
	}

	pool := queue.NewWorkerPool(queue.Config{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
		CacheTTL:  cfg.CacheTTL(),
	}, transcripts, db, localStorage, exporter, m)
	pool.Start(ctx)

	scheduler := cleanup.NewScheduler(cfg.Storage.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		transcripts,
	)
	scheduler.Start()
	defer scheduler.Stop()

	app := handlers.NewApp(handlers.Deps{
		Queue:         pool,
		Jobs:          db,
		Transcripts:   localStorage,
		Catalog:       catalog,
		Fetcher:       fetcher,
		Videos:        videos,
		Engine:        engine,
		Logs:          logBuffer,
		Gatherer:      reg,
		TempDir:       cfg.Storage.TempDir,
		MaxFileSizeMB: cfg.Limits.MaxFileSizeMB,
		RequestLog:    handlers.StdoutAndBuffer(logBuffer),
	})

	offered := make([]string, 0, len(catalog.Offered()))
	for _, t := range catalog.Offered() {
		offered = append(offered, t.Label)
	}
	log.Info().
		Str("addr", cfg.Addr()).
		Str("backend", cfg.Whisper.Backend).
		Strs("tiers", offered).
		Str("default_tier", catalog.Default().Label).
		Bool("youtube", videos != nil).
		Dur("cache_ttl", cfg.CacheTTL()).
		Msg("Server starting")

	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(cfg.Addr()) }()

	select {
	case err := <-errCh:
		pool.Stop()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	pool.Stop()
	return nil
}

func newBackend(cfg *config.Config) transcription.Engine {
	if cfg.Whisper.Backend == config.BackendHTTP {
		return transcription.NewWhisperHTTP(transcription.WhisperHTTPConfig{
			URL:      cfg.Whisper.URL,
			Language: cfg.Whisper.Language,
			Timeout:  time.Duration(cfg.Whisper.TimeoutMinutes) * time.Minute,
		})
	}
	return transcription.NewWhisperCLI(cfg.Whisper.Command, cfg.Whisper.Language, cfg.Whisper.Threads)
}

// connectDrive returns nil when Drive export is not configured or unavailable;
// transcripts are then kept locally only.
func connectDrive(ctx context.Context, cfg *config.Config) *storage.DriveClient {
	creds := cfg.GoogleDrive.CredentialsFile
	if creds == "" {
		log.Info().Msg("Google Drive not configured - saving locally only")
		return nil
	}
	if _, err := os.Stat(creds); err != nil {
		log.Info().Str("credentials", creds).Msg("Google Drive credentials not found - saving locally only")
		return nil
	}

	client, err := storage.NewDriveClient(ctx, creds, cfg.GoogleDrive.TokenFile, cfg.GoogleDrive.FolderName)
	if errors.Is(err, storage.ErrNoToken) {
		log.Warn().Msg("Google Drive token missing, run `transcriber drive-auth` - saving locally only")
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("Google Drive not available - saving locally only")
		return nil
	}
	log.Info().Str("folder", cfg.GoogleDrive.FolderName).Msg("Google Drive integration enabled")
	return client
}
