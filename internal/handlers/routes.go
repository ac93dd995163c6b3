package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/logging"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/web"
)

// Version is reported by /health.
const Version = "1.0.0"

// Queue accepts jobs and reports its backlog.
type Queue interface {
	Submitter
	Pending() int
}

// Deps are the collaborators of the HTTP layer. Videos, Engine, Logs and
// Gatherer are optional.
type Deps struct {
	Queue       Queue
	Jobs        JobReader
	Transcripts TranscriptReader
	Catalog     *transcription.Catalog
	Fetcher     storage.Fetcher
	Videos      VideoFetcher
	Engine      transcription.Prober
	Logs        *logging.Buffer
	Gatherer    prometheus.Gatherer

	TempDir       string
	MaxFileSizeMB int
	// RequestLog receives the access log; nil disables it.
	RequestLog io.Writer
}

// NewApp builds the fiber application with middleware and all routes.
func NewApp(d Deps) *fiber.App {
	// one extra MB for multipart framing; the file size is checked per upload
	app := fiber.New(fiber.Config{
		AppName:               "subtitle-transcriber",
		BodyLimit:             (d.MaxFileSizeMB + 1) * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if d.RequestLog != nil {
		app.Use(logger.New(logger.Config{Output: d.RequestLog}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	upload := NewUploadHandler(d.Queue, d.Catalog, d.TempDir, d.MaxFileSizeMB)
	gdrive := NewGDriveHandler(d.Queue, d.Catalog, d.Fetcher, d.TempDir, d.MaxFileSizeMB)
	youtube := NewYouTubeHandler(d.Queue, d.Catalog, d.Videos, d.TempDir, d.MaxFileSizeMB)
	stream := NewStreamHandler(d.Queue, d.Catalog, d.TempDir, d.MaxFileSizeMB)
	jobs := NewJobsHandler(d.Jobs, d.Transcripts)
	tiers := NewTiersHandler(d.Catalog)

	app.Get("/health", func(c *fiber.Ctx) error {
		engineUp := true
		if d.Engine != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			engineUp = d.Engine.IsAvailable(ctx)
		}
		status := "healthy"
		if !engineUp {
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status":        status,
			"version":       Version,
			"engine":        engineUp,
			"queue_pending": d.Queue.Pending(),
		})
	})

	app.Get("/api/tiers", tiers.List)
	app.Post("/upload", upload.Handle)
	app.Post("/gdrive", gdrive.Handle)
	app.Post("/youtube", youtube.Handle)
	app.Get("/ws/stream", stream.Upgrade, websocket.New(stream.Handle))

	app.Get("/jobs/:id", jobs.Get)
	app.Get("/transcripts", jobs.List)
	app.Get("/transcripts/:id/srt", jobs.Download)

	app.Get("/logs", func(c *fiber.Ctx) error {
		var lines []string
		if d.Logs != nil {
			lines = d.Logs.Lines()
		}
		return c.JSON(fiber.Map{"logs": lines})
	})

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(web.Static()),
		Index: "index.html",
	}))

	return app
}

// StdoutAndBuffer is the usual access log sink: the console plus the /logs buffer.
func StdoutAndBuffer(buf *logging.Buffer) io.Writer {
	if buf == nil {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, buf)
}
