// Package logging configures the global zerolog logger and keeps the most
// recent log lines in memory for the /logs endpoint.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCapacity is the number of lines kept by NewBuffer.
const DefaultCapacity = 1000

// Init points the global logger at stdout and buf. The buffer always receives
// plain JSON lines so /logs stays machine readable.
func Init(level, format string, buf *Buffer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var stdout io.Writer = os.Stdout
	if format != "json" {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	var out io.Writer = stdout
	if buf != nil {
		out = zerolog.MultiLevelWriter(stdout, buf)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// Buffer is a bounded in-memory log sink. Oldest lines are dropped first.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	limit int
}

// NewBuffer returns a Buffer holding at most limit lines.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultCapacity
	}
	return &Buffer{lines: make([]string, 0, limit), limit: limit}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, strings.TrimRight(string(p), "\n"))
	if len(b.lines) > b.limit {
		b.lines = b.lines[len(b.lines)-b.limit:]
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
