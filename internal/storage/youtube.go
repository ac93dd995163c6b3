package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog/log"
)

// ErrInvalidVideoLink is returned when no YouTube video ID can be found in a link.
var ErrInvalidVideoLink = errors.New("invalid YouTube link")

var videoIDPattern = regexp.MustCompile(
	`(?:youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/|live/)|youtu\.be/)([A-Za-z0-9_-]{11})`)

// ExtractVideoID extracts the 11 character video ID from the usual YouTube
// link formats.
func ExtractVideoID(link string) (string, error) {
	if m := videoIDPattern.FindStringSubmatch(link); m != nil {
		return m[1], nil
	}
	return "", ErrInvalidVideoLink
}

// WatchURL returns the canonical watch page of a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// YouTubeFetcher downloads the audio track of a YouTube video with yt-dlp.
type YouTubeFetcher struct {
	tempDir     string
	audioFormat string
	timeout     time.Duration
}

// NewYouTubeFetcher creates a fetcher that stages downloads under tempDir.
// A zero timeout means 30 minutes.
func NewYouTubeFetcher(tempDir string, timeout time.Duration) *YouTubeFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &YouTubeFetcher{
		tempDir:     tempDir,
		audioFormat: "opus",
		timeout:     timeout,
	}
}

// AudioExt is the extension of the files Fetch produces.
func (f *YouTubeFetcher) AudioExt() string { return "." + f.audioFormat }

// Install makes sure a yt-dlp binary is available, downloading it when needed.
func (f *YouTubeFetcher) Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return nil
}

// Fetch extracts the audio of videoID and copies it to w.
func (f *YouTubeFetcher) Fetch(ctx context.Context, videoID string, w io.Writer, maxBytes int64) (int64, error) {
	dir, err := os.MkdirTemp(f.tempDir, "youtube-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	log.Info().Str("video_id", videoID).Msg("Extracting YouTube audio with yt-dlp")
	dl := ytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat(f.audioFormat).
		ForceOverwrites().
		Output(filepath.Join(dir, "audio.%(ext)s"))

	if _, err := dl.Run(ctx, WatchURL(videoID)); err != nil {
		return 0, fmt.Errorf("%w: yt-dlp: %w", ErrNotAccessible, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "audio.*"))
	if err != nil || len(matches) == 0 {
		return 0, fmt.Errorf("yt-dlp produced no audio file for %s", videoID)
	}

	in, err := os.Open(matches[0])
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return copyLimited(w, in, maxBytes)
}
