package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

var (
	// ErrInvalidDriveLink is returned when no file ID can be found in a link.
	ErrInvalidDriveLink = errors.New("invalid Google Drive link")
	// ErrNotAccessible is returned for private or missing Drive files.
	ErrNotAccessible = errors.New("file not accessible (may be private or doesn't exist)")
	// ErrTooLarge is returned when a download exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
)

var (
	fileIDPath  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	fileIDQuery = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	fileIDBare  = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// ExtractDriveFileID extracts the file ID from the usual Google Drive link
// formats or a bare ID.
func ExtractDriveFileID(link string) (string, error) {
	for _, re := range []*regexp.Regexp{fileIDPath, fileIDQuery, fileIDBare} {
		if m := re.FindStringSubmatch(link); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", ErrInvalidDriveLink
}

// Fetcher downloads a Drive file into w.
type Fetcher interface {
	Fetch(ctx context.Context, fileID string, w io.Writer, maxBytes int64) (int64, error)
}

// PublicLinkFetcher downloads link-shared files without credentials.
type PublicLinkFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewPublicLinkFetcher returns a fetcher for drive.google.com.
func NewPublicLinkFetcher() *PublicLinkFetcher {
	return &PublicLinkFetcher{
		BaseURL: "https://drive.google.com",
		Client:  &http.Client{Timeout: 30 * time.Minute},
	}
}

func (f *PublicLinkFetcher) Fetch(ctx context.Context, fileID string, w io.Writer, maxBytes int64) (int64, error) {
	downloadURL := fmt.Sprintf("%s/uc?export=download&id=%s", f.BaseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download from Google Drive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrNotAccessible, resp.StatusCode)
	}
	return copyLimited(w, resp.Body, maxBytes)
}

// Fetch downloads fileID through the Drive API, which also reaches files
// shared with the authorized account only.
func (dc *DriveClient) Fetch(ctx context.Context, fileID string, w io.Writer, maxBytes int64) (int64, error) {
	resp, err := dc.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotAccessible, err)
	}
	defer resp.Body.Close()
	return copyLimited(w, resp.Body, maxBytes)
}

func copyLimited(w io.Writer, r io.Reader, maxBytes int64) (int64, error) {
	if maxBytes <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return n, fmt.Errorf("failed to write downloaded file: %w", err)
	}
	if n > maxBytes {
		return n, ErrTooLarge
	}
	return n, nil
}
