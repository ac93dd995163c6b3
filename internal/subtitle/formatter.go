// Package subtitle renders recognition segments as SubRip (.srt) text.
package subtitle

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

const (
	// DefaultPreviewLength is the number of blocks shown before download.
	DefaultPreviewLength = 5

	// MIMEType is the content type served with .srt downloads.
	MIMEType = "text/srt"

	// Extension is the file extension of rendered transcripts.
	Extension = ".srt"

	blockSeparator = "\n\n"
	tenHours       = 10 * 60 * 60
)

// ErrInvalidSegment is returned when a segment carries an impossible time range or id.
var ErrInvalidSegment = errors.New("invalid segment")

// Options controls rendering.
type Options struct {
	// PreviewLength is the number of leading blocks in the preview. Values <= 0
	// fall back to DefaultPreviewLength.
	PreviewLength int
	// LegacyEndMillis takes the end timestamp's millisecond field from the
	// segment start, matching files produced by earlier releases.
	LegacyEndMillis bool
}

func (o Options) previewLength() int {
	if o.PreviewLength <= 0 {
		return DefaultPreviewLength
	}
	return o.PreviewLength
}

// Block is one rendered subtitle unit.
type Block struct {
	Index     int
	StartCode string
	EndCode   string
	Text      string
}

// String renders the block without a trailing newline.
func (b Block) String() string {
	return fmt.Sprintf("%d\n%s --> %s\n%s", b.Index, b.StartCode, b.EndCode, b.Text)
}

// Transcript holds the full rendering and its preview.
type Transcript struct {
	Full          string `json:"full"`
	Preview       string `json:"preview"`
	Blocks        int    `json:"blocks"`
	PreviewBlocks int    `json:"preview_blocks"`
}

// FormatTimestamp renders seconds as H:MM:SS,mmm. The clock part is the
// truncated whole seconds; durations under ten hours get a leading "0" so the
// hour reads as two digits. The millisecond field is taken from the fractional
// part of millisFrom.
func FormatTimestamp(seconds, millisFrom float64) string {
	whole := int64(seconds)
	hours := whole / 3600
	minutes := (whole % 3600) / 60
	secs := whole % 60

	hourPad := ""
	if seconds < tenHours {
		hourPad = "0"
	}

	_, frac := math.Modf(millisFrom)
	millis := int(frac * 1000)

	return fmt.Sprintf("%s%d:%02d:%02d,%03d", hourPad, hours, minutes, secs, millis)
}

// NewBlock converts a segment into a subtitle block.
func NewBlock(seg types.Segment, opts Options) (Block, error) {
	if err := validate(seg); err != nil {
		return Block{}, err
	}

	endMillis := seg.End
	if opts.LegacyEndMillis {
		endMillis = seg.Start
	}

	text, _ := strings.CutPrefix(seg.Text, " ")

	return Block{
		Index:     seg.ID + 1,
		StartCode: FormatTimestamp(seg.Start, seg.Start),
		EndCode:   FormatTimestamp(seg.End, endMillis),
		Text:      text,
	}, nil
}

// Format renders segments in order. An empty input yields an empty transcript.
func Format(segments []types.Segment, opts Options) (Transcript, error) {
	rendered := make([]string, 0, len(segments))
	for _, seg := range segments {
		block, err := NewBlock(seg, opts)
		if err != nil {
			return Transcript{}, err
		}
		rendered = append(rendered, block.String())
	}

	n := min(opts.previewLength(), len(rendered))
	return Transcript{
		Full:          strings.Join(rendered, blockSeparator),
		Preview:       strings.Join(rendered[:n], blockSeparator),
		Blocks:        len(rendered),
		PreviewBlocks: n,
	}, nil
}

// SRTFilename replaces the extension of name with .srt.
func SRTFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "transcript"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return stem + Extension
}

func validate(seg types.Segment) error {
	switch {
	case seg.ID < 0:
		return fmt.Errorf("%w: negative id %d", ErrInvalidSegment, seg.ID)
	case math.IsNaN(seg.Start) || math.IsInf(seg.Start, 0) || math.IsNaN(seg.End) || math.IsInf(seg.End, 0):
		return fmt.Errorf("%w: segment %d has a non-finite time", ErrInvalidSegment, seg.ID)
	case seg.Start < 0:
		return fmt.Errorf("%w: segment %d starts at %.3f", ErrInvalidSegment, seg.ID, seg.Start)
	case seg.End < seg.Start:
		return fmt.Errorf("%w: segment %d ends at %.3f before its start %.3f", ErrInvalidSegment, seg.ID, seg.End, seg.Start)
	}
	return nil
}
