package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

var fast = transcription.Tier{Label: "Fast", Model: "base"}

// stubEngine counts calls and returns whatever text is currently configured.
type stubEngine struct {
	calls atomic.Int32
	mu    sync.Mutex
	text  string
	err   error
	segs  []types.Segment
	gate  chan struct{}
}

func (s *stubEngine) Transcribe(_ context.Context, _ string, _ transcription.Tier) ([]types.Segment, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.segs != nil {
		return s.segs, nil
	}
	return []types.Segment{{ID: 0, Start: 0, End: 1, Text: " " + s.text}}, nil
}

func (s *stubEngine) setText(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

func input(id string) Input {
	return Input{ContentID: id, AudioPath: "/tmp/" + id}
}

func TestGetOrCompute_HitAvoidsRecomputation(t *testing.T) {
	engine := &stubEngine{text: "hello"}
	c := New(engine, WithClock(clock.NewMock()))

	first, err := c.GetOrCompute(context.Background(), input("abc"), fast, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.GetOrCompute(context.Background(), input("abc"), fast, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, second.Cached)

	assert.Equal(t, int32(1), engine.calls.Load())
	assert.Equal(t, first.Transcript, second.Transcript)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\nhello", second.Transcript.Full)
}

func TestGetOrCompute_Expiry(t *testing.T) {
	mock := clock.NewMock()
	engine := &stubEngine{text: "before"}
	c := New(engine, WithClock(mock))
	ttl := 10 * time.Minute

	_, err := c.GetOrCompute(context.Background(), input("abc"), fast, ttl)
	require.NoError(t, err)

	engine.setText("after")
	mock.Add(ttl - time.Nanosecond)
	res, err := c.GetOrCompute(context.Background(), input("abc"), fast, ttl)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Contains(t, res.Transcript.Full, "before")
	assert.Equal(t, int32(1), engine.calls.Load())

	mock.Add(time.Nanosecond)
	res, err = c.GetOrCompute(context.Background(), input("abc"), fast, ttl)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Contains(t, res.Transcript.Full, "after")
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestGetOrCompute_KeyIncludesTierAndContent(t *testing.T) {
	engine := &stubEngine{text: "x"}
	c := New(engine, WithClock(clock.NewMock()))
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, input("abc"), fast, time.Minute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, input("abc"), transcription.Tier{Label: "Faster", Model: "tiny"}, time.Minute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, input("def"), fast, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int32(3), engine.calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestGetOrCompute_SameBytesDifferentUploadsShareEntry(t *testing.T) {
	engine := &stubEngine{text: "x"}
	c := New(engine, WithClock(clock.NewMock()))

	id1, err := IdentityOf(strings.NewReader("identical bytes"))
	require.NoError(t, err)
	id2, err := IdentityOf(strings.NewReader("identical bytes"))
	require.NoError(t, err)

	_, err = c.GetOrCompute(context.Background(), Input{ContentID: id1, AudioPath: "/tmp/upload-1.mp3"}, fast, time.Minute)
	require.NoError(t, err)
	res, err := c.GetOrCompute(context.Background(), Input{ContentID: id2, AudioPath: "/tmp/upload-2.mp3"}, fast, time.Minute)
	require.NoError(t, err)

	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestGetOrCompute_ConcurrentCallersComputeOnce(t *testing.T) {
	engine := &stubEngine{text: "x", gate: make(chan struct{})}
	c := New(engine, WithClock(clock.NewMock()))

	const callers = 16
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), input("same"), fast, time.Minute)
		}(i)
	}

	require.Eventually(t, func() bool { return engine.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(engine.gate)
	wg.Wait()

	assert.Equal(t, int32(1), engine.calls.Load())
	computed := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Transcript, results[i].Transcript)
		if !results[i].Cached {
			computed++
		}
	}
	// only the caller that ran the engine reports a fresh transcript
	assert.Equal(t, 1, computed)
}

func TestGetOrCompute_RecognitionFailure(t *testing.T) {
	boom := errors.New("decoder exploded")
	engine := &stubEngine{err: boom}
	c := New(engine, WithClock(clock.NewMock()))

	_, err := c.GetOrCompute(context.Background(), input("abc"), fast, time.Minute)
	require.ErrorIs(t, err, transcription.ErrRecognitionFailed)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	engine.mu.Lock()
	engine.err = nil
	engine.text = "recovered"
	engine.mu.Unlock()

	res, err := c.GetOrCompute(context.Background(), input("abc"), fast, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, res.Transcript.Full, "recovered")
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestGetOrCompute_InvalidSegmentIsNotStored(t *testing.T) {
	engine := &stubEngine{segs: []types.Segment{{ID: 0, Start: 2, End: 1, Text: "bad"}}}
	c := New(engine, WithClock(clock.NewMock()))

	_, err := c.GetOrCompute(context.Background(), input("abc"), fast, time.Minute)
	require.ErrorIs(t, err, subtitle.ErrInvalidSegment)
	assert.NotErrorIs(t, err, transcription.ErrRecognitionFailed)
	assert.Zero(t, c.Len())
}

func TestGetOrCompute_EmptyTranscript(t *testing.T) {
	engine := &stubEngine{segs: []types.Segment{}}
	c := New(engine, WithClock(clock.NewMock()))

	res, err := c.GetOrCompute(context.Background(), input("silence"), fast, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, res.Transcript.Full)
	assert.Empty(t, res.Transcript.Preview)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCompute_UsesFormatOptions(t *testing.T) {
	segs := make([]types.Segment, 4)
	for i := range segs {
		segs[i] = types.Segment{ID: i, Start: float64(i), End: float64(i) + 0.5, Text: " s"}
	}
	c := New(&stubEngine{segs: segs}, WithClock(clock.NewMock()),
		WithFormatOptions(subtitle.Options{PreviewLength: 2, LegacyEndMillis: true}))

	res, err := c.GetOrCompute(context.Background(), input("abc"), fast, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Transcript.PreviewBlocks)
	assert.Contains(t, res.Transcript.Full, "00:00:00,000 --> 00:00:00,000")
}

func TestGetOrCompute_RequiresIdentity(t *testing.T) {
	engine := &stubEngine{text: "x"}
	c := New(engine)

	_, err := c.GetOrCompute(context.Background(), Input{AudioPath: "/tmp/x"}, fast, time.Minute)
	require.ErrorIs(t, err, ErrNoIdentity)
	assert.Zero(t, engine.calls.Load())
}

func TestGetOrCompute_NonPositiveTTLDoesNotStore(t *testing.T) {
	engine := &stubEngine{text: "x"}
	c := New(engine, WithClock(clock.NewMock()))

	for i := 0; i < 2; i++ {
		_, err := c.GetOrCompute(context.Background(), input("abc"), fast, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), engine.calls.Load())
	assert.Zero(t, c.Len())
}

func TestReap(t *testing.T) {
	mock := clock.NewMock()
	c := New(&stubEngine{text: "x"}, WithClock(mock))
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, input("short"), fast, time.Minute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, input("long"), fast, time.Hour)
	require.NoError(t, err)

	mock.Add(2 * time.Minute)
	assert.Equal(t, 1, c.Reap())
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Reap())
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(&stubEngine{text: "x"}, WithClock(clock.NewMock()), WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetOrCompute(ctx, input("abc"), fast, time.Minute)
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recognitions.WithLabelValues("Fast", "ok")))
}

func TestIdentity(t *testing.T) {
	a, err := IdentityOf(strings.NewReader("audio one"))
	require.NoError(t, err)
	b, err := IdentityOf(strings.NewReader("audio two"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)

	w := NewIdentityWriter()
	_, _ = w.Write([]byte("audio "))
	_, _ = w.Write([]byte("one"))
	assert.Equal(t, a, w.ID())
}
