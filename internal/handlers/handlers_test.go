package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/cache"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/logging"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/queue"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// sevenSegments returns one segment per second, so the preview is cut at five.
type sevenSegments struct {
	calls atomic.Int32
	tiers atomic.Value
}

func (e *sevenSegments) Transcribe(_ context.Context, _ string, tier transcription.Tier) ([]types.Segment, error) {
	e.calls.Add(1)
	e.tiers.Store(tier.Label)
	segs := make([]types.Segment, 7)
	for i := range segs {
		segs[i] = types.Segment{ID: i, Start: float64(i), End: float64(i) + 0.75, Text: " line"}
	}
	return segs, nil
}

type testServer struct {
	app     *fiber.App
	engine  *sevenSegments
	tempDir string
	logs    *logging.Buffer
}

func newTestServer(t *testing.T, fetcher storage.Fetcher, overrides ...func(*Deps)) *testServer {
	t.Helper()

	db, err := storage.NewMetadataDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, err := transcription.NewCatalog(transcription.DefaultTiers(), []string{"Faster", "Fast"}, "Fast")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	engine := &sevenSegments{}
	local := storage.NewLocalStorage(t.TempDir())
	pool := queue.NewWorkerPool(queue.Config{CacheTTL: time.Minute}, cache.New(engine, cache.WithMetrics(m)), db, local, nil, m)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	if fetcher == nil {
		fetcher = storage.NewPublicLinkFetcher()
	}

	ts := &testServer{engine: engine, tempDir: t.TempDir(), logs: logging.NewBuffer(10)}
	deps := Deps{
		Queue:         pool,
		Jobs:          db,
		Transcripts:   local,
		Catalog:       catalog,
		Fetcher:       fetcher,
		Logs:          ts.logs,
		Gatherer:      reg,
		TempDir:       ts.tempDir,
		MaxFileSizeMB: 1,
	}
	for _, o := range overrides {
		o(&deps)
	}
	ts.app = NewApp(deps)
	return ts
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (ts *testServer) upload(t *testing.T, fields map[string]string, filename string, content []byte) (*http.Response, map[string]any) {
	t.Helper()
	body, contentType := multipartBody(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, raw := ts.do(t, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp, out
}

func (ts *testServer) waitCompleted(t *testing.T, jobID string) jobResponse {
	t.Helper()
	var job jobResponse
	require.Eventually(t, func() bool {
		resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil), -1)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		defer resp.Body.Close()
		job = jobResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return false
		}
		return job.Status == types.StatusCompleted || job.Status == types.StatusFailed
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, types.StatusCompleted, job.Status, job.Error)
	return job
}

func TestUpload_RoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := ts.upload(t, map[string]string{"name": "lecture", "tier": "Faster"}, "lecture01.mp4", []byte("fake video"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode, out)
	assert.Equal(t, "queued", out["status"])
	assert.Equal(t, "Faster", out["tier"])
	jobID := out["job_id"].(string)

	job := ts.waitCompleted(t, jobID)
	assert.Equal(t, "Faster", ts.engine.tiers.Load())
	assert.Equal(t, 7, job.SegmentCount)
	assert.Equal(t, 5, job.PreviewCount)
	assert.Equal(t, "Previewing first 5 segments of transcript.", job.PreviewMessage)
	assert.True(t, strings.HasPrefix(job.Preview, "1\n00:00:00,000 --> 00:00:00,750\nline\n\n2\n"))
	assert.False(t, strings.Contains(job.Preview, "\n6\n"))
	assert.Equal(t, "/transcripts/"+jobID+"/srt", job.DownloadURL)

	dl, body := ts.do(t, httptest.NewRequest(http.MethodGet, job.DownloadURL, nil))
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, subtitle.MIMEType, dl.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="lecture01.srt"`, dl.Header.Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(string(body), job.Preview))
	assert.True(t, strings.HasSuffix(string(body), "7\n00:00:06,000 --> 00:00:06,750\nline"))

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(ts.tempDir)
		return err == nil && len(entries) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestUpload_SameFileIsServedFromCache(t *testing.T) {
	ts := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		_, out := ts.upload(t, nil, "a.mp3", []byte("identical audio"))
		job := ts.waitCompleted(t, out["job_id"].(string))
		assert.Equal(t, i == 1, job.Cached)
		assert.Equal(t, "Fast", job.Tier)
	}
	assert.Equal(t, int32(1), ts.engine.calls.Load())
}

func TestUpload_Rejections(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		content  []byte
		code     string
	}{
		{name: "no file", code: "ERR_NO_FILE"},
		{name: "bad format", filename: "notes.pdf", content: []byte("x"), code: "ERR_INVALID_FORMAT"},
		{name: "tier not offered", fields: map[string]string{"tier": "Accurate"}, filename: "a.mp3", content: []byte("x"), code: "ERR_UNKNOWN_TIER"},
		{name: "too large", filename: "a.mp3", content: bytes.Repeat([]byte("x"), 1024*1024+1), code: "ERR_FILE_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := ts.upload(t, tt.fields, tt.filename, tt.content)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, out["code"])
		})
	}
}

func TestGDrive(t *testing.T) {
	drive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "1AbCdEfGhIjKlMnOpQrStUvWxYz" {
			_, _ = w.Write([]byte("drive audio"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer drive.Close()

	ts := newTestServer(t, &storage.PublicLinkFetcher{BaseURL: drive.URL, Client: drive.Client()})

	post := func(body string) (*http.Response, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/gdrive", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, raw := ts.do(t, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return resp, out
	}

	resp, out := post(`{"url":"https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz/view","name":"meeting"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, out)
	job := ts.waitCompleted(t, out["job_id"].(string))
	assert.Equal(t, types.SourceGDrive, job.SourceType)
	assert.Equal(t, "meeting.mp3", job.Filename)

	resp, out = post(`{"url":"https://drive.google.com/file/d/privateFileIdThatIsLongEnough/view"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_FILE_NOT_ACCESSIBLE", out["code"])

	resp, out = post(`{"url":"https://example.com/x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_INVALID_URL", out["code"])

	resp, out = post(`{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_NO_URL", out["code"])
}

type stubVideos struct {
	mu     sync.Mutex
	videos map[string][]byte
	asked  []string
}

func (s *stubVideos) AudioExt() string { return ".opus" }

func (s *stubVideos) Fetch(_ context.Context, videoID string, w io.Writer, maxBytes int64) (int64, error) {
	s.mu.Lock()
	s.asked = append(s.asked, videoID)
	data, ok := s.videos[videoID]
	s.mu.Unlock()
	if !ok {
		return 0, storage.ErrNotAccessible
	}
	if int64(len(data)) > maxBytes {
		return 0, storage.ErrTooLarge
	}
	n, err := w.Write(data)
	return int64(n), err
}

func TestYouTube(t *testing.T) {
	videos := &stubVideos{videos: map[string][]byte{
		"dQw4w9WgXcQ": []byte("opus audio"),
		"bigVideo123": bytes.Repeat([]byte("x"), 1024*1024+1),
	}}
	ts := newTestServer(t, nil, func(d *Deps) { d.Videos = videos })

	post := func(body string) (*http.Response, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/youtube", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, raw := ts.do(t, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return resp, out
	}

	resp, out := post(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42","name":"talk","tier":"Faster"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, out)
	job := ts.waitCompleted(t, out["job_id"].(string))
	assert.Equal(t, types.SourceYouTube, job.SourceType)
	assert.Equal(t, "talk.opus", job.Filename)
	assert.Equal(t, "Faster", job.Tier)
	assert.False(t, job.Cached)

	// the same video through a short link is served from the cache
	resp, out = post(`{"url":"https://youtu.be/dQw4w9WgXcQ","tier":"Faster"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, out)
	job = ts.waitCompleted(t, out["job_id"].(string))
	assert.True(t, job.Cached)
	assert.Equal(t, "youtube_video", job.RequestName)
	assert.Equal(t, int32(1), ts.engine.calls.Load())

	resp, out = post(`{"url":"https://youtu.be/privateVid1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_FILE_NOT_ACCESSIBLE", out["code"])

	resp, out = post(`{"url":"https://youtu.be/bigVideo123"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_FILE_TOO_LARGE", out["code"])

	resp, out = post(`{"url":"https://vimeo.com/12345"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_INVALID_URL", out["code"])

	resp, out = post(`{"url":"https://youtu.be/dQw4w9WgXcQ","tier":"Accurate"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_UNKNOWN_TIER", out["code"])

	resp, out = post(`{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_NO_URL", out["code"])

	assert.Equal(t, []string{"dQw4w9WgXcQ", "dQw4w9WgXcQ", "privateVid1", "bigVideo123"}, videos.asked)
}

func TestYouTube_Disabled(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/youtube", strings.NewReader(`{"url":"https://youtu.be/dQw4w9WgXcQ"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, raw := ts.do(t, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(raw), "ERR_SOURCE_DISABLED")
}

func TestStream(t *testing.T) {
	ts := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ts.app.Listener(ln) }()
	t.Cleanup(func() { _ = ts.app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte("tier=Faster")))
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte("standup")))
	require.NoError(t, conn.WriteMessage(fastws.BinaryMessage, []byte("chunk-1")))
	require.NoError(t, conn.WriteMessage(fastws.BinaryMessage, []byte("chunk-2")))
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte("END")))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	require.Equal(t, "queued", out["status"], out)
	assert.Equal(t, "Faster", out["tier"])

	job := ts.waitCompleted(t, out["job_id"].(string))
	assert.Equal(t, "standup", job.RequestName)
	assert.Equal(t, types.SourceStream, job.SourceType)
}

func TestStream_RequiresUpgrade(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.do(t, httptest.NewRequest(http.MethodGet, "/ws/stream", nil))
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestJobs_NotFoundAndList(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/transcripts/missing/srt", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, out := ts.upload(t, nil, "a.wav", []byte("a"))
	ts.waitCompleted(t, out["job_id"].(string))

	resp, raw := ts.do(t, httptest.NewRequest(http.MethodGet, "/transcripts?limit=10", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []jobResponse
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, out["job_id"], list[0].JobID)

	resp, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/transcripts?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTiersHealthLogsMetricsAndUI(t *testing.T) {
	ts := newTestServer(t, nil)
	_, _ = ts.logs.Write([]byte(`{"message":"hello"}`))

	resp, raw := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/tiers", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tiers struct {
		Tiers   []transcription.Tier `json:"tiers"`
		Default string               `json:"default"`
	}
	require.NoError(t, json.Unmarshal(raw, &tiers))
	assert.Equal(t, "Fast", tiers.Default)
	require.Len(t, tiers.Tiers, 2)
	assert.Equal(t, "tiny", tiers.Tiers[0].Model)

	resp, raw = ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"status":"healthy"`)

	resp, raw = ts.do(t, httptest.NewRequest(http.MethodGet, "/logs", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "hello")

	resp, raw = ts.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "transcriber_cache_hits_total")

	resp, raw = ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "<title>Transcribe</title>")
}
