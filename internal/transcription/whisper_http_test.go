package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperHTTP_Transcribe(t *testing.T) {
	var gotModel, gotLanguage string
	var gotAudio []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		if f, _, err := r.FormFile("audio"); assert.NoError(t, err) {
			gotAudio, _ = io.ReadAll(f)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     " one two",
			"language": "en",
			"segments": []map[string]any{
				{"id": 0, "start": 0.0, "end": 1.0, "text": " one"},
				{"id": 1, "start": 1.0, "end": 2.0, "text": " two"},
			},
		})
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("audio-bytes"), 0o644))

	engine := NewWhisperHTTP(WhisperHTTPConfig{URL: srv.URL, Language: "en"})
	segs, err := engine.Transcribe(context.Background(), audio, Tier{Label: "Balanced", Model: "small"})
	require.NoError(t, err)

	assert.Equal(t, "small", gotModel)
	assert.Equal(t, "en", gotLanguage)
	assert.Equal(t, []byte("audio-bytes"), gotAudio)
	require.Len(t, segs, 2)
	assert.Equal(t, " two", segs[1].Text)
}

func TestWhisperHTTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("x"), 0o644))

	_, err := NewWhisperHTTP(WhisperHTTPConfig{URL: srv.URL}).Transcribe(context.Background(), audio, Tier{Model: "tiny"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWhisperHTTP_MissingFile(t *testing.T) {
	_, err := NewWhisperHTTP(WhisperHTTPConfig{URL: "http://127.0.0.1:1"}).
		Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), Tier{Model: "tiny"})
	assert.Error(t, err)
}

func TestWhisperHTTP_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, NewWhisperHTTP(WhisperHTTPConfig{URL: srv.URL}).IsAvailable(context.Background()))

	srv.Close()
	assert.False(t, NewWhisperHTTP(WhisperHTTPConfig{URL: srv.URL}).IsAvailable(context.Background()))
}
