package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type stubSpeech struct {
	text   string
	audio  []byte
	format string
	method string
	err    error

	gotMethod   string
	gotFilename string
	gotText     string
	gotAudio    []byte
}

func (s *stubSpeech) Transcribe(ctx context.Context, method, filename string, audio []byte, contentType string) (string, string, error) {
	s.gotMethod = method
	s.gotFilename = filename
	s.gotAudio = audio
	if s.err != nil {
		return "", "", s.err
	}
	return s.text, s.method, nil
}

func (s *stubSpeech) Synthesize(ctx context.Context, method, text string) ([]byte, string, string, error) {
	s.gotMethod = method
	s.gotText = text
	if s.err != nil {
		return nil, "", "", s.err
	}
	return s.audio, s.format, s.method, nil
}

func (s *stubSpeech) SpeechStatus() map[string]bool {
	return map[string]bool{"groq": true, "huggingface": false}
}

func newVoiceRouter(speech *stubSpeech) *gin.Engine {
	h := NewVoiceHandler(app.NewVoiceService(speech))

	router := newEngine(5)
	router.POST("/api/voice/transcriptions", h.Transcribe)
	router.POST("/api/voice/speech", h.Speech)
	router.GET("/api/voice/status", h.Status)
	return router
}

func TestTranscribeEndpoint(t *testing.T) {
	t.Run("delegates upload", func(t *testing.T) {
		speech := &stubSpeech{text: "hello from audio", method: "groq"}
		router := newVoiceRouter(speech)

		rec := performMultipart(t, router, "/api/voice/transcriptions", "file", "clip.wav",
			[]byte("RIFFaudio"), map[string]string{"method": "groq"})

		require.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		require.Equal(t, response.CodeOK, env.Code)

		var data app.TranscriptionResult
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "hello from audio", data.Text)
		assert.Equal(t, "groq", data.Method)
		assert.Equal(t, "clip.wav", speech.gotFilename)
		assert.Equal(t, "groq", speech.gotMethod)
		assert.Equal(t, []byte("RIFFaudio"), speech.gotAudio)
	})

	t.Run("missing file part", func(t *testing.T) {
		router := newVoiceRouter(&stubSpeech{})

		rec := performJSON(t, router, http.MethodPost, "/api/voice/transcriptions", gin.H{})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeBadRequest, decodeEnvelope(t, rec).Code)
	})

	t.Run("no speech service configured", func(t *testing.T) {
		router := newVoiceRouter(&stubSpeech{err: app.ErrVoiceUnavailable})

		rec := performMultipart(t, router, "/api/voice/transcriptions", "file", "clip.wav",
			[]byte("RIFFaudio"), nil)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, response.CodeVoiceUnavailable, decodeEnvelope(t, rec).Code)
	})
}

func TestSpeechEndpoint(t *testing.T) {
	t.Run("returns audio bytes", func(t *testing.T) {
		speech := &stubSpeech{audio: []byte{1, 2, 3}, format: "audio/wav", method: "huggingface"}
		router := newVoiceRouter(speech)

		rec := performJSON(t, router, http.MethodPost, "/api/voice/speech", gin.H{
			"text": "Revenue grew twelve percent.",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
		assert.Equal(t, "huggingface", rec.Header().Get("X-Voice-Method"))
		assert.Equal(t, []byte{1, 2, 3}, rec.Body.Bytes())
		assert.Equal(t, "Revenue grew twelve percent.", speech.gotText)
	})

	t.Run("empty text", func(t *testing.T) {
		router := newVoiceRouter(&stubSpeech{})

		rec := performJSON(t, router, http.MethodPost, "/api/voice/speech", gin.H{"text": ""})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeBadRequest, decodeEnvelope(t, rec).Code)
	})

	t.Run("synthesis backend down", func(t *testing.T) {
		router := newVoiceRouter(&stubSpeech{err: app.ErrProviderFailed})

		rec := performJSON(t, router, http.MethodPost, "/api/voice/speech", gin.H{
			"text": "Revenue grew twelve percent.",
		})

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, response.CodeProviderFailed, decodeEnvelope(t, rec).Code)
	})
}

func TestVoiceStatusEndpoint(t *testing.T) {
	router := newVoiceRouter(&stubSpeech{})

	rec := performJSON(t, router, http.MethodGet, "/api/voice/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, response.CodeOK, env.Code)

	var data map[string]bool
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data["groq"])
	assert.False(t, data["huggingface"])
}
