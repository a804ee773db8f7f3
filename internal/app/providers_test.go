package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/ai"
	"docuchat/internal/config"
)

func TestResolveProvider(t *testing.T) {
	router := NewProviderRouter(config.ProvidersConfig{
		Gemini:      config.GeminiConfig{APIKey: "k2"},
		HuggingFace: config.HuggingFaceConfig{APIKey: "k3"},
	}, config.RAGConfig{})

	t.Run("explicit configured", func(t *testing.T) {
		got, err := router.ResolveProvider("Gemini")
		require.NoError(t, err)
		assert.Equal(t, ProviderGemini, got)
	})

	t.Run("explicit unconfigured", func(t *testing.T) {
		_, err := router.ResolveProvider("groq")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("falls through order when groq is missing", func(t *testing.T) {
		got, err := router.ResolveProvider("")
		require.NoError(t, err)
		assert.Equal(t, ProviderGemini, got)
	})

	t.Run("config default wins", func(t *testing.T) {
		withDefault := NewProviderRouter(config.ProvidersConfig{
			Gemini:      config.GeminiConfig{APIKey: "k2"},
			HuggingFace: config.HuggingFaceConfig{APIKey: "k3"},
		}, config.RAGConfig{DefaultProvider: "huggingface"})

		got, err := withDefault.ResolveProvider("")
		require.NoError(t, err)
		assert.Equal(t, ProviderHuggingFace, got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		empty := NewProviderRouter(config.ProvidersConfig{}, config.RAGConfig{})
		_, err := empty.ResolveProvider("")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})
}

func TestRouterGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gk", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-3.3-70b-versatile", body["model"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Grounded answer."}},
			},
		})
	}))
	defer server.Close()

	router := NewProviderRouter(config.ProvidersConfig{
		Groq: config.GroqConfig{BaseURL: server.URL, APIKey: "gk", ChatModel: "llama-3.3-70b-versatile"},
	}, config.RAGConfig{})

	out, err := router.Generate(context.Background(), GenerateInput{
		Messages:  []ai.ChatMessage{{Role: "user", Content: "hello"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Grounded answer.", out.Answer)
	assert.Equal(t, ProviderGroq, out.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", out.Model)
}

func TestRouterGenerateWrapsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	router := NewProviderRouter(config.ProvidersConfig{
		Groq: config.GroqConfig{BaseURL: server.URL, APIKey: "gk", ChatModel: "llama"},
	}, config.RAGConfig{})

	_, err := router.Generate(context.Background(), GenerateInput{
		Messages: []ai.ChatMessage{{Role: "user", Content: "hello"}},
	})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestRouterEmbedTexts(t *testing.T) {
	t.Run("huggingface default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/pipeline/feature-extraction/bge-small", r.URL.Path)
			_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}, {0.3, 0.4}})
		}))
		defer server.Close()

		router := NewProviderRouter(config.ProvidersConfig{
			HuggingFace: config.HuggingFaceConfig{BaseURL: server.URL, APIKey: "hk", EmbeddingModel: "bge-small"},
		}, config.RAGConfig{})

		vectors, err := router.EmbedTexts(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	})

	t.Run("openai endpoint needs a model", func(t *testing.T) {
		router := NewProviderRouter(config.ProvidersConfig{
			Groq: config.GroqConfig{APIKey: "gk"},
		}, config.RAGConfig{EmbeddingProvider: "openai"})

		_, err := router.EmbedTexts(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("unknown provider", func(t *testing.T) {
		router := NewProviderRouter(config.ProvidersConfig{}, config.RAGConfig{EmbeddingProvider: "azure"})
		_, err := router.EmbedTexts(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})
}

func TestRouterEmbedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{0.5, 0.5}})
	}))
	defer server.Close()

	router := NewProviderRouter(config.ProvidersConfig{
		HuggingFace: config.HuggingFaceConfig{BaseURL: server.URL, APIKey: "hk", EmbeddingModel: "bge-small"},
	}, config.RAGConfig{})

	vec, err := router.EmbedQuery(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

func TestRouterTranscribe(t *testing.T) {
	t.Run("auto prefers groq whisper", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/audio/transcriptions", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
		}))
		defer server.Close()

		router := NewProviderRouter(config.ProvidersConfig{
			Groq:        config.GroqConfig{BaseURL: server.URL, APIKey: "gk", WhisperModel: "whisper-large-v3"},
			HuggingFace: config.HuggingFaceConfig{APIKey: "hk"},
		}, config.RAGConfig{})

		text, method, err := router.Transcribe(context.Background(), "auto", "note.wav", []byte{1, 2}, "audio/wav")
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
		assert.Equal(t, ProviderGroq, method)
	})

	t.Run("auto falls back to huggingface", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models/openai/whisper-large-v3", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]string{"text": "bonjour"})
		}))
		defer server.Close()

		router := NewProviderRouter(config.ProvidersConfig{
			HuggingFace: config.HuggingFaceConfig{BaseURL: server.URL, APIKey: "hk", ASRModel: "openai/whisper-large-v3"},
		}, config.RAGConfig{})

		text, method, err := router.Transcribe(context.Background(), "", "note.wav", []byte{1, 2}, "audio/wav")
		require.NoError(t, err)
		assert.Equal(t, "bonjour", text)
		assert.Equal(t, ProviderHuggingFace, method)
	})

	t.Run("nothing configured", func(t *testing.T) {
		router := NewProviderRouter(config.ProvidersConfig{}, config.RAGConfig{})
		_, _, err := router.Transcribe(context.Background(), "auto", "note.wav", []byte{1}, "audio/wav")
		assert.ErrorIs(t, err, ErrVoiceUnavailable)
	})

	t.Run("explicit method must be configured", func(t *testing.T) {
		router := NewProviderRouter(config.ProvidersConfig{
			HuggingFace: config.HuggingFaceConfig{APIKey: "hk"},
		}, config.RAGConfig{})
		_, _, err := router.Transcribe(context.Background(), "groq", "note.wav", []byte{1}, "audio/wav")
		assert.ErrorIs(t, err, ErrVoiceUnavailable)
	})
}

func TestRouterSynthesize(t *testing.T) {
	t.Run("renders through huggingface tts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models/facebook/mms-tts-eng", r.URL.Path)
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write([]byte{9, 9, 9})
		}))
		defer server.Close()

		router := NewProviderRouter(config.ProvidersConfig{
			HuggingFace: config.HuggingFaceConfig{BaseURL: server.URL, APIKey: "hk", TTSModel: "facebook/mms-tts-eng"},
		}, config.RAGConfig{})

		audio, format, method, err := router.Synthesize(context.Background(), "", "read this aloud")
		require.NoError(t, err)
		assert.Equal(t, []byte{9, 9, 9}, audio)
		assert.Equal(t, "audio/wav", format)
		assert.Equal(t, ProviderHuggingFace, method)
	})

	t.Run("unknown method", func(t *testing.T) {
		router := NewProviderRouter(config.ProvidersConfig{
			HuggingFace: config.HuggingFaceConfig{APIKey: "hk"},
		}, config.RAGConfig{})
		_, _, _, err := router.Synthesize(context.Background(), "espeak", "text")
		assert.ErrorIs(t, err, ErrVoiceUnavailable)
	})
}

func TestSpeechStatus(t *testing.T) {
	router := NewProviderRouter(config.ProvidersConfig{
		Groq: config.GroqConfig{APIKey: "gk"},
	}, config.RAGConfig{})

	status := router.SpeechStatus()
	assert.True(t, status["groq_whisper"])
	assert.True(t, status["groq_chat"])
	assert.False(t, status["huggingface_asr"])
	assert.False(t, status["huggingface_tts"])
	assert.False(t, status["gemini_chat"])
}
