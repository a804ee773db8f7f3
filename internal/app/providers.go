package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docuchat/internal/ai"
	"docuchat/internal/config"
	"docuchat/internal/metrics"
)

const (
	ProviderGroq        = "groq"
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
)

var (
	ErrProviderUnavailable = errors.New("no configured llm provider")
	ErrProviderFailed      = errors.New("llm provider request failed")
	ErrVoiceUnavailable    = errors.New("no configured voice service")
)

// chatProviderOrder is the fallback order when neither the request nor the
// config names a usable provider.
var chatProviderOrder = []string{ProviderGroq, ProviderGemini, ProviderHuggingFace}

type GenerateInput struct {
	Provider    string
	Model       string
	Messages    []ai.ChatMessage
	MaxTokens   int
	Temperature float64
}

type GenerateOutput struct {
	Answer   string
	Provider string
	Model    string
}

// ProviderRouter resolves which upstream AI service handles each call.
// A provider counts as configured when its API key is set.
type ProviderRouter struct {
	providers config.ProvidersConfig
	rag       config.RAGConfig
	oai       *ai.OpenAICompatibleClient
	gemini    *ai.GeminiClient
	hf        *ai.HuggingFaceClient
}

func NewProviderRouter(providers config.ProvidersConfig, rag config.RAGConfig) *ProviderRouter {
	return &ProviderRouter{
		providers: providers,
		rag:       rag,
		oai:       ai.NewOpenAICompatibleClient(),
		gemini:    ai.NewGeminiClient(),
		hf:        ai.NewHuggingFaceClient(),
	}
}

func (r *ProviderRouter) configured(name string) bool {
	switch name {
	case ProviderGroq:
		return r.providers.Groq.APIKey != ""
	case ProviderGemini:
		return r.providers.Gemini.APIKey != ""
	case ProviderHuggingFace:
		return r.providers.HuggingFace.APIKey != ""
	}
	return false
}

// AvailableProviders lists configured chat providers in fallback order.
func (r *ProviderRouter) AvailableProviders() []string {
	var out []string
	for _, name := range chatProviderOrder {
		if r.configured(name) {
			out = append(out, name)
		}
	}
	return out
}

// ResolveProvider returns the provider to use for a generation call. An
// explicit request must name a configured provider; otherwise the config
// default wins, then the first configured one.
func (r *ProviderRouter) ResolveProvider(requested string) (string, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested != "" {
		if !r.configured(requested) {
			return "", fmt.Errorf("%w: %s is not configured", ErrProviderUnavailable, requested)
		}
		return requested, nil
	}
	if def := strings.ToLower(strings.TrimSpace(r.rag.DefaultProvider)); def != "" && r.configured(def) {
		return def, nil
	}
	for _, name := range chatProviderOrder {
		if r.configured(name) {
			return name, nil
		}
	}
	return "", ErrProviderUnavailable
}

func (r *ProviderRouter) Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error) {
	provider, err := r.ResolveProvider(input.Provider)
	if err != nil {
		return nil, err
	}

	metrics.ProviderRequests.WithLabelValues(provider, "chat").Inc()
	var answer, model string
	switch provider {
	case ProviderGroq:
		cfg := r.groqChatConfig(input)
		model = cfg.Model
		answer, err = r.oai.Complete(ctx, cfg, input.Messages)
	case ProviderGemini:
		cfg := r.geminiChatConfig(input)
		model = cfg.Model
		answer, err = r.gemini.Complete(ctx, cfg, input.Messages)
	case ProviderHuggingFace:
		cfg := r.hfChatConfig(input)
		model = cfg.Model
		answer, err = r.hf.Complete(ctx, cfg, input.Messages)
	}
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(provider, "chat").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return &GenerateOutput{Answer: answer, Provider: provider, Model: model}, nil
}

// StreamGenerate streams the answer through onChunk. Providers without a
// native token stream deliver the whole answer as one chunk.
func (r *ProviderRouter) StreamGenerate(ctx context.Context, input GenerateInput, onChunk func(string) error) (*GenerateOutput, error) {
	provider, err := r.ResolveProvider(input.Provider)
	if err != nil {
		return nil, err
	}

	metrics.ProviderRequests.WithLabelValues(provider, "chat").Inc()
	var answer, model string
	switch provider {
	case ProviderGroq:
		cfg := r.groqChatConfig(input)
		model = cfg.Model
		answer, err = r.oai.StreamComplete(ctx, cfg, input.Messages, onChunk)
	case ProviderGemini:
		cfg := r.geminiChatConfig(input)
		model = cfg.Model
		answer, err = r.gemini.StreamComplete(ctx, cfg, input.Messages, onChunk)
	case ProviderHuggingFace:
		cfg := r.hfChatConfig(input)
		model = cfg.Model
		answer, err = r.hf.StreamComplete(ctx, cfg, input.Messages, onChunk)
	}
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(provider, "chat").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return &GenerateOutput{Answer: answer, Provider: provider, Model: model}, nil
}

func (r *ProviderRouter) groqChatConfig(input GenerateInput) ai.ChatConfig {
	model := input.Model
	if model == "" {
		model = r.providers.Groq.ChatModel
	}
	return ai.ChatConfig{
		BaseURL:     r.providers.Groq.BaseURL,
		APIKey:      r.providers.Groq.APIKey,
		Model:       model,
		MaxTokens:   input.MaxTokens,
		Temperature: input.Temperature,
	}
}

func (r *ProviderRouter) geminiChatConfig(input GenerateInput) ai.GeminiConfig {
	model := input.Model
	if model == "" {
		model = r.providers.Gemini.ChatModel
	}
	return ai.GeminiConfig{
		BaseURL:     r.providers.Gemini.BaseURL,
		APIKey:      r.providers.Gemini.APIKey,
		Model:       model,
		MaxTokens:   input.MaxTokens,
		Temperature: input.Temperature,
	}
}

func (r *ProviderRouter) hfChatConfig(input GenerateInput) ai.HuggingFaceChatConfig {
	model := input.Model
	if model == "" {
		model = r.providers.HuggingFace.ChatModel
	}
	return ai.HuggingFaceChatConfig{
		BaseURL:     r.providers.HuggingFace.BaseURL,
		APIKey:      r.providers.HuggingFace.APIKey,
		Model:       model,
		MaxTokens:   input.MaxTokens,
		Temperature: input.Temperature,
	}
}

// EmbedTexts embeds a batch of chunk texts with the configured embedding
// provider ("huggingface" feature-extraction by default, "openai" for any
// OpenAI-compatible endpoint configured in the groq section).
func (r *ProviderRouter) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	provider := strings.ToLower(strings.TrimSpace(r.rag.EmbeddingProvider))
	if provider == "" {
		provider = ProviderHuggingFace
	}

	metrics.ProviderRequests.WithLabelValues(provider, "embedding").Inc()
	var vectors [][]float32
	var err error
	switch provider {
	case "openai":
		if r.providers.Groq.APIKey == "" || r.providers.Groq.EmbeddingModel == "" {
			return nil, fmt.Errorf("%w: openai embedding endpoint is not configured", ErrProviderUnavailable)
		}
		vectors, err = r.oai.EmbedBatch(ctx, ai.EmbeddingConfig{
			BaseURL: r.providers.Groq.BaseURL,
			APIKey:  r.providers.Groq.APIKey,
			Model:   r.providers.Groq.EmbeddingModel,
		}, texts)
	case ProviderHuggingFace:
		if r.providers.HuggingFace.APIKey == "" {
			return nil, fmt.Errorf("%w: huggingface embeddings are not configured", ErrProviderUnavailable)
		}
		vectors, err = r.hf.EmbedBatch(ctx, ai.HuggingFaceEmbeddingConfig{
			BaseURL: r.providers.HuggingFace.BaseURL,
			APIKey:  r.providers.HuggingFace.APIKey,
			Model:   r.providers.HuggingFace.EmbeddingModel,
		}, texts)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrProviderUnavailable, provider)
	}
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(provider, "embedding").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single question text.
func (r *ProviderRouter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty embedding result", ErrProviderFailed)
	}
	return vectors[0], nil
}

// Transcribe converts audio to text. Method "groq" uses the Whisper
// endpoint, "huggingface" the hosted ASR model; empty or "auto" picks the
// first configured in that order.
func (r *ProviderRouter) Transcribe(ctx context.Context, method, filename string, audio []byte, contentType string) (string, string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" || method == "auto" {
		switch {
		case r.providers.Groq.APIKey != "":
			method = ProviderGroq
		case r.providers.HuggingFace.APIKey != "":
			method = ProviderHuggingFace
		default:
			return "", "", ErrVoiceUnavailable
		}
	}

	metrics.ProviderRequests.WithLabelValues(method, "transcription").Inc()
	var text string
	var err error
	switch method {
	case ProviderGroq:
		if r.providers.Groq.APIKey == "" {
			return "", "", fmt.Errorf("%w: groq transcription is not configured", ErrVoiceUnavailable)
		}
		text, err = r.oai.Transcribe(ctx, ai.TranscriptionConfig{
			BaseURL: r.providers.Groq.BaseURL,
			APIKey:  r.providers.Groq.APIKey,
			Model:   r.providers.Groq.WhisperModel,
		}, filename, audio)
	case ProviderHuggingFace:
		if r.providers.HuggingFace.APIKey == "" {
			return "", "", fmt.Errorf("%w: huggingface transcription is not configured", ErrVoiceUnavailable)
		}
		text, err = r.hf.Transcribe(ctx, ai.HuggingFaceAudioConfig{
			BaseURL: r.providers.HuggingFace.BaseURL,
			APIKey:  r.providers.HuggingFace.APIKey,
			Model:   r.providers.HuggingFace.ASRModel,
		}, audio, contentType)
	default:
		return "", "", fmt.Errorf("%w: unknown transcription method %q", ErrVoiceUnavailable, method)
	}
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(method, "transcription").Inc()
		return "", "", fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return text, method, nil
}

// Synthesize renders text to speech via the hosted TTS model.
func (r *ProviderRouter) Synthesize(ctx context.Context, method, text string) ([]byte, string, string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" || method == "auto" {
		method = ProviderHuggingFace
	}
	if method != ProviderHuggingFace {
		return nil, "", "", fmt.Errorf("%w: unknown synthesis method %q", ErrVoiceUnavailable, method)
	}
	if r.providers.HuggingFace.APIKey == "" {
		return nil, "", "", fmt.Errorf("%w: huggingface synthesis is not configured", ErrVoiceUnavailable)
	}

	metrics.ProviderRequests.WithLabelValues(method, "synthesis").Inc()
	audio, format, err := r.hf.Synthesize(ctx, ai.HuggingFaceAudioConfig{
		BaseURL: r.providers.HuggingFace.BaseURL,
		APIKey:  r.providers.HuggingFace.APIKey,
		Model:   r.providers.HuggingFace.TTSModel,
	}, text)
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(method, "synthesis").Inc()
		return nil, "", "", fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return audio, format, method, nil
}

// SpeechStatus reports which delegated services are configured.
func (r *ProviderRouter) SpeechStatus() map[string]bool {
	return map[string]bool{
		"groq_whisper":     r.providers.Groq.APIKey != "",
		"huggingface_asr":  r.providers.HuggingFace.APIKey != "",
		"huggingface_tts":  r.providers.HuggingFace.APIKey != "",
		"groq_chat":        r.configured(ProviderGroq),
		"gemini_chat":      r.configured(ProviderGemini),
		"huggingface_chat": r.configured(ProviderHuggingFace),
	}
}
