package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceChatConfig holds settings for the hosted text-generation API.
type HuggingFaceChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// HuggingFaceEmbeddingConfig holds settings for the feature-extraction pipeline.
type HuggingFaceEmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// HuggingFaceAudioConfig holds settings for hosted TTS and ASR models.
type HuggingFaceAudioConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// HuggingFaceClient calls the Hugging Face hosted inference API.
type HuggingFaceClient struct {
	httpClient *http.Client
}

func NewHuggingFaceClient() *HuggingFaceClient {
	return &HuggingFaceClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// EmbedBatch embeds texts through the feature-extraction pipeline with mean
// pooling and normalization, one vector per input.
func (c *HuggingFaceClient) EmbedBatch(ctx context.Context, cfg HuggingFaceEmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input text is empty")
		}
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s?pooling=mean&normalize=true&wait_for_model=true",
		strings.TrimRight(cfg.BaseURL, "/"), cfg.Model)
	payload, err := json.Marshal(map[string]interface{}{"inputs": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	raw, err := c.post(ctx, url, cfg.APIKey, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	var vectors [][]float32
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	return vectors, nil
}

// Embed embeds a single text.
func (c *HuggingFaceClient) Embed(ctx context.Context, cfg HuggingFaceEmbeddingConfig, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, cfg, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Complete flattens the conversation into an instruct prompt and runs it
// through the hosted text-generation endpoint.
func (c *HuggingFaceClient) Complete(ctx context.Context, cfg HuggingFaceChatConfig, messages []ChatMessage) (string, error) {
	parameters := map[string]interface{}{
		"return_full_text": false,
	}
	if cfg.MaxTokens > 0 {
		parameters["max_new_tokens"] = cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		parameters["temperature"] = cfg.Temperature
	}
	payload, err := json.Marshal(map[string]interface{}{
		"inputs":     flattenPrompt(messages),
		"parameters": parameters,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request failed: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model)
	raw, err := c.post(ctx, url, cfg.APIKey, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	var parsed []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse generation json failed: %w", err)
	}
	if len(parsed) == 0 {
		return "", fmt.Errorf("generation response is empty")
	}
	return strings.TrimSpace(parsed[0].GeneratedText), nil
}

// StreamComplete emits the whole answer as one chunk. The hosted inference
// endpoint offers no token stream.
func (c *HuggingFaceClient) StreamComplete(ctx context.Context, cfg HuggingFaceChatConfig, messages []ChatMessage, onChunk func(string) error) (string, error) {
	answer, err := c.Complete(ctx, cfg, messages)
	if err != nil {
		return "", err
	}
	if err := onChunk(answer); err != nil {
		return "", err
	}
	return answer, nil
}

// Synthesize renders text to speech and returns the audio bytes with the
// content type reported by the model.
func (c *HuggingFaceClient) Synthesize(ctx context.Context, cfg HuggingFaceAudioConfig, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("synthesis input text is empty")
	}
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, "", fmt.Errorf("marshal synthesis request failed: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build synthesis request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read synthesis response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("synthesis response status %d: %s", resp.StatusCode, string(raw))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/flac"
	}
	return raw, contentType, nil
}

// Transcribe runs raw audio through a hosted speech recognition model.
func (c *HuggingFaceClient) Transcribe(ctx context.Context, cfg HuggingFaceAudioConfig, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("transcription input is empty")
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model)
	raw, err := c.post(ctx, url, cfg.APIKey, contentType, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse transcription json failed: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

func (c *HuggingFaceClient) post(ctx context.Context, url, apiKey, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

// flattenPrompt renders chat turns into a plain instruct prompt for models
// served without a chat template.
func flattenPrompt(messages []ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		default:
			b.WriteString("User: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}
