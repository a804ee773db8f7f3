package app

import (
	"context"
	"strings"
)

const (
	// Hosted Whisper endpoints reject uploads past 25 MB.
	maxAudioBytes   = 25 << 20
	maxSpeechChars  = 4096
	defaultAudioExt = "audio.wav"
)

// SpeechProvider delegates speech recognition and synthesis to whichever
// hosted service is configured.
type SpeechProvider interface {
	Transcribe(ctx context.Context, method, filename string, audio []byte, contentType string) (string, string, error)
	Synthesize(ctx context.Context, method, text string) ([]byte, string, string, error)
	SpeechStatus() map[string]bool
}

type VoiceService struct {
	speech SpeechProvider
}

func NewVoiceService(speech SpeechProvider) *VoiceService {
	return &VoiceService{speech: speech}
}

type TranscriptionResult struct {
	Text   string `json:"text"`
	Method string `json:"method"`
}

type SynthesisResult struct {
	Audio  []byte `json:"-"`
	Format string `json:"format"`
	Method string `json:"method"`
}

// Transcribe converts uploaded audio to text. Method may name a concrete
// service ("groq", "huggingface") or be empty for automatic selection.
func (s *VoiceService) Transcribe(ctx context.Context, filename string, audio []byte, contentType, method string) (*TranscriptionResult, error) {
	if len(audio) == 0 || len(audio) > maxAudioBytes {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(filename) == "" {
		filename = defaultAudioExt
	}

	text, used, err := s.speech.Transcribe(ctx, method, filename, audio, contentType)
	if err != nil {
		return nil, err
	}
	return &TranscriptionResult{Text: text, Method: used}, nil
}

// Synthesize renders text to audio.
func (s *VoiceService) Synthesize(ctx context.Context, text, method string) (*SynthesisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxSpeechChars {
		return nil, ErrInvalidInput
	}

	audio, format, used, err := s.speech.Synthesize(ctx, method, text)
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{Audio: audio, Format: format, Method: used}, nil
}

// Status reports which delegated speech services are configured.
func (s *VoiceService) Status() map[string]bool {
	return s.speech.SpeechStatus()
}
