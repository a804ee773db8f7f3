package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type VoiceHandler struct {
	voiceService *app.VoiceService
}

type SpeechRequest struct {
	Text   string `json:"text" binding:"required,max=4096"`
	Method string `json:"method" binding:"max=32"`
}

func NewVoiceHandler(voiceService *app.VoiceService) *VoiceHandler {
	return &VoiceHandler{voiceService: voiceService}
}

// Transcribe accepts a multipart form with an audio "file" part and an
// optional "method" field naming the speech service.
func (h *VoiceHandler) Transcribe(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read upload failed")
		return
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read upload failed")
		return
	}

	result, err := h.voiceService.Transcribe(
		c.Request.Context(),
		file.Filename,
		audio,
		file.Header.Get("Content-Type"),
		c.PostForm("method"),
	)
	if err != nil {
		writeVoiceError(c, err, "transcription failed")
		return
	}

	response.OK(c, result)
}

// Speech renders text to audio and returns the raw bytes with the
// synthesis content type.
func (h *VoiceHandler) Speech(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.voiceService.Synthesize(c.Request.Context(), req.Text, req.Method)
	if err != nil {
		writeVoiceError(c, err, "speech synthesis failed")
		return
	}

	c.Header("X-Voice-Method", result.Method)
	c.Data(http.StatusOK, result.Format, result.Audio)
}

func (h *VoiceHandler) Status(c *gin.Context) {
	response.OK(c, h.voiceService.Status())
}

func writeVoiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrVoiceUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeVoiceUnavailable, err.Error())
	case errors.Is(err, app.ErrProviderFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeProviderFailed, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
