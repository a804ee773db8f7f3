package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type QueryHandler struct {
	ragService *app.RAGService
}

type QueryRequest struct {
	Question    string `json:"question" binding:"required,max=2000"`
	DocumentIDs []uint `json:"document_ids"`
	Mode        string `json:"mode" binding:"max=32"`
	MaxSources  int    `json:"max_sources" binding:"min=0,max=20"`
	Provider    string `json:"provider" binding:"max=32"`
	Model       string `json:"model" binding:"max=128"`
}

type CompareRequest struct {
	Question    string `json:"question" binding:"required,max=2000"`
	DocumentIDs []uint `json:"document_ids"`
	Provider    string `json:"provider" binding:"max=32"`
	Model       string `json:"model" binding:"max=128"`
}

func NewQueryHandler(ragService *app.RAGService) *QueryHandler {
	return &QueryHandler{ragService: ragService}
}

// Query answers a question grounded in the caller's indexed documents.
func (h *QueryHandler) Query(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.ragService.Query(c.Request.Context(), app.QueryInput{
		UserID:      userID,
		Question:    req.Question,
		DocumentIDs: req.DocumentIDs,
		Mode:        req.Mode,
		MaxSources:  req.MaxSources,
		Provider:    req.Provider,
		Model:       req.Model,
	})
	if err != nil {
		writeQueryError(c, err, "query failed")
		return
	}

	response.OK(c, result)
}

// Compare answers a question across at least two documents, contrasting
// what each one says.
func (h *QueryHandler) Compare(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.ragService.Compare(c.Request.Context(), app.CompareInput{
		UserID:      userID,
		Question:    req.Question,
		DocumentIDs: req.DocumentIDs,
		Provider:    req.Provider,
		Model:       req.Model,
	})
	if err != nil {
		if errors.Is(err, app.ErrNotEnoughDocuments) {
			response.Error(c, http.StatusBadRequest, response.CodeNotEnoughDocuments,
				"I need at least two documents to perform a comparison.")
			return
		}
		writeQueryError(c, err, "compare failed")
		return
	}

	response.OK(c, result)
}

// Stats reports index and corpus counters for the caller.
func (h *QueryHandler) Stats(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	stats, err := h.ragService.Stats(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stats failed")
		return
	}

	response.OK(c, stats)
}

// writeQueryError maps the retrieval and provider errors shared by the
// query, compare and chat endpoints.
func writeQueryError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentNotReady):
		response.Error(c, http.StatusConflict, response.CodeDocumentNotReady, err.Error())
	case errors.Is(err, app.ErrProviderUnavailable), errors.Is(err, app.ErrProviderFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeProviderFailed, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
