package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/app"
	"docuchat/internal/model"
	"docuchat/internal/repository"
	"docuchat/internal/transport/http/response"
)

type stubQueryEngine struct {
	result *app.QueryResult
	err    error
	chunks []string
}

func (s *stubQueryEngine) Query(ctx context.Context, input app.QueryInput) (*app.QueryResult, error) {
	return s.result, s.err
}

func (s *stubQueryEngine) QueryStream(ctx context.Context, input app.QueryInput, onChunk func(string) error) (*app.QueryResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}
	return s.result, nil
}

type stubHistoryCache struct {
	history map[uint][]model.Message
	dirty   map[uint]bool
}

func newStubHistoryCache() *stubHistoryCache {
	return &stubHistoryCache{
		history: make(map[uint][]model.Message),
		dirty:   make(map[uint]bool),
	}
}

func (s *stubHistoryCache) GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error) {
	messages, ok := s.history[sessionID]
	return messages, ok, nil
}

func (s *stubHistoryCache) SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error {
	s.history[sessionID] = messages
	return nil
}

func (s *stubHistoryCache) Invalidate(ctx context.Context, sessionID uint) error {
	delete(s.history, sessionID)
	s.dirty[sessionID] = true
	return nil
}

func (s *stubHistoryCache) Forget(ctx context.Context, sessionID uint) error {
	delete(s.history, sessionID)
	delete(s.dirty, sessionID)
	return nil
}

func (s *stubHistoryCache) IsDirty(ctx context.Context, sessionID uint) (bool, error) {
	return s.dirty[sessionID], nil
}

func newChatRouter(t *testing.T, engine *stubQueryEngine) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	svc := app.NewChatService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		newStubHistoryCache(),
		engine,
	)
	h := NewChatHandler(svc)

	router := newEngine(5)
	router.POST("/api/sessions", h.CreateSession)
	router.GET("/api/sessions", h.ListSessions)
	router.GET("/api/sessions/:id/messages", h.GetMessages)
	router.POST("/api/sessions/:id/messages", h.SendMessage)
	router.POST("/api/sessions/:id/messages/stream", h.StreamMessage)
	router.DELETE("/api/sessions/:id", h.DeleteSession)
	return router, mock
}

func expectSession(mock sqlmock.Sqlmock, sessionID, userID uint) {
	rows := sqlmock.NewRows([]string{"id", "user_id", "title"}).
		AddRow(sessionID, userID, "Quarterly reports")
	mock.ExpectQuery("SELECT \\* FROM `sessions` WHERE id = \\? AND user_id = \\?").
		WithArgs(sessionID, userID, 1).
		WillReturnRows(rows)
}

func expectMessageWrite(mock sqlmock.Sqlmock, newID int64) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `messages`").
		WillReturnResult(sqlmock.NewResult(newID, 1))
	mock.ExpectCommit()
}

func TestCreateSessionEndpoint(t *testing.T) {
	router, mock := newChatRouter(t, &stubQueryEngine{})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `sessions`").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	rec := performJSON(t, router, http.MethodPost, "/api/sessions", gin.H{})

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, response.CodeOK, env.Code)

	var session model.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, uint(3), session.ID)
	assert.Equal(t, "New Chat", session.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageEndpoint(t *testing.T) {
	t.Run("persists question and grounded answer", func(t *testing.T) {
		engine := &stubQueryEngine{result: &app.QueryResult{
			Answer:     "Revenue grew twelve percent.",
			Provider:   "groq",
			Model:      "llama-3.3-70b",
			Mode:       "finance",
			Confidence: 0.82,
		}}
		router, mock := newChatRouter(t, engine)

		expectSession(mock, 7, 5)
		expectMessageWrite(mock, 21)
		expectMessageWrite(mock, 22)

		rec := performJSON(t, router, http.MethodPost, "/api/sessions/7/messages", gin.H{
			"content": "How did revenue develop?",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		require.Equal(t, response.CodeOK, env.Code)

		var data app.SendMessageResult
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Len(t, data.Messages, 2)
		assert.Equal(t, model.RoleUser, data.Messages[0].Role)
		assert.Equal(t, model.RoleAssistant, data.Messages[1].Role)
		assert.Equal(t, "Revenue grew twelve percent.", data.Messages[1].Content)
		require.NotNil(t, data.Query)
		assert.Equal(t, 0.82, data.Query.Confidence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		router, mock := newChatRouter(t, &stubQueryEngine{})

		mock.ExpectQuery("SELECT \\* FROM `sessions` WHERE id = \\? AND user_id = \\?").
			WithArgs(9, 5, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		rec := performJSON(t, router, http.MethodPost, "/api/sessions/9/messages", gin.H{
			"content": "Anything?",
		})

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, response.CodeSessionNotFound, decodeEnvelope(t, rec).Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("provider outage", func(t *testing.T) {
		router, mock := newChatRouter(t, &stubQueryEngine{err: app.ErrProviderFailed})

		expectSession(mock, 7, 5)
		expectMessageWrite(mock, 21)

		rec := performJSON(t, router, http.MethodPost, "/api/sessions/7/messages", gin.H{
			"content": "How did revenue develop?",
		})

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, response.CodeProviderFailed, decodeEnvelope(t, rec).Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStreamMessageEndpoint(t *testing.T) {
	engine := &stubQueryEngine{
		result: &app.QueryResult{Answer: "Revenue grew twelve percent.", Provider: "groq"},
		chunks: []string{"Revenue grew ", "twelve percent."},
	}
	router, mock := newChatRouter(t, engine)

	expectSession(mock, 7, 5)
	expectMessageWrite(mock, 21)
	expectMessageWrite(mock, 22)

	rec := performJSON(t, router, http.MethodPost, "/api/sessions/7/messages/stream", gin.H{
		"content": "How did revenue develop?",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "data: Revenue grew"))
	assert.True(t, strings.Contains(body, "data: twelve percent."))
	assert.True(t, strings.Contains(body, "event: done"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessagesEndpoint(t *testing.T) {
	router, mock := newChatRouter(t, &stubQueryEngine{})

	expectSession(mock, 7, 5)
	rows := sqlmock.NewRows([]string{"id", "session_id", "user_id", "role", "content"}).
		AddRow(21, 7, 5, model.RoleUser, "How did revenue develop?").
		AddRow(22, 7, 5, model.RoleAssistant, "Revenue grew twelve percent.")
	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE session_id = \\?").
		WithArgs(7, 100).
		WillReturnRows(rows)

	rec := performJSON(t, router, http.MethodGet, "/api/sessions/7/messages", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, response.CodeOK, env.Code)

	var history []model.Message
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionEndpoint(t *testing.T) {
	router, mock := newChatRouter(t, &stubQueryEngine{})

	expectSession(mock, 7, 5)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `messages` WHERE session_id = \\?").
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `sessions` WHERE id = \\? AND user_id = \\?").
		WithArgs(7, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := performJSON(t, router, http.MethodDelete, "/api/sessions/7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, response.CodeOK, env.Code)

	var data struct {
		DeletedSessionID uint `json:"deleted_session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, uint(7), data.DeletedSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
